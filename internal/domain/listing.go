package domain

// ListingStatus is a point-in-time snapshot of a listing contract instance.
type ListingStatus struct {
	InstanceID     string `json:"instance_id"`
	IsOpen         bool   `json:"is_open"`
	TargetWallet   string `json:"target_wallet"`
	TargetAmount   int64  `json:"target_amount"`
	ReceivedAmount int64  `json:"received_amount"`
}

// Remaining returns the amount still needed to reach the target. It is never
// negative; an overshot listing reports zero.
func (s ListingStatus) Remaining() int64 {
	if s.ReceivedAmount >= s.TargetAmount {
		return 0
	}
	return s.TargetAmount - s.ReceivedAmount
}
