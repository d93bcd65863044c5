package domain

import "time"

// Item is a product registered for sale. Price is expressed in the smallest
// currency unit of the ledger. ContractInstanceID is empty until the item's
// listing is opened and is set exactly once; identity and price are immutable
// after registration.
type Item struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Price              int64     `json:"price"`
	SellerID           string    `json:"seller_id"`
	SellerWallet       string    `json:"seller_wallet"`
	ContractInstanceID string    `json:"contract_instance_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
