package ledger

import (
	"encoding/json"
	"strings"
)

// MessageType tags a structured note-field message.
type MessageType string

const (
	MessageBuy   MessageType = "BUY"
	MessageSell  MessageType = "SELL"
	MessageQuery MessageType = "QUERY"
)

// Message is the structured envelope carried in a payment's note field.
// Body holds free-form text (an item description, a question); Ref links a
// reply back to the transaction id it answers.
type Message struct {
	Type MessageType `json:"type"`
	Body string      `json:"body,omitempty"`
	Ref  string      `json:"ref,omitempty"`
}

// EncodeNote serializes a message into note-field bytes.
func EncodeNote(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// DecodeNote parses note-field bytes into a Message. It first tries the
// tagged JSON envelope; if the note is not valid JSON or carries no type
// tag, it falls back to keyword sniffing of the raw text for BUY/SELL/QUERY.
// It returns nil when the note carries no recognizable message.
func DecodeNote(note []byte) *Message {
	if len(note) == 0 {
		return nil
	}

	var m Message
	if err := json.Unmarshal(note, &m); err == nil && m.Type != "" {
		switch m.Type {
		case MessageBuy, MessageSell, MessageQuery:
			return &m
		}
		return nil
	}

	// Untagged note: sniff keywords in the raw text.
	text := string(note)
	upper := strings.ToUpper(text)
	for _, t := range []MessageType{MessageBuy, MessageSell, MessageQuery} {
		if strings.Contains(upper, string(t)) {
			return &Message{Type: t, Body: strings.TrimSpace(text)}
		}
	}
	return nil
}
