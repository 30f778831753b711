package models

import "encoding/json"

// Bill is a finalized sale record sent by the point-of-sale front end.
type Bill struct {
	// ID is generated by the client and stays the same across retries.
	// Re-submitting a bill with the same ID replaces the stored record.
	ID string `json:"id"`

	// User is the display name of whoever rang up the sale.
	User string `json:"user"`

	// Lines are the priced entries in the order they were added to the cart.
	Lines []LineItem `json:"lines"`

	// Total is the bill amount as computed by the client.
	// It is expected to equal the sum of line totals but is not re-validated.
	Total float64 `json:"total"`

	// CreatedAt is the creation time in Unix milliseconds.
	CreatedAt int64 `json:"createdAt"`

	// Payload is the JSON document the bill was decoded from.
	// When set, it is what the store persists, so fields the agent does not
	// model (line IDs, client metadata) survive a round trip.
	Payload json.RawMessage `json:"-"`
}

// LineItem is one priced entry within a Bill.
type LineItem struct {
	Desc  string  `json:"desc"`
	Qty   float64 `json:"qty"`
	Price float64 `json:"price"`

	// Total is qty × price as sent by the client.
	Total float64 `json:"total"`
}

// UserTotal is one row of the sales report: how many bills a user
// created in the window and what they add up to.
type UserTotal struct {
	User  string  `json:"user"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
}

// DecodeBill parses a bill from its JSON payload and keeps a copy of the
// raw bytes on the result.
func DecodeBill(data []byte) (*Bill, error) {
	bill := &Bill{}
	if err := json.Unmarshal(data, bill); err != nil {
		return nil, err
	}
	bill.Payload = append(json.RawMessage(nil), data...)
	return bill, nil
}

// EncodedPayload returns the JSON that represents the bill in storage.
// The original payload is preferred; bills built in code are marshalled.
func (b *Bill) EncodedPayload() ([]byte, error) {
	if len(b.Payload) > 0 {
		return b.Payload, nil
	}
	return json.Marshal(b)
}
