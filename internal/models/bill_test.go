package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeBill(t *testing.T) {
	raw := []byte(`{"id":"b1","user":"Alice","lines":[{"id":"x","desc":"Tea","qty":2,"price":10,"total":20}],"total":20,"createdAt":1760000000000}`)

	bill, err := DecodeBill(raw)
	if err != nil {
		t.Fatalf("DecodeBill failed: %v", err)
	}
	if bill.ID != "b1" || bill.User != "Alice" || bill.Total != 20 || bill.CreatedAt != 1760000000000 {
		t.Errorf("unexpected bill: %+v", bill)
	}
	if len(bill.Lines) != 1 || bill.Lines[0].Qty != 2 {
		t.Errorf("unexpected lines: %+v", bill.Lines)
	}

	// The payload is a copy, not an alias of the caller's buffer.
	raw[0] = ' '
	if bill.Payload[0] != '{' {
		t.Error("payload aliases the input buffer")
	}
}

func TestDecodeBill_Malformed(t *testing.T) {
	if _, err := DecodeBill([]byte(`{"id":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestEncodedPayload(t *testing.T) {
	built := &Bill{ID: "b2", User: "Bob", Total: 5, CreatedAt: 1}
	payload, err := built.EncodedPayload()
	if err != nil {
		t.Fatalf("EncodedPayload failed: %v", err)
	}
	var back Bill
	if err := json.Unmarshal(payload, &back); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if back.ID != "b2" || back.User != "Bob" {
		t.Errorf("unexpected payload: %s", payload)
	}

	kept := &Bill{ID: "b3", Payload: json.RawMessage(`{"id":"b3","extra":true}`)}
	payload, _ = kept.EncodedPayload()
	if string(payload) != `{"id":"b3","extra":true}` {
		t.Errorf("original payload not preferred: %s", payload)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		bill    *Bill
		wantErr bool
	}{
		{"valid", &Bill{ID: "b1"}, false},
		{"valid without lines", &Bill{ID: "b1", Lines: nil}, false},
		{"missing id", &Bill{User: "Alice"}, true},
		{"blank id", &Bill{ID: "   "}, true},
		{"nil bill", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bill.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != "id" {
				t.Errorf("expected ValidationError on id, got %v", err)
			}
			if !errors.Is(err, ErrMissingID) {
				t.Errorf("expected ErrMissingID, got %v", err)
			}
		})
	}
}
