package amqp

import (
	"testing"
	"time"
)

func TestLedgerEventMessageRoundTrip(t *testing.T) {
	msg := NewLedgerEventMessage("u1", "t1", ActionCreated)
	if msg.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := LedgerEventMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.UserID != "u1" || decoded.TransactionID != "t1" || decoded.Action != ActionCreated {
		t.Fatalf("round trip lost fields: %+v", decoded)
	}
	if !decoded.Timestamp.Truncate(time.Millisecond).Equal(msg.Timestamp.Truncate(time.Millisecond)) {
		t.Fatalf("timestamp drifted: %v vs %v", decoded.Timestamp, msg.Timestamp)
	}
}

func TestLedgerEventMessageValidate(t *testing.T) {
	cases := []struct {
		msg *LedgerEventMessage
		ok  bool
	}{
		{NewLedgerEventMessage("u1", "t1", ActionCreated), true},
		{NewLedgerEventMessage("u1", "t1", ActionUpdated), true},
		{NewLedgerEventMessage("u1", "", ActionDeleted), true},
		{NewLedgerEventMessage("", "t1", ActionCreated), false},
		{NewLedgerEventMessage("u1", "t1", "exploded"), false},
	}
	for i, tc := range cases {
		err := tc.msg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d: expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestLedgerEventMessageFromJSONInvalid(t *testing.T) {
	if _, err := LedgerEventMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}
