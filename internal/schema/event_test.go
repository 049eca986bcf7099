package schema

import "testing"

func TestSubjectRoundTrip(t *testing.T) {
	subject := Subject(ExchangeNSE, "2885")
	if subject != "NSE:2885" {
		t.Fatalf("expected NSE:2885, got %s", subject)
	}

	exchange, token, err := SplitSubject(subject)
	if err != nil {
		t.Fatalf("SplitSubject() error = %v", err)
	}
	if exchange != ExchangeNSE {
		t.Errorf("expected exchange NSE, got %s", exchange)
	}
	if token != "2885" {
		t.Errorf("expected token 2885, got %s", token)
	}
}

func TestSplitSubjectRejectsMalformed(t *testing.T) {
	for _, subject := range []string{"", "NSE", ":2885", "NSE:"} {
		if _, _, err := SplitSubject(subject); err == nil {
			t.Errorf("expected error for subject %q", subject)
		}
	}
}

func TestCoalescable(t *testing.T) {
	if !EventTypeLTP.Coalescable() {
		t.Error("LTP ticks should coalesce")
	}
	if !EventTypeDepth.Coalescable() {
		t.Error("depth snapshots replace each other and should coalesce")
	}
	if EventType("ExecReport").Coalescable() {
		t.Error("unknown event types must not coalesce")
	}
}
