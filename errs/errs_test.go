package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesCanonicalAndVenue(t *testing.T) {
	err := New(
		"motilal",
		CodeInvalid,
		WithHTTP(400),
		WithMessage("invalid order payload"),
		WithRawCode("MO1012"),
		WithRawMessage("order does not exist"),
		WithCanonicalCode(CanonicalOrderNotFound),
		WithVenueFields(map[string]string{
			"symbol":   "RELIANCE-EQ",
			"endpoint": "/rest/trans/v1/placeorder",
		}),
		WithVenueField("request_id", "req-123"),
		WithRemediation("verify order id before retrying"),
		WithCause(errors.New("motilal http 400")),
	)

	out := err.Error()
	if !strings.Contains(out, "broker=motilal") {
		t.Fatalf("expected broker marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=invalid_request") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "canonical=order_not_found") {
		t.Fatalf("expected canonical classification in error string: %s", out)
	}
	expectedVenue := "venue=endpoint=\"/rest/trans/v1/placeorder\",request_id=\"req-123\",symbol=\"RELIANCE-EQ\""
	if !strings.Contains(out, expectedVenue) {
		t.Fatalf("expected venue metadata %q in error string: %s", expectedVenue, out)
	}
	if !strings.Contains(out, "remediation=\"verify order id before retrying\"") {
		t.Fatalf("expected remediation guidance in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"motilal http 400\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestWithCanonicalCodeEmptyDefaultsToUnknown(t *testing.T) {
	err := New("motilal", CodeInvalid, WithCanonicalCode("   "))
	if err.Canonical != CanonicalUnknown {
		t.Fatalf("expected canonical code to default to unknown, got %q", err.Canonical)
	}
	if strings.Contains(err.Error(), "canonical=") {
		t.Fatalf("canonical marker should be omitted when code is unknown: %s", err.Error())
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New("fyers", CodeNetwork, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to match the wrapped cause")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil>, got %q", got)
	}
}

func TestNotSupportedCarriesCapabilityMissing(t *testing.T) {
	err := NotSupported("flattrade", "historical data not available")
	if err.Canonical != CanonicalCapabilityMissing {
		t.Fatalf("expected capability_missing canonical code, got %q", err.Canonical)
	}
	if err.Broker != "flattrade" {
		t.Fatalf("expected broker flattrade, got %q", err.Broker)
	}
}
