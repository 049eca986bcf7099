// Package mapping provides bidirectional enum translation between the
// canonical OpenAlgo schema and broker wire values.
package mapping

import (
	"strings"

	"github.com/openalgo/gateway/errs"
)

// Table translates between canonical values and one broker's wire values.
// Lookups are case-insensitive on input and return the stored casing.
type Table struct {
	broker    string
	concern   string
	toBroker  map[string]string
	toCanon   map[string]string
	canonDflt string
	wireDflt  string
}

// Pair binds one canonical value to its broker wire value.
type Pair struct {
	Canonical string
	Broker    string
}

// NewTable builds a translation table for the named broker and concern
// (e.g. "ordertype", "product", "exchange"). Later pairs win on conflict,
// matching how per-broker override maps behaved in the original adapters.
func NewTable(broker, concern string, pairs ...Pair) *Table {
	t := &Table{
		broker:   strings.TrimSpace(broker),
		concern:  strings.TrimSpace(concern),
		toBroker: make(map[string]string, len(pairs)),
		toCanon:  make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		canon := strings.TrimSpace(p.Canonical)
		wire := strings.TrimSpace(p.Broker)
		if canon == "" || wire == "" {
			continue
		}
		t.toBroker[strings.ToUpper(canon)] = wire
		t.toCanon[strings.ToUpper(wire)] = canon
	}
	return t
}

// WithDefaults sets fallback values returned when a lookup misses.
// An empty default keeps the strict behaviour for that direction.
func (t *Table) WithDefaults(canonical, wire string) *Table {
	t.canonDflt = strings.TrimSpace(canonical)
	t.wireDflt = strings.TrimSpace(wire)
	return t
}

// ToBroker translates a canonical value into the broker wire value.
func (t *Table) ToBroker(canonical string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(canonical))
	if v, ok := t.toBroker[key]; ok {
		return v, nil
	}
	if t.wireDflt != "" {
		return t.wireDflt, nil
	}
	return "", errs.New(t.broker, errs.CodeInvalid,
		errs.WithMessage("no broker mapping for canonical value"),
		errs.WithVenueField("concern", t.concern),
		errs.WithVenueField("value", canonical))
}

// ToCanonical translates a broker wire value into the canonical value.
func (t *Table) ToCanonical(wire string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(wire))
	if v, ok := t.toCanon[key]; ok {
		return v, nil
	}
	if t.canonDflt != "" {
		return t.canonDflt, nil
	}
	return "", errs.New(t.broker, errs.CodeInvalid,
		errs.WithMessage("no canonical mapping for broker value"),
		errs.WithVenueField("concern", t.concern),
		errs.WithVenueField("value", wire))
}

// MustToBroker is ToBroker for tables whose domain is closed by construction;
// it returns the wire default (or empty string) instead of an error.
func (t *Table) MustToBroker(canonical string) string {
	v, err := t.ToBroker(canonical)
	if err != nil {
		return t.wireDflt
	}
	return v
}

// MustToCanonical is ToCanonical with the same relaxation.
func (t *Table) MustToCanonical(wire string) string {
	v, err := t.ToCanonical(wire)
	if err != nil {
		return t.canonDflt
	}
	return v
}
