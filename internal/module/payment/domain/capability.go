package domain

import "strings"

// Capability is a modification a payment method supports.
type Capability uint8

const (
	CapCapture Capability = 1 << iota
	CapPartialCapture
	CapRefund
	CapPartialRefund
	CapCancel
	CapAdjustAuthorization
)

// CapAll is the capability set of a full-featured card method.
const CapAll = CapCapture | CapPartialCapture | CapRefund | CapPartialRefund | CapCancel | CapAdjustAuthorization

// Has reports whether every capability in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// CapabilityTable maps canonical payment method codes to their capabilities.
type CapabilityTable struct {
	entries  map[string]Capability
	fallback Capability
}

// NewCapabilityTable creates a table. Methods absent from entries get fallback.
func NewCapabilityTable(entries map[string]Capability, fallback Capability) *CapabilityTable {
	t := &CapabilityTable{entries: make(map[string]Capability, len(entries)), fallback: fallback}
	for code, caps := range entries {
		t.entries[canonicalMethod(code)] = caps
	}
	return t
}

// DefaultCapabilityTable returns the capabilities of the commonly used methods.
func DefaultCapabilityTable() *CapabilityTable {
	return NewCapabilityTable(map[string]Capability{
		"scheme":          CapAll,
		"visa":            CapAll,
		"mc":              CapAll,
		"amex":            CapAll,
		"cartebancaire":   CapAll,
		"paypal":          CapCapture | CapPartialCapture | CapRefund | CapPartialRefund | CapCancel,
		"applepay":        CapAll,
		"googlepay":       CapAll,
		"klarna":          CapCapture | CapPartialCapture | CapRefund | CapPartialRefund | CapCancel,
		"klarna_account":  CapCapture | CapPartialCapture | CapRefund | CapPartialRefund | CapCancel,
		"afterpaytouch":   CapCapture | CapRefund | CapPartialRefund | CapCancel,
		"ideal":           CapRefund | CapPartialRefund,
		"sepadirectdebit": CapRefund | CapPartialRefund,
		"bcmc_mobile":     CapRefund | CapPartialRefund,
		"giftcard":        CapRefund,
		"twint":           CapRefund | CapPartialRefund,
		"multibanco":      0,
		"boleto":          0,
	}, CapRefund|CapPartialRefund|CapCancel)
}

// Lookup returns the capabilities of method.
func (t *CapabilityTable) Lookup(method string) Capability {
	if caps, ok := t.entries[canonicalMethod(method)]; ok {
		return caps
	}
	return t.fallback
}

// Supports reports whether method has every capability in want.
func (t *CapabilityTable) Supports(method string, want Capability) bool {
	return t.Lookup(method).Has(want)
}

// Set overrides the capabilities of one method.
func (t *CapabilityTable) Set(method string, caps Capability) {
	t.entries[canonicalMethod(method)] = caps
}

func canonicalMethod(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// ParseCapabilities parses names such as "refund" or "partial_refund".
func ParseCapabilities(names []string) (Capability, bool) {
	var caps Capability
	for _, n := range names {
		switch canonicalMethod(n) {
		case "capture":
			caps |= CapCapture
		case "partial_capture":
			caps |= CapPartialCapture
		case "refund":
			caps |= CapRefund
		case "partial_refund":
			caps |= CapPartialRefund
		case "cancel":
			caps |= CapCancel
		case "adjust_authorization":
			caps |= CapAdjustAuthorization
		default:
			return 0, false
		}
	}
	return caps, true
}
