package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func item(order, psp string, code EventCode, success bool, value int64) HistoryItem {
	return NewHistoryItem(HistoryItemData{
		PspReference:      psp,
		MerchantReference: order,
		EventCode:         code,
		Success:           success,
		Amount:            NewAmount(value, "EUR"),
		OccurredAt:        t0,
		PaymentMethod:     "visa",
	})
}

func modification(order, psp, original string, code EventCode, value int64) HistoryItem {
	d := item(order, psp, code, true, value).Data()
	d.OriginalReference = original
	return NewHistoryItem(d)
}

func newHistory(t *testing.T, policy CapturePolicy) *TransactionHistory {
	t.Helper()
	h, err := NewTransactionHistory("order1", policy, 0, "EUR")
	require.NoError(t, err)
	return h
}

func mustAdd(t *testing.T, h *TransactionHistory, it HistoryItem) {
	t.Helper()
	added, err := h.Add(it)
	require.NoError(t, err)
	require.True(t, added)
}

func TestNewTransactionHistory(t *testing.T) {
	t.Run("rejects malformed reference", func(t *testing.T) {
		for _, ref := range []string{"", "order 1", "bad\nref"} {
			_, err := NewTransactionHistory(ref, CaptureManual, 0, "EUR")
			assert.ErrorIs(t, err, ErrInvalidOrderReference)
			assert.ErrorIs(t, err, ErrValidation)
		}
	})

	t.Run("defaults policy to unknown", func(t *testing.T) {
		h, err := NewTransactionHistory("order1", "", 0, "eur")
		require.NoError(t, err)
		assert.Equal(t, CaptureUnknown, h.CapturePolicy())
		assert.Equal(t, "EUR", h.Currency())
		assert.Equal(t, StateNew, h.LastState())
	})
}

func TestTransactionHistory_Add(t *testing.T) {
	t.Run("replaying the same event appends once", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		auth := item("order1", "psp1", EventAuthorisation, true, 100)

		added, err := h.Add(auth)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = h.Add(auth)
		require.NoError(t, err)
		assert.False(t, added)
		assert.Equal(t, 1, h.Items().Len())
	})

	t.Run("same psp and code with different success is a new event", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		mustAdd(t, h, item("order1", "psp1", EventCapture, false, 10))
		mustAdd(t, h, item("order1", "psp1", EventCapture, true, 10))
		assert.Equal(t, 2, h.Items().Len())
	})

	t.Run("allow-listed codes always append", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		mustAdd(t, h, item("order1", "psp1", EventOrderOpened, true, 0))
		mustAdd(t, h, item("order1", "psp1", EventOrderOpened, true, 0))
		assert.Equal(t, 2, h.Items().Len())
	})

	t.Run("foreign order reference is a hard error", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		_, err := h.Add(item("order2", "psp1", EventAuthorisation, true, 100))
		assert.ErrorIs(t, err, ErrOrderReferenceMismatch)
		assert.True(t, h.Items().IsEmpty())
	})

	t.Run("new successful authorization replaces reference and clears link", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		h.SetPaymentLink(&PaymentLink{ID: "PL1", URL: "https://pay.example/PL1"})

		mustAdd(t, h, item("order1", "psp1", EventAuthorisation, true, 100))
		assert.Equal(t, "psp1", h.CurrentAuthReference())
		assert.Nil(t, h.PaymentLink())

		mustAdd(t, h, item("order1", "psp2", EventAuthorisation, false, 100))
		assert.Equal(t, "psp1", h.CurrentAuthReference())

		mustAdd(t, h, item("order1", "psp2", EventAuthorisation, true, 100))
		assert.Equal(t, "psp2", h.CurrentAuthReference())
		assert.Equal(t, []string{"psp1", "psp2"}, h.AuthReferences())
	})

	t.Run("first item seeds method, live flag and risk score", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		d := item("order1", "psp1", EventAuthorisation, true, 100).Data()
		d.Live = true
		d.RiskScore = 42
		mustAdd(t, h, NewHistoryItem(d))

		d2 := item("order1", "psp2", EventCapture, true, 100).Data()
		d2.PaymentMethod = "ideal"
		d2.RiskScore = 7
		mustAdd(t, h, NewHistoryItem(d2))

		assert.Equal(t, "visa", h.PaymentMethod())
		assert.True(t, h.Live())
		assert.Equal(t, 42, h.RiskScore())
	})
}

func TestTransactionHistory_Amounts(t *testing.T) {
	t.Run("manual capture", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		mustAdd(t, h, item("order1", "psp1", EventAuthorisation, true, 100))
		mustAdd(t, h, modification("order1", "cap1", "psp1", EventCapture, 40))

		captured, err := h.CapturedAmount(t0)
		require.NoError(t, err)
		capturable, err := h.CapturableAmount(t0)
		require.NoError(t, err)

		assert.Equal(t, NewAmount(40, "EUR"), captured)
		assert.Equal(t, NewAmount(60, "EUR"), capturable)
	})

	t.Run("immediate capture counts authorizations", func(t *testing.T) {
		h := newHistory(t, CaptureImmediate)
		mustAdd(t, h, item("order1", "psp1", EventAuthorisation, true, 100))

		captured, err := h.CapturedAmount(t0)
		require.NoError(t, err)
		capturable, err := h.CapturableAmount(t0)
		require.NoError(t, err)
		assert.Equal(t, int64(100), captured.Value)
		assert.Equal(t, int64(0), capturable.Value)
	})

	t.Run("delayed capture switches after the delay", func(t *testing.T) {
		h, err := NewTransactionHistory("order1", CaptureDelayed, time.Hour, "EUR")
		require.NoError(t, err)
		mustAdd(t, h, item("order1", "psp1", EventAuthorisation, true, 100))

		before, err := h.CapturedAmount(t0.Add(30 * time.Minute))
		require.NoError(t, err)
		after, err := h.CapturedAmount(t0.Add(2 * time.Hour))
		require.NoError(t, err)

		assert.Equal(t, int64(0), before.Value)
		assert.Equal(t, int64(100), after.Value)
	})

	t.Run("adjustment resets the capturable base", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		mustAdd(t, h, item("order1", "psp1", EventAuthorisation, true, 100))
		mustAdd(t, h, modification("order1", "cap1", "psp1", EventCapture, 30))
		mustAdd(t, h, modification("order1", "adj1", "psp1", EventAuthorisationAdjustment, 150))
		mustAdd(t, h, modification("order1", "cap2", "psp1", EventCapture, 50))

		capturable, err := h.CapturableAmount(t0)
		require.NoError(t, err)
		assert.Equal(t, int64(100), capturable.Value)
	})

	t.Run("authorized equals captured plus capturable", func(t *testing.T) {
		steps := []HistoryItem{
			item("order1", "psp1", EventAuthorisation, true, 100),
			modification("order1", "cap1", "psp1", EventCapture, 20),
			modification("order1", "adj1", "psp1", EventAuthorisationAdjustment, 120),
			modification("order1", "cap2", "psp1", EventCapture, 70),
			item("order1", "psp2", EventAuthorisation, true, 50),
			modification("order1", "ref1", "psp1", EventRefund, 10),
		}
		for _, policy := range []CapturePolicy{CaptureManual, CaptureImmediate, CaptureUnknown, CaptureDelayed} {
			h := newHistory(t, policy)
			for _, s := range steps {
				mustAdd(t, h, s)

				captured, err := h.CapturedAmount(t0)
				require.NoError(t, err)
				capturable, err := h.CapturableAmount(t0)
				require.NoError(t, err)
				authorized, err := h.AuthorizedAmount(t0)
				require.NoError(t, err)

				assert.Equal(t, captured.Value+capturable.Value, authorized.Value, "policy %s", policy)
			}
		}
	})

	t.Run("mixed currencies fail", func(t *testing.T) {
		h := newHistory(t, CaptureManual)
		mustAdd(t, h, item("order1", "psp1", EventAuthorisation, true, 100))
		d := item("order1", "psp2", EventAuthorisation, true, 100).Data()
		d.Amount = NewAmount(100, "USD")
		mustAdd(t, h, NewHistoryItem(d))

		_, err := h.CapturableAmount(t0)
		assert.ErrorIs(t, err, ErrCurrencyMismatch)
	})
}

func TestTransactionHistory_Legs(t *testing.T) {
	h := newHistory(t, CaptureManual)
	mustAdd(t, h, item("order1", "leg1", EventAuthorisation, true, 5))
	mustAdd(t, h, item("order1", "leg2", EventAuthorisation, true, 10))
	mustAdd(t, h, modification("order1", "cap1", "leg2", EventCapture, 4))
	mustAdd(t, h, modification("order1", "ref1", "leg2", EventRefund, 4))
	mustAdd(t, h, modification("order1", "can1", "leg1", EventCancellation, 0))

	legs := h.Legs()
	require.Len(t, legs, 2)
	assert.Equal(t, "leg1", legs[0].PspReference())
	assert.Equal(t, "leg2", legs[1].PspReference())

	capturable, err := h.LegCapturableAmount("leg2", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), capturable.Value)

	assert.True(t, h.IsLegCancelled("leg1"))
	assert.False(t, h.IsLegCancelled("leg2"))

	refunded, err := h.IsLegRefunded("leg2", t0)
	require.NoError(t, err)
	assert.True(t, refunded)
}

func TestTransactionHistory_SnapshotRoundTrip(t *testing.T) {
	h := newHistory(t, CaptureManual)
	h.SetAuthorizationType(AuthorizationPre)
	h.SetOrderContainer(&OrderContainer{PspReference: "ord1", OrderData: "blob"})
	mustAdd(t, h, item("order1", "psp1", EventAuthorisation, true, 100))

	restored := RestoreTransactionHistory(h.Snapshot())
	assert.Equal(t, h.Snapshot(), restored.Snapshot())
	assert.Equal(t, "psp1", restored.CurrentAuthReference())
	assert.Equal(t, AuthorizationPre, restored.AuthorizationType())
}

func TestPaymentLink_IsActive(t *testing.T) {
	parse := func(s string) (time.Time, error) { return time.Parse(time.RFC3339, s) }
	link := &PaymentLink{ID: "PL1", ExpiresAt: t0.Add(time.Hour).Format(time.RFC3339)}

	assert.True(t, link.IsActive(t0, parse))
	assert.False(t, link.IsActive(t0.Add(2*time.Hour), parse))

	var none *PaymentLink
	assert.False(t, none.IsActive(t0, parse))
}
