package reconcile

import (
	"strings"

	"github.com/schoolpay/schoolpay/app/models"
)

// MapGatewayStatus folds a raw gateway status string (plus an optional
// capture sub-status) onto the canonical lattice. Unknown or empty input maps
// to pending, never to an error.
//
// When the gateway reports success but the capture sub-status has not settled
// (maps to pending), the payment stays pending: funds that are authorized but
// not captured are not money in the bank.
func MapGatewayStatus(raw, captureStatus string) string {
	status := canonicalStatus(raw)
	if status == models.PaymentStatusSuccess && captureStatus != "" {
		if canonicalStatus(captureStatus) == models.PaymentStatusPending {
			return models.PaymentStatusPending
		}
	}
	return status
}

func canonicalStatus(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED", "PAID":
		return models.PaymentStatusSuccess
	case "FAILED", "DECLINED", "ERROR":
		return models.PaymentStatusFailed
	case "USER_DROPPED", "CANCELLED", "CANCELED":
		return models.PaymentStatusCancelled
	default:
		return models.PaymentStatusPending
	}
}

// AllowTransition reports whether a new canonical status may overwrite the
// old one. Terminal states never regress, regardless of what arrives later;
// this is what makes reconciliation order-independent under duplicate and
// out-of-order delivery.
func AllowTransition(old, next string) bool {
	return old == "" || old == models.PaymentStatusPending
}
