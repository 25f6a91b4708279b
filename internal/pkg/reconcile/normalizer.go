package reconcile

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Shape identifies one of the known gateway payload layouts.
type Shape string

const (
	ShapeUnknown   Shape = "unknown"
	ShapeNested    Shape = "nested"     // status and amounts under a "data" sub-object
	ShapeFlat      Shape = "flat"       // legacy top-level order_id/status/amount
	ShapeOrderInfo Shape = "order_info" // fields nested under an "order_info" envelope
)

// DetectShape classifies a decoded payload by which envelope fields are
// present. Classification is explicit; no field coercion happens here.
func DetectShape(payload map[string]any) Shape {
	if _, ok := subObject(payload, "order_info"); ok {
		return ShapeOrderInfo
	}
	if _, ok := subObject(payload, "data"); ok {
		return ShapeNested
	}
	if _, ok := payload["status"]; ok {
		if stringField(payload, "order_id") != "" || stringField(payload, "collect_request_id") != "" {
			return ShapeFlat
		}
	}
	return ShapeUnknown
}

// Normalize converts a raw webhook body into one canonical PaymentEvent.
// Payloads matching none of the known shapes return ErrUnknownShape; that is
// fatal to the event, not to the caller.
func Normalize(raw []byte, gateway string) (*PaymentEvent, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrUnknownShape
	}

	var event *PaymentEvent
	switch DetectShape(payload) {
	case ShapeNested:
		event = normalizeNested(payload)
	case ShapeFlat:
		event = normalizeFlat(payload)
	case ShapeOrderInfo:
		event = normalizeOrderInfo(payload)
	default:
		return nil, ErrUnknownShape
	}

	event.Gateway = gateway
	event.RawJSON = string(raw)
	if event.ExternalRef == "" {
		return nil, ErrUnknownShape
	}
	return event, nil
}

// normalizeNested handles payloads where status and amounts live under a
// "data" sub-object. Amounts may arrive as strings; payment mode may sit at
// the root or inside data, root taking precedence.
func normalizeNested(payload map[string]any) *PaymentEvent {
	data, _ := subObject(payload, "data")

	ref := firstString(payload, "order_id", "collect_request_id")
	if ref == "" {
		ref = firstString(data, "order_id", "collect_request_id")
	}

	rawStatus := firstString(data, "payment_status", "status")
	if rawStatus == "" {
		rawStatus = stringField(payload, "status")
	}

	return &PaymentEvent{
		ExternalRef:       ref,
		RawStatus:         rawStatus,
		CaptureStatus:     stringField(data, "capture_status"),
		OrderAmount:       firstPositive(parseAmount(data["order_amount"]), parseAmount(data["amount"])),
		TransactionAmount: firstPositive(parseAmount(data["transaction_amount"]), parseAmount(data["amount"])),
		PaymentMode:       extractMode(payload, data),
		PaymentDetails:    firstString(data, "payment_details", "payemnt_details"),
		GatewayRef:        firstString(data, "transaction_id", "payment_id"),
		BankReference:     stringField(data, "bank_reference"),
		Message:           firstString(data, "payment_message", "message"),
		ErrorMessage:      firstString(data, "error_message", "error"),
		PaymentTime:       parseTime(firstString(data, "payment_time", "payment_date")),
	}
}

// normalizeFlat handles the legacy flat layout with everything at the root.
func normalizeFlat(payload map[string]any) *PaymentEvent {
	return &PaymentEvent{
		ExternalRef:       firstString(payload, "order_id", "collect_request_id"),
		RawStatus:         stringField(payload, "status"),
		OrderAmount:       parseAmount(payload["amount"]),
		TransactionAmount: firstPositive(parseAmount(payload["transaction_amount"]), parseAmount(payload["amount"])),
		PaymentMode:       extractMode(payload, nil),
		GatewayRef:        stringField(payload, "transaction_id"),
		Message:           stringField(payload, "message"),
		ErrorMessage:      stringField(payload, "error_message"),
		PaymentTime:       parseTime(stringField(payload, "payment_time")),
	}
}

// normalizeOrderInfo handles the envelope layout. The misspelled
// "payemnt_details" field shipped in old gateway firmware and is kept as an
// alias of payment_details.
func normalizeOrderInfo(payload map[string]any) *PaymentEvent {
	info, _ := subObject(payload, "order_info")

	return &PaymentEvent{
		ExternalRef:       firstString(info, "order_id", "collect_request_id"),
		RawStatus:         stringField(info, "status"),
		OrderAmount:       parseAmount(info["order_amount"]),
		TransactionAmount: firstPositive(parseAmount(info["transaction_amount"]), parseAmount(info["order_amount"])),
		PaymentMode:       extractMode(payload, info),
		PaymentDetails:    firstString(info, "payment_details", "payemnt_details"),
		GatewayRef:        stringField(info, "transaction_id"),
		BankReference:     stringField(info, "bank_reference"),
		Message:           stringField(info, "payment_message"),
		ErrorMessage:      firstString(info, "error_message", "error"),
		PaymentTime:       parseTime(stringField(info, "payment_time")),
	}
}

// extractMode walks the fixed mode-precedence chain: root mode field, nested
// mode field, then the legacy "method" aliases on either level.
func extractMode(root, nested map[string]any) string {
	if v := stringField(root, "payment_mode"); v != "" {
		return v
	}
	if v := stringField(nested, "payment_mode"); v != "" {
		return v
	}
	for _, alias := range []string{"payment_method", "method"} {
		if v := stringField(root, alias); v != "" {
			return v
		}
		if v := stringField(nested, alias); v != "" {
			return v
		}
	}
	return "unknown"
}

// parseAmount coerces a loosely-typed amount to a float. Anything that does
// not parse, or parses non-positive, collapses to zero so the fallback chain
// can move on.
func parseAmount(v any) float64 {
	var amount float64
	switch val := v.(type) {
	case float64:
		amount = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		amount = parsed
	default:
		return 0
	}
	if amount <= 0 {
		return 0
	}
	return amount
}

// firstPositive returns the first strictly-positive value in the chain.
func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func subObject(payload map[string]any, key string) (map[string]any, bool) {
	if payload == nil {
		return nil, false
	}
	sub, ok := payload[key].(map[string]any)
	return sub, ok
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		// Some gateways send numeric references
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := stringField(payload, key); v != "" {
			return v
		}
	}
	return ""
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}
