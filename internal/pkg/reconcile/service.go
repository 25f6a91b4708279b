package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/schoolpay/schoolpay/app/models"
	"github.com/schoolpay/schoolpay/app/repository"
)

// Service merges normalized payment events into the authoritative payment
// record per order. It owns the only write path for payment_records; the
// order table is touched solely to refresh the metadata cache.
type Service struct {
	resolver *Resolver
	orders   repository.OrderRepository
	payments repository.PaymentRepository
}

// NewService wires the engine from its explicit collaborators.
func NewService(orders repository.OrderRepository, payments repository.PaymentRepository) *Service {
	return &Service{
		resolver: NewResolver(orders),
		orders:   orders,
		payments: payments,
	}
}

// ProcessRaw normalizes a stored webhook payload and reconciles it. This is
// the single path shared by live webhook handling and ledger retries.
func (s *Service) ProcessRaw(ctx context.Context, gateway string, payload []byte) (*Result, error) {
	event, err := Normalize(payload, gateway)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, event)
}

// Reconcile applies one PaymentEvent under the transition guard and returns
// how the pass ended. Unresolvable orders and rejected downgrades are
// outcomes, not errors; only persistence failures surface as err.
func (s *Service) Reconcile(ctx context.Context, event *PaymentEvent) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order, found, err := s.resolver.Resolve(event.ExternalRef)
	if err != nil {
		return nil, fmt.Errorf("resolve order %q: %w", event.ExternalRef, err)
	}
	if !found {
		return &Result{Outcome: OutcomeOrderNotFound, ExternalRef: event.ExternalRef}, nil
	}

	newStatus := MapGatewayStatus(event.RawStatus, event.CaptureStatus)

	// The order's stored amount is the last resort of the fallback chain.
	orderAmount := firstPositive(event.OrderAmount, order.Amount)
	txnAmount := firstPositive(event.TransactionAmount, orderAmount)

	rec := &models.PaymentRecord{
		CustomOrderID:     order.CustomOrderID,
		Status:            newStatus,
		OrderAmount:       orderAmount,
		TransactionAmount: txnAmount,
		PaymentMode:       event.PaymentMode,
		PaymentDetails:    event.PaymentDetails,
		GatewayRef:        event.GatewayRef,
		RawStatus:         event.RawStatus,
		Message:           event.Message,
		ErrorMessage:      event.ErrorMessage,
		PaymentTime:       event.PaymentTime,
		RawEventJSON:      event.RawJSON,
	}

	result := &Result{
		OrderID:           order.ID,
		CustomOrderID:     order.CustomOrderID,
		ExternalRef:       event.ExternalRef,
		OrderAmount:       orderAmount,
		TransactionAmount: txnAmount,
	}

	created, err := s.payments.CreateIfAbsent(rec)
	if err != nil {
		return nil, fmt.Errorf("create payment record for %s: %w", order.CustomOrderID, err)
	}

	switch {
	case created:
		result.Outcome = OutcomeApplied
		result.Status = newStatus
	default:
		existing, _, err := s.payments.GetByCustomOrderID(order.CustomOrderID)
		if err != nil {
			return nil, fmt.Errorf("load payment record for %s: %w", order.CustomOrderID, err)
		}
		prev := ""
		if existing != nil {
			prev = existing.Status
		}
		result.PreviousStatus = prev

		if !AllowTransition(prev, newStatus) {
			// Terminal state already recorded; stale or duplicate delivery.
			result.Outcome = OutcomeSkipped
			result.Status = prev
			return result, nil
		}

		updated, err := s.payments.UpdateIfPending(rec)
		if err != nil {
			return nil, fmt.Errorf("update payment record for %s: %w", order.CustomOrderID, err)
		}
		if !updated {
			// Lost the race to a concurrent terminal write. Re-read for the
			// authoritative value the conditional update deferred to.
			current, _, err := s.payments.GetByCustomOrderID(order.CustomOrderID)
			if err != nil {
				return nil, fmt.Errorf("reload payment record for %s: %w", order.CustomOrderID, err)
			}
			result.Outcome = OutcomeSkipped
			if current != nil {
				result.Status = current.Status
				result.PreviousStatus = current.Status
			}
			return result, nil
		}

		result.Outcome = OutcomeApplied
		result.Status = newStatus
	}

	s.refreshOrderCache(order, event, result.Status)
	return result, nil
}

// refreshOrderCache rewrites the order's denormalized metadata. Best-effort:
// a failure here is logged and swallowed, the reconciliation already stands.
func (s *Service) refreshOrderCache(order *models.Order, event *PaymentEvent, status string) {
	overlay := map[string]string{
		models.MetaLastStatus:    status,
		models.MetaLastWebhookAt: time.Now().UTC().Format(time.RFC3339),
		models.MetaBankReference: event.BankReference,
	}
	if event.ExternalRef != order.CustomOrderID {
		overlay[models.MetaCollectRequestID] = event.ExternalRef
	}
	if event.GatewayRef != "" {
		overlay[models.MetaProviderPaymentID] = event.GatewayRef
	}

	if err := order.MergeMetadata(overlay); err != nil {
		log.Errorf("[Reconcile] metadata encode failed for %s: %v", order.CustomOrderID, err)
		return
	}
	if err := s.orders.UpdateMetadata(order.CustomOrderID, order.MetadataJSON); err != nil {
		log.Errorf("[Reconcile] metadata cache refresh failed for %s: %v", order.CustomOrderID, err)
	}
}
