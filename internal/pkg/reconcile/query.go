package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/schoolpay/schoolpay/app/models"
	"github.com/schoolpay/schoolpay/app/repository"
	"github.com/schoolpay/schoolpay/internal/pkg/cache"
)

const statusCacheTTL = 15 * time.Second

// StatusView is the payer-facing answer to "what is the status of order X".
// Unknown references come back with Found=false, never as an error; the UI
// is expected to poll again.
type StatusView struct {
	Found             bool       `json:"found"`
	Status            string     `json:"status"`
	CustomOrderID     string     `json:"custom_order_id,omitempty"`
	SchoolID          string     `json:"school_id,omitempty"`
	OrderAmount       float64    `json:"order_amount,omitempty"`
	TransactionAmount float64    `json:"transaction_amount,omitempty"`
	PaymentMode       string     `json:"payment_mode,omitempty"`
	GatewayRef        string     `json:"gateway_ref,omitempty"`
	Message           string     `json:"message,omitempty"`
	PaymentTime       *time.Time `json:"payment_time,omitempty"`
	Source            string     `json:"source"`
}

// QueryService reads reconciled payment state. Local state wins: every
// webhook and retry already funnels through reconciliation, so the stored
// record is at least as fresh as anything a live gateway call would return.
// The gateway fallback only fires when no local record exists yet.
type QueryService struct {
	resolver *Resolver
	payments repository.PaymentRepository
	gateway  GatewayClient
	useCache bool
}

// NewQueryService wires the query path. gateway may be nil (local only).
func NewQueryService(orders repository.OrderRepository, payments repository.PaymentRepository, gateway GatewayClient) *QueryService {
	return &QueryService{
		resolver: NewResolver(orders),
		payments: payments,
		gateway:  gateway,
		useCache: true,
	}
}

// DisableCache turns off the redis view cache (used by tests).
func (q *QueryService) DisableCache() {
	q.useCache = false
}

// GetStatus resolves the reference and returns the reconciled view.
func (q *QueryService) GetStatus(ctx context.Context, ref string) (*StatusView, error) {
	if q.useCache {
		if view, ok := q.cachedView(ref); ok {
			return view, nil
		}
	}

	order, found, err := q.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if !found {
		return &StatusView{Found: false, Status: "unknown", Source: "none"}, nil
	}

	rec, haveRecord, err := q.payments.GetByCustomOrderID(order.CustomOrderID)
	if err != nil {
		return nil, err
	}
	if haveRecord {
		view := &StatusView{
			Found:             true,
			Status:            rec.Status,
			CustomOrderID:     order.CustomOrderID,
			SchoolID:          order.SchoolID,
			OrderAmount:       rec.OrderAmount,
			TransactionAmount: rec.TransactionAmount,
			PaymentMode:       rec.PaymentMode,
			GatewayRef:        rec.GatewayRef,
			Message:           rec.Message,
			PaymentTime:       rec.PaymentTime,
			Source:            "local",
		}
		q.storeView(ref, view)
		return view, nil
	}

	// No record yet: the order exists but no webhook has landed. Ask the
	// gateway directly when a client is configured; a timeout or error there
	// degrades to the pending view rather than failing the query.
	if q.gateway != nil {
		if event, err := q.gateway.FetchStatus(ctx, order); err != nil {
			log.Warnf("[StatusQuery] gateway fallback for %s failed: %v", order.CustomOrderID, err)
		} else {
			view := &StatusView{
				Found:         true,
				Status:        MapGatewayStatus(event.RawStatus, event.CaptureStatus),
				CustomOrderID: order.CustomOrderID,
				SchoolID:      order.SchoolID,
				OrderAmount:   firstPositive(event.OrderAmount, order.Amount),
				PaymentMode:   event.PaymentMode,
				Source:        "gateway",
			}
			q.storeView(ref, view)
			return view, nil
		}
	}

	view := &StatusView{
		Found:         true,
		Status:        models.PaymentStatusPending,
		CustomOrderID: order.CustomOrderID,
		SchoolID:      order.SchoolID,
		OrderAmount:   order.Amount,
		Source:        "none",
	}
	return view, nil
}

func statusCacheKey(ref string) string {
	return "status_view:" + ref
}

func (q *QueryService) cachedView(ref string) (*StatusView, bool) {
	raw, err := cache.Get(statusCacheKey(ref))
	if err != nil {
		return nil, false
	}
	var view StatusView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil, false
	}
	return &view, true
}

func (q *QueryService) storeView(ref string, view *StatusView) {
	if !q.useCache {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := cache.Set(statusCacheKey(ref), string(raw), statusCacheTTL); err != nil {
		log.Debugf("[StatusQuery] view cache write failed: %v", err)
	}
}
