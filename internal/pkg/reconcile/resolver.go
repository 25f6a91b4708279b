package reconcile

import (
	"strconv"
	"strings"

	"github.com/schoolpay/schoolpay/app/models"
	"github.com/schoolpay/schoolpay/app/repository"
)

// Resolver finds the order behind a loosely-typed inbound reference.
// Gateways echo our reference under inconsistent field names, and some send
// their own transaction id instead, so resolution probes an ordered list of
// lookup predicates rather than assuming one schema. The order of probes is
// part of the contract: it keeps resolution reproducible even though the
// match is logically an OR.
type Resolver struct {
	orders repository.OrderRepository
}

// NewResolver creates a resolver over the given order repository.
func NewResolver(orders repository.OrderRepository) *Resolver {
	return &Resolver{orders: orders}
}

// Resolve probes, in order: the internal order reference, the cached
// provider identifiers, the generic order_id alias, and finally primary-key
// equality when the reference is numeric. Misses are not errors.
func (r *Resolver) Resolve(ref string) (*models.Order, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false, nil
	}

	if order, found, err := r.orders.GetByCustomOrderID(ref); err != nil || found {
		return order, found, err
	}

	for _, key := range []string{
		models.MetaCollectRequestID,
		models.MetaProviderPaymentID,
		models.MetaOrderIDAlias,
	} {
		if order, found, err := r.orders.GetByMetadataValue(key, ref); err != nil || found {
			return order, found, err
		}
	}

	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return r.orders.GetByID(uint(id))
	}

	return nil, false, nil
}
