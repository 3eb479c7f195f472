package reservations

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"jimgabang/apperr"
	"jimgabang/metrics"
	"jimgabang/models"
	"jimgabang/store"
)

// Inventory mutates a service's available_bag. Every change is a single
// conditional update, so concurrent reservations can never overdraw it.
type Inventory struct {
	services store.Store[models.Service]
	hub      *Hub
}

func NewInventory(services store.Store[models.Service], hub *Hub) *Inventory {
	return &Inventory{services: services, hub: hub}
}

// Reserve takes n bags, failing with CapacityExceeded when fewer remain.
func (inv *Inventory) Reserve(ctx context.Context, serviceID primitive.ObjectID, n int) (*models.Service, error) {
	return inv.apply(ctx, serviceID, reservePatch(n))
}

// Release returns n bags.
func (inv *Inventory) Release(ctx context.Context, serviceID primitive.ObjectID, n int) (*models.Service, error) {
	return inv.apply(ctx, serviceID, releasePatch(n))
}

// Attach reserves n bags for a new booking and records the booking on the
// service in the same update.
func (inv *Inventory) Attach(ctx context.Context, serviceID, bookingID primitive.ObjectID, n int) (*models.Service, error) {
	return inv.apply(ctx, serviceID, reservePatch(n).Push("bookings", bookingID))
}

// Detach releases n bags and forgets the booking. n is zero for a booking
// that no longer holds capacity.
func (inv *Inventory) Detach(ctx context.Context, serviceID, bookingID primitive.ObjectID, n int) (*models.Service, error) {
	return inv.apply(ctx, serviceID, releasePatch(n).Pull("bookings", bookingID))
}

func reservePatch(n int) *store.Patch {
	p := store.NewPatch()
	if n > 0 {
		p.Inc("available_bag", -int64(n)).Where(store.Gte("available_bag", int64(n)))
	}
	return p
}

func releasePatch(n int) *store.Patch {
	p := store.NewPatch()
	if n > 0 {
		p.Inc("available_bag", int64(n))
	}
	return p
}

func (inv *Inventory) apply(ctx context.Context, serviceID primitive.ObjectID, p *store.Patch) (*models.Service, error) {
	var (
		s   *models.Service
		err error
	)
	if p.Empty() {
		s, err = inv.services.Get(ctx, serviceID)
	} else {
		s, err = inv.services.Update(ctx, serviceID, p)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NewNotFound("service not found")
	case errors.Is(err, store.ErrConditionFailed):
		metrics.CapacityRejected()
		return nil, apperr.NewCapacity("not enough available bags")
	case err != nil:
		return nil, err
	}
	if !p.Empty() && inv.hub != nil {
		inv.hub.Publish(s)
	}
	return s, nil
}
