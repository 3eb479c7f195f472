// Package reservations serves the service and booking routes and keeps each
// service's available_bag consistent with its bookings.
package reservations

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"jimgabang/apperr"
	"jimgabang/middleware"
	"jimgabang/models"
	"jimgabang/store"
)

type Handler struct {
	services store.Store[models.Service]
	bookings store.Store[models.Booking]
	inv      *Inventory
	hub      *Hub
	receipts *ReceiptSigner
	log      *zap.Logger
	now      func() time.Time
}

func New(services store.Store[models.Service], bookings store.Store[models.Booking], hub *Hub, receipts *ReceiptSigner, log *zap.Logger) *Handler {
	return &Handler{
		services: services,
		bookings: bookings,
		inv:      NewInventory(services, hub),
		hub:      hub,
		receipts: receipts,
		log:      log,
		now:      time.Now,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apperr.Respond(h.log, w, r, err)
}

func (h *Handler) loadService(ctx context.Context, raw string) (*models.Service, error) {
	id, err := store.ParseID(raw)
	if err != nil {
		return nil, apperr.NewNotFound("service not found")
	}
	return h.getService(ctx, id)
}

func (h *Handler) getService(ctx context.Context, id primitive.ObjectID) (*models.Service, error) {
	s, err := h.services.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NewNotFound("service not found")
	}
	return s, err
}

func (h *Handler) loadBooking(ctx context.Context, raw string) (*models.Booking, error) {
	id, err := store.ParseID(raw)
	if err != nil {
		return nil, apperr.NewNotFound("booking not found")
	}
	return h.getBooking(ctx, id)
}

func (h *Handler) getBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	b, err := h.bookings.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NewNotFound("booking not found")
	}
	return b, err
}

// ownedService loads a service and checks that host created it. Existence is
// checked first.
func (h *Handler) ownedService(ctx context.Context, raw string, host *models.Host) (*models.Service, error) {
	s, err := h.loadService(ctx, raw)
	if err != nil {
		return nil, err
	}
	if s.Creator != host.Email {
		return nil, apperr.NewForbidden("service belongs to another host")
	}
	return s, nil
}

// ownedBooking loads a booking and checks that client created it.
func (h *Handler) ownedBooking(ctx context.Context, raw string, client *models.Client) (*models.Booking, error) {
	b, err := h.loadBooking(ctx, raw)
	if err != nil {
		return nil, err
	}
	if b.Creator != client.Email {
		return nil, apperr.NewForbidden("booking belongs to another client")
	}
	return b, nil
}

func currentHost(r *http.Request) (*models.Host, error) {
	p, ok := middleware.Principal[models.Host](r)
	if !ok {
		return nil, apperr.NewUnauthenticated("host sign-in required")
	}
	return p, nil
}

func currentClient(r *http.Request) (*models.Client, error) {
	p, ok := middleware.Principal[models.Client](r)
	if !ok {
		return nil, apperr.NewUnauthenticated("client sign-in required")
	}
	return p, nil
}

// nullFields reports required fields that an update payload set to null.
func nullFields(fields map[string]bool) error {
	bad := map[string]string{}
	for name, cleared := range fields {
		if cleared {
			bad[name] = "cannot be null"
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return apperr.NewValidation("request body failed validation", bad)
}
