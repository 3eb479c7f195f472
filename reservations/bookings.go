package reservations

import (
	"context"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"jimgabang/apperr"
	"jimgabang/metrics"
	"jimgabang/models"
	"jimgabang/store"
	"jimgabang/utils"
	"jimgabang/validate"
)

func notOffered() error {
	return apperr.NewValidation("service is not open on the requested dates",
		map[string]string{"booking_date": "date not offered by the service"})
}

// CreateBooking reserves capacity on the referenced service and records a
// pending booking for the signed-in client.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	client, err := currentClient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var b models.Booking
	if err := validate.Decode(r, &b); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.getService(ctx, b.ServiceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !s.Offers(b.BookingDate) {
		h.fail(w, r, notOffered())
		return
	}

	b.ID = primitive.NewObjectID()
	b.Creator = client.Email
	b.Confirm = models.StatusPending
	b.CreatedAt = h.now().UTC()

	s, err = h.inv.Attach(ctx, b.ServiceID, b.ID, b.BookingBag)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.bookings.Save(ctx, &b); err != nil {
		if _, undoErr := h.inv.Detach(context.WithoutCancel(ctx), b.ServiceID, b.ID, b.BookingBag); undoErr != nil {
			h.log.Error("release after failed booking insert",
				zap.String("service_id", b.ServiceID.Hex()),
				zap.String("booking_id", b.ID.Hex()),
				zap.Error(undoErr),
			)
		}
		h.fail(w, r, err)
		return
	}

	metrics.BookingCreated()
	h.log.Info("booking created",
		zap.String("booking_id", b.ID.Hex()),
		zap.String("service_id", b.ServiceID.Hex()),
		zap.Int("booking_bag", b.BookingBag),
		zap.Int("available_bag", s.AvailableBag),
	)
	utils.SendMessage(w, http.StatusOK, "booking created successfully", utils.M{
		"booking":       b,
		"available_bag": s.AvailableBag,
	})
}

// ListBookings returns the bookings of the signed-in client.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	client, err := currentClient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	all, err := h.bookings.FindAll(r.Context(), "creator", client.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, all)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	client, err := currentClient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.ownedBooking(r.Context(), ps.ByName("id"), client)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, b)
}

// UpdateBooking changes the dates or bag count of an active booking. A
// larger count reserves the difference first; a smaller one releases it
// after the booking is written.
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	client, err := currentClient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.ownedBooking(ctx, ps.ByName("id"), client)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var u models.BookingUpdate
	if err := validate.Decode(r, &u); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := nullFields(map[string]bool{
		"booking_date": u.BookingDate.Cleared(),
		"booking_bag":  u.BookingBag.Cleared(),
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	if !b.Confirm.Active() {
		h.fail(w, r, apperr.NewConflict("booking is cancelled"))
		return
	}

	s, err := h.getService(ctx, b.ServiceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p := store.NewPatch().Where(heldBy(b)...)
	if u.BookingDate.IsSet() {
		if !s.Offers(u.BookingDate.Value) {
			h.fail(w, r, notOffered())
			return
		}
		p.Set("booking_date", u.BookingDate.Value)
	}
	delta := 0
	if u.BookingBag.IsSet() {
		delta = u.BookingBag.Value - b.BookingBag
		if delta != 0 {
			p.Set("booking_bag", u.BookingBag.Value)
		}
	}

	if p.Empty() {
		h.respondBooking(w, "booking updated successfully", b, s)
		return
	}

	if delta > 0 {
		if s, err = h.inv.Reserve(ctx, b.ServiceID, delta); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	updated, err := h.bookings.Update(ctx, b.ID, p)
	if err != nil {
		if delta > 0 {
			h.undoReserve(ctx, b.ServiceID, delta)
		}
		h.fail(w, r, bookingWriteError(err))
		return
	}

	if delta < 0 {
		if s, err = h.inv.Release(ctx, b.ServiceID, -delta); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	h.log.Info("booking updated",
		zap.String("booking_id", b.ID.Hex()),
		zap.Int("delta", delta),
		zap.Int("available_bag", s.AvailableBag),
	)
	h.respondBooking(w, "booking updated successfully", updated, s)
}

// DeleteBooking removes a booking and returns the bags it held.
func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	client, err := currentClient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.ownedBooking(ctx, ps.ByName("id"), client)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	deleted, err := h.bookings.Delete(ctx, b.ID, heldBy(b)...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		h.fail(w, r, apperr.NewConflict("booking changed concurrently, retry"))
		return
	}

	held := 0
	if b.Confirm.Active() {
		held = b.BookingBag
	}
	s, err := h.inv.Detach(ctx, b.ServiceID, b.ID, held)
	if err != nil && apperr.KindOf(err) != apperr.NotFound {
		h.fail(w, r, err)
		return
	}

	metrics.BookingDeleted()
	h.log.Info("booking deleted", zap.String("booking_id", b.ID.Hex()), zap.Int("released", held))
	extra := utils.M{"booking_id": b.ID}
	if s != nil {
		extra["available_bag"] = s.AvailableBag
	}
	utils.SendMessage(w, http.StatusOK, "booking deleted successfully", extra)
}

// UpdateStatus lets the host of the booked service move a booking between
// pending, confirmed and cancelled. Cancelling returns the bags; reviving a
// cancelled booking reserves them again.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	host, err := currentHost(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.loadBooking(ctx, ps.ByName("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.getService(ctx, b.ServiceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if s.Creator != host.Email {
		h.fail(w, r, apperr.NewForbidden("booking belongs to another host's service"))
		return
	}

	var u models.BookingStatusUpdate
	if err := validate.Decode(r, &u); err != nil {
		h.fail(w, r, err)
		return
	}
	if u.Confirm == b.Confirm {
		h.respondBooking(w, "booking status unchanged", b, s)
		return
	}

	p := store.NewPatch().
		Set("confirm", string(u.Confirm)).
		Where(heldBy(b)...)

	switch {
	case b.Confirm.Active() && !u.Confirm.Active():
		updated, err := h.bookings.Update(ctx, b.ID, p)
		if err != nil {
			h.fail(w, r, bookingWriteError(err))
			return
		}
		if s, err = h.inv.Release(ctx, b.ServiceID, b.BookingBag); err != nil {
			h.fail(w, r, err)
			return
		}
		metrics.BookingCancelled()
		b = updated

	case !b.Confirm.Active() && u.Confirm.Active():
		if s, err = h.inv.Reserve(ctx, b.ServiceID, b.BookingBag); err != nil {
			h.fail(w, r, err)
			return
		}
		updated, err := h.bookings.Update(ctx, b.ID, p)
		if err != nil {
			h.undoReserve(ctx, b.ServiceID, b.BookingBag)
			h.fail(w, r, bookingWriteError(err))
			return
		}
		metrics.BookingRestored()
		b = updated

	default:
		updated, err := h.bookings.Update(ctx, b.ID, p)
		if err != nil {
			h.fail(w, r, bookingWriteError(err))
			return
		}
		b = updated
	}

	h.log.Info("booking status changed",
		zap.String("booking_id", b.ID.Hex()),
		zap.String("confirm", string(b.Confirm)),
		zap.Int("available_bag", s.AvailableBag),
	)
	h.respondBooking(w, "booking status updated successfully", b, s)
}

// Receipt renders a PDF receipt with a signed QR code for an active booking.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	client, err := currentClient(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.ownedBooking(ctx, ps.ByName("id"), client)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !b.Confirm.Active() {
		h.fail(w, r, apperr.NewConflict("booking is cancelled"))
		return
	}
	s, err := h.getService(ctx, b.ServiceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pdf, err := RenderReceipt(b, s, h.receipts.Payload(b))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="receipt-`+b.ID.Hex()+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) respondBooking(w http.ResponseWriter, msg string, b *models.Booking, s *models.Service) {
	utils.SendMessage(w, http.StatusOK, msg, utils.M{
		"booking":       b,
		"available_bag": s.AvailableBag,
	})
}

// undoReserve gives back bags reserved for a booking write that failed.
func (h *Handler) undoReserve(ctx context.Context, serviceID primitive.ObjectID, n int) {
	if _, err := h.inv.Release(context.WithoutCancel(ctx), serviceID, n); err != nil {
		h.log.Error("release after failed booking write",
			zap.String("service_id", serviceID.Hex()),
			zap.Int("bags", n),
			zap.Error(err),
		)
	}
}

// heldBy guards a booking write on the status and bag count it was loaded
// with, so the capacity adjustment that follows matches what was held.
func heldBy(b *models.Booking) []store.Cond {
	return []store.Cond{
		store.Eq("booking_bag", int64(b.BookingBag)),
		store.Eq("confirm", string(b.Confirm)),
	}
}

func bookingWriteError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NewNotFound("booking not found")
	case errors.Is(err, store.ErrConditionFailed):
		return apperr.NewConflict("booking changed concurrently, retry")
	}
	return err
}
