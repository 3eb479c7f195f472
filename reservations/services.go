package reservations

import (
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

// CreateService publishes a service for the signed-in host. The creator and
// the remaining capacity are set server-side.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	host, err := currentHost(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var s models.Service
	if err := validate.Decode(r, &s); err != nil {
		h.fail(w, r, err)
		return
	}

	s.ID = primitive.NewObjectID()
	s.Creator = host.Email
	s.AvailableBag = s.TotalAvailableBag
	s.Bookings = nil
	s.CreatedAt = h.now().UTC()

	if err := h.services.Save(r.Context(), &s); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("service created",
		zap.String("service_id", s.ID.Hex()),
		zap.String("creator", s.Creator),
		zap.Int("total_available_bag", s.TotalAvailableBag),
	)
	utils.SendMessage(w, http.StatusOK, "service created successfully", utils.M{"service": s})
}

// ListServices returns every service, optionally filtered by ?creator= or
// ?category=.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var (
		all []models.Service
		err error
	)
	q := r.URL.Query()
	switch {
	case q.Get("creator") != "":
		all, err = h.services.FindAll(r.Context(), "creator", q.Get("creator"))
	case q.Get("category") != "":
		all, err = h.services.FindAll(r.Context(), "category", q.Get("category"))
	default:
		all, err = h.services.GetAll(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, all)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, err := h.loadService(r.Context(), ps.ByName("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, s)
}

// UpdateService applies a partial update. Changing total_available_bag
// shifts available_bag by the same amount and is refused when the bags
// already booked would no longer fit.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	host, err := currentHost(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.ownedService(ctx, ps.ByName("id"), host)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var u models.ServiceUpdate
	if err := validate.Decode(r, &u); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := nullFields(map[string]bool{
		"service_name":        u.ServiceName.Cleared(),
		"category":            u.Category.Cleared(),
		"address":             u.Address.Cleared(),
		"service_time":        u.ServiceTime.Cleared(),
		"total_available_bag": u.TotalAvailableBag.Cleared(),
	}); err != nil {
		h.fail(w, r, err)
		return
	}

	p := store.NewPatch().Where(store.Eq("creator", host.Email))
	for field, v := range map[string]models.Optional[string]{
		"service_name": u.ServiceName,
		"category":     u.Category,
		"address":      u.Address,
		"service_time": u.ServiceTime,
	} {
		if v.IsSet() {
			p.Set(field, v.Value)
		}
	}
	for field, v := range map[string]models.Optional[float64]{
		"latitude":  u.Latitude,
		"longitude": u.Longitude,
	} {
		switch {
		case v.IsSet():
			p.Set(field, v.Value)
		case v.Cleared():
			p.Unset(field)
		}
	}
	switch {
	case u.ServiceDate.IsSet():
		p.Set("service_date", u.ServiceDate.Value)
	case u.ServiceDate.Cleared():
		p.Unset("service_date")
	}

	resized := u.TotalAvailableBag.IsSet() && u.TotalAvailableBag.Value != s.TotalAvailableBag
	if resized {
		delta := u.TotalAvailableBag.Value - s.TotalAvailableBag
		p.Set("total_available_bag", u.TotalAvailableBag.Value).
			Inc("available_bag", int64(delta)).
			Where(store.Eq("total_available_bag", int64(s.TotalAvailableBag)))
		if delta < 0 {
			p.Where(store.Gte("available_bag", int64(-delta)))
		}
	}

	if p.Empty() {
		utils.RespondWithJSON(w, http.StatusOK, s)
		return
	}

	updated, err := h.services.Update(ctx, s.ID, p)
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = apperr.NewNotFound("service not found")
	case errors.Is(err, store.ErrConditionFailed):
		err = h.explainServiceConflict(r, s, host)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if resized {
		h.hub.Publish(updated)
		h.log.Info("service resized",
			zap.String("service_id", s.ID.Hex()),
			zap.Int("total_available_bag", updated.TotalAvailableBag),
			zap.Int("available_bag", updated.AvailableBag),
		)
	}
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// explainServiceConflict classifies a guarded service update that did not
// apply.
func (h *Handler) explainServiceConflict(r *http.Request, before *models.Service, host *models.Host) error {
	cur, err := h.getService(r.Context(), before.ID)
	if err != nil {
		return err
	}
	if cur.Creator != host.Email {
		return apperr.NewForbidden("service belongs to another host")
	}
	if cur.TotalAvailableBag != before.TotalAvailableBag {
		return apperr.NewConflict("service capacity changed concurrently, retry")
	}
	metrics.CapacityRejected()
	return apperr.NewCapacity("total_available_bag is below the bags already booked")
}

// DeleteService removes the service and all of its bookings.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	host, err := currentHost(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.ownedService(ctx, ps.ByName("id"), host)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	deleted, err := h.services.Delete(ctx, s.ID, store.Eq("creator", host.Email))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		h.fail(w, r, apperr.NewNotFound("service not found"))
		return
	}
	n, err := h.bookings.DeleteMany(ctx, "service_id", s.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.hub.Drop(s.ID)

	h.log.Info("service deleted", zap.String("service_id", s.ID.Hex()), zap.Int64("bookings", n))
	utils.SendMessage(w, http.StatusOK, "service deleted successfully", utils.M{"deleted_bookings": n})
}

// ServiceBookings lists the bookings of a service to its host.
func (h *Handler) ServiceBookings(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	host, err := currentHost(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.ownedService(ctx, ps.ByName("id"), host)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	all, err := h.bookings.FindAll(ctx, "service_id", s.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, all)
}

// LiveService streams capacity events of a service over a websocket.
func (h *Handler) LiveService(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, err := h.loadService(r.Context(), ps.ByName("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.hub.Serve(w, r, s)
}

type checkIn struct {
	Payload string `json:"payload" validate:"required"`
}

// CheckIn verifies a receipt QR payload presented at drop-off by the host of
// the booked service.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	host, err := currentHost(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req checkIn
	if err := validate.Decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	claim, err := h.receipts.Verify(req.Payload)
	if err != nil {
		h.fail(w, r, apperr.NewValidation("receipt is not valid", map[string]string{"payload": "signature mismatch"}))
		return
	}

	b, err := h.getBooking(ctx, claim.BookingID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if b.ServiceID != claim.ServiceID || b.Creator != claim.Creator {
		h.fail(w, r, apperr.NewValidation("receipt does not match booking", map[string]string{"payload": "stale receipt"}))
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
	if !b.Confirm.Active() {
		h.fail(w, r, apperr.NewConflict("booking is cancelled"))
		return
	}
	utils.SendMessage(w, http.StatusOK, "receipt verified", utils.M{"booking": b})
}
