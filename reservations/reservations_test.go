package reservations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"jimgabang/middleware"
	"jimgabang/models"
	"jimgabang/store"
)

const (
	hostHeader   = "X-Test-Host"
	clientHeader = "X-Test-Client"
)

// signedIn stands in for the authenticators: it trusts the test headers.
func signedIn(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := r.Context()
		if email := r.Header.Get(hostHeader); email != "" {
			ctx = middleware.WithPrincipal(ctx, &models.Host{Email: email})
		}
		if email := r.Header.Get(clientHeader); email != "" {
			ctx = middleware.WithPrincipal(ctx, &models.Client{Email: email})
		}
		next(w, r.WithContext(ctx), ps)
	}
}

type env struct {
	router   *httprouter.Router
	services *store.Memory[models.Service]
	bookings *store.Memory[models.Booking]
	hub      *Hub
	receipts *ReceiptSigner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWrapping(t, nil)
}

// newEnvWrapping builds an env whose handler sees the bookings store through
// wrap, when given.
func newEnvWrapping(t *testing.T, wrap func(store.Store[models.Booking]) store.Store[models.Booking]) *env {
	t.Helper()
	log := zaptest.NewLogger(t)
	e := &env{
		services: store.NewMemory[models.Service](),
		bookings: store.NewMemory[models.Booking](),
		hub:      NewHub([]string{"*"}, log),
		receipts: NewReceiptSigner("receipt-secret"),
	}
	t.Cleanup(e.hub.Close)
	var bookings store.Store[models.Booking] = e.bookings
	if wrap != nil {
		bookings = wrap(e.bookings)
	}
	h := New(e.services, bookings, e.hub, e.receipts, log)

	r := httprouter.New()
	r.POST("/service/new", signedIn(h.CreateService))
	r.POST("/service/checkin", signedIn(h.CheckIn))
	r.GET("/service", h.ListServices)
	r.GET("/service/:id", h.GetService)
	r.PUT("/service/:id", signedIn(h.UpdateService))
	r.DELETE("/service/:id", signedIn(h.DeleteService))
	r.GET("/service/:id/bookings", signedIn(h.ServiceBookings))
	r.GET("/service/:id/live", h.LiveService)
	r.POST("/booking/new", signedIn(h.CreateBooking))
	r.GET("/booking", signedIn(h.ListBookings))
	r.GET("/booking/:id", signedIn(h.GetBooking))
	r.PUT("/booking/:id", signedIn(h.UpdateBooking))
	r.DELETE("/booking/:id", signedIn(h.DeleteBooking))
	r.PUT("/booking/:id/status", signedIn(h.UpdateStatus))
	r.GET("/booking/:id/receipt", signedIn(h.Receipt))
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path, body string, hdr http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func asHost(email string) http.Header   { return http.Header{hostHeader: {email}} }
func asClient(email string) http.Header { return http.Header{clientHeader: {email}} }

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func (e *env) createService(t *testing.T, host string, total int, dates ...string) models.Service {
	t.Helper()
	datesJSON, _ := json.Marshal(dates)
	body := fmt.Sprintf(`{"service_name":"locker","category":"storage","address":"1 Main St",
		"latitude":37.5,"longitude":127.0,"service_time":"09:00-18:00","service_date":%s,
		"total_available_bag":%d}`, datesJSON, total)
	rec := e.do(t, "POST", "/service/new", body, asHost(host))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Service models.Service `json:"service"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Service
}

func (e *env) book(t *testing.T, client string, sid primitive.ObjectID, bags int) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"service_id":%q,"booking_date":["2026-11-01"],"booking_bag":%d}`, sid.Hex(), bags)
	return e.do(t, "POST", "/booking/new", body, asClient(client))
}

func (e *env) mustBook(t *testing.T, client string, sid primitive.ObjectID, bags int) models.Booking {
	t.Helper()
	rec := e.book(t, client, sid, bags)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Booking models.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Booking
}

func (e *env) available(t *testing.T, id primitive.ObjectID) int {
	t.Helper()
	s, err := e.services.Get(context.Background(), id)
	require.NoError(t, err)
	return s.AvailableBag
}

func code(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	c, _ := decode(t, rec)["code"].(string)
	return c
}

func TestCreateService(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	s := e.createService(t, "host@gmail.com", 4)
	assert.Equal(t, "host@gmail.com", s.Creator)
	assert.Equal(t, 4, s.AvailableBag)
	assert.Equal(t, 4, s.TotalAvailableBag)
	assert.False(t, s.CreatedAt.IsZero())

	// Creator and remaining capacity are never taken from the body.
	rec := e.do(t, "POST", "/service/new", `{"service_name":"x","category":"c","address":"a",
		"service_time":"t","total_available_bag":2,"available_bag":50,"creator":"evil@gmail.com"}`,
		asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	svc := decode(t, rec)["service"].(map[string]any)
	assert.Equal(t, "host@gmail.com", svc["creator"])
	assert.EqualValues(t, 2, svc["available_bag"])

	rec = e.do(t, "POST", "/service/new", `{"service_name":"x"}`, asHost("host@gmail.com"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, "POST", "/service/new", `{"service_name":"x","category":"c","address":"a",
		"service_time":"t","service_date":["tomorrow"]}`, asHost("host@gmail.com"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, "POST", "/service/new", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetAndListServices(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.createService(t, "a@gmail.com", 1)
	e.createService(t, "b@gmail.com", 1)

	rec := e.do(t, "GET", "/service/"+a.ID.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.ID.Hex(), decode(t, rec)["id"])

	assert.Equal(t, http.StatusNotFound, e.do(t, "GET", "/service/"+primitive.NewObjectID().Hex(), "", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, "GET", "/service/not-an-id", "", nil).Code)

	var all []models.Service
	rec = e.do(t, "GET", "/service", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = e.do(t, "GET", "/service?creator=a@gmail.com", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, a.ID, all[0].ID)
}

func TestUpdateService(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 5)
	path := "/service/" + s.ID.Hex()

	rec := e.do(t, "PUT", path, `{"service_name":"bigger locker","latitude":null}`, asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := e.services.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "bigger locker", got.ServiceName)
	assert.Equal(t, "storage", got.Category)
	assert.Zero(t, got.Latitude)

	rec = e.do(t, "PUT", path, `{"service_name":null}`, asHost("host@gmail.com"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, "PUT", path, `{"service_name":"mine now"}`, asHost("other@gmail.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, "PUT", "/service/"+primitive.NewObjectID().Hex(), `{"service_name":"x"}`, asHost("other@gmail.com"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResizeService(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 5)
	path := "/service/" + s.ID.Hex()
	e.mustBook(t, "client@gmail.com", s.ID, 3)
	require.Equal(t, 2, e.available(t, s.ID))

	rec := e.do(t, "PUT", path, `{"total_available_bag":8}`, asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, e.available(t, s.ID))

	// Three bags are booked, so the total cannot go below three.
	rec = e.do(t, "PUT", path, `{"total_available_bag":2}`, asHost("host@gmail.com"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "capacity_exceeded", code(t, rec))
	assert.Equal(t, 5, e.available(t, s.ID))

	rec = e.do(t, "PUT", path, `{"total_available_bag":3}`, asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, e.available(t, s.ID))
}

func TestCapacityAccounting(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 5)

	first := e.mustBook(t, "client@gmail.com", s.ID, 5)
	assert.Equal(t, models.StatusPending, first.Confirm)
	assert.Equal(t, "client@gmail.com", first.Creator)
	assert.Equal(t, 0, e.available(t, s.ID))

	rec := e.book(t, "client@gmail.com", s.ID, 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "capacity_exceeded", code(t, rec))
	assert.Equal(t, 0, e.available(t, s.ID))

	rec = e.do(t, "DELETE", "/booking/"+first.ID.Hex(), "", asClient("client@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 5, decode(t, rec)["available_bag"])
	assert.Equal(t, 5, e.available(t, s.ID))

	svc, err := e.services.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, svc.Bookings)
}

func TestCreateBookingRejections(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 3, "2026-11-01", "2026-11-02")

	rec := e.book(t, "client@gmail.com", primitive.NewObjectID(), 1)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.book(t, "client@gmail.com", s.ID, 0)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := fmt.Sprintf(`{"service_id":%q,"booking_date":["2026-12-25"],"booking_bag":1}`, s.ID.Hex())
	rec = e.do(t, "POST", "/booking/new", body, asClient("client@gmail.com"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "booking_date")

	body = fmt.Sprintf(`{"service_id":%q,"booking_date":["11/01/2026"],"booking_bag":1}`, s.ID.Hex())
	rec = e.do(t, "POST", "/booking/new", body, asClient("client@gmail.com"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.Equal(t, 3, e.available(t, s.ID))
}

func TestBookingOwnership(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 5)
	b := e.mustBook(t, "a@gmail.com", s.ID, 2)
	path := "/booking/" + b.ID.Hex()

	for _, tc := range []struct {
		method, body string
	}{
		{"GET", ""},
		{"PUT", `{"booking_bag":1}`},
		{"PUT", `{"booking_bag":-3}`},
		{"DELETE", ""},
	} {
		rec := e.do(t, tc.method, path, tc.body, asClient("b@gmail.com"))
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.method)
	}
	rec := e.do(t, "GET", path+"/receipt", "", asClient("b@gmail.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, 3, e.available(t, s.ID))
	assert.Equal(t, http.StatusNotFound, e.do(t, "DELETE", "/booking/nope", "", asClient("b@gmail.com")).Code)
}

func TestListBookings(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 5)
	e.mustBook(t, "a@gmail.com", s.ID, 1)
	e.mustBook(t, "a@gmail.com", s.ID, 1)
	e.mustBook(t, "b@gmail.com", s.ID, 1)

	var mine []models.Booking
	rec := e.do(t, "GET", "/booking", "", asClient("a@gmail.com"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 2)

	var all []models.Booking
	rec = e.do(t, "GET", "/service/"+s.ID.Hex()+"/bookings", "", asHost("host@gmail.com"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = e.do(t, "GET", "/service/"+s.ID.Hex()+"/bookings", "", asHost("other@gmail.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateBooking(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 5, "2026-11-01", "2026-11-02")
	b := e.mustBook(t, "client@gmail.com", s.ID, 2)
	path := "/booking/" + b.ID.Hex()
	me := asClient("client@gmail.com")

	rec := e.do(t, "PUT", path, `{"booking_bag":4}`, me)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["available_bag"])

	rec = e.do(t, "PUT", path, `{"booking_bag":7}`, me)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got, err := e.bookings.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.BookingBag)
	assert.Equal(t, 1, e.available(t, s.ID))

	rec = e.do(t, "PUT", path, `{"booking_bag":1,"booking_date":["2026-11-02"]}`, me)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, e.available(t, s.ID))
	got, err = e.bookings.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-11-02"}, got.BookingDate)

	assert.Equal(t, http.StatusUnprocessableEntity, e.do(t, "PUT", path, `{"booking_bag":null}`, me).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(t, "PUT", path, `{"booking_date":["2027-01-01"]}`, me).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(t, "PUT", path, `{"confirm":"confirmed"}`, me).Code)

	rec = e.do(t, "PUT", path+"/status", `{"confirm":"cancelled"}`, asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusConflict, e.do(t, "PUT", path, `{"booking_bag":2}`, me).Code)
	assert.Equal(t, 5, e.available(t, s.ID))
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 3)
	b := e.mustBook(t, "client@gmail.com", s.ID, 2)
	path := "/booking/" + b.ID.Hex() + "/status"
	host := asHost("host@gmail.com")

	rec := e.do(t, "PUT", path, `{"confirm":"confirmed"}`, asHost("other@gmail.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, "PUT", path, `{"confirm":"done"}`, host)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, "PUT", path, `{"confirm":"confirmed"}`, host)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode(t, rec)["booking"].(map[string]any)["confirm"])
	assert.Equal(t, 1, e.available(t, s.ID))

	rec = e.do(t, "PUT", path, `{"confirm":"cancelled"}`, host)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, e.available(t, s.ID))

	// Cancelling twice must not release the bags twice.
	rec = e.do(t, "PUT", path, `{"confirm":"cancelled"}`, host)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, e.available(t, s.ID))

	other := e.mustBook(t, "other@gmail.com", s.ID, 2)
	rec = e.do(t, "PUT", path, `{"confirm":"pending"}`, host)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, e.available(t, s.ID))

	rec = e.do(t, "DELETE", "/booking/"+other.ID.Hex(), "", asClient("other@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, "PUT", path, `{"confirm":"pending"}`, host)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, e.available(t, s.ID))

	assert.Equal(t, http.StatusNotFound,
		e.do(t, "PUT", "/booking/"+primitive.NewObjectID().Hex()+"/status", `{"confirm":"cancelled"}`, host).Code)
}

func TestDeleteCancelledBookingKeepsCapacity(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 3)
	b := e.mustBook(t, "client@gmail.com", s.ID, 2)

	rec := e.do(t, "PUT", "/booking/"+b.ID.Hex()+"/status", `{"confirm":"cancelled"}`, asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, "DELETE", "/booking/"+b.ID.Hex(), "", asClient("client@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, e.available(t, s.ID))
}

// interleaved runs a hook once, just before the next Update or Delete
// reaches the underlying store.
type interleaved struct {
	store.Store[models.Booking]
	mu           sync.Mutex
	beforeUpdate func()
	beforeDelete func()
}

func (s *interleaved) take(f *func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	hook := *f
	*f = nil
	return hook
}

func (s *interleaved) Update(ctx context.Context, id primitive.ObjectID, p *store.Patch) (*models.Booking, error) {
	if hook := s.take(&s.beforeUpdate); hook != nil {
		hook()
	}
	return s.Store.Update(ctx, id, p)
}

func (s *interleaved) Delete(ctx context.Context, id primitive.ObjectID, conds ...store.Cond) (bool, error) {
	if hook := s.take(&s.beforeDelete); hook != nil {
		hook()
	}
	return s.Store.Delete(ctx, id, conds...)
}

func TestResizeRacingDeleteKeepsCapacity(t *testing.T) {
	t.Parallel()
	wrapped := &interleaved{}
	e := newEnvWrapping(t, func(s store.Store[models.Booking]) store.Store[models.Booking] {
		wrapped.Store = s
		return wrapped
	})
	s := e.createService(t, "host@gmail.com", 5)
	b := e.mustBook(t, "client@gmail.com", s.ID, 2)
	path := "/booking/" + b.ID.Hex()
	client := asClient("client@gmail.com")

	wrapped.beforeDelete = func() {
		rec := e.do(t, "PUT", path, `{"booking_bag":4}`, client)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := e.do(t, "DELETE", path, "", client)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	kept, err := e.bookings.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, kept.BookingBag)
	assert.Equal(t, 1, e.available(t, s.ID))

	rec = e.do(t, "DELETE", path, "", client)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, e.available(t, s.ID))
}

func TestResizeRacingCancelKeepsCapacity(t *testing.T) {
	t.Parallel()
	wrapped := &interleaved{}
	e := newEnvWrapping(t, func(s store.Store[models.Booking]) store.Store[models.Booking] {
		wrapped.Store = s
		return wrapped
	})
	s := e.createService(t, "host@gmail.com", 5)
	b := e.mustBook(t, "client@gmail.com", s.ID, 2)
	path := "/booking/" + b.ID.Hex()
	host := asHost("host@gmail.com")

	wrapped.beforeUpdate = func() {
		rec := e.do(t, "PUT", path, `{"booking_bag":4}`, asClient("client@gmail.com"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := e.do(t, "PUT", path+"/status", `{"confirm":"cancelled"}`, host)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, 1, e.available(t, s.ID))

	rec = e.do(t, "PUT", path+"/status", `{"confirm":"cancelled"}`, host)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, e.available(t, s.ID))
}

func TestConcurrentBookingsNeverOverdraw(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"service_id":%q,"booking_date":["2026-11-01"],"booking_bag":1}`, s.ID.Hex())
			req := httptest.NewRequest("POST", "/booking/new", strings.NewReader(body))
			req.Header.Set(clientHeader, fmt.Sprintf("c%d@gmail.com", i))
			rec := httptest.NewRecorder()
			e.router.ServeHTTP(rec, req)

			mu.Lock()
			defer mu.Unlock()
			switch rec.Code {
			case http.StatusOK:
				ok++
			case http.StatusBadRequest:
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, full)
	assert.Equal(t, 0, e.available(t, s.ID))
	svc, err := e.services.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, svc.Bookings, 5)
}

func TestDeleteService(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 3)
	e.mustBook(t, "client@gmail.com", s.ID, 1)
	e.mustBook(t, "client@gmail.com", s.ID, 1)
	path := "/service/" + s.ID.Hex()

	assert.Equal(t, http.StatusForbidden, e.do(t, "DELETE", path, "", asHost("other@gmail.com")).Code)

	rec := e.do(t, "DELETE", path, "", asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode(t, rec)["deleted_bookings"])

	assert.Equal(t, http.StatusNotFound, e.do(t, "GET", path, "", nil).Code)
	left, err := e.bookings.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestReceiptAndCheckIn(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	s := e.createService(t, "host@gmail.com", 3)
	b := e.mustBook(t, "client@gmail.com", s.ID, 1)

	rec := e.do(t, "GET", "/booking/"+b.ID.Hex()+"/receipt", "", asClient("client@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), b.ID.Hex())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	payload, _ := json.Marshal(map[string]string{"payload": e.receipts.Payload(&b)})
	rec = e.do(t, "POST", "/service/checkin", string(payload), asHost("other@gmail.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, "POST", "/service/checkin", string(payload), asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "receipt verified", decode(t, rec)["message"])

	rec = e.do(t, "POST", "/service/checkin", `{"payload":"forged|payload"}`, asHost("host@gmail.com"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, "PUT", "/booking/"+b.ID.Hex()+"/status", `{"confirm":"cancelled"}`, asHost("host@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusConflict, e.do(t, "POST", "/service/checkin", string(payload), asHost("host@gmail.com")).Code)
	assert.Equal(t, http.StatusConflict,
		e.do(t, "GET", "/booking/"+b.ID.Hex()+"/receipt", "", asClient("client@gmail.com")).Code)
}
