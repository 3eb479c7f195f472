package routes

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"jimgabang/metrics"
	"jimgabang/middleware"
	"jimgabang/models"
	"jimgabang/ratelim"
	"jimgabang/reservations"
	"jimgabang/utils"
)

// Accounts is the set of account handlers mounted for one principal kind.
type Accounts interface {
	Signup(http.ResponseWriter, *http.Request, httprouter.Params)
	Signin(http.ResponseWriter, *http.Request, httprouter.Params)
	RefreshToken(http.ResponseWriter, *http.Request, httprouter.Params)
	Signout(http.ResponseWriter, *http.Request, httprouter.Params)
	Me(http.ResponseWriter, *http.Request, httprouter.Params)
	Update(http.ResponseWriter, *http.Request, httprouter.Params)
	Delete(http.ResponseWriter, *http.Request, httprouter.Params)
	GetAll(http.ResponseWriter, *http.Request, httprouter.Params)
	DeleteAll(http.ResponseWriter, *http.Request, httprouter.Params)
}

// Guard wraps a handler with an authentication check.
type Guard func(httprouter.Handle) httprouter.Handle

// Deps are the handlers and guards the routes are built from.
type Deps struct {
	Hosts        Accounts
	Clients      Accounts
	HostAuth     Guard
	ClientAuth   Guard
	Reservations *reservations.Handler
	RateLimiter  *ratelim.RateLimiter
	// AdminToken enables the operator routes when set.
	AdminToken string
	Log        *zap.Logger
}

// instrumented registers every route through metrics.Instrument so samples
// are labelled with the route pattern.
type instrumented struct {
	*httprouter.Router
}

func (r instrumented) handle(method, path string, h httprouter.Handle) {
	r.Handle(method, path, metrics.Instrument(method, path, h))
}

// New builds the application router.
func New(d Deps) *httprouter.Router {
	router := httprouter.New()
	AddStaticRoutes(router)
	AddAccountRoutes(router, "/host", d.Hosts, d.HostAuth, d)
	AddAccountRoutes(router, "/client", d.Clients, d.ClientAuth, d)
	AddServiceRoutes(router, d)
	AddBookingRoutes(router, d)
	return router
}

func AddStaticRoutes(router *httprouter.Router) {
	r := instrumented{router}
	r.handle("GET", "/", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		utils.SendMessage(w, http.StatusOK, "Welcome to jimgabang", nil)
	})
	r.handle("GET", "/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		fmt.Fprint(w, "200")
	})
	r.handle("GET", "/docs/examples", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		utils.RespondWithJSON(w, http.StatusOK, models.Examples)
	})
	r.Handler("GET", "/metrics", metrics.Handler())
}

// AddAccountRoutes mounts signup, signin, token and self-service routes
// under prefix. Unauthenticated credential routes are rate limited.
func AddAccountRoutes(router *httprouter.Router, prefix string, a Accounts, guard Guard, d Deps) {
	r := instrumented{router}
	limit := d.RateLimiter.Limit

	r.handle("POST", prefix+"/signup", limit(a.Signup))
	r.handle("POST", prefix+"/signin", limit(a.Signin))
	r.handle("POST", prefix+"/refresh-token", limit(a.RefreshToken))
	r.handle("POST", prefix+"/signout", guard(a.Signout))

	r.handle("GET", prefix+"/", guard(a.Me))
	r.handle("PUT", prefix+"/", guard(a.Update))
	r.handle("DELETE", prefix+"/", guard(a.Delete))

	if d.AdminToken == "" {
		return
	}
	r.handle("GET", prefix+"/get-all", middleware.AdminOnly(d.AdminToken, d.Log, a.GetAll))
	r.handle("DELETE", prefix+"/delete-all", middleware.AdminOnly(d.AdminToken, d.Log, a.DeleteAll))
}

func AddServiceRoutes(router *httprouter.Router, d Deps) {
	r := instrumented{router}
	h, host := d.Reservations, d.HostAuth

	r.handle("POST", "/service/new", host(h.CreateService))
	r.handle("POST", "/service/checkin", host(h.CheckIn))
	r.handle("GET", "/service", h.ListServices)
	r.handle("GET", "/service/:id", h.GetService)
	r.handle("PUT", "/service/:id", host(h.UpdateService))
	r.handle("DELETE", "/service/:id", host(h.DeleteService))
	r.handle("GET", "/service/:id/bookings", host(h.ServiceBookings))
	r.handle("GET", "/service/:id/live", h.LiveService)
}

func AddBookingRoutes(router *httprouter.Router, d Deps) {
	r := instrumented{router}
	h, client := d.Reservations, d.ClientAuth

	r.handle("POST", "/booking/new", client(h.CreateBooking))
	r.handle("GET", "/booking", client(h.ListBookings))
	r.handle("GET", "/booking/:id", client(h.GetBooking))
	r.handle("PUT", "/booking/:id", client(h.UpdateBooking))
	r.handle("DELETE", "/booking/:id", client(h.DeleteBooking))
	r.handle("PUT", "/booking/:id/status", d.HostAuth(h.UpdateStatus))
	r.handle("GET", "/booking/:id/receipt", client(h.Receipt))
}
