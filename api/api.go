package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/course-checkout/api/middleware"
	"github.com/irsalhamdi/course-checkout/api/web"
	"github.com/irsalhamdi/course-checkout/core/purchase"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

type APIConfig struct {
	Log          logrus.FieldLogger
	DB           *sqlx.DB
	Orchestrator *purchase.Orchestrator
	Breaker      interface{ State() gobreaker.State }
	Verifier     middleware.TokenVerifier
	Limiter      middleware.Allower
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Metrics())
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	authen := middleware.Authenticate(cfg.Verifier)
	admin := middleware.Admin()
	limit := middleware.RateLimit(cfg.Limiter)

	a.Handle(http.MethodGet, "/health", handleHealth(cfg.DB, cfg.Breaker))
	a.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	o := cfg.Orchestrator

	a.Handle(http.MethodPost, "/purchases/direct", purchase.HandleDirect(o), authen, limit)
	a.Handle(http.MethodPost, "/purchases/3ds/initialize", purchase.HandleInitiate3DS(o), authen, limit)
	a.Handle(http.MethodPost, "/purchases/3ds/callback", purchase.HandleCallback(o), limit)
	a.Handle(http.MethodGet, "/purchases/check", purchase.HandleCheck(o), authen)

	a.Handle(http.MethodGet, "/payments/{id}", purchase.HandleShowPayment(o), authen)
	a.Handle(http.MethodPost, "/admin/payments/sweep", handleSweep(o), authen, admin)

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
