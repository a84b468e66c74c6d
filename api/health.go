package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/course-checkout/api/web"
	"github.com/irsalhamdi/course-checkout/api/weberr"
	"github.com/irsalhamdi/course-checkout/core/purchase"
	"github.com/irsalhamdi/course-checkout/database"
	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker"
)

type health struct {
	Status  string `json:"status"`
	DB      string `json:"db"`
	Catalog string `json:"catalog"`
}

// handleHealth answers 503 only when the database is unreachable. An open
// catalog breaker degrades purchases but the service is still up.
func handleHealth(db *sqlx.DB, breaker interface{ State() gobreaker.State }) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		h := health{Status: "ok", DB: "ok", Catalog: breaker.State().String()}
		status := http.StatusOK

		if err := database.StatusCheck(ctx, db); err != nil {
			h.Status, h.DB = "unavailable", err.Error()
			status = http.StatusServiceUnavailable
		} else if breaker.State() == gobreaker.StateOpen {
			h.Status = "degraded"
		}

		return web.Respond(ctx, w, h, status)
	}
}

// handleSweep fails open payments older than the olderThan query parameter.
func handleSweep(o *purchase.Orchestrator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		olderThan := 30 * time.Minute
		if v := r.URL.Query().Get("olderThan"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return weberr.BadRequest(errors.New("olderThan must be a positive duration"))
			}
			olderThan = d
		}

		n, err := o.SweepStale(ctx, olderThan)
		if err != nil {
			return fmt.Errorf("sweeping stale payments: %w", err)
		}

		resp := struct {
			Failed int `json:"failed"`
		}{n}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
