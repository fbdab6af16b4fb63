// Package http holds the market API handlers
package http

import (
	stdhttp "net/http"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/core/changes"
	perr "marketpulse/internal/platform/errors"
	phttp "marketpulse/internal/platform/net/http"
	"marketpulse/internal/platform/net/http/bind"
	cdom "marketpulse/internal/services/collector/domain"
	sdom "marketpulse/internal/services/scheduler/domain"

	"github.com/go-chi/chi/v5"
)

// CollectRequest is the body of POST /pipeline/collect
type CollectRequest struct {
	Job string `json:"job" validate:"required"`
}

// Register mounts the market routes on r
func Register(r phttp.Router, collector cdom.CollectorPort, scheduler sdom.SchedulerPort) {
	r.Get("/market/{kind}/latest", latestHandler(collector))
	r.Get("/market/{kind}/changes", changesHandler(collector, scheduler))
	r.Get("/pipeline/status", statusHandler(scheduler))
	r.Post("/pipeline/collect", collectHandler(scheduler))
}

func latestHandler(collector cdom.CollectorPort) phttp.Handler {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		kind, err := canon.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			phttp.RespondError(w, r, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad kind"))
			return
		}
		snap, err := collector.Latest(r.Context(), kind)
		if err != nil {
			phttp.RespondError(w, r, err)
			return
		}
		if snap == nil {
			phttp.RespondError(w, r, perr.Newf(perr.ErrorCodeNotFound, "no snapshot for kind %s yet", kind))
			return
		}
		phttp.RespondOK(w, r, snap)
	}
}

// changesHandler recomputes the delta between the two newest snapshots so the
// API needs no event storage. It uses the scheduler's active thresholds so the
// view agrees with what runs notified.
func changesHandler(collector cdom.CollectorPort, scheduler sdom.SchedulerPort) phttp.Handler {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		kind, err := canon.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			phttp.RespondError(w, r, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad kind"))
			return
		}
		current, err := collector.Latest(r.Context(), kind)
		if err != nil {
			phttp.RespondError(w, r, err)
			return
		}
		if current == nil {
			phttp.RespondError(w, r, perr.Newf(perr.ErrorCodeNotFound, "no snapshot for kind %s yet", kind))
			return
		}
		previous, err := collector.Previous(r.Context(), kind)
		if err != nil {
			phttp.RespondError(w, r, err)
			return
		}
		events := changes.Detect(current, previous, scheduler.Thresholds())
		if events == nil {
			events = []changes.Event{}
		}
		phttp.RespondOK(w, r, events)
	}
}

func statusHandler(scheduler sdom.SchedulerPort) phttp.Handler {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		phttp.RespondOK(w, r, scheduler.Status())
	}
}

func collectHandler(scheduler sdom.SchedulerPort) phttp.Handler {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		var req CollectRequest
		if err := bind.JSON(r, &req); err != nil {
			phttp.RespondError(w, r, err)
			return
		}
		st, err := scheduler.TriggerNow(r.Context(), req.Job)
		if err != nil {
			phttp.RespondError(w, r, err)
			return
		}
		phttp.RespondAccepted(w, r, st)
	}
}
