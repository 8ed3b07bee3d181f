package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/uthread/internal/execution"
	"github.com/me/uthread/internal/workload"
	"github.com/me/uthread/pkg/model"
)

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBody))
	if err != nil {
		respondError(w, reqID, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid body: " + err.Error(),
		})
		return
	}

	wl, err := workload.Parse(body)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			apiErr = &model.APIError{Code: model.ErrValidation, Message: err.Error()}
		}
		respondError(w, reqID, apiErr)
		return
	}

	ov, apiErr := parseOverrides(r)
	if apiErr != nil {
		respondError(w, reqID, apiErr)
		return
	}

	ctx := r.Context()
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	res, err := s.engine.Execute(ctx, wl, ov)
	if err != nil {
		respondError(w, reqID, errorFor(err))
		return
	}
	setRunID(r.Context(), res.Run.ID)

	// Save with the request context; the run timeout only bounds execution.
	if err := s.engine.Save(r.Context(), res); err != nil {
		respondError(w, reqID, errorFor(err))
		return
	}

	s.logger.Info("run created", "id", res.Run.ID, "workload", res.Run.Workload, "state", res.Run.State)
	respondCreated(w, reqID, res.Run)
}

// parseOverrides reads ?preemptive= and ?quantum= from the query string.
func parseOverrides(r *http.Request) (execution.Overrides, *model.APIError) {
	var ov execution.Overrides
	var details []model.FieldError
	q := r.URL.Query()

	if v := q.Get("preemptive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			details = append(details, model.FieldError{Field: "preemptive", Message: "must be a boolean"})
		} else {
			ov.Preemptive = &b
		}
	}
	if v := q.Get("quantum"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, model.FieldError{Field: "quantum", Message: "must be a non-negative integer"})
		} else {
			ov.Quantum = &n
		}
	}
	if len(details) > 0 {
		return ov, model.NewValidationError("invalid query parameters", details...)
	}
	return ov, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	if state := q.Get("state"); state != "" {
		opts.State = model.RunState(state)
	}
	opts.Clamp()

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, errorFor(err))
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}

	respondList(w, reqID, runs, model.NewPagination(opts, total))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	setRunID(r.Context(), id)

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, errorFor(err))
		return
	}
	if run == nil {
		respondError(w, reqID, model.NewNotFoundError("run", id))
		return
	}
	respondOK(w, reqID, run)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	setRunID(r.Context(), id)

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, errorFor(err))
		return
	}
	if run == nil {
		respondError(w, reqID, model.NewNotFoundError("run", id))
		return
	}

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		respondError(w, reqID, errorFor(err))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	respondOK(w, reqID, events)
}
