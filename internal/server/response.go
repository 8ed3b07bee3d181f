package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/uthread/internal/dispatch"
	"github.com/me/uthread/internal/execution"
	"github.com/me/uthread/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// statusFor maps an API error code to its HTTP status.
func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrCapacity:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// errorFor classifies an error from parsing, executing or storing a run.
func errorFor(err error) *model.APIError {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case execution.IsConfigError(err):
		return &model.APIError{Code: model.ErrValidation, Message: err.Error()}
	case errors.Is(err, dispatch.ErrNoMore):
		return &model.APIError{Code: model.ErrCapacity, Message: err.Error()}
	}
	return &model.APIError{Code: model.ErrInternal, Message: err.Error()}
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 for a run that was executed and saved.
func respondCreated(w http.ResponseWriter, reqID string, run *model.Run) {
	respondJSON(w, http.StatusCreated, reqID, run, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error envelope with the status of its code.
func respondError(w http.ResponseWriter, reqID string, apiErr *model.APIError) {
	respondJSON(w, statusFor(apiErr.Code), reqID, nil, nil, apiErr)
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		Status:     "ok",
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
