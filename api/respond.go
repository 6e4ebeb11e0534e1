/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/failures"
)

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

// readJSON decodes a JSON request body of at most limit bytes.
func readJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return v, false
	}
	return v, true
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		clog.ErrorContextf(ctx, "Failed to write JSON response: %v", err)
	}
}

func writeText(ctx context.Context, w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		clog.ErrorContextf(ctx, "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// writeFailure maps a pipeline error onto an HTTP status.
func writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusOf(err)
	resp := errorResponse{Error: failures.Redact(err.Error())}

	var pe *failures.PublishError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		resp.Status = pe.StatusCode
	}
	if status == http.StatusInternalServerError {
		clog.FromContext(ctx).With("error", err).Error("Request failed")
		resp.Error = "internal server error"
	} else {
		clog.FromContext(ctx).With("error", resp.Error).With("status", status).Warn("Request failed")
	}
	writeJSON(ctx, w, status, resp)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, failures.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, failures.ErrInvalid), errors.Is(err, failures.ErrPathSecurity):
		return http.StatusBadRequest
	case errors.Is(err, failures.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, failures.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, failures.ErrPatchApply):
		return http.StatusUnprocessableEntity
	case errors.Is(err, failures.ErrPublish),
		errors.Is(err, failures.ErrModelFormat),
		errors.Is(err, failures.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
