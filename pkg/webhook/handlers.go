package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/harun/actionserver/internal/tracing"
	"go.opentelemetry.io/otel/trace"
)

// handleHealth reports liveness. It has no dependencies and always succeeds.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleWebhook runs one action call
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Debug().Int64("limit", tooLarge.Limit).Msg("Webhook body too large")
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: msgBodyTooLarge})
			return
		}
		logger.Debug().Err(err).Msg("Failed to read webhook body")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody})
		return
	}

	resp := s.dispatcher.Dispatch(ctx, body)

	if resp.Err != nil {
		trace.SpanFromContext(ctx).RecordError(resp.Err)
	}

	writeJSON(w, resp.Status, resp.Body)

	logger.Debug().
		Int("status", resp.Status).
		Dur("duration", time.Since(start)).
		Msg("Webhook request handled")
}

// handleActions lists registered actions.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.dispatcher.ListActions(r.Context())
	if err != nil {
		logger := tracing.LoggerFromContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("Failed to list actions")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: msgInternalError})
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

// writeJSON sends body as JSON with the given status. A nil body is sent
// as null.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
