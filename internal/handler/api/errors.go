package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/service/advisor"
	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
	"github.com/zhouzirui/car-advisor/backend/pkg/utils"
)

// StatusFor maps an advisor error to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	var (
		predErr *advisor.PredictionError
		cfgErr  *advisor.ConfigurationError
	)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, car.ErrInvalidRecord):
		return http.StatusBadRequest, "invalid_record"
	case errors.Is(err, advisor.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, advisor.ErrPredictorUnavailable):
		return http.StatusServiceUnavailable, "predictor_unavailable"
	case errors.Is(err, advisor.ErrSessionKeyDisabled):
		return http.StatusForbidden, "session_key_disabled"
	case errors.As(err, &predErr):
		return http.StatusUnprocessableEntity, "prediction_failed"
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, "configuration"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "busy"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	_ = utils.RespondErrorCode(w, status, code, msg)
}
