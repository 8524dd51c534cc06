package api

import (
	"net/http"

	"github.com/zhouzirui/car-advisor/backend/internal/middleware"
	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/pkg/utils"
)

// FormSchema describes the car form for clients that render their own.
type FormSchema struct {
	Limits        car.Limits         `json:"limits"`
	Transmissions []car.Transmission `json:"transmissions"`
	FuelTypes     []car.FuelType     `json:"fuelTypes"`
	Defaults      car.Record         `json:"defaults"`
	Rate          float64            `json:"conversionRate"`
}

func (h *Handler) handleForm(w http.ResponseWriter, r *http.Request) {
	_ = utils.RespondJSON(w, http.StatusOK, FormSchema{
		Limits:        car.FormLimits,
		Transmissions: car.Transmissions(),
		FuelTypes:     car.FuelTypes(),
		Defaults:      car.DefaultRecord(),
		Rate:          car.ConversionRate,
	})
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var record car.Record
	if err := utils.DecodeJSON(w, r, &record); err != nil {
		_ = utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if err := record.Validate(); err != nil {
		h.respondErr(w, r, err)
		return
	}

	out, err := h.advisor.Submit(r.Context(), middleware.SessionIDFromContext(r.Context()), record)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, out)
}
