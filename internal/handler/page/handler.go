// Package page renders the advisor as a plain server-side HTML page. Every
// render is a pure function of the session view; the form posts each run one
// reactive pass and redirect back.
package page

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/middleware"
	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/service/advisor"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"markdown": renderMarkdown,
}).ParseFS(templateFS, "templates/index.html"))

// Handler serves the HTML page.
type Handler struct {
	advisor *advisor.Service
	logger  *zap.Logger
}

// New creates the page handler.
func New(svc *advisor.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{advisor: svc, logger: logger}
}

// RegisterRoutes registers the page and its form posts.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Post("/predict", h.handlePredict)
	r.Post("/message", h.handleMessage)
	r.Post("/settings", h.handleSettings)
}

// Data is what the template renders.
type Data struct {
	View          advisor.View
	Form          car.Record
	Limits        car.Limits
	Transmissions []car.Transmission
	FuelTypes     []car.FuelType
	Error         string
	Warnings      []string
}

// Build assembles template data from a view and the notices carried by the redirect.
func Build(view advisor.View, query url.Values) Data {
	form := car.DefaultRecord()
	if view.State.Car != nil {
		form = *view.State.Car
	}
	return Data{
		View:          view,
		Form:          form,
		Limits:        car.FormLimits,
		Transmissions: car.Transmissions(),
		FuelTypes:     car.FuelTypes(),
		Error:         query.Get("error"),
		Warnings:      query["warning"],
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	out, err := h.advisor.Refresh(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	for _, warning := range out.Warnings {
		query.Add("warning", warning)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, Build(out.View, query)); err != nil {
		h.logger.Error("render page", zap.Error(err))
	}
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	record, err := parseRecord(r)
	if err == nil {
		err = record.Validate()
	}
	if err != nil {
		redirect(w, r, err, nil)
		return
	}

	out, err := h.advisor.Submit(r.Context(), middleware.SessionIDFromContext(r.Context()), record)
	redirect(w, r, err, out.Warnings)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	out, err := h.advisor.Message(r.Context(), middleware.SessionIDFromContext(r.Context()), r.PostFormValue("message"))
	redirect(w, r, err, out.Warnings)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	_, err := h.advisor.ConfigureCredential(r.Context(), middleware.SessionIDFromContext(r.Context()), r.PostFormValue("apiKey"))
	redirect(w, r, err, nil)
}

func redirect(w http.ResponseWriter, r *http.Request, err error, warnings []string) {
	query := url.Values{}
	if err != nil {
		query.Set("error", err.Error())
	}
	for _, warning := range warnings {
		query.Add("warning", warning)
	}
	target := "/"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func parseRecord(r *http.Request) (car.Record, error) {
	if err := r.ParseForm(); err != nil {
		return car.Record{}, fmt.Errorf("%w: %v", car.ErrInvalidRecord, err)
	}

	var (
		rec  car.Record
		errs []string
	)
	parseInt := func(field string) int {
		v, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get(field)))
		if err != nil {
			errs = append(errs, field+" must be a whole number")
		}
		return v
	}
	parseFloat := func(field string) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(r.PostForm.Get(field)), 64)
		if err != nil {
			errs = append(errs, field+" must be a number")
		}
		return v
	}

	rec.Model = strings.TrimSpace(r.PostForm.Get("model"))
	rec.Year = parseInt("year")
	rec.Transmission = car.Transmission(r.PostForm.Get("transmission"))
	rec.Mileage = parseInt("mileage")
	rec.FuelType = car.FuelType(r.PostForm.Get("fuelType"))
	rec.Tax = parseInt("tax")
	rec.MPG = parseFloat("mpg")
	rec.EngineSize = parseFloat("engineSize")

	if len(errs) > 0 {
		return car.Record{}, fmt.Errorf("%w: %s", car.ErrInvalidRecord, strings.Join(errs, "; "))
	}
	return rec, nil
}
