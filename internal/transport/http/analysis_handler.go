package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"emspulse/internal/dataset"
	apierrors "emspulse/internal/errors"
	"emspulse/internal/middleware"
	"emspulse/internal/services"
)

// AnalysisHandler serves the aggregation endpoints backing the dashboard
// charts.
type AnalysisHandler struct {
	service      *services.DatasetService
	errorHandler *apierrors.ErrorHandler
	validation   *middleware.ValidationMiddleware
	logger       *slog.Logger
}

// NewAnalysisHandler creates the analysis handler.
func NewAnalysisHandler(service *services.DatasetService, errorHandler *apierrors.ErrorHandler, validation *middleware.ValidationMiddleware, logger *slog.Logger) *AnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisHandler{
		service:      service,
		errorHandler: errorHandler,
		validation:   validation,
		logger:       logger.With(slog.String("handler", "analysis")),
	}
}

// Routes returns the analysis route tree.
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/counts", h.Counts)
	r.Post("/histogram", h.Histogram)
	return r
}

// CountsRequest is the body of POST /counts.
type CountsRequest struct {
	Selection dataset.Selection `json:"selection"`
	Columns   []string          `json:"columns" validate:"required,min=1,max=3,dive,columnname"`
}

// Counts returns grouped counts over the filtered table.
func (h *AnalysisHandler) Counts(w http.ResponseWriter, r *http.Request) {
	var req CountsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	view, err := h.service.Counts(r.Context(), req.Selection, req.Columns)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// HistogramRequest is the body of POST /histogram.
type HistogramRequest struct {
	Selection dataset.Selection `json:"selection"`
	Column    string            `json:"column" validate:"required,columnname"`
	Bins      int               `json:"bins" validate:"omitempty,min=1,max=500"`
}

// Histogram returns a binned distribution of an integer column.
func (h *AnalysisHandler) Histogram(w http.ResponseWriter, r *http.Request) {
	var req HistogramRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	view, err := h.service.Histogram(r.Context(), req.Selection, req.Column, req.Bins)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}
