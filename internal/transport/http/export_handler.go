package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"emspulse/internal/dataset"
	apierrors "emspulse/internal/errors"
	"emspulse/internal/middleware"
	"emspulse/internal/services"
)

// ExportHandler serves workbook downloads of the filtered dataset.
type ExportHandler struct {
	service      *services.DatasetService
	errorHandler *apierrors.ErrorHandler
	validation   *middleware.ValidationMiddleware
	logger       *slog.Logger
}

// NewExportHandler creates the export handler.
func NewExportHandler(service *services.DatasetService, errorHandler *apierrors.ErrorHandler, validation *middleware.ValidationMiddleware, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{
		service:      service,
		errorHandler: errorHandler,
		validation:   validation,
		logger:       logger.With(slog.String("handler", "export")),
	}
}

// Routes returns the export route tree.
func (h *ExportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/excel", h.Excel)
	return r
}

// ExportRequest is the body of POST /excel.
type ExportRequest struct {
	Selection dataset.Selection     `json:"selection"`
	Views     []services.ExportView `json:"views" validate:"omitempty,max=10,dive"`
}

// Excel streams an .xlsx workbook of the filtered dataset and its aggregate
// views.
func (h *ExportHandler) Excel(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	data, err := h.service.ExportWorkbook(r.Context(), req.Selection, req.Views)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	filename := fmt.Sprintf("emspulse-export-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
