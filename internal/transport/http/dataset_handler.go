// Package http contains the chi HTTP handlers. Each handler exposes a
// Routes() router mounted by the application.
package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"emspulse/internal/dataset"
	apierrors "emspulse/internal/errors"
	"emspulse/internal/middleware"
	"emspulse/internal/services"
)

// DatasetHandler serves dataset loading and inspection endpoints.
type DatasetHandler struct {
	service      *services.DatasetService
	errorHandler *apierrors.ErrorHandler
	validation   *middleware.ValidationMiddleware
	maxUpload    int64
	logger       *slog.Logger
}

// NewDatasetHandler creates the dataset handler.
func NewDatasetHandler(service *services.DatasetService, errorHandler *apierrors.ErrorHandler, validation *middleware.ValidationMiddleware, maxUpload int64, logger *slog.Logger) *DatasetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetHandler{
		service:      service,
		errorHandler: errorHandler,
		validation:   validation,
		maxUpload:    maxUpload,
		logger:       logger.With(slog.String("handler", "dataset")),
	}
}

// Routes returns the dataset route tree.
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/upload", h.Upload)
	r.Post("/link", h.LoadLink)
	r.Get("/summary", h.Summary)
	r.Get("/columns", h.Columns)
	r.Post("/preview", h.Preview)
	return r
}

// Upload ingests a dataset from a multipart file upload. The form field is
// named "file".
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusRequestEntityTooLarge,
			"PAYLOAD_TOO_LARGE",
			"Upload exceeds the maximum allowed size",
			map[string]any{"max_bytes": h.maxUpload},
		))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusBadRequest, "INVALID_REQUEST", `multipart field "file" is required`))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if int64(len(data)) > h.maxUpload {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusRequestEntityTooLarge,
			"PAYLOAD_TOO_LARGE",
			"Upload exceeds the maximum allowed size",
			map[string]any{"max_bytes": h.maxUpload},
		))
		return
	}

	result, err := h.service.LoadFromUpload(r.Context(), header.Filename, data)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// LoadLinkRequest is the body of POST /link.
type LoadLinkRequest struct {
	Link string `json:"link" validate:"required,drivelink"`
}

// LoadLink ingests a dataset from a Google Drive share link.
func (h *DatasetHandler) LoadLink(w http.ResponseWriter, r *http.Request) {
	var req LoadLinkRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.LoadFromLink(r.Context(), req.Link)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// Summary returns metadata about the loaded dataset.
func (h *DatasetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// Columns returns the multi-select filter controls.
func (h *DatasetHandler) Columns(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.FilterOptions(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"filters": options})
}

// PreviewRequest is the body of POST /preview.
type PreviewRequest struct {
	Selection dataset.Selection `json:"selection"`
	Limit     int               `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// Preview returns a filtered page of raw rows.
func (h *DatasetHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	page, err := h.service.Preview(r.Context(), req.Selection, req.Limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, page)
}
