package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "emspulse/internal/errors"
	"emspulse/internal/services"
)

// AuditHandler serves the data-quality audit endpoints.
type AuditHandler struct {
	service      *services.DatasetService
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewAuditHandler creates the audit handler.
func NewAuditHandler(service *services.DatasetService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditHandler{
		service:      service,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "audit")),
	}
}

// Routes returns the audit route tree.
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/missingness", h.Missingness)
	r.Get("/duplicates", h.Duplicates)
	return r
}

// Missingness reports per-column missing fractions, worst first.
func (h *AuditHandler) Missingness(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Missingness(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// Duplicates audits uniqueness of an identifier column. The "key" query
// parameter overrides the configured default.
func (h *AuditHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Duplicates(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}
