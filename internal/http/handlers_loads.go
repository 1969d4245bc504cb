package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// LoadReader serves stored bulk-load records and live status checks.
type LoadReader interface {
	Get(ctx context.Context, loadID string) (*model.BulkLoadJob, error)
	Check(ctx context.Context, loadID string) (*model.LoadStatusReport, error)
}

// LoadHandlers exposes bulk-load status over HTTP.
type LoadHandlers struct {
	Svc    LoadReader
	Logger *slog.Logger
}

// Get returns the stored record without contacting the graph engine.
func (h *LoadHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "loadId", "loadId")
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	job, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Status polls the graph engine and returns the normalized report.
func (h *LoadHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "loadId", "loadId")
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	report, err := h.Svc.Check(r.Context(), id)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
