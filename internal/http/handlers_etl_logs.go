package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// ETLLogReader reads the ETL audit trail.
type ETLLogReader interface {
	History(ctx context.Context, q model.ETLHistoryQuery) ([]*model.ETLLogRecord, error)
	Latest(ctx context.Context, id string) (*model.ETLLogRecord, error)
}

// ETLLogHandlers exposes the ETL log over HTTP. Ids are object keys, so they
// are matched with a trailing wildcard.
type ETLLogHandlers struct {
	Svc    ETLLogReader
	Logger *slog.Logger
}

type historyResponse struct {
	ID      string                `json:"id"`
	Records []*model.ETLLogRecord `json:"records"`
}

// History lists attempts for one file, newest first.
func (h *ETLLogHandlers) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id", "id")
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	limit, err := parseIntQuery(r, "limit", 0)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	recs, err := h.Svc.History(r.Context(), model.ETLHistoryQuery{ID: id, Limit: limit})
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	if recs == nil {
		recs = []*model.ETLLogRecord{}
	}
	WriteJSON(w, http.StatusOK, historyResponse{ID: id, Records: recs})
}

// Latest returns the authoritative record for one file.
func (h *ETLLogHandlers) Latest(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id", "id")
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	rec, err := h.Svc.Latest(r.Context(), id)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}
