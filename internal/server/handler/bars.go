package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quollview/spreadscraper/internal/domain"
)

// defaultBarLimit is served when the caller does not pass a limit; it is
// also the hard cap.
const defaultBarLimit = 100

// SeriesResolver validates a series id against the allowlist and id
// pattern.
type SeriesResolver interface {
	ResolveSeriesID(id string) (string, domain.Granularity, error)
}

// BarReader defines the methods that the bars handler requires from the
// service layer.
type BarReader interface {
	LatestBars(ctx context.Context, seriesID string, limit int) ([]domain.BarRecord, error)
}

// BarsHandler serves historical bar endpoints.
type BarsHandler struct {
	resolver SeriesResolver
	bars     BarReader
	logger   *slog.Logger
}

// NewBarsHandler creates a BarsHandler with the given resolver, reader, and
// logger.
func NewBarsHandler(resolver SeriesResolver, bars BarReader, logger *slog.Logger) *BarsHandler {
	return &BarsHandler{
		resolver: resolver,
		bars:     bars,
		logger:   logger,
	}
}

// listBarsResponse wraps the bar items the way the public API has always
// shaped them.
type listBarsResponse struct {
	Items []domain.BarRecord `json:"items"`
}

// GetBars returns the newest bars for a series, newest first.
// GET /api/v1/markets/{id}/bars?limit=100
func (h *BarsHandler) GetBars(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	base, gran, err := h.resolver.ResolveSeriesID(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	seriesID := domain.SeriesID(base, gran)

	limit := parseLimit(r, defaultBarLimit, defaultBarLimit)

	items, err := h.bars.LatestBars(r.Context(), seriesID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bars failed",
			slog.String("series_id", seriesID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bars")
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusNotFound, "no bars recorded for market")
		return
	}

	writeJSON(w, http.StatusOK, listBarsResponse{Items: items})
}
