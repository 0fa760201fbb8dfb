package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quollview/spreadscraper/internal/domain"
	"github.com/quollview/spreadscraper/internal/service"
)

// MarketValidator rejects ids outside the allowlist before any backend is
// touched.
type MarketValidator interface {
	ValidateMarketID(id string) error
}

// SpreadReader defines the methods that the spread handler requires from
// the service layer.
type SpreadReader interface {
	LatestView(ctx context.Context, marketID string) (service.SpreadView, error)
}

// SpreadHandler serves the latest-spread endpoint.
type SpreadHandler struct {
	validator MarketValidator
	spreads   SpreadReader
	logger    *slog.Logger
}

// NewSpreadHandler creates a SpreadHandler with the given validator, reader,
// and logger.
func NewSpreadHandler(validator MarketValidator, spreads SpreadReader, logger *slog.Logger) *SpreadHandler {
	return &SpreadHandler{
		validator: validator,
		spreads:   spreads,
		logger:    logger,
	}
}

// GetSpread returns the most recent spread analysis for a market, served
// from cache when it is warm.
// GET /api/v1/markets/{id}/spread
func (h *SpreadHandler) GetSpread(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := h.validator.ValidateMarketID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	view, err := h.spreads.LatestView(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no spread recorded for market")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get spread failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get spread")
		return
	}

	writeJSON(w, http.StatusOK, view)
}
