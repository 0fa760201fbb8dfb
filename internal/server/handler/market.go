package handler

import (
	"log/slog"
	"net/http"
)

// MarketCatalog defines the methods that the market handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketCatalog interface {
	SeriesIDs() []string
}

// MarketHandler serves the market catalog endpoint.
type MarketHandler struct {
	markets MarketCatalog
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given catalog and logger.
func NewMarketHandler(markets MarketCatalog, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with a count.
type listMarketsResponse struct {
	Markets []string `json:"markets"`
	Count   int      `json:"count"`
}

// ListMarkets returns every queryable series id: the allowlisted markets
// crossed with the supported granularities, sorted.
// GET /api/v1/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	ids := h.markets.SeriesIDs()
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: ids,
		Count:   len(ids),
	})
}
