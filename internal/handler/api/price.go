package api

import (
	"MempoolOracle/internal/domain/models"
	"MempoolOracle/internal/services/pricing"
	xhttp "MempoolOracle/pkg/http"
	applogger "MempoolOracle/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PipelineView is the read side of the running pipeline.
type PipelineView interface {
	Health() models.HealthSnapshot
	Latest() (models.PriceEstimate, bool)
	Histogram() []int
}

type PriceHandler struct {
	view PipelineView
	log  *applogger.Logger
}

// NewPriceHandler creates a PriceHandler over the running pipeline.
func NewPriceHandler(view PipelineView, log *applogger.Logger) *PriceHandler {
	if log == nil {
		log = applogger.Nop()
	}
	return &PriceHandler{view: view, log: log.Component("api")}
}

// RegisterRoutes mounts /health and the /api routes.
func (h *PriceHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/price", h.Price)
	g.GET("/histogram", h.Histogram)
}

// Health answers 503 while the feed is down, with the snapshot either way.
func (h *PriceHandler) Health(c echo.Context) error {
	snap := h.view.Health()
	if !snap.FeedConnected {
		return xhttp.ServiceUnavailableResponse(c, snap)
	}
	return xhttp.SuccessResponse(c, snap)
}

// Price returns the latest accepted estimate, or 404 before the first one.
func (h *PriceHandler) Price(c echo.Context) error {
	est, ok := h.view.Latest()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no estimate yet"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.SuccessResponse(c, models.NewPriceUpdate(est))
}

// Histogram returns the non-empty bins overlapping [min_btc, max_btc].
func (h *PriceHandler) Histogram(c echo.Context) error {
	req := &models.HistogramRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	counts := h.view.Histogram()
	if len(counts) != pricing.NumBins {
		h.log.Error("histogram snapshot has wrong size", applogger.Int("bins", len(counts)))
		return xhttp.AppErrorResponse(c,
			xhttp.InternalErrorf("histogram unavailable").WithParam("bins", len(counts)))
	}

	res := models.HistogramResponse{Bins: []models.HistogramBin{}}
	for i, n := range counts {
		res.Total += n
		if n == 0 {
			continue
		}
		lower, upper := pricing.BinLowerEdge(i), pricing.BinLowerEdge(i+1)
		if upper <= req.MinBTC || lower > req.MaxBTC {
			continue
		}
		res.Bins = append(res.Bins, models.HistogramBin{Index: i, Lower: lower, Upper: upper, Count: n})
	}
	return xhttp.SuccessResponse(c, res)
}
