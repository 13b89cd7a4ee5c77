package ws

import (
	"net/http"
	"strconv"
	"sync/atomic"

	svcmetrics "MempoolOracle/internal/service/metrics"
	"MempoolOracle/internal/service/ratelimit"
	xhttp "MempoolOracle/pkg/http"
	applogger "MempoolOracle/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Handler upgrades GET /ws into a hub client.
type Handler struct {
	hub      *Hub
	limiter  *ratelimit.Limiter
	cfg      ClientConfig
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	log      *applogger.Logger
}

// NewHandler builds the upgrade handler. A nil limiter admits every
// connection attempt.
func NewHandler(hub *Hub, limiter *ratelimit.Limiter, cfg ClientConfig, log *applogger.Logger) *Handler {
	if log == nil {
		log = applogger.Nop()
	}
	return &Handler{
		hub:     hub,
		limiter: limiter,
		cfg:     cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.Component("ws"),
	}
}

// RegisterRoutes mounts GET /ws.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

// Connect rate-limits by client IP, upgrades the request and registers the
// connection with the hub.
func (h *Handler) Connect(c echo.Context) error {
	ip := c.RealIP()
	if h.limiter != nil && !h.limiter.Allow(ip) {
		svcmetrics.ConnectRejected.WithLabelValues("rate_limited").Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many connection attempts"))
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		svcmetrics.ConnectRejected.WithLabelValues("upgrade").Inc()
		h.log.Debug("websocket upgrade failed", applogger.String("remote", ip), applogger.Error(err))
		return nil
	}

	id := strconv.FormatUint(h.nextID.Add(1), 10)
	conn := NewConn(id, ws, h.hub, h.cfg)
	if err := h.hub.Register(conn); err != nil {
		svcmetrics.ConnectRejected.WithLabelValues("closed").Inc()
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
		_ = ws.Close()
		return nil
	}
	conn.Start()
	h.log.Info("client connected", applogger.String("client", id), applogger.String("remote", ip))
	return nil
}
