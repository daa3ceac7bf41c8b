package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
	"Detector/internal/service/metrics"
	"Detector/internal/service/ratelimit"
	"Detector/internal/usecase"
	xhttp "Detector/pkg/http"
	xlogger "Detector/pkg/logger"
)

// HeaderUserID carries the caller identity set by the gateway.
const HeaderUserID = "x-user-id"

// DetectorControl is what the control surface needs from the manager.
type DetectorControl interface {
	SwitchDetector(ctx context.Context, name string, so usecase.SwitchOptions) (*detector.Engine, error)
	GetActiveDetector() (*detector.Engine, bool)
	InstallPlugin(ctx context.Context, userID, guid string) (*models.PluginMeta, error)
	ListInstalledPlugins(ctx context.Context, userID string) []models.PluginSummary
	GetPluginDetails(ctx context.Context, userID, guid string) (*models.PluginMeta, error)
}

// DetectorHandler serves /detector.
type DetectorHandler struct {
	logger  *xlogger.Logger
	manager DetectorControl
	limiter *ratelimit.Limiter

	installRate  float64
	installBurst float64
}

type HandlerOption func(*DetectorHandler)

// WithInstallLimit caps plugin installs per user. A non-positive rate disables it.
func WithInstallLimit(l *ratelimit.Limiter, rate float64, burst int) HandlerOption {
	return func(h *DetectorHandler) {
		h.limiter = l
		h.installRate = rate
		h.installBurst = float64(burst)
		if h.installBurst < 1 {
			h.installBurst = 1
		}
	}
}

func NewDetectorHandler(logger *xlogger.Logger, manager DetectorControl, opts ...HandlerOption) *DetectorHandler {
	metrics.Register()
	h := &DetectorHandler{logger: logger, manager: manager}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *DetectorHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/detector")
	g.GET("/select", h.Select)
	g.GET("/active", h.Active)
	g.POST("/plugins/:guid/install", h.InstallPlugin)
	g.GET("/plugins/installed", h.ListInstalledPlugins)
	g.GET("/plugins/:guid", h.GetPlugin)
}

func observe(endpoint string, start time.Time, failed bool) {
	metrics.ControlLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if failed {
		metrics.ControlErrors.WithLabelValues(endpoint).Inc()
	}
}

func userID(c echo.Context) string {
	return c.Request().Header.Get(HeaderUserID)
}

func (h *DetectorHandler) Select(c echo.Context) error {
	start := time.Now()
	req := &models.SelectDetectorRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		observe("select", start, true)
		return xhttp.BadRequestResponse(c, models.ControlResult{Message: "sysName query param is required"})
	}

	e, err := h.manager.SwitchDetector(c.Request().Context(), req.SysName, usecase.SwitchOptions{Sysname: req.SysName})
	observe("select", start, err != nil)
	if err != nil {
		h.logger.Error("detector switch failed", xlogger.String("sysName", req.SysName), xlogger.Error(err))
		return xhttp.SuccessResponse(c, models.ControlResult{
			Message: fmt.Sprintf("Failed to switch detector: %v", err),
		})
	}
	return xhttp.SuccessResponse(c, models.ControlResult{
		Success: true,
		Message: "Detector switched to " + req.SysName,
		SysName: e.Sysname(),
	})
}

func (h *DetectorHandler) Active(c echo.Context) error {
	e, ok := h.manager.GetActiveDetector()
	if !ok {
		return xhttp.SuccessResponse(c, models.ControlResult{Message: "No active detector"})
	}
	return xhttp.SuccessResponse(c, models.ControlResult{Success: true, SysName: e.Sysname()})
}

func (h *DetectorHandler) InstallPlugin(c echo.Context) error {
	start := time.Now()
	req := &models.PluginRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		observe("install", start, true)
		return xhttp.BadRequestResponse(c, verr)
	}
	uid := userID(c)
	if h.limiter != nil && h.installRate > 0 && !h.limiter.Allow("install:"+uid, h.installBurst, h.installRate) {
		observe("install", start, true)
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many plugin installs").WithParam("userId", uid))
	}

	meta, err := h.manager.InstallPlugin(c.Request().Context(), uid, req.GUID)
	observe("install", start, err != nil)
	if err != nil {
		h.logger.Error("plugin install failed", xlogger.String("guid", req.GUID), xlogger.Error(err))
		return h.installError(c, req.GUID, err)
	}
	title := meta.Title
	if title == "" {
		title = meta.GUID
	}
	return xhttp.SuccessResponse(c, models.ControlResult{Success: true, Message: fmt.Sprintf("Plugin %s installed", title)})
}

func (h *DetectorHandler) installError(c echo.Context, guid string, err error) error {
	switch {
	case errors.Is(err, models.ErrPluginNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("Plugin %s not found", guid).WithError(err))
	case errors.Is(err, models.ErrUnsupportedPluginType):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("Unsupported registryType").WithError(err))
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return xhttp.DataResponse(c, http.StatusBadGateway, models.ControlResult{Message: err.Error()})
	default:
		return xhttp.AppErrorResponse(c, xhttp.InternalError("plugin install failed").WithError(err))
	}
}

func (h *DetectorHandler) ListInstalledPlugins(c echo.Context) error {
	start := time.Now()
	list := h.manager.ListInstalledPlugins(c.Request().Context(), userID(c))
	observe("list_plugins", start, false)
	return xhttp.SuccessResponse(c, list)
}

func (h *DetectorHandler) GetPlugin(c echo.Context) error {
	start := time.Now()
	req := &models.PluginRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		observe("plugin_details", start, true)
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.manager.GetPluginDetails(c.Request().Context(), userID(c), req.GUID)
	observe("plugin_details", start, err != nil)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("Plugin %s not found", req.GUID).WithError(err))
	}
	return xhttp.SuccessResponse(c, p)
}
