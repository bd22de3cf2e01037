package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/app"
	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// Handlers contains all REST handlers
type Handlers struct {
	rt     *app.Runtime
	logger *zap.Logger
}

// NewHandlers creates a handler set over a runtime
func NewHandlers(rt *app.Runtime) *Handlers {
	return &Handlers{rt: rt, logger: logging.OrNop(rt.Logger).Named("api")}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	v1 := r.Group("/v1")
	v1.GET("/apps", h.ListApps)
	v1.GET("/apps/:appId", h.GetApp)
	v1.POST("/apps/:appId/load", h.LoadApp)
	v1.GET("/apps/:appId/permissions", h.GetPermissions)
	v1.PUT("/apps/:appId/permissions", h.PutPermissions)
	v1.POST("/gc", h.Collect)
}

// Health reports liveness with the platform breaker state
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"breaker":   h.rt.HTTP.BreakerState().String(),
		"in_flight": h.rt.Pipeline.InFlight(),
		"preview":   h.rt.Platform.Preview(),
	})
}

// ListApps returns the host-wide listing
func (h *Handlers) ListApps(c *gin.Context) {
	infos, err := h.rt.Resolver.List(c.Request.Context(), "")
	if err != nil {
		RespondError(c, err)
		return
	}
	if infos == nil {
		infos = []types.Info{}
	}
	c.JSON(http.StatusOK, gin.H{"apps": infos})
}

// GetApp returns one app's listing and the versions cached on this host
func (h *Handlers) GetApp(c *gin.Context) {
	ctx := c.Request.Context()
	appID := c.Param("appId")

	infos, err := h.rt.Resolver.List(ctx, appID)
	if err != nil && !types.IsOffline(err) {
		RespondError(c, err)
		return
	}
	records, rerr := h.rt.Store.Records(ctx, appID)
	if rerr != nil {
		RespondError(c, rerr)
		return
	}
	if err != nil && len(records) == 0 {
		RespondError(c, err)
		return
	}
	if infos == nil {
		infos = []types.Info{}
	}
	if records == nil {
		records = []types.CachedVersionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"listing": infos,
		"records": records,
		"offline": err != nil,
	})
}

// LoadApp makes the current version ready. A pending consent answers 409
// with the loaded result so the container can prompt and retry.
func (h *Handlers) LoadApp(c *gin.Context) {
	appID := c.Param("appId")
	res, err := h.rt.Loader.Load(c.Request.Context(), appID, c.Query("version"))
	if err != nil {
		if errors.Is(err, types.ErrMetaDataFailure) && res != nil {
			c.JSON(http.StatusConflict, gin.H{"error": bodyOf(err), "result": res})
			return
		}
		h.logger.Warn("load failed", logging.AppID(appID), zap.Error(err))
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetPermissions lists the grants and the consent still pending against
// the cached manifest
func (h *Handlers) GetPermissions(c *gin.Context) {
	ctx := c.Request.Context()
	appID := c.Param("appId")
	manifest, ok := h.manifest(c, appID)
	if !ok {
		return
	}

	grants, err := h.rt.Engine.Grants(ctx, appID)
	if err != nil {
		RespondError(c, err)
		return
	}
	pending, err := h.rt.Engine.Pending(ctx, appID, manifest)
	if err != nil {
		RespondError(c, err)
		return
	}
	if grants == nil {
		grants = []types.Grant{}
	}
	if pending == nil {
		pending = []types.PermissionRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants, "pending": pending, "manifest": manifest})
}

// DecisionsRequest is the body of PUT /v1/apps/:appId/permissions
type DecisionsRequest struct {
	Decisions []permission.Decision `json:"decisions" binding:"required"`
}

// PutPermissions records consent decisions
func (h *Handlers) PutPermissions(c *gin.Context) {
	appID := c.Param("appId")
	var req DecisionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, types.Wrap(types.KindUnavailable, err, "decode decisions"))
		return
	}
	manifest, ok := h.manifest(c, appID)
	if !ok {
		return
	}

	grants, err := h.rt.Engine.Record(c.Request.Context(), appID, manifest, req.Decisions)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.logger.Info("consent recorded", logging.AppID(appID), zap.Int("decisions", len(req.Decisions)))
	c.JSON(http.StatusOK, gin.H{"grants": grants})
}

// Collect runs garbage collection
func (h *Handlers) Collect(c *gin.Context) {
	report, err := h.rt.Loader.Collect(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handlers) manifest(c *gin.Context, appID string) (*types.Manifest, bool) {
	if err := types.ValidateAppID(appID); err != nil {
		RespondError(c, err)
		return nil, false
	}
	manifest, err := h.rt.Store.Manifest(c.Request.Context(), appID)
	if err != nil {
		RespondError(c, err)
		return nil, false
	}
	if manifest == nil {
		RespondError(c, types.NewError(types.KindNotFound, appID+" has not been loaded"))
		return nil, false
	}
	return manifest, true
}
