package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/upweb-network/monitor-engine/engine/submission"
	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"
)

const defaultStatsWindow = 24 * time.Hour

type submitRequest struct {
	ProberID        string          `json:"proberId" binding:"required"`
	TargetID        string          `json:"targetId" binding:"required"`
	LocationTag     string          `json:"locationTag" binding:"required"`
	LocationDetails json.RawMessage `json:"locationDetails,omitempty"`
}

// submitProbe implements the Submission Gateway's SubmitProbe endpoint
// (spec §4.3): POST /api/v1/submissions.
func (h *handlers) submitProbe(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, engerrors.Invalid(err.Error()))
		return
	}

	check, err := h.gateway.SubmitProbe(c.Request.Context(), req.ProberID, req.TargetID, req.LocationTag, req.LocationDetails)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, check)
}

// listAvailable implements ListAvailable (spec §4.3): GET
// /api/v1/submissions/available?proberId=...
func (h *handlers) listAvailable(c *gin.Context) {
	proberID := c.Query("proberId")
	if proberID == "" {
		writeError(c, engerrors.Invalid("proberId query parameter is required"))
		return
	}

	targets, err := h.gateway.ListAvailable(c.Request.Context(), proberID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

type manualProbeRequest struct {
	ActorID   string `json:"actorId" binding:"required"`
	ActorRole string `json:"actorRole" binding:"required"`
}

// manualProbe implements ManualProbe (spec §6): POST
// /api/v1/targets/:id/manual-probe. Exposed without its own auth check —
// authenticating actorId/actorRole is an external collaborator's concern
// (spec §1), same as every other inbound operation here.
func (h *handlers) manualProbe(c *gin.Context) {
	targetID := c.Param("id")

	var req manualProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, engerrors.Invalid(err.Error()))
		return
	}

	check, err := h.gateway.ManualProbe(c.Request.Context(), targetID, req.ActorID, submission.ActorRole(req.ActorRole))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, check)
}

// targetStats implements the Stats View query (spec §4.7): GET
// /api/v1/targets/:id/stats?windowHours=24.
func (h *handlers) targetStats(c *gin.Context) {
	targetID := c.Param("id")
	window := defaultStatsWindow
	if raw := c.Query("windowHours"); raw != "" {
		if hours, err := time.ParseDuration(raw + "h"); err == nil && hours > 0 {
			window = hours
		}
	}

	stats, err := h.stats.GetTargetStats(c.Request.Context(), targetID, window)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
