package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/services"
	"github.com/yeremiapane/tenant-realtime/utils"
)

type MetricsController struct {
	Aggregator *services.MetricsAggregator
}

func NewMetricsController(agg *services.MetricsAggregator) *MetricsController {
	return &MetricsController{Aggregator: agg}
}

// GetMetrics returns the latest snapshot of the caller's org, computing one
// when none has been produced yet.
func (mc *MetricsController) GetMetrics(c *gin.Context) {
	scope, ok := orgScope(c)
	if !ok {
		return
	}
	if snap, found := mc.Aggregator.Latest(scope); found {
		utils.RespondJSON(c, http.StatusOK, "Metrics", snap)
		return
	}
	mc.recompute(c, scope)
}

// Recompute computes and publishes a fresh snapshot for the caller's org.
func (mc *MetricsController) Recompute(c *gin.Context) {
	scope, ok := orgScope(c)
	if !ok {
		return
	}
	mc.recompute(c, scope)
}

// RecomputeGlobal computes the platform-wide snapshot.
func (mc *MetricsController) RecomputeGlobal(c *gin.Context) {
	mc.recompute(c, events.Global())
}

// recompute answers 200 for a partially computed snapshot: failed sections
// are reported inside it.
func (mc *MetricsController) recompute(c *gin.Context, scope events.Scope) {
	snap, err := mc.Aggregator.Trigger(c.Request.Context(), scope)
	if err != nil && snap.Scope == "" {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Metrics recomputed", snap)
}
