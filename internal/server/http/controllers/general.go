package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rzbill/taglog/internal/kv"
	"github.com/rzbill/taglog/internal/runtime"
)

// GeneralController handles health and namespace listing.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers the general routes.
func (gc *GeneralController) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/healthz", gc.handleHealth)
	r.GET("/v1/namespaces", gc.handleNamespaces)
}

func (gc *GeneralController) handleHealth(c *gin.Context) {
	if err := gc.rt.CheckHealth(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_serving"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (gc *GeneralController) handleNamespaces(c *gin.Context) {
	metas, err := gc.rt.Namespaces()
	if err != nil {
		writeErr(c, kv.Unavailable("list namespaces", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"namespaces": metas})
}
