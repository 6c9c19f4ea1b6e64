package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/rzbill/taglog/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	logs    *LogsController
}

// NewControllerRegistry initializes all controllers over rt.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		logs:    NewLogsController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given router.
func (r *ControllerRegistry) RegisterAllRoutes(router gin.IRouter) {
	r.general.RegisterRoutes(router)
	r.logs.RegisterRoutes(router)
}
