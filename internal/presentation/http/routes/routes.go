// Package routes assembles the gin engine that serves the Gateway's
// websocket endpoint and its supporting HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/jwhector/yggdrasil/internal/application/container"
	"github.com/jwhector/yggdrasil/internal/presentation/http/handlers"
	"github.com/jwhector/yggdrasil/internal/presentation/http/middleware"
)

// SetupRoutes wires every endpoint against the given container.
func SetupRoutes(c *container.Container) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())

	gateway := handlers.NewGatewayHandlers(c)

	router.GET("/ws", gateway.Connect)
	router.GET("/healthz", gateway.Healthz)
	router.POST("/auth/controller", gateway.ControllerLogin)
	router.GET("/export", gateway.Export)
	router.POST("/import", gateway.Import)
	router.GET("/controller/view", gateway.ControllerView)

	return router
}
