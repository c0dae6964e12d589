package api

import (
	"net/http"

	callHandler "call-relay/internal/calls/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router      *gin.RouterGroup
	callHandler *callHandler.Handler
}

func New(router *gin.RouterGroup, handler *callHandler.Handler) API {
	return API{
		router:      router,
		callHandler: handler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	a.router.GET("/", a.handleRoot)
	a.router.POST("/webhook/zapier", a.callHandler.SignatureMiddleware(), a.callHandler.HandleCallEvent)
	a.router.GET("/stats", a.callHandler.HandleStats)
	a.router.GET("/calls/:call_id", a.callHandler.HandleGetCall)
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}

func (a *API) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "call-relay",
		"message": "Call webhook relay is running",
	})
}
