// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mealdrop/internal/http/handlers"
	"mealdrop/internal/http/middleware"
	"mealdrop/internal/logx"
	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/modules/dispatch"
	"mealdrop/internal/modules/order"
)

func NewRouter(
	orderService *order.Service,
	dispatchService *dispatch.Service,
	directory *accounts.Store,
	log logx.Logger,
) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	orderHandler := handlers.NewOrderHandler(orderService, dispatchService)
	r.POST("/api/orders", orderHandler.Create)
	r.POST("/api/orders/:id/pay", orderHandler.Pay)
	r.GET("/api/orders/:id", orderHandler.Track)
	r.POST("/api/orders/:id/cancel", orderHandler.Cancel)

	courierHandler := handlers.NewCourierHandler(dispatchService, directory, log)
	r.GET("/ws/couriers/:id", courierHandler.Serve)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
