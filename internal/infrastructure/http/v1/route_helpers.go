package v1

import (
	"github.com/gin-gonic/gin"
)

// ItemRouteHandler serves one depot's stock items.
type ItemRouteHandler interface {
	ListDepot(c *gin.Context)
	GetItem(c *gin.Context)
	Preview(c *gin.Context)
	Receive(c *gin.Context)
	MarkDamaged(c *gin.Context)
	WriteOffDamaged(c *gin.Context)
	Expiring(c *gin.Context)
}

// OrderRouteHandler serves holds and allocations of one depot.
type OrderRouteHandler interface {
	Hold(c *gin.Context)
	Fulfil(c *gin.Context)
	StockOut(c *gin.Context)
	Dispatch(c *gin.Context)
	Cancel(c *gin.Context)
	Edit(c *gin.Context)
	RecordsByRef(c *gin.Context)
}

// RegisterItemRoutes registers stock item routes under a /depots/:depot group.
//
// Usage:
//
//	depot := v1.Group("/depots/:depot")
//	RegisterItemRoutes(depot, handlers.NewStockHandler(base, svc))
func RegisterItemRoutes(depot *gin.RouterGroup, handler ItemRouteHandler) {
	depot.GET("/items", handler.ListDepot)
	depot.GET("/expiring", handler.Expiring)

	item := depot.Group("/items/:item")
	item.GET("", handler.GetItem)
	item.GET("/preview", handler.Preview)
	item.POST("/receipts", handler.Receive)
	item.POST("/damaged", handler.MarkDamaged)
	item.POST("/damaged/write-off", handler.WriteOffDamaged)
}

// RegisterOrderRoutes registers hold, allocation and reversal routes under a /depots/:depot group.
func RegisterOrderRoutes(depot *gin.RouterGroup, handler OrderRouteHandler) {
	depot.POST("/holds", handler.Hold)
	depot.POST("/invoices/:ref/fulfil", handler.Fulfil)
	depot.POST("/stock-outs", handler.StockOut)
	depot.POST("/dispatches", handler.Dispatch)

	order := depot.Group("/orders/:ref")
	order.PUT("", handler.Edit)
	order.POST("/cancel", handler.Cancel)
	order.GET("/allocations", handler.RecordsByRef)
}
