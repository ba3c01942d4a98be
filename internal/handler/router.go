package handler

import (
	"treasurebuy/internal/config"
	"treasurebuy/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())
	r.Use(metrics.Middleware())

	h := NewHandler(db, rdb, cfg, logger)

	api := r.Group("/api/v1")
	{
		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.POST("/credit", h.Credit)
			wallet.POST("/debit", h.Debit)
			wallet.GET("/transactions", h.ListTransactions)
		}

		api.POST("/checkout", h.Checkout)

		order := api.Group("/order")
		{
			order.GET("/list", h.ListOrders)
			order.GET("/detail", h.GetOrderDetail)
		}

		group := api.Group("/group")
		{
			group.POST("/create", h.CreateGroup)
			group.POST("/join", h.JoinGroup)
			group.POST("/leave", h.LeaveGroup)
			group.GET("/list", h.ListGroups)
			group.GET("/members", h.ListGroupMembers)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
