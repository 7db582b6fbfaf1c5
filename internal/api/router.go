// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/Corphon/StoryReelMCP/internal/config"
	"github.com/Corphon/StoryReelMCP/internal/di"
	"github.com/Corphon/StoryReelMCP/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
// 只从容器获取服务，不在这里创建新实例
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	container := di.GetContainer()

	workflowService, ok := container.Get("workflow").(*services.WorkflowService)
	if !ok {
		return nil, fmt.Errorf("工作流服务未正确初始化")
	}

	autoRunService, ok := container.Get("autorun").(*services.AutoRunService)
	if !ok {
		return nil, fmt.Errorf("后台运行服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	handler := NewHandler(workflowService, autoRunService, progressService)

	if cfg != nil && !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api")
	{
		workflows := apiGroup.Group("/workflows")
		{
			workflows.POST("", handler.CreateWorkflow)
			workflows.GET("/:id", handler.GetWorkflow)
			workflows.GET("/:id/steps/:step", handler.GetStep)
			workflows.PUT("/:id/steps/:step", handler.SubmitStep)
			workflows.GET("/:id/storyboard", handler.GetStoryboard)
			workflows.GET("/:id/script", handler.GetScript)
		}

		autoruns := apiGroup.Group("/autoruns")
		{
			autoruns.POST("", handler.StartAutoRun)
			autoruns.GET("/:id", handler.GetAutoRunStatus)
		}
	}

	// WebSocket 进度推送
	r.GET("/ws/autoruns/:id", handler.ProgressWebSocket)

	return r, nil
}

// corsMiddleware 跨域中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
