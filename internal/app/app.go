// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/Corphon/StoryReelMCP/internal/config"
	"github.com/Corphon/StoryReelMCP/internal/di"
	"github.com/Corphon/StoryReelMCP/internal/generation"
	"github.com/Corphon/StoryReelMCP/internal/services"
	"github.com/Corphon/StoryReelMCP/internal/storage"
	"github.com/Corphon/StoryReelMCP/internal/utils"

	// 注册内容生成提供者
	_ "github.com/Corphon/StoryReelMCP/internal/generation/providers/openai"
	_ "github.com/Corphon/StoryReelMCP/internal/generation/providers/static"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices(cfg *config.Config) error {
	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "server.log")); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	if cfg.DebugMode {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}

	// 存储层
	store, err := storage.NewDocumentStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文档存储失败: %w", err)
	}
	repo := storage.NewRepository(store)

	// 内容生成提供者，创建失败时退回静态提供者
	adapter, err := generation.Create(cfg.Provider, generation.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		utils.GetLogger().Warn("创建内容生成提供者失败，退回静态提供者", map[string]interface{}{
			"provider": cfg.Provider,
			"err":      err.Error(),
		})
		adapter, err = generation.Create("static", generation.Config{})
		if err != nil {
			return fmt.Errorf("创建静态提供者失败: %w", err)
		}
	}

	// 核心服务
	merger := services.NewStepMerger()
	resolver := services.NewSpeakerResolver(cfg.FallbackVoiceID)
	compiler := services.NewScriptCompiler(resolver)
	workflowService := services.NewWorkflowService(repo, merger, compiler, adapter)
	progressService := services.NewProgressService()
	autoRunService := services.NewAutoRunService(workflowService, progressService, repo)

	// 注册到容器
	container := di.GetContainer()
	container.Register("store", store)
	container.Register("repository", repo)
	container.Register("generation", adapter)
	container.Register("workflow", workflowService)
	container.Register("progress", progressService)
	container.Register("autorun", autoRunService)

	utils.GetLogger().Info("服务初始化完成", map[string]interface{}{
		"provider": adapter.Name(),
		"services": len(container.GetNames()),
	})
	return nil
}
