// internal/generation/interface.go
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的内容生成提供者")

// Adapter 定义外部内容生成服务的窄契约
// 输入是某一步骤已接受的载荷，输出是为下一步骤预填充的结构化建议
// 核心从不依赖生成成功：调用失败时步骤照常保存，下一步骤没有预填充而已
type Adapter interface {
	// 获取提供者名称
	Name() string

	// Generate 根据步骤号与该步骤的输入产出建议对象
	// 返回的 JSON 形状为对应步骤的 Output 载荷
	Generate(ctx context.Context, step int, input json.RawMessage) (json.RawMessage, error)
}

// Config 提供者初始化配置
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Registry 提供者注册表
type Registry struct {
	providers map[string]func(Config) (Adapter, error)
	mutex     sync.RWMutex
}

// 全局注册表实例
var defaultRegistry = &Registry{
	providers: make(map[string]func(Config) (Adapter, error)),
}

// GetRegistry 获取全局注册表
func GetRegistry() *Registry {
	return defaultRegistry
}

// Register 在全局注册表注册提供者工厂
func Register(name string, factory func(Config) (Adapter, error)) {
	defaultRegistry.Register(name, factory)
}

// Create 在全局注册表按名称创建提供者实例
func Create(name string, cfg Config) (Adapter, error) {
	return defaultRegistry.Create(name, cfg)
}

// Register 注册提供者工厂
func (r *Registry) Register(name string, factory func(Config) (Adapter, error)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.providers[name] = factory
}

// Create 按名称创建提供者实例
func (r *Registry) Create(name string, cfg Config) (Adapter, error) {
	r.mutex.RLock()
	factory, exists := r.providers[name]
	r.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return factory(cfg)
}

// ListProviders 列出已注册的提供者名称
func (r *Registry) ListProviders() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
