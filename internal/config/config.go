// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *Config
	configMutex   sync.RWMutex
)

// Config 存储应用配置
type Config struct {
	Port            string
	DataDir         string
	LogDir          string
	DebugMode       bool
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	Provider        string // 内容生成提供者: openai / static
	FallbackVoiceID string // 说话人无法绑定角色时的兜底配音
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:            getEnv("PORT", "8080"),
		DataDir:         getEnvPath("DATA_DIR", "data"),
		LogDir:          getEnvPath("LOG_DIR", "logs"),
		DebugMode:       getEnvBool("DEBUG_MODE", true),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		Provider:        getEnv("GENERATION_PROVIDER", "openai"),
		FallbackVoiceID: getEnv("FALLBACK_VOICE_ID", "voice_narration_standard"),
	}

	// 没有API密钥时退回静态提供者，步骤保存不依赖生成成功
	if config.OpenAIAPIKey == "" && config.Provider == "openai" {
		log.Println("警告: 未设置OpenAI API密钥，内容生成建议将不可用")
		config.Provider = "static"
	}

	SetCurrentConfig(config)
	return config, nil
}

// GetCurrentConfig 获取当前配置
func GetCurrentConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return currentConfig
}

// SetCurrentConfig 设置当前配置
func SetCurrentConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = cfg
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Printf("警告: 创建目录 %s 失败: %v", path, err)
		}
	}
	return path
}

// getEnvBool 获取布尔环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
