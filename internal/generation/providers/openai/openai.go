// internal/generation/providers/openai/openai.go
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Corphon/StoryReelMCP/internal/generation"
	"github.com/Corphon/StoryReelMCP/internal/models"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func init() {
	generation.Register("openai", func(cfg generation.Config) (generation.Adapter, error) {
		return New(cfg)
	})
}

// Provider 基于 openai-go SDK 的内容生成提供者
type Provider struct {
	model string
	opts  []option.RequestOption
}

// New 创建 OpenAI 提供者
func New(cfg generation.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api密钥未提供")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{model: model, opts: opts}, nil
}

// Name 返回提供者名称
func (p *Provider) Name() string {
	return "openai"
}

const systemPrompt = `You are a story-to-video authoring assistant.
You receive the accepted data of one authoring step and respond with the
suggestion object that pre-fills the next step. Respond with a single JSON
object only, no prose, no markdown fences.`

// 每个步骤期望的建议对象形状，作为用户提示词的一部分
var stepInstructions = map[int]string{
	models.StepPremise: `Given the premise below, echo it under "snapshot" and propose a
three act structure under "acts" as [{"act_number","title","synopsis"}].`,
	models.StepActs: `Given the act structure below, echo it under "acts" and propose
"characters" as [{"id","name","description","voice_id"}] plus "style" as
{"preset","custom_prompt"}.`,
	models.StepCharacters: `Given the characters and style below, echo them and propose
"scenes" as [{"id","act_number","scene_number","title","image_prompt",
"character_ids","dialogue":[{"speaker","text","emotion"}]}]. Two or three
scenes per act, dialogue speakers must use the character names.`,
	models.StepScenes: `Given the scenes below, echo them under "scenes" and propose
"voices" as a map of character id to a voice id.`,
	models.StepVoices: `Given the voice table below, echo it under "voices" and propose
"audio" as {"bgm_id","bgm_volume"} and "caption" as {"enabled","lang","styles"}.`,
	models.StepAudioCaption: `Given the audio and caption settings below, echo them and
propose "confirm" as {"title","description"}.`,
}

// Generate 调用聊天补全产出下一步骤的建议对象
func (p *Provider) Generate(ctx context.Context, step int, input json.RawMessage) (json.RawMessage, error) {
	instruction, ok := stepInstructions[step]
	if !ok {
		// 最后一步之后没有可建议的内容
		return nil, nil
	}

	client := openai.NewClient(p.opts...)

	userPrompt := fmt.Sprintf("%s\n\nStep %d data:\n%s", instruction, step, string(input))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai聊天补全失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai返回空choices")
	}

	return extractJSON(resp.Choices[0].Message.Content)
}

// extractJSON 剥离可能出现的markdown围栏并校验JSON有效性
func extractJSON(content string) (json.RawMessage, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("模型响应不是有效的JSON: %.80s", text)
	}
	return json.RawMessage(text), nil
}
