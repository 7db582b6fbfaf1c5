// internal/generation/providers/static/static.go
package static

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Corphon/StoryReelMCP/internal/generation"
	"github.com/Corphon/StoryReelMCP/internal/models"
)

func init() {
	generation.Register("static", func(cfg generation.Config) (generation.Adapter, error) {
		return New(), nil
	})
}

// Provider 不依赖外部服务的确定性建议生成器
// 在未配置API密钥的环境和测试中代替真实的生成服务，
// 相同输入永远产出相同建议
type Provider struct{}

// New 创建静态提供者
func New() *Provider {
	return &Provider{}
}

// Name 返回提供者名称
func (p *Provider) Name() string {
	return "static"
}

// Generate 按步骤号产出模板化的建议对象
func (p *Provider) Generate(ctx context.Context, step int, input json.RawMessage) (json.RawMessage, error) {
	switch step {
	case models.StepPremise:
		return p.premiseSuggestion(input)
	case models.StepActs:
		return p.actsSuggestion(input)
	case models.StepCharacters:
		return p.charactersSuggestion(input)
	case models.StepScenes:
		return p.scenesSuggestion(input)
	case models.StepVoices:
		return p.voicesSuggestion(input)
	case models.StepAudioCaption:
		return p.audioSuggestion(input)
	default:
		// 最后一步之后没有可建议的内容
		return nil, nil
	}
}

func (p *Provider) premiseSuggestion(input json.RawMessage) (json.RawMessage, error) {
	var premise models.Step1Input
	if err := json.Unmarshal(input, &premise); err != nil {
		return nil, fmt.Errorf("解析前提载荷失败: %w", err)
	}

	title := premise.Title
	if title == "" {
		title = "Untitled Story"
	}

	out := models.Step1Output{
		Snapshot: &premise,
		Acts: []models.ActDraft{
			{ActNumber: 1, Title: "Setup", Synopsis: "Introduce the world of " + title},
			{ActNumber: 2, Title: "Confrontation", Synopsis: "The conflict escalates"},
			{ActNumber: 3, Title: "Resolution", Synopsis: "The story resolves"},
		},
	}
	return json.Marshal(out)
}

func (p *Provider) actsSuggestion(input json.RawMessage) (json.RawMessage, error) {
	var acts models.Step2Input
	if err := json.Unmarshal(input, &acts); err != nil {
		return nil, fmt.Errorf("解析幕结构载荷失败: %w", err)
	}

	out := models.Step2Output{
		Acts:    acts.Acts,
		Summary: acts.Summary,
		Characters: []models.CharacterDraft{
			{ID: "char_narrator", Name: "Narrator", Description: "Off-screen narration", VoiceID: "voice_narration_standard"},
			{ID: "char_protagonist", Name: "Aria", Description: "The protagonist", VoiceID: "voice_female_young"},
		},
		Style: &models.StyleDraft{Preset: "anime"},
	}
	return json.Marshal(out)
}

func (p *Provider) charactersSuggestion(input json.RawMessage) (json.RawMessage, error) {
	var chars models.Step3Input
	if err := json.Unmarshal(input, &chars); err != nil {
		return nil, fmt.Errorf("解析角色载荷失败: %w", err)
	}

	// 每个角色分到一个开场场景，保证台词说话人引用已知角色名
	speaker := "Narrator"
	var characterIDs []string
	for _, c := range chars.Characters {
		characterIDs = append(characterIDs, c.ID)
	}
	if len(chars.Characters) > 0 {
		speaker = chars.Characters[0].Name
	}

	var scenes []models.SceneCard
	for act := 1; act <= 3; act++ {
		scenes = append(scenes, models.SceneCard{
			ID:           fmt.Sprintf("scene_%d_1", act),
			ActNumber:    act,
			SceneNumber:  1,
			Title:        fmt.Sprintf("Act %d opening", act),
			ImagePrompt:  fmt.Sprintf("establishing shot, act %d", act),
			CharacterIDs: characterIDs,
			Dialogue: []models.DialogueLine{
				{Speaker: speaker, Text: fmt.Sprintf("This is where act %d begins.", act)},
			},
		})
	}

	out := models.Step3Output{
		Characters: chars.Characters,
		Style:      chars.Style,
		Scenes:     scenes,
	}
	return json.Marshal(out)
}

func (p *Provider) scenesSuggestion(input json.RawMessage) (json.RawMessage, error) {
	var scenes models.Step4Input
	if err := json.Unmarshal(input, &scenes); err != nil {
		return nil, fmt.Errorf("解析分镜载荷失败: %w", err)
	}

	voices := make(map[string]string)
	for _, scene := range scenes.Scenes {
		for _, id := range scene.CharacterIDs {
			if _, exists := voices[id]; !exists {
				voices[id] = "voice_narration_standard"
			}
		}
	}

	out := models.Step4Output{Scenes: scenes.Scenes, Voices: voices}
	return json.Marshal(out)
}

func (p *Provider) voicesSuggestion(input json.RawMessage) (json.RawMessage, error) {
	var voices models.Step5Input
	if err := json.Unmarshal(input, &voices); err != nil {
		return nil, fmt.Errorf("解析配音载荷失败: %w", err)
	}

	volume := 0.4
	enabled := true
	out := models.Step5Output{
		Voices:  voices.Voices,
		Audio:   &models.AudioDraft{BGMID: "calm_piano", BGMVolume: &volume},
		Caption: &models.CaptionDraft{Enabled: &enabled, Lang: "en"},
	}
	return json.Marshal(out)
}

func (p *Provider) audioSuggestion(input json.RawMessage) (json.RawMessage, error) {
	var audio models.Step6Input
	if err := json.Unmarshal(input, &audio); err != nil {
		return nil, fmt.Errorf("解析音频字幕载荷失败: %w", err)
	}

	title := "Untitled Story"
	out := models.Step6Output{
		Audio:   audio.Audio,
		Caption: audio.Caption,
		Confirm: &models.Step7Input{Title: &title},
	}
	return json.Marshal(out)
}
