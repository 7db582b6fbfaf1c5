// internal/services/speaker_resolver.go
package services

import (
	"strings"

	"github.com/Corphon/StoryReelMCP/internal/models"
)

// DefaultFallbackVoiceID 说话人无法绑定任何角色时使用的兜底配音
const DefaultFallbackVoiceID = "voice_narration_standard"

// ResolvedSpeaker 是一个说话人标签解析出的配音绑定
type ResolvedSpeaker struct {
	VoiceID          string
	DisplayName      string
	FaceReferenceURL string
}

// SpeakerResolver 把台词中的自由文本说话人标签绑定到角色记录
//
// 台词由上游生成步骤以自由文本写成，不保证复用角色记录的准确名字，
// 所以这里用子串匹配容忍敬称、后缀等变体；要求严格相等的解析器
// 会悄悄丢掉本应成立的配音绑定。
type SpeakerResolver struct {
	FallbackVoiceID string
}

// NewSpeakerResolver 创建说话人解析器
// fallbackVoiceID 为空时采用默认兜底配音
func NewSpeakerResolver(fallbackVoiceID string) *SpeakerResolver {
	if fallbackVoiceID == "" {
		fallbackVoiceID = DefaultFallbackVoiceID
	}
	return &SpeakerResolver{FallbackVoiceID: fallbackVoiceID}
}

// Resolve 按优先级解析一个说话人标签，先命中者胜：
//  1. 与角色名完全相等
//  2. 角色名是标签的子串，或标签是角色名的子串
//  3. 无匹配：合成默认绑定（兜底配音，显示名取标签原文，无面部参考）
//
// voiceOverrides 是角色ID到配音ID的覆盖表，命中角色时优先生效
func (r *SpeakerResolver) Resolve(speaker string, characters []models.Character, voiceOverrides map[string]string) ResolvedSpeaker {
	label := strings.TrimSpace(speaker)

	// 第一轮：精确匹配
	for i := range characters {
		if characters[i].Name == label {
			return r.bind(&characters[i], label, voiceOverrides)
		}
	}

	// 第二轮：双向子串匹配（处理敬称与后缀变体）
	for i := range characters {
		name := characters[i].Name
		if name == "" {
			continue
		}
		if strings.Contains(label, name) || strings.Contains(name, label) {
			return r.bind(&characters[i], label, voiceOverrides)
		}
	}

	// 无匹配：合成默认绑定
	return ResolvedSpeaker{
		VoiceID:     r.FallbackVoiceID,
		DisplayName: speaker,
	}
}

// bind 构建命中角色的绑定，配音按 覆盖表 > 角色默认 > 兜底 取值
func (r *SpeakerResolver) bind(character *models.Character, label string, voiceOverrides map[string]string) ResolvedSpeaker {
	voiceID := character.VoiceID
	if override, exists := voiceOverrides[character.ID]; exists && override != "" {
		voiceID = override
	}
	if voiceID == "" {
		voiceID = r.FallbackVoiceID
	}

	displayName := character.Name
	if displayName == "" {
		displayName = label
	}

	return ResolvedSpeaker{
		VoiceID:          voiceID,
		DisplayName:      displayName,
		FaceReferenceURL: character.FaceReferenceURL,
	}
}
