// internal/services/speaker_resolver_test.go
package services

import (
	"testing"

	"github.com/Corphon/StoryReelMCP/internal/models"
	"github.com/stretchr/testify/assert"
)

func testCharacters() []models.Character {
	return []models.Character{
		{ID: "char_aria", Name: "Aria", VoiceID: "voice_aria", FaceReferenceURL: "https://faces.example/aria.png"},
		{ID: "char_ben", Name: "Ben", VoiceID: "voice_ben"},
		{ID: "char_captain", Name: "Captain Rhodes", VoiceID: "voice_rhodes"},
	}
}

// 三档优先级同时成立时，精确匹配必须胜出
func TestResolvePrecedence(t *testing.T) {
	resolver := NewSpeakerResolver("")
	chars := testCharacters()

	tests := []struct {
		name        string
		speaker     string
		wantVoice   string
		wantDisplay string
	}{
		{"exact match", "Aria", "voice_aria", "Aria"},
		{"exact match with spaces", "  Ben  ", "voice_ben", "Ben"},
		{"label contains name", "Captain Rhodes (V.O.)", "voice_rhodes", "Captain Rhodes"},
		{"name contains label", "Rhodes", "voice_rhodes", "Captain Rhodes"},
		{"no match falls back", "Mystery Voice", DefaultFallbackVoiceID, "Mystery Voice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := resolver.Resolve(tt.speaker, chars, nil)
			assert.Equal(t, tt.wantVoice, resolved.VoiceID)
			assert.Equal(t, tt.wantDisplay, resolved.DisplayName)
		})
	}
}

// "Aria" 同时是精确匹配和 "Captain Rhodes" 前若干角色的潜在子串候选，
// 精确命中的角色必须先被返回，子串轮不得参与
func TestResolveExactBeatsSubstring(t *testing.T) {
	resolver := NewSpeakerResolver("")
	chars := []models.Character{
		{ID: "char_long", Name: "Aria the Wanderer", VoiceID: "voice_long"},
		{ID: "char_exact", Name: "Aria", VoiceID: "voice_exact"},
	}

	resolved := resolver.Resolve("Aria", chars, nil)
	assert.Equal(t, "voice_exact", resolved.VoiceID)
	assert.Equal(t, "Aria", resolved.DisplayName)
}

// 配音取值顺序：覆盖表 > 角色默认 > 兜底
func TestResolveVoicePrecedence(t *testing.T) {
	resolver := NewSpeakerResolver("voice_custom_fallback")
	chars := testCharacters()

	t.Run("override wins", func(t *testing.T) {
		overrides := map[string]string{"char_aria": "voice_override"}
		resolved := resolver.Resolve("Aria", chars, overrides)
		assert.Equal(t, "voice_override", resolved.VoiceID)
	})

	t.Run("empty override ignored", func(t *testing.T) {
		overrides := map[string]string{"char_aria": ""}
		resolved := resolver.Resolve("Aria", chars, overrides)
		assert.Equal(t, "voice_aria", resolved.VoiceID)
	})

	t.Run("character default", func(t *testing.T) {
		resolved := resolver.Resolve("Ben", chars, nil)
		assert.Equal(t, "voice_ben", resolved.VoiceID)
	})

	t.Run("character without voice uses fallback", func(t *testing.T) {
		silent := []models.Character{{ID: "char_mute", Name: "Mute"}}
		resolved := resolver.Resolve("Mute", silent, nil)
		assert.Equal(t, "voice_custom_fallback", resolved.VoiceID)
	})
}

// 兜底绑定不携带面部参考，显示名保留标签原文
func TestResolveFallbackBinding(t *testing.T) {
	resolver := NewSpeakerResolver("")

	resolved := resolver.Resolve("旁白", testCharacters(), nil)
	assert.Equal(t, DefaultFallbackVoiceID, resolved.VoiceID)
	assert.Equal(t, "旁白", resolved.DisplayName)
	assert.Empty(t, resolved.FaceReferenceURL)
}

func TestResolveCarriesFaceReference(t *testing.T) {
	resolver := NewSpeakerResolver("")

	resolved := resolver.Resolve("Aria", testCharacters(), nil)
	assert.Equal(t, "https://faces.example/aria.png", resolved.FaceReferenceURL)
}
