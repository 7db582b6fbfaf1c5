// internal/models/renderspec_test.go
package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 说话人表的键序必须等于写入顺序，Go 原生 map 做不到这一点
func TestSpeakerTableMarshalPreservesOrder(t *testing.T) {
	table := NewSpeakerTable()
	table.Set("Zoe", SpeakerBinding{VoiceID: "voice_z", DisplayName: map[string]string{"en": "Zoe"}})
	table.Set("Aria", SpeakerBinding{VoiceID: "voice_a", DisplayName: map[string]string{"en": "Aria"}})
	table.Set("Ben", SpeakerBinding{VoiceID: "voice_b", DisplayName: map[string]string{"en": "Ben"}})

	data, err := json.Marshal(table)
	require.NoError(t, err)

	// "Zoe" 在 "Aria" 之前：按插入顺序而不是字典序
	str := string(data)
	zoe := strings.Index(str, `"Zoe"`)
	aria := strings.Index(str, `"Aria"`)
	ben := strings.Index(str, `"Ben"`)
	require.NotEqual(t, -1, zoe)
	require.NotEqual(t, -1, aria)
	require.NotEqual(t, -1, ben)
	assert.Less(t, zoe, aria)
	assert.Less(t, aria, ben)
}

func TestSpeakerTableRoundTrip(t *testing.T) {
	table := NewSpeakerTable()
	table.Set("Zoe", SpeakerBinding{VoiceID: "voice_z"})
	table.Set("Aria", SpeakerBinding{VoiceID: "voice_a"})

	data, err := json.Marshal(table)
	require.NoError(t, err)

	var restored SpeakerTable
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, []string{"Zoe", "Aria"}, restored.Labels())

	binding, ok := restored.Get("Zoe")
	require.True(t, ok)
	assert.Equal(t, "voice_z", binding.VoiceID)
}

// 重复写入同一标签只更新绑定，不改变键序
func TestSpeakerTableSetOverwrite(t *testing.T) {
	table := NewSpeakerTable()
	table.Set("Aria", SpeakerBinding{VoiceID: "voice_old"})
	table.Set("Ben", SpeakerBinding{VoiceID: "voice_b"})
	table.Set("Aria", SpeakerBinding{VoiceID: "voice_new"})

	assert.Equal(t, []string{"Aria", "Ben"}, table.Labels())
	assert.Equal(t, 2, table.Len())

	binding, ok := table.Get("Aria")
	require.True(t, ok)
	assert.Equal(t, "voice_new", binding.VoiceID)
}

func TestSpeakerTableEmptyMarshal(t *testing.T) {
	table := NewSpeakerTable()

	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestRenderSpecificationIsEmpty(t *testing.T) {
	spec := &RenderSpecification{Beats: []Beat{}}
	assert.True(t, spec.IsEmpty())

	spec.Beats = append(spec.Beats, Beat{Text: "hi", Speaker: "Aria"})
	assert.False(t, spec.IsEmpty())
}

// 渲染规格的字段名是对外契约，拼写变化会破坏渲染端
func TestRenderSpecificationFieldNames(t *testing.T) {
	speakers := NewSpeakerTable()
	speakers.Set("Aria", SpeakerBinding{VoiceID: "voice_a", DisplayName: map[string]string{"en": "Aria"}})

	volume := 0.4
	spec := &RenderSpecification{
		Beats:        []Beat{{Text: "hi", Speaker: "Aria", ImagePrompt: "p"}},
		SpeechParams: SpeechParams{Speakers: speakers},
		ImageParams:  ImageParams{Style: "anime", Model: "sdxl-anime-v2"},
		AudioParams:  &AudioParams{BGM: BGMTrack{Kind: "url", URL: "https://x/y.mp3"}, BGMVolume: volume},
		CaptionParams: &CaptionParams{
			Lang:   "en",
			Styles: []string{"font-size: 42px"},
		},
	}

	data, err := json.Marshal(spec)
	require.NoError(t, err)
	str := string(data)

	for _, key := range []string{
		`"beats"`, `"speechParams"`, `"speakers"`, `"voiceId"`, `"displayName"`,
		`"imageParams"`, `"audioParams"`, `"bgmVolume"`, `"captionParams"`,
		`"imagePrompt"`, `"speaker"`, `"text"`,
	} {
		assert.Contains(t, str, key)
	}
}
