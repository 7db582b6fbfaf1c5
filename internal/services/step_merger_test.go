// internal/services/step_merger_test.go
package services

import (
	"encoding/json"
	"testing"

	apperrors "github.com/Corphon/StoryReelMCP/internal/errors"
	"github.com/Corphon/StoryReelMCP/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// 没有先前输出时，任何步骤的新输入都应原样通过
func TestMergePassThroughWithoutPriorOutput(t *testing.T) {
	merger := NewStepMerger()

	input := json.RawMessage(`{"title":"星落之夜","summary":"一个关于流星的故事"}`)
	for step := models.MinStep; step <= models.MaxStep; step++ {
		merged, err := merger.Merge(step, input, nil)
		require.NoError(t, err, "step %d", step)
		assert.Equal(t, input, merged, "step %d", step)
	}
}

func TestMergeRejectsInvalidStep(t *testing.T) {
	merger := NewStepMerger()

	for _, step := range []int{0, 8, -1, 100} {
		_, err := merger.Merge(step, json.RawMessage(`{}`), nil)
		require.Error(t, err, "step %d", step)
		assert.True(t, apperrors.IsValidationError(err), "step %d", step)
	}
}

// 步骤 1：先前输出携带完整画面快照时，快照整体取代新输入
func TestMergePremiseSnapshotReplacesInput(t *testing.T) {
	merger := NewStepMerger()

	prior := mustJSON(t, models.Step1Output{
		Snapshot: &models.Step1Input{Title: "旧标题", Summary: "旧概要", Genre: "fantasy"},
	})
	newInput := json.RawMessage(`{"title":"新标题"}`)

	merged, err := merger.Merge(models.StepPremise, newInput, prior)
	require.NoError(t, err)

	var result models.Step1Input
	require.NoError(t, json.Unmarshal(merged, &result))
	assert.Equal(t, "旧标题", result.Title)
	assert.Equal(t, "旧概要", result.Summary)
	assert.Equal(t, "fantasy", result.Genre)
}

// 步骤 1：先前输出没有快照时新输入原样通过
func TestMergePremiseWithoutSnapshot(t *testing.T) {
	merger := NewStepMerger()

	prior := mustJSON(t, models.Step1Output{Acts: []models.ActDraft{{ActNumber: 1}}})
	newInput := json.RawMessage(`{"title":"新标题"}`)

	merged, err := merger.Merge(models.StepPremise, newInput, prior)
	require.NoError(t, err)
	assert.Equal(t, newInput, merged)
}

// 浅合并步骤：新输入逐字段胜出，缺失字段从先前输出挽救
func TestMergeShallowSteps(t *testing.T) {
	merger := NewStepMerger()
	summary := "先前的概要"

	t.Run("step2 new acts win", func(t *testing.T) {
		prior := mustJSON(t, models.Step2Output{
			Acts:    []models.ActDraft{{ActNumber: 1, Title: "旧的第一幕"}},
			Summary: &summary,
		})
		newInput := mustJSON(t, models.Step2Input{
			Acts: []models.ActDraft{{ActNumber: 1, Title: "新的第一幕"}, {ActNumber: 2, Title: "第二幕"}},
		})

		merged, err := merger.Merge(models.StepActs, newInput, prior)
		require.NoError(t, err)

		var result models.Step2Input
		require.NoError(t, json.Unmarshal(merged, &result))
		require.Len(t, result.Acts, 2)
		assert.Equal(t, "新的第一幕", result.Acts[0].Title)
		// 新输入没给 summary，从先前输出挽救
		require.NotNil(t, result.Summary)
		assert.Equal(t, summary, *result.Summary)
	})

	t.Run("step3 salvages style", func(t *testing.T) {
		prior := mustJSON(t, models.Step3Output{
			Characters: []models.CharacterDraft{{ID: "c1", Name: "Aria"}},
			Style:      &models.StyleDraft{Preset: "watercolor"},
		})
		newInput := mustJSON(t, models.Step3Input{
			Characters: []models.CharacterDraft{{ID: "c1", Name: "Aria"}, {ID: "c2", Name: "Ben"}},
		})

		merged, err := merger.Merge(models.StepCharacters, newInput, prior)
		require.NoError(t, err)

		var result models.Step3Input
		require.NoError(t, json.Unmarshal(merged, &result))
		assert.Len(t, result.Characters, 2)
		require.NotNil(t, result.Style)
		assert.Equal(t, "watercolor", result.Style.Preset)
	})

	t.Run("step6 audio wins caption salvaged", func(t *testing.T) {
		enabled := true
		prior := mustJSON(t, models.Step6Output{
			Audio:   &models.AudioDraft{BGMID: "calm_piano"},
			Caption: &models.CaptionDraft{Enabled: &enabled, Lang: "ja"},
		})
		newInput := mustJSON(t, models.Step6Input{
			Audio: &models.AudioDraft{BGMID: "none"},
		})

		merged, err := merger.Merge(models.StepAudioCaption, newInput, prior)
		require.NoError(t, err)

		var result models.Step6Input
		require.NoError(t, json.Unmarshal(merged, &result))
		require.NotNil(t, result.Audio)
		assert.Equal(t, "none", result.Audio.BGMID)
		require.NotNil(t, result.Caption)
		assert.Equal(t, "ja", result.Caption.Lang)
	})
}

// 无操作编辑的幂等性：把上次接受的输入原样重新提交，合并结果不变
func TestMergeIdempotentForNoOpEdits(t *testing.T) {
	merger := NewStepMerger()

	acts := []models.ActDraft{{ActNumber: 1, Title: "第一幕"}}
	accepted := mustJSON(t, models.Step2Input{Acts: acts})
	prior := mustJSON(t, models.Step2Output{Acts: acts})

	merged, err := merger.Merge(models.StepActs, accepted, prior)
	require.NoError(t, err)
	assert.JSONEq(t, string(accepted), string(merged))

	voices := map[string]string{"c1": "voice_a"}
	acceptedVoices := mustJSON(t, models.Step5Input{Voices: voices})
	priorVoices := mustJSON(t, models.Step5Output{Voices: voices})

	mergedVoices, err := merger.Merge(models.StepVoices, acceptedVoices, priorVoices)
	require.NoError(t, err)
	assert.JSONEq(t, string(acceptedVoices), string(mergedVoices))
}

// 步骤 4：按场景ID合并，机器字段取基底，用户字段在基底为空时挽救
func TestMergeScenesByID(t *testing.T) {
	merger := NewStepMerger()

	prior := mustJSON(t, models.Step4Output{
		Scenes: []models.SceneCard{
			{
				ID: "s1", ActNumber: 1, SceneNumber: 1, Title: "旧标题",
				ImagePrompt:    "用户改过的提示词",
				CustomImageURL: "https://img.example/custom.png",
				CharacterIDs:   []string{"c1"},
				Dialogue:       []models.DialogueLine{{Speaker: "Aria", Text: "旧台词"}},
			},
			{
				ID: "s2", ActNumber: 1, SceneNumber: 2, Title: "第二场",
				Dialogue: []models.DialogueLine{{Speaker: "Ben", Text: "第二场台词"}},
			},
		},
	})

	// 基底重新生成：s1 机器字段更新且用户字段为空，s2 带着新台词
	newInput := mustJSON(t, models.Step4Input{
		Scenes: []models.SceneCard{
			{ID: "s1", ActNumber: 1, SceneNumber: 1, Title: "重新生成的标题"},
			{
				ID: "s2", ActNumber: 1, SceneNumber: 2, Title: "第二场",
				Dialogue: []models.DialogueLine{{Speaker: "Ben", Text: "新台词"}},
			},
			{ID: "s3", ActNumber: 2, SceneNumber: 1, Title: "全新场景"},
		},
	})

	merged, err := merger.Merge(models.StepScenes, newInput, prior)
	require.NoError(t, err)

	var result models.Step4Input
	require.NoError(t, json.Unmarshal(merged, &result))
	require.Len(t, result.Scenes, 3)

	// s1: 机器字段来自基底，用户字段从先前版本挽救
	s1 := result.Scenes[0]
	assert.Equal(t, "重新生成的标题", s1.Title)
	assert.Equal(t, 1, s1.ActNumber)
	assert.Equal(t, 1, s1.SceneNumber)
	assert.Equal(t, "用户改过的提示词", s1.ImagePrompt)
	assert.Equal(t, "https://img.example/custom.png", s1.CustomImageURL)
	assert.Equal(t, []string{"c1"}, s1.CharacterIDs)
	require.Len(t, s1.Dialogue, 1)
	assert.Equal(t, "旧台词", s1.Dialogue[0].Text)

	// s2: 基底带了新台词，新输入胜出；其余字段不受 s1 的合并影响
	s2 := result.Scenes[1]
	assert.Equal(t, "第二场", s2.Title)
	require.Len(t, s2.Dialogue, 1)
	assert.Equal(t, "新台词", s2.Dialogue[0].Text)

	// s3: 先前不存在，原样通过
	assert.Equal(t, "全新场景", result.Scenes[2].Title)
	assert.Empty(t, result.Scenes[2].Dialogue)
}

// 编辑某场景的台词不得改动其机器字段，也不得波及其他场景
func TestMergeScenesDialogueEditKeepsMachineFields(t *testing.T) {
	merger := NewStepMerger()

	base := []models.SceneCard{
		{ID: "s1", ActNumber: 1, SceneNumber: 1, Title: "开场", ImagePrompt: "prompt-1",
			Dialogue: []models.DialogueLine{{Speaker: "Aria", Text: "原句"}}},
		{ID: "s2", ActNumber: 1, SceneNumber: 2, Title: "转折", ImagePrompt: "prompt-2",
			Dialogue: []models.DialogueLine{{Speaker: "Ben", Text: "另一句"}}},
	}
	prior := mustJSON(t, models.Step4Output{Scenes: base})

	edited := make([]models.SceneCard, len(base))
	copy(edited, base)
	edited[0].Dialogue = []models.DialogueLine{{Speaker: "Aria", Text: "改过的句子", Emotion: "joy"}}
	newInput := mustJSON(t, models.Step4Input{Scenes: edited})

	merged, err := merger.Merge(models.StepScenes, newInput, prior)
	require.NoError(t, err)

	var result models.Step4Input
	require.NoError(t, json.Unmarshal(merged, &result))
	require.Len(t, result.Scenes, 2)

	assert.Equal(t, "开场", result.Scenes[0].Title)
	assert.Equal(t, 1, result.Scenes[0].ActNumber)
	assert.Equal(t, 1, result.Scenes[0].SceneNumber)
	assert.Equal(t, "改过的句子", result.Scenes[0].Dialogue[0].Text)

	// s2 完全不受影响
	assert.Equal(t, base[1], result.Scenes[1])
}

func TestMergeMalformedInput(t *testing.T) {
	merger := NewStepMerger()
	prior := mustJSON(t, models.Step2Output{})

	_, err := merger.Merge(models.StepActs, json.RawMessage(`{not json`), prior)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}
