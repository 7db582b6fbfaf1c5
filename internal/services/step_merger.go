// internal/services/step_merger.go
package services

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/Corphon/StoryReelMCP/internal/errors"
	"github.com/Corphon/StoryReelMCP/internal/models"
)

// StepMerger 计算步骤输入槽位应当存储的值：
// 把调用方刚提交的输入与该步骤先前生成的输出中可挽救的字段合并。
// 用户回头重新编辑一个已生成内容的步骤时，这一步保证不丢掉有价值的数据。
//
// 每个步骤一个显式的合并函数，按各自的载荷形状逐字段处理。
// 这里刻意不用通用深合并：scenes 这类数组必须按ID合并而不是整体替换。
// 所有合并函数都是纯函数，没有任何副作用。
type StepMerger struct {
	table map[int]mergeFunc
}

type mergeFunc func(newInput, priorOutput json.RawMessage) (json.RawMessage, error)

// NewStepMerger 创建步骤合并器
func NewStepMerger() *StepMerger {
	m := &StepMerger{}
	m.table = map[int]mergeFunc{
		models.StepPremise:      m.mergePremise,
		models.StepActs:         m.mergeActs,
		models.StepCharacters:   m.mergeCharacters,
		models.StepScenes:       m.mergeScenes,
		models.StepVoices:       m.mergeVoices,
		models.StepAudioCaption: m.mergeAudioCaption,
		models.StepConfirm:      m.mergeConfirm,
	}
	return m
}

// Merge 计算步骤 step 的持久化输入值
// 没有先前输出时新输入原样通过
func (m *StepMerger) Merge(step int, newInput, priorOutput json.RawMessage) (json.RawMessage, error) {
	fn, ok := m.table[step]
	if !ok {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("非法的步骤号: %d", step), nil)
	}
	if len(priorOutput) == 0 {
		return newInput, nil
	}
	return fn(newInput, priorOutput)
}

// ----------------------------------------
// 步骤 1：前提
// 先前输出若携带完整的画面快照，则快照整体取代新输入。
// 步骤 1 的存储形状特殊：input 本身就是规范的画面状态。
// ----------------------------------------
func (m *StepMerger) mergePremise(newInput, priorOutput json.RawMessage) (json.RawMessage, error) {
	var prior models.Step1Output
	if err := unmarshalPrior(priorOutput, &prior); err != nil {
		return nil, err
	}

	if prior.Snapshot != nil {
		return json.Marshal(prior.Snapshot)
	}
	return newInput, nil
}

// ----------------------------------------
// 步骤 2：幕结构（浅合并，新输入逐字段胜出）
// ----------------------------------------
func (m *StepMerger) mergeActs(newInput, priorOutput json.RawMessage) (json.RawMessage, error) {
	var input models.Step2Input
	if err := unmarshalInput(newInput, &input); err != nil {
		return nil, err
	}
	var prior models.Step2Output
	if err := unmarshalPrior(priorOutput, &prior); err != nil {
		return nil, err
	}

	if input.Acts == nil {
		input.Acts = prior.Acts
	}
	if input.Summary == nil {
		input.Summary = prior.Summary
	}
	return json.Marshal(input)
}

// ----------------------------------------
// 步骤 3：角色与画风（浅合并）
// ----------------------------------------
func (m *StepMerger) mergeCharacters(newInput, priorOutput json.RawMessage) (json.RawMessage, error) {
	var input models.Step3Input
	if err := unmarshalInput(newInput, &input); err != nil {
		return nil, err
	}
	var prior models.Step3Output
	if err := unmarshalPrior(priorOutput, &prior); err != nil {
		return nil, err
	}

	if input.Characters == nil {
		input.Characters = prior.Characters
	}
	if input.Style == nil {
		input.Style = prior.Style
	}
	return json.Marshal(input)
}

// ----------------------------------------
// 步骤 4：分镜（按场景ID合并）
// 机器生成字段（标题、幕号、场景号）始终取基底，
// 用户可编辑字段（画面提示词、台词、自定义图、角色选择）
// 在基底为空时从先前接受的版本挽救。
// ----------------------------------------
func (m *StepMerger) mergeScenes(newInput, priorOutput json.RawMessage) (json.RawMessage, error) {
	var input models.Step4Input
	if err := unmarshalInput(newInput, &input); err != nil {
		return nil, err
	}
	var prior models.Step4Output
	if err := unmarshalPrior(priorOutput, &prior); err != nil {
		return nil, err
	}

	priorByID := make(map[string]*models.SceneCard, len(prior.Scenes))
	for i := range prior.Scenes {
		priorByID[prior.Scenes[i].ID] = &prior.Scenes[i]
	}

	merged := make([]models.SceneCard, len(input.Scenes))
	for i, base := range input.Scenes {
		merged[i] = base
		priorScene, exists := priorByID[base.ID]
		if !exists {
			continue
		}
		if merged[i].ImagePrompt == "" {
			merged[i].ImagePrompt = priorScene.ImagePrompt
		}
		if merged[i].CustomImageURL == "" {
			merged[i].CustomImageURL = priorScene.CustomImageURL
		}
		if merged[i].CharacterIDs == nil {
			merged[i].CharacterIDs = priorScene.CharacterIDs
		}
		if merged[i].Dialogue == nil {
			merged[i].Dialogue = priorScene.Dialogue
		}
	}

	return json.Marshal(models.Step4Input{Scenes: merged})
}

// ----------------------------------------
// 步骤 5：配音（浅合并）
// ----------------------------------------
func (m *StepMerger) mergeVoices(newInput, priorOutput json.RawMessage) (json.RawMessage, error) {
	var input models.Step5Input
	if err := unmarshalInput(newInput, &input); err != nil {
		return nil, err
	}
	var prior models.Step5Output
	if err := unmarshalPrior(priorOutput, &prior); err != nil {
		return nil, err
	}

	if input.Voices == nil {
		input.Voices = prior.Voices
	}
	return json.Marshal(input)
}

// ----------------------------------------
// 步骤 6：音频与字幕（浅合并）
// ----------------------------------------
func (m *StepMerger) mergeAudioCaption(newInput, priorOutput json.RawMessage) (json.RawMessage, error) {
	var input models.Step6Input
	if err := unmarshalInput(newInput, &input); err != nil {
		return nil, err
	}
	var prior models.Step6Output
	if err := unmarshalPrior(priorOutput, &prior); err != nil {
		return nil, err
	}

	if input.Audio == nil {
		input.Audio = prior.Audio
	}
	if input.Caption == nil {
		input.Caption = prior.Caption
	}
	return json.Marshal(input)
}

// ----------------------------------------
// 步骤 7：最终确认（浅合并）
// ----------------------------------------
func (m *StepMerger) mergeConfirm(newInput, priorOutput json.RawMessage) (json.RawMessage, error) {
	var input models.Step7Input
	if err := unmarshalInput(newInput, &input); err != nil {
		return nil, err
	}
	var prior models.Step7Output
	if err := unmarshalPrior(priorOutput, &prior); err != nil {
		return nil, err
	}

	if input.Title == nil {
		input.Title = prior.Title
	}
	if input.Description == nil {
		input.Description = prior.Description
	}
	return json.Marshal(input)
}

// unmarshalInput 解析调用方提交的载荷，失败视为验证错误
func unmarshalInput(data json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewValidationError("步骤载荷不是有效的JSON", err)
	}
	return nil
}

// unmarshalPrior 解析先前存储的输出
// 失败说明上游数据形状不变式被破坏，按内部缺陷处理
func unmarshalPrior(data json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewProcessingError("先前的步骤输出损坏", err)
	}
	return nil
}
