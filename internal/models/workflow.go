// internal/models/workflow.go
package models

import (
	"encoding/json"
	"time"
)

// 工作流步骤常量
// 七个固定的创作步骤，顺序不可变更
const (
	StepPremise      = 1 // 故事前提
	StepActs         = 2 // 幕结构
	StepCharacters   = 3 // 角色与画风
	StepScenes       = 4 // 分镜脚本与画面提示词
	StepVoices       = 5 // 配音分配
	StepAudioCaption = 6 // 音频与字幕设置
	StepConfirm      = 7 // 最终确认

	MinStep   = StepPremise
	MaxStep   = StepConfirm
	StepCount = MaxStep
)

// WorkflowStatus 表示工作流的生命周期状态
type WorkflowStatus string

const (
	// WorkflowStatusActive 表示工作流可编辑
	WorkflowStatusActive WorkflowStatus = "active"
	// WorkflowStatusCompleted 表示工作流已完成且不可再写入
	WorkflowStatusCompleted WorkflowStatus = "completed"
)

// StepSlot 保存单个步骤的输入和输出文档
// Output 仅在 Input 已被接受后才会存在
type StepSlot struct {
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// IsEmpty 检查步骤槽位是否为空
func (s *StepSlot) IsEmpty() bool {
	return len(s.Input) == 0 && len(s.Output) == 0
}

// Clear 清空步骤槽位（下游失效时使用）
func (s *StepSlot) Clear() {
	s.Input = nil
	s.Output = nil
}

// Workflow 表示一次完整的故事创作流程
// CurrentStep 单调不减，仅在上游步骤被重新编辑时由失效规则间接约束
type Workflow struct {
	ID          string              `json:"id"`
	OwnerID     string              `json:"owner_id"`
	Title       string              `json:"title,omitempty"`
	CurrentStep int                 `json:"current_step"` // 1-7
	Status      WorkflowStatus      `json:"status"`
	Steps       [StepCount]StepSlot `json:"steps"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Slot 返回指定步骤号对应的槽位指针
// 调用方必须保证 step 在 1-7 范围内
func (w *Workflow) Slot(step int) *StepSlot {
	return &w.Steps[step-1]
}

// IsValidStep 检查步骤号是否在合法范围内
func IsValidStep(step int) bool {
	return step >= MinStep && step <= MaxStep
}

// StepView 是步骤读取接口返回的视图
type StepView struct {
	Input   json.RawMessage `json:"input,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	CanEdit bool            `json:"can_edit"`
}

// StepLabel 返回步骤的显示名称（用于后台模式的进度标签）
func StepLabel(step int) string {
	switch step {
	case StepPremise:
		return "premise"
	case StepActs:
		return "structure"
	case StepCharacters:
		return "characters"
	case StepScenes:
		return "scenes"
	case StepVoices:
		return "voices"
	case StepAudioCaption:
		return "audio_caption"
	case StepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}
