// internal/services/workflow_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/Corphon/StoryReelMCP/internal/errors"
	"github.com/Corphon/StoryReelMCP/internal/generation"
	"github.com/Corphon/StoryReelMCP/internal/models"
	"github.com/Corphon/StoryReelMCP/internal/storage"
	"github.com/Corphon/StoryReelMCP/internal/utils"
	"github.com/google/uuid"
)

// WorkflowStore 是工作流服务需要的持久化契约
// 语义上是一个 read/update-by-id 的文档库
type WorkflowStore interface {
	SaveWorkflow(w *models.Workflow) error
	LoadWorkflow(id string) (*models.Workflow, error)
	SaveStoryboard(sb *models.Storyboard) error
	LoadStoryboard(id string) (*models.Storyboard, error)
	SaveScript(workflowID string, spec *models.RenderSpecification) error
	LoadScript(workflowID string) (*models.RenderSpecification, error)
	DeleteScript(workflowID string) error
}

// SubmitResult 是一次步骤提交的返回值
type SubmitResult struct {
	Workflow *models.Workflow `json:"workflow"`
	// Suggestion 为下一步骤预填充的生成建议，生成失败或跳过时为空对象
	Suggestion json.RawMessage `json:"suggestion"`
	// Script 仅在步骤 7 成功编译后携带渲染规格
	Script *models.RenderSpecification `json:"script,omitempty"`
}

// WorkflowService 拥有步骤推进逻辑：
// 哪些步骤可写、哪些步骤被失效、何时进入终态。
//
// 一次提交在返回前完整走完 校验 → 合并 → 失效 → 生成 → 持久化，
// 同一工作流的提交由锁管理器在进程内串行化。
type WorkflowService struct {
	Store       WorkflowStore
	Merger      *StepMerger
	Compiler    *ScriptCompiler
	Adapter     generation.Adapter
	lockManager *LockManager
}

// NewWorkflowService 创建工作流服务
func NewWorkflowService(store WorkflowStore, merger *StepMerger, compiler *ScriptCompiler, adapter generation.Adapter) *WorkflowService {
	return &WorkflowService{
		Store:       store,
		Merger:      merger,
		Compiler:    compiler,
		Adapter:     adapter,
		lockManager: NewLockManager(),
	}
}

// CreateWorkflow 创建新的工作流及其配套故事板
func (s *WorkflowService) CreateWorkflow(ownerID, title string) (*models.Workflow, error) {
	if ownerID == "" {
		return nil, apperrors.NewValidationError("缺少所有者标识", nil)
	}

	now := time.Now()
	workflow := &models.Workflow{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		CurrentStep: models.MinStep,
		Status:      models.WorkflowStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	storyboard := &models.Storyboard{
		ID:        workflow.ID,
		UpdatedAt: now,
	}

	if err := s.Store.SaveWorkflow(workflow); err != nil {
		return nil, apperrors.NewProcessingError("保存工作流失败", err)
	}
	if err := s.Store.SaveStoryboard(storyboard); err != nil {
		return nil, apperrors.NewProcessingError("保存故事板失败", err)
	}
	return workflow, nil
}

// GetWorkflow 按所有者与ID解析工作流
func (s *WorkflowService) GetWorkflow(ownerID, workflowID string) (*models.Workflow, error) {
	workflow, err := s.Store.LoadWorkflow(workflowID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("工作流不存在", err)
		}
		return nil, apperrors.NewProcessingError("读取工作流失败", err)
	}
	if workflow.OwnerID != ownerID {
		// 他人的工作流按不存在处理，不泄露存在性
		return nil, apperrors.NewNotFoundError("工作流不存在", nil)
	}
	return workflow, nil
}

// GetStep 读取步骤视图
// CanEdit 为真当且仅当工作流处于 active 且 current_step >= step
func (s *WorkflowService) GetStep(ownerID, workflowID string, step int) (*models.StepView, error) {
	if !models.IsValidStep(step) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("非法的步骤号: %d", step), nil)
	}

	workflow, err := s.GetWorkflow(ownerID, workflowID)
	if err != nil {
		return nil, err
	}

	slot := workflow.Slot(step)
	return &models.StepView{
		Input:   slot.Input,
		Output:  slot.Output,
		CanEdit: workflow.Status == models.WorkflowStatusActive && workflow.CurrentStep >= step,
	}, nil
}

// GetScript 读取已编译的渲染规格
func (s *WorkflowService) GetScript(ownerID, workflowID string) (*models.RenderSpecification, error) {
	if _, err := s.GetWorkflow(ownerID, workflowID); err != nil {
		return nil, err
	}

	spec, err := s.Store.LoadScript(workflowID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("渲染规格尚未编译", err)
		}
		return nil, apperrors.NewProcessingError("读取渲染规格失败", err)
	}
	return spec, nil
}

// GetStoryboard 读取故事板
func (s *WorkflowService) GetStoryboard(ownerID, workflowID string) (*models.Storyboard, error) {
	if _, err := s.GetWorkflow(ownerID, workflowID); err != nil {
		return nil, err
	}

	storyboard, err := s.Store.LoadStoryboard(workflowID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("故事板不存在", err)
		}
		return nil, apperrors.NewProcessingError("读取故事板失败", err)
	}
	return storyboard, nil
}

// SubmitStep 处理一次步骤提交
//
// 规则：
//   - 前进解锁: 成功提交后 current_step = max(current_step, step)
//   - 下游失效: step <= 3 时清空 step+1..7 的全部槽位并丢弃已编译脚本。
//     步骤 4-7 建立在幕/角色/画风之上，上游事实变了还留着下游旧数据，
//     最终脚本就会和编辑后的故事脱节
//   - 终态: 步骤 7 编译且交付成功后 status = completed，之后拒绝一切写入
//
// 内容生成失败不会阻塞保存：步骤照常落盘，下一步骤没有预填充而已
func (s *WorkflowService) SubmitStep(ctx context.Context, ownerID, workflowID string, step int, rawInput json.RawMessage) (*SubmitResult, error) {
	if !models.IsValidStep(step) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("非法的步骤号: %d", step), nil)
	}
	if len(rawInput) == 0 {
		return nil, apperrors.NewValidationError("缺少步骤载荷", nil)
	}

	var result *SubmitResult
	err := s.lockManager.ExecuteWithWorkflowLock(workflowID, func() error {
		var err error
		result, err = s.submitStepLocked(ctx, ownerID, workflowID, step, rawInput)
		return err
	})
	return result, err
}

func (s *WorkflowService) submitStepLocked(ctx context.Context, ownerID, workflowID string, step int, rawInput json.RawMessage) (*SubmitResult, error) {
	workflow, err := s.GetWorkflow(ownerID, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow.Status != models.WorkflowStatusActive {
		return nil, apperrors.NewNotActiveError("工作流已完成，不可再编辑", nil)
	}

	storyboard, err := s.Store.LoadStoryboard(workflowID)
	if err != nil {
		if !storage.IsNotFound(err) {
			return nil, apperrors.NewProcessingError("读取故事板失败", err)
		}
		storyboard = &models.Storyboard{ID: workflowID}
	}

	// 合并：结合本步骤先前生成的输出计算持久化输入
	slot := workflow.Slot(step)
	merged, err := s.Merger.Merge(step, rawInput, slot.Output)
	if err != nil {
		return nil, err
	}
	slot.Input = merged

	// 下游失效：前三步定义前提/结构/角色，编辑它们使后续步骤全部作废
	if step <= models.StepCharacters {
		s.invalidateDownstream(workflow, storyboard, step)
	}

	// 把合并后的输入折叠进故事板
	if err := s.applyStepToStoryboard(storyboard, step, merged); err != nil {
		return nil, err
	}

	// 前进解锁，current_step 永不后退
	if step > workflow.CurrentStep {
		workflow.CurrentStep = step
	}

	result := &SubmitResult{Suggestion: json.RawMessage("{}")}

	if step == models.StepConfirm {
		// 最终确认：编译渲染规格并交付
		spec := s.Compiler.Compile(storyboard)
		if err := s.finalizeCompile(workflow, slot, spec, merged); err != nil {
			return nil, err
		}
		result.Script = spec
	} else {
		// 为下一步骤生成预填充建议，失败只记日志不阻塞保存
		suggestion := s.generateSuggestion(ctx, step, merged)
		slot.Output = suggestion
		if len(suggestion) > 0 {
			result.Suggestion = suggestion
		}
	}

	workflow.UpdatedAt = time.Now()
	storyboard.UpdatedAt = workflow.UpdatedAt

	if err := s.Store.SaveStoryboard(storyboard); err != nil {
		return nil, apperrors.NewProcessingError("保存故事板失败", err)
	}
	if err := s.Store.SaveWorkflow(workflow); err != nil {
		return nil, apperrors.NewProcessingError("保存工作流失败", err)
	}

	result.Workflow = workflow
	return result, nil
}

// invalidateDownstream 清空 step 之后的所有槽位并丢弃已编译脚本
func (s *WorkflowService) invalidateDownstream(workflow *models.Workflow, storyboard *models.Storyboard, step int) {
	for n := step + 1; n <= models.MaxStep; n++ {
		workflow.Slot(n).Clear()
	}

	// 故事板中由下游步骤折叠进来的字段一并清掉，避免编译到陈旧数据
	if step < models.StepActs {
		storyboard.Acts = nil
	}
	if step < models.StepCharacters {
		storyboard.Characters = nil
		storyboard.Style = models.StyleSettings{}
	}
	storyboard.Scenes = nil
	storyboard.Audio = models.AudioSettings{}
	storyboard.Caption = models.CaptionSettings{}

	if err := s.Store.DeleteScript(workflow.ID); err != nil {
		utils.GetLogger().Warn("丢弃已编译脚本失败", map[string]interface{}{
			"workflow_id": workflow.ID,
			"err":         err.Error(),
		})
	}
}

// applyStepToStoryboard 把步骤输入折叠进累积的故事板
func (s *WorkflowService) applyStepToStoryboard(storyboard *models.Storyboard, step int, merged json.RawMessage) error {
	switch step {
	case models.StepPremise:
		var input models.Step1Input
		if err := unmarshalInput(merged, &input); err != nil {
			return err
		}
		summary := input.Summary
		if summary == "" {
			summary = input.Title
		}
		storyboard.Summary = summary
		if input.Language != "" && storyboard.Caption.Lang == "" {
			storyboard.Caption.Lang = input.Language
		}

	case models.StepActs:
		var input models.Step2Input
		if err := unmarshalInput(merged, &input); err != nil {
			return err
		}
		acts := make([]models.Act, 0, len(input.Acts))
		for _, draft := range input.Acts {
			acts = append(acts, models.Act{
				ActNumber: draft.ActNumber,
				Title:     draft.Title,
				Synopsis:  draft.Synopsis,
			})
		}
		storyboard.Acts = acts
		if input.Summary != nil {
			storyboard.Summary = *input.Summary
		}

	case models.StepCharacters:
		var input models.Step3Input
		if err := unmarshalInput(merged, &input); err != nil {
			return err
		}
		characters := make([]models.Character, 0, len(input.Characters))
		for _, draft := range input.Characters {
			id := draft.ID
			if id == "" {
				id = uuid.NewString()
			}
			characters = append(characters, models.Character{
				ID:               id,
				Name:             draft.Name,
				Description:      draft.Description,
				VoiceID:          draft.VoiceID,
				FaceReferenceURL: draft.FaceReferenceURL,
			})
		}
		storyboard.Characters = characters
		if input.Style != nil {
			storyboard.Style = models.StyleSettings{
				Preset:       input.Style.Preset,
				CustomPrompt: input.Style.CustomPrompt,
			}
		}

	case models.StepScenes:
		var input models.Step4Input
		if err := unmarshalInput(merged, &input); err != nil {
			return err
		}
		storyboard.Scenes = input.Scenes
		s.rebuildActSceneIDs(storyboard)

	case models.StepVoices:
		var input models.Step5Input
		if err := unmarshalInput(merged, &input); err != nil {
			return err
		}
		storyboard.Audio.VoiceOverrides = input.Voices

	case models.StepAudioCaption:
		var input models.Step6Input
		if err := unmarshalInput(merged, &input); err != nil {
			return err
		}
		if input.Audio != nil {
			storyboard.Audio.BGMID = input.Audio.BGMID
			storyboard.Audio.BGMURL = input.Audio.BGMURL
			storyboard.Audio.BGMVolume = input.Audio.BGMVolume
		}
		if input.Caption != nil {
			if input.Caption.Enabled != nil {
				storyboard.Caption.Enabled = *input.Caption.Enabled
			}
			if input.Caption.Lang != "" {
				storyboard.Caption.Lang = input.Caption.Lang
			}
			if input.Caption.Styles != nil {
				storyboard.Caption.Styles = input.Caption.Styles
			}
		}

	case models.StepConfirm:
		// 确认步骤不再向故事板写入新事实
	}
	return nil
}

// rebuildActSceneIDs 按场景号重建每幕的有序场景ID列表
func (s *WorkflowService) rebuildActSceneIDs(storyboard *models.Storyboard) {
	byAct := make(map[int][]*models.SceneCard)
	for i := range storyboard.Scenes {
		scene := &storyboard.Scenes[i]
		byAct[scene.ActNumber] = append(byAct[scene.ActNumber], scene)
	}

	for i := range storyboard.Acts {
		act := &storyboard.Acts[i]
		scenes := byAct[act.ActNumber]
		// 场景在输入中的相对顺序保持不变，只按场景号稳定排序
		sort.SliceStable(scenes, func(a, b int) bool {
			return scenes[a].SceneNumber < scenes[b].SceneNumber
		})
		ids := make([]string, 0, len(scenes))
		for _, scene := range scenes {
			ids = append(ids, scene.ID)
		}
		act.SceneIDs = ids
	}
}

// generateSuggestion 调用外部生成服务，所有失败都在这里被吞掉
func (s *WorkflowService) generateSuggestion(ctx context.Context, step int, input json.RawMessage) json.RawMessage {
	if s.Adapter == nil {
		return nil
	}

	suggestion, err := s.Adapter.Generate(ctx, step, input)
	if err != nil {
		genErr := apperrors.NewGenerationError("内容生成调用失败", err)
		utils.GetLogger().Warn(genErr.Message, map[string]interface{}{
			"step": step,
			"err":  err.Error(),
		})
		return nil
	}
	return suggestion
}

// finalizeCompile 持久化编译结果并在有可渲染内容时进入终态
func (s *WorkflowService) finalizeCompile(workflow *models.Workflow, slot *models.StepSlot, spec *models.RenderSpecification, merged json.RawMessage) error {
	var input models.Step7Input
	if err := unmarshalInput(merged, &input); err != nil {
		return err
	}

	output := models.Step7Output{
		Title:       input.Title,
		Description: input.Description,
		BeatCount:   len(spec.Beats),
	}

	if spec.IsEmpty() {
		// "还没有可渲染的内容"是合法结果：保存步骤但不进入终态，
		// 调用方检查 beat_count 后自行决定下一步
		outputJSON, err := json.Marshal(output)
		if err != nil {
			return apperrors.NewProcessingError("序列化确认输出失败", err)
		}
		slot.Output = outputJSON
		return nil
	}

	if err := s.Store.SaveScript(workflow.ID, spec); err != nil {
		return apperrors.NewProcessingError("保存渲染规格失败", err)
	}

	// 交付回执：渲染器以该标识认领视频
	output.VideoID = "video_" + workflow.ID

	outputJSON, err := json.Marshal(output)
	if err != nil {
		return apperrors.NewProcessingError("序列化确认输出失败", err)
	}
	slot.Output = outputJSON
	workflow.Status = models.WorkflowStatusCompleted
	return nil
}
