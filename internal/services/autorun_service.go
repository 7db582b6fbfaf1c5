// internal/services/autorun_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/Corphon/StoryReelMCP/internal/errors"
	"github.com/Corphon/StoryReelMCP/internal/models"
	"github.com/Corphon/StoryReelMCP/internal/storage"
	"github.com/Corphon/StoryReelMCP/internal/utils"
)

// AutoRunStore 后台运行状态的持久化契约
type AutoRunStore interface {
	SaveAutoRunStatus(status *models.AutoRunStatus) error
	LoadAutoRunStatus(workflowID string) (*models.AutoRunStatus, error)
}

// AutoRunService 后台全自动生成：同一套提交管线被无人值守地循环驱动
//
// 这里只做编排，不含任何合并或编译逻辑——那些都在 WorkflowService 里。
// 运行不支持取消；失败是终态，只能作为新工作流重新发起。
type AutoRunService struct {
	Workflows *WorkflowService
	Progress  *ProgressService
	Store     AutoRunStore
}

// NewAutoRunService 创建后台运行服务
func NewAutoRunService(workflows *WorkflowService, progress *ProgressService, store AutoRunStore) *AutoRunService {
	return &AutoRunService{
		Workflows: workflows,
		Progress:  progress,
		Store:     store,
	}
}

// Start 发起一次后台全自动生成，立即返回工作流ID供客户端轮询
func (s *AutoRunService) Start(ownerID string, premise models.Step1Input) (string, error) {
	if premise.Title == "" && premise.Summary == "" {
		return "", apperrors.NewValidationError("前提至少需要标题或概要", nil)
	}

	workflow, err := s.Workflows.CreateWorkflow(ownerID, premise.Title)
	if err != nil {
		return "", err
	}

	tracker := s.Progress.CreateTracker(workflow.ID)
	s.persistSnapshot(tracker)

	go s.run(workflow.ID, ownerID, premise)
	return workflow.ID, nil
}

// GetStatus 读取后台运行状态，优先取活跃跟踪器，其次落盘的快照
func (s *AutoRunService) GetStatus(ownerID, workflowID string) (*models.AutoRunStatus, error) {
	if _, err := s.Workflows.GetWorkflow(ownerID, workflowID); err != nil {
		return nil, err
	}

	if tracker, exists := s.Progress.GetTracker(workflowID); exists {
		snapshot := tracker.Snapshot()
		return &snapshot, nil
	}

	status, err := s.Store.LoadAutoRunStatus(workflowID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("该工作流没有后台运行记录", err)
		}
		return nil, apperrors.NewProcessingError("读取后台运行状态失败", err)
	}
	return status, nil
}

// run 按步骤顺序驱动提交管线直到完成或失败
func (s *AutoRunService) run(workflowID, ownerID string, premise models.Step1Input) {
	tracker, _ := s.Progress.GetTracker(workflowID)
	if tracker == nil {
		tracker = s.Progress.CreateTracker(workflowID)
	}

	// 后台调用不可取消，超时交给外围服务把控
	ctx := context.Background()

	input, err := json.Marshal(premise)
	if err != nil {
		s.fail(tracker, fmt.Sprintf("序列化前提失败: %v", err))
		return
	}

	for step := models.MinStep; step <= models.MaxStep; step++ {
		label := models.StepLabel(step)
		tracker.UpdateStep(label, (step-1)*100/models.StepCount,
			fmt.Sprintf("正在处理步骤 %d/%d", step, models.StepCount))
		s.persistSnapshot(tracker)

		result, err := s.Workflows.SubmitStep(ctx, ownerID, workflowID, step, input)
		if err != nil {
			s.fail(tracker, fmt.Sprintf("步骤 %d 提交失败: %v", step, err))
			return
		}

		if step == models.MaxStep {
			if result.Script == nil || result.Script.IsEmpty() {
				s.fail(tracker, "编译结果没有可渲染的内容")
				return
			}
			var receipt models.Step7Output
			if err := json.Unmarshal(result.Workflow.Slot(step).Output, &receipt); err != nil {
				s.fail(tracker, fmt.Sprintf("解析交付回执失败: %v", err))
				return
			}
			tracker.Complete(receipt.VideoID)
			s.persistSnapshot(tracker)
			return
		}

		input, err = s.nextInput(step, result.Suggestion)
		if err != nil {
			s.fail(tracker, err.Error())
			return
		}
	}
}

// nextInput 从步骤 step 的生成建议中取出下一步骤的输入
// 无人值守模式必须依赖生成建议推进，缺失即失败
func (s *AutoRunService) nextInput(step int, suggestion json.RawMessage) (json.RawMessage, error) {
	if len(suggestion) == 0 || string(suggestion) == "{}" {
		return nil, fmt.Errorf("步骤 %d 没有生成建议，后台模式无法继续", step)
	}

	switch step {
	case models.StepPremise:
		var out models.Step1Output
		if err := json.Unmarshal(suggestion, &out); err != nil {
			return nil, fmt.Errorf("解析步骤 %d 建议失败: %w", step, err)
		}
		return json.Marshal(models.Step2Input{Acts: out.Acts})

	case models.StepActs:
		var out models.Step2Output
		if err := json.Unmarshal(suggestion, &out); err != nil {
			return nil, fmt.Errorf("解析步骤 %d 建议失败: %w", step, err)
		}
		return json.Marshal(models.Step3Input{Characters: out.Characters, Style: out.Style})

	case models.StepCharacters:
		var out models.Step3Output
		if err := json.Unmarshal(suggestion, &out); err != nil {
			return nil, fmt.Errorf("解析步骤 %d 建议失败: %w", step, err)
		}
		return json.Marshal(models.Step4Input{Scenes: out.Scenes})

	case models.StepScenes:
		var out models.Step4Output
		if err := json.Unmarshal(suggestion, &out); err != nil {
			return nil, fmt.Errorf("解析步骤 %d 建议失败: %w", step, err)
		}
		return json.Marshal(models.Step5Input{Voices: out.Voices})

	case models.StepVoices:
		var out models.Step5Output
		if err := json.Unmarshal(suggestion, &out); err != nil {
			return nil, fmt.Errorf("解析步骤 %d 建议失败: %w", step, err)
		}
		return json.Marshal(models.Step6Input{Audio: out.Audio, Caption: out.Caption})

	case models.StepAudioCaption:
		var out models.Step6Output
		if err := json.Unmarshal(suggestion, &out); err != nil {
			return nil, fmt.Errorf("解析步骤 %d 建议失败: %w", step, err)
		}
		confirm := out.Confirm
		if confirm == nil {
			confirm = &models.Step7Input{}
		}
		confirm.Confirmed = true
		return json.Marshal(confirm)

	default:
		return nil, fmt.Errorf("步骤 %d 之后没有后续输入", step)
	}
}

func (s *AutoRunService) fail(tracker *ProgressTracker, message string) {
	tracker.Fail(message)
	s.persistSnapshot(tracker)
}

// persistSnapshot 把跟踪器快照落盘，供进程重启后的轮询读取
func (s *AutoRunService) persistSnapshot(tracker *ProgressTracker) {
	snapshot := tracker.Snapshot()
	if err := s.Store.SaveAutoRunStatus(&snapshot); err != nil {
		utils.GetLogger().Warn("保存后台运行状态失败", map[string]interface{}{
			"workflow_id": snapshot.WorkflowID,
			"err":         err.Error(),
		})
	}
}
