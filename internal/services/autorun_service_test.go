// internal/services/autorun_service_test.go
package services

import (
	"testing"
	"time"

	apperrors "github.com/Corphon/StoryReelMCP/internal/errors"
	"github.com/Corphon/StoryReelMCP/internal/generation"
	"github.com/Corphon/StoryReelMCP/internal/generation/providers/static"
	"github.com/Corphon/StoryReelMCP/internal/models"
	"github.com/Corphon/StoryReelMCP/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAutoRunService(t *testing.T, adapter generation.Adapter) (*AutoRunService, *storage.Repository) {
	t.Helper()
	store, err := storage.NewDocumentStore(t.TempDir())
	require.NoError(t, err)
	repo := storage.NewRepository(store)

	compiler := NewScriptCompiler(NewSpeakerResolver(""))
	workflows := NewWorkflowService(repo, NewStepMerger(), compiler, adapter)
	return NewAutoRunService(workflows, NewProgressService(), repo), repo
}

func waitForDone(t *testing.T, tracker *ProgressTracker) {
	t.Helper()
	select {
	case <-tracker.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("后台运行超时未结束")
	}
}

// 静态提供者驱动的完整后台运行：七步全部走完并交付
func TestAutoRunCompletesWithStaticProvider(t *testing.T) {
	svc, repo := newAutoRunService(t, static.New())

	workflowID, err := svc.Start("user-1", models.Step1Input{
		Title:   "星落之夜",
		Summary: "流星坠落后的小镇故事",
	})
	require.NoError(t, err)
	require.NotEmpty(t, workflowID)

	tracker, exists := svc.Progress.GetTracker(workflowID)
	require.True(t, exists)
	waitForDone(t, tracker)

	status, err := svc.GetStatus("user-1", workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.AutoRunCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, "video_"+workflowID, status.VideoID)
	assert.Empty(t, status.Error)

	// 工作流进入终态且脚本已编译
	workflow, err := svc.Workflows.GetWorkflow("user-1", workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, workflow.Status)

	spec, err := repo.LoadScript(workflowID)
	require.NoError(t, err)
	assert.Len(t, spec.Beats, 3) // 静态提供者每幕一场一句台词

	// 落盘快照与实时状态一致
	persisted, err := repo.LoadAutoRunStatus(workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.AutoRunCompleted, persisted.Status)
}

func TestAutoRunRequiresPremise(t *testing.T) {
	svc, _ := newAutoRunService(t, static.New())

	_, err := svc.Start("user-1", models.Step1Input{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

// 生成建议缺失时后台模式失败：失败是终态，状态可查但不可续跑
func TestAutoRunFailsWithoutSuggestions(t *testing.T) {
	svc, repo := newAutoRunService(t, &stubAdapter{})

	workflowID, err := svc.Start("user-1", models.Step1Input{Title: "无建议的故事"})
	require.NoError(t, err)

	tracker, exists := svc.Progress.GetTracker(workflowID)
	require.True(t, exists)
	waitForDone(t, tracker)

	status, err := svc.GetStatus("user-1", workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.AutoRunFailed, status.Status)
	assert.NotEmpty(t, status.Error)

	// 工作流本身保持 active，已提交的步骤不回滚
	workflow, err := svc.Workflows.GetWorkflow("user-1", workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, workflow.Status)
	assert.NotEmpty(t, workflow.Slot(1).Input)

	persisted, err := repo.LoadAutoRunStatus(workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.AutoRunFailed, persisted.Status)
}

// 跟踪器被清理后状态读取退回落盘快照
func TestGetStatusFallsBackToPersistedSnapshot(t *testing.T) {
	svc, _ := newAutoRunService(t, static.New())

	workflowID, err := svc.Start("user-1", models.Step1Input{Title: "快照测试"})
	require.NoError(t, err)

	tracker, exists := svc.Progress.GetTracker(workflowID)
	require.True(t, exists)
	waitForDone(t, tracker)

	svc.Progress.CleanupFinishedTrackers(0)
	_, exists = svc.Progress.GetTracker(workflowID)
	require.False(t, exists)

	status, err := svc.GetStatus("user-1", workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.AutoRunCompleted, status.Status)
	assert.Equal(t, "video_"+workflowID, status.VideoID)
}

func TestGetStatusOwnerIsolation(t *testing.T) {
	svc, _ := newAutoRunService(t, static.New())

	workflowID, err := svc.Start("user-1", models.Step1Input{Title: "私密运行"})
	require.NoError(t, err)

	_, err = svc.GetStatus("user-2", workflowID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}
