// internal/services/progress_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/Corphon/StoryReelMCP/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTrackerIdempotent(t *testing.T) {
	svc := NewProgressService()

	first := svc.CreateTracker("wf-1")
	second := svc.CreateTracker("wf-1")
	assert.Same(t, first, second)

	tracker, exists := svc.GetTracker("wf-1")
	require.True(t, exists)
	assert.Same(t, first, tracker)

	_, exists = svc.GetTracker("wf-unknown")
	assert.False(t, exists)
}

// 进度只增不减
func TestTrackerProgressMonotonic(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("wf-1")

	tracker.UpdateStep("scenes", 42, "处理中")
	tracker.UpdateStep("premise", 14, "回头的更新")

	snapshot := tracker.Snapshot()
	assert.Equal(t, 42, snapshot.Progress)
	assert.Equal(t, "premise", snapshot.CurrentStep)
	assert.Equal(t, models.AutoRunProcessing, snapshot.Status)
}

// 订阅者立即收到当前状态，后续更新按序到达
func TestTrackerSubscribe(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("wf-1")
	tracker.UpdateStep("premise", 0, "第一步")

	subscriber := tracker.Subscribe()
	defer tracker.Unsubscribe(subscriber)

	initial := <-subscriber
	assert.Equal(t, models.AutoRunProcessing, initial.Status)
	assert.Equal(t, "premise", initial.CurrentStep)

	tracker.UpdateStep("structure", 14, "第二步")
	update := <-subscriber
	assert.Equal(t, "structure", update.CurrentStep)
	assert.Equal(t, 14, update.Progress)
}

func TestTrackerComplete(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("wf-1")

	tracker.Complete("video_wf-1")

	select {
	case <-tracker.Done:
	case <-time.After(time.Second):
		t.Fatal("Complete 未关闭 Done 通道")
	}

	snapshot := tracker.Snapshot()
	assert.Equal(t, models.AutoRunCompleted, snapshot.Status)
	assert.Equal(t, 100, snapshot.Progress)
	assert.Equal(t, "video_wf-1", snapshot.VideoID)
}

func TestTrackerFail(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("wf-1")

	tracker.Fail("步骤 3 提交失败")

	select {
	case <-tracker.Done:
	case <-time.After(time.Second):
		t.Fatal("Fail 未关闭 Done 通道")
	}

	snapshot := tracker.Snapshot()
	assert.Equal(t, models.AutoRunFailed, snapshot.Status)
	assert.Equal(t, "步骤 3 提交失败", snapshot.Error)
}

// 只有已结束且过期的跟踪器会被清理
func TestCleanupFinishedTrackers(t *testing.T) {
	svc := NewProgressService()

	running := svc.CreateTracker("wf-running")
	running.UpdateStep("premise", 0, "")

	finished := svc.CreateTracker("wf-finished")
	finished.Complete("video_wf-finished")

	svc.CleanupFinishedTrackers(0)

	_, exists := svc.GetTracker("wf-running")
	assert.True(t, exists)
	_, exists = svc.GetTracker("wf-finished")
	assert.False(t, exists)
}
