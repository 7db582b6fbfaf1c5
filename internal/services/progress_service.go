// internal/services/progress_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/StoryReelMCP/internal/models"
)

// ProgressUpdate 表示一次后台运行的状态更新
type ProgressUpdate struct {
	Status      models.AutoRunState `json:"status"`
	CurrentStep string              `json:"current_step,omitempty"`
	Progress    int                 `json:"progress"` // 0-100
	Message     string              `json:"message,omitempty"`
	Error       string              `json:"error,omitempty"`
	VideoID     string              `json:"video_id,omitempty"`
}

// ProgressTracker 跟踪一次后台全自动生成的进度
type ProgressTracker struct {
	WorkflowID  string
	Status      models.AutoRunState
	CurrentStep string
	Progress    int
	Message     string
	Error       string
	VideoID     string
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{}
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// CreateTracker 创建新的进度跟踪器，已存在时返回现有实例
func (s *ProgressService) CreateTracker(workflowID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[workflowID]; exists {
		return tracker
	}

	tracker := &ProgressTracker{
		WorkflowID:  workflowID,
		Status:      models.AutoRunPending,
		Progress:    0,
		Message:     "等待开始",
		StartTime:   time.Now(),
		UpdateTime:  time.Now(),
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}

	s.trackers[workflowID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(workflowID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[workflowID]
	return tracker, exists
}

// CleanupFinishedTrackers 清理已结束且过期的跟踪器
func (s *ProgressService) CleanupFinishedTrackers(maxAge time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		finished := tracker.Status == models.AutoRunCompleted || tracker.Status == models.AutoRunFailed
		old := now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if finished && old {
			delete(s.trackers, id)
		}
	}
}

// UpdateStep 更新当前步骤与进度
// 进度只增不减，processing 状态携带步骤标签
func (t *ProgressTracker) UpdateStep(stepLabel string, progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.Status = models.AutoRunProcessing
	t.CurrentStep = stepLabel
	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()

	t.notifyLocked()
}

// Complete 标记运行完成并记录视频标识
func (t *ProgressTracker) Complete(videoID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.Status = models.AutoRunCompleted
	t.Progress = 100
	t.CurrentStep = ""
	t.Message = "生成完成"
	t.VideoID = videoID
	t.UpdateTime = time.Now()

	t.notifyLocked()
	close(t.Done)
}

// Fail 标记运行失败（终态，不支持续跑）
func (t *ProgressTracker) Fail(errorMsg string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.Status = models.AutoRunFailed
	t.Error = errorMsg
	t.Message = "生成失败"
	t.UpdateTime = time.Now()

	t.notifyLocked()
	close(t.Done)
}

// Snapshot 返回当前状态的持久化视图
func (t *ProgressTracker) Snapshot() models.AutoRunStatus {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return models.AutoRunStatus{
		WorkflowID:  t.WorkflowID,
		Status:      t.Status,
		CurrentStep: t.CurrentStep,
		Progress:    t.Progress,
		Message:     t.Message,
		Error:       t.Error,
		VideoID:     t.VideoID,
		UpdatedAt:   t.UpdateTime,
	}
}

// Subscribe 订阅进度更新，立即收到当前状态
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	// 缓冲区设为10以避免阻塞发布方
	subscriber := make(chan ProgressUpdate, 10)
	t.Subscribers[subscriber] = true

	subscriber <- t.updateLocked()
	return subscriber
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.Subscribers[subscriber]; exists {
		delete(t.Subscribers, subscriber)
		close(subscriber)
	}
}

// notifyLocked 通知所有订阅者，调用方必须持有t.mutex
func (t *ProgressTracker) notifyLocked() {
	update := t.updateLocked()
	for subscriber := range t.Subscribers {
		// 非阻塞发送，如果通道已满则跳过
		select {
		case subscriber <- update:
		default:
		}
	}
}

func (t *ProgressTracker) updateLocked() ProgressUpdate {
	return ProgressUpdate{
		Status:      t.Status,
		CurrentStep: t.CurrentStep,
		Progress:    t.Progress,
		Message:     t.Message,
		Error:       t.Error,
		VideoID:     t.VideoID,
	}
}
