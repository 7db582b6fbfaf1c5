// internal/models/autorun.go
package models

import (
	"time"
)

// AutoRunState 表示后台全自动生成的状态
type AutoRunState string

const (
	AutoRunPending    AutoRunState = "pending"
	AutoRunProcessing AutoRunState = "processing"
	AutoRunCompleted  AutoRunState = "completed"
	AutoRunFailed     AutoRunState = "failed"
)

// AutoRunStatus 是客户端轮询的后台运行状态记录
// processing 状态额外携带当前步骤标签与 0-100 的进度值
// failed 为终态，不支持取消或续跑，只能重新发起新的工作流
type AutoRunStatus struct {
	WorkflowID  string       `json:"workflow_id"`
	Status      AutoRunState `json:"status"`
	CurrentStep string       `json:"current_step,omitempty"`
	Progress    int          `json:"progress"` // 0-100
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	VideoID     string       `json:"video_id,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
