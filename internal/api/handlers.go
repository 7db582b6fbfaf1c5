// internal/api/handlers.go
package api

import (
	"encoding/json"
	"strconv"

	apperrors "github.com/Corphon/StoryReelMCP/internal/errors"
	"github.com/Corphon/StoryReelMCP/internal/models"
	"github.com/Corphon/StoryReelMCP/internal/services"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	WorkflowService *services.WorkflowService // 工作流状态机
	AutoRunService  *services.AutoRunService  // 后台全自动生成
	ProgressService *services.ProgressService // 进度跟踪服务
	Response        *ResponseHelper           // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(workflowService *services.WorkflowService, autoRunService *services.AutoRunService, progressService *services.ProgressService) *Handler {
	return &Handler{
		WorkflowService: workflowService,
		AutoRunService:  autoRunService,
		ProgressService: progressService,
		Response:        NewResponseHelper(),
	}
}

// CreateWorkflowRequest 创建工作流的请求结构
type CreateWorkflowRequest struct {
	Title string `json:"title"`
}

// SubmitStepRequest 步骤提交的请求结构
type SubmitStepRequest struct {
	Data json.RawMessage `json:"data"`
}

// StartAutoRunRequest 发起后台全自动生成的请求结构
type StartAutoRunRequest struct {
	Premise models.Step1Input `json:"premise"`
}

// ownerID 获取调用方身份
// 认证在上游网关完成，这里只消费身份头
func ownerID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "local"
}

// stepNumber 解析路径中的步骤号
// 非数字一律按非法步骤处理，与越界共用同一错误分类
func stepNumber(c *gin.Context) (int, error) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		return 0, apperrors.NewValidationError("步骤号必须是整数", err)
	}
	return step, nil
}

// CreateWorkflow 创建新工作流
// POST /api/workflows
func (h *Handler) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, apperrors.NewValidationError("请求体不是有效的JSON", err))
		return
	}

	workflow, err := h.WorkflowService.CreateWorkflow(ownerID(c), req.Title)
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	h.Response.Created(c, workflow)
}

// GetWorkflow 读取工作流
// GET /api/workflows/:id
func (h *Handler) GetWorkflow(c *gin.Context) {
	workflow, err := h.WorkflowService.GetWorkflow(ownerID(c), c.Param("id"))
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	h.Response.Success(c, workflow)
}

// GetStep 读取步骤视图
// GET /api/workflows/:id/steps/:step
func (h *Handler) GetStep(c *gin.Context) {
	step, err := stepNumber(c)
	if err != nil {
		h.Response.Error(c, err)
		return
	}

	view, err := h.WorkflowService.GetStep(ownerID(c), c.Param("id"), step)
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	h.Response.Success(c, view)
}

// SubmitStep 提交步骤
// PUT /api/workflows/:id/steps/:step
// 成功时返回为下一步骤生成的建议，生成被跳过或失败时为空对象
func (h *Handler) SubmitStep(c *gin.Context) {
	step, err := stepNumber(c)
	if err != nil {
		h.Response.Error(c, err)
		return
	}

	var req SubmitStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, apperrors.NewValidationError("请求体不是有效的JSON", err))
		return
	}

	result, err := h.WorkflowService.SubmitStep(c.Request.Context(), ownerID(c), c.Param("id"), step, req.Data)
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	h.Response.Success(c, result)
}

// GetStoryboard 读取累积的故事板
// GET /api/workflows/:id/storyboard
func (h *Handler) GetStoryboard(c *gin.Context) {
	storyboard, err := h.WorkflowService.GetStoryboard(ownerID(c), c.Param("id"))
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	h.Response.Success(c, storyboard)
}

// GetScript 读取已编译的渲染规格
// GET /api/workflows/:id/script
func (h *Handler) GetScript(c *gin.Context) {
	script, err := h.WorkflowService.GetScript(ownerID(c), c.Param("id"))
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	h.Response.Success(c, script)
}

// StartAutoRun 发起后台全自动生成
// POST /api/autoruns
func (h *Handler) StartAutoRun(c *gin.Context) {
	var req StartAutoRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, apperrors.NewValidationError("请求体不是有效的JSON", err))
		return
	}

	workflowID, err := h.AutoRunService.Start(ownerID(c), req.Premise)
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	h.Response.Accepted(c, gin.H{"workflow_id": workflowID}, "后台生成已发起")
}

// GetAutoRunStatus 轮询后台运行状态
// GET /api/autoruns/:id
func (h *Handler) GetAutoRunStatus(c *gin.Context) {
	status, err := h.AutoRunService.GetStatus(ownerID(c), c.Param("id"))
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	h.Response.Success(c, status)
}
