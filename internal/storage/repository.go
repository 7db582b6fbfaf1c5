// internal/storage/repository.go
package storage

import (
	"github.com/Corphon/StoryReelMCP/internal/models"
)

// Repository 在文档存储之上提供按实体类型的读写方法
// 工作流、故事板、编译脚本、后台状态各占一个集合，键都是工作流ID
type Repository struct {
	store *DocumentStore
}

// NewRepository 创建仓库
func NewRepository(store *DocumentStore) *Repository {
	return &Repository{store: store}
}

// SaveWorkflow 保存工作流文档
func (r *Repository) SaveWorkflow(w *models.Workflow) error {
	return r.store.Save(CollectionWorkflows, w.ID, w)
}

// LoadWorkflow 按ID读取工作流
func (r *Repository) LoadWorkflow(id string) (*models.Workflow, error) {
	var w models.Workflow
	if err := r.store.Load(CollectionWorkflows, id, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// SaveStoryboard 保存故事板文档
func (r *Repository) SaveStoryboard(sb *models.Storyboard) error {
	return r.store.Save(CollectionStoryboards, sb.ID, sb)
}

// LoadStoryboard 按ID读取故事板
func (r *Repository) LoadStoryboard(id string) (*models.Storyboard, error) {
	var sb models.Storyboard
	if err := r.store.Load(CollectionStoryboards, id, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// SaveScript 保存编译出的渲染规格
func (r *Repository) SaveScript(workflowID string, spec *models.RenderSpecification) error {
	return r.store.Save(CollectionScripts, workflowID, spec)
}

// LoadScript 按工作流ID读取渲染规格
func (r *Repository) LoadScript(workflowID string) (*models.RenderSpecification, error) {
	var spec models.RenderSpecification
	if err := r.store.Load(CollectionScripts, workflowID, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// DeleteScript 丢弃已编译的渲染规格（上游编辑触发失效时调用）
func (r *Repository) DeleteScript(workflowID string) error {
	return r.store.Delete(CollectionScripts, workflowID)
}

// SaveAutoRunStatus 保存后台运行状态记录
func (r *Repository) SaveAutoRunStatus(status *models.AutoRunStatus) error {
	return r.store.Save(CollectionAutoRuns, status.WorkflowID, status)
}

// LoadAutoRunStatus 按工作流ID读取后台运行状态
func (r *Repository) LoadAutoRunStatus(workflowID string) (*models.AutoRunStatus, error) {
	var status models.AutoRunStatus
	if err := r.store.Load(CollectionAutoRuns, workflowID, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
