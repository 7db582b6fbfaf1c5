// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 按工作流ID串行化写操作的锁管理器
// 持久层本身只有 last-writer-wins 语义，进程内的提交至少要按工作流排队
type LockManager struct {
	workflowLocks map[string]*lockInfo
	globalLock    sync.RWMutex
	cleanupTicker *time.Ticker
}

// lockInfo 包装锁和最近使用时间
type lockInfo struct {
	mutex    *sync.RWMutex
	lastUsed time.Time
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	lm := &LockManager{
		workflowLocks: make(map[string]*lockInfo),
	}

	lm.startCleanup()
	return lm
}

// getWorkflowLock 获取工作流锁（线程安全）
func (lm *LockManager) getWorkflowLock(workflowID string) *sync.RWMutex {
	lm.globalLock.RLock()
	if info, exists := lm.workflowLocks[workflowID]; exists {
		lm.globalLock.RUnlock()
		info.lastUsed = time.Now()
		return info.mutex
	}
	lm.globalLock.RUnlock()

	// 升级为写锁
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	// 双重检查（在写锁保护下是安全的）
	if info, exists := lm.workflowLocks[workflowID]; exists {
		info.lastUsed = time.Now()
		return info.mutex
	}

	lock := &sync.RWMutex{}
	lm.workflowLocks[workflowID] = &lockInfo{
		mutex:    lock,
		lastUsed: time.Now(),
	}
	return lock
}

// ExecuteWithWorkflowLock 在工作流写锁保护下执行操作
func (lm *LockManager) ExecuteWithWorkflowLock(workflowID string, fn func() error) error {
	lock := lm.getWorkflowLock(workflowID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// ExecuteWithWorkflowReadLock 在工作流读锁保护下执行操作
func (lm *LockManager) ExecuteWithWorkflowReadLock(workflowID string, fn func() error) error {
	lock := lm.getWorkflowLock(workflowID)
	lock.RLock()
	defer lock.RUnlock()
	return fn()
}

// 定期清理未使用的锁
func (lm *LockManager) startCleanup() {
	lm.cleanupTicker = time.NewTicker(5 * time.Minute)
	go func() {
		for range lm.cleanupTicker.C {
			lm.cleanupUnusedLocks()
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks() {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	const maxLocks = 200
	const lockTimeout = 30 * time.Minute

	// 只有在锁数量过多时才清理
	if len(lm.workflowLocks) <= maxLocks {
		return
	}

	now := time.Now()
	for id, info := range lm.workflowLocks {
		if now.Sub(info.lastUsed) > lockTimeout {
			delete(lm.workflowLocks, id)
		}
	}
}
