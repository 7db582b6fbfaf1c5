// internal/storage/document_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// 文档集合名称
const (
	CollectionWorkflows   = "workflows"
	CollectionStoryboards = "storyboards"
	CollectionScripts     = "scripts"
	CollectionAutoRuns    = "autoruns"
)

// DocumentStore 提供按键读写JSON文档的文件存储
// 语义上等价于一个 read/update-by-id 的文档库
type DocumentStore struct {
	BaseDir string

	// 并发控制
	fileLocks sync.Map // 文件级别锁 path -> *sync.RWMutex

	// 简单缓存
	cache        map[string]*cacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int
}

// cacheEntry 缓存条目
type cacheEntry struct {
	Data      []byte
	Timestamp time.Time
}

// ErrDocumentNotFound 按键读取时文档不存在
type ErrDocumentNotFound struct {
	Collection string
	ID         string
}

func (e *ErrDocumentNotFound) Error() string {
	return fmt.Sprintf("document not found: %s/%s", e.Collection, e.ID)
}

// IsNotFound 检查是否为文档不存在错误
func IsNotFound(err error) bool {
	var notFound *ErrDocumentNotFound
	return errors.As(err, &notFound) || os.IsNotExist(err)
}

// NewDocumentStore 创建文档存储
func NewDocumentStore(baseDir string) (*DocumentStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	ds := &DocumentStore{
		BaseDir:      baseDir,
		cache:        make(map[string]*cacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 200,
	}
	return ds, nil
}

// 获取文件锁
func (ds *DocumentStore) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := ds.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (ds *DocumentStore) docPath(collection, id string) string {
	// ID 来自 uuid，这里只做最基本的路径防御
	safe := strings.ReplaceAll(id, string(filepath.Separator), "_")
	return filepath.Join(ds.BaseDir, collection, safe+".json")
}

// Save 序列化并原子性写入文档
func (ds *DocumentStore) Save(collection, id string, doc interface{}) error {
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	fullPath := ds.docPath(collection, id)

	lock := ds.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("创建集合目录失败: %w", err)
	}

	// 先写临时文件再改名，避免读到半个文档
	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存文档失败: %w", err)
	}

	ds.invalidateCache(fullPath)
	return nil
}

// Load 按键读取并解析文档
func (ds *DocumentStore) Load(collection, id string, out interface{}) error {
	fullPath := ds.docPath(collection, id)

	// 检查缓存
	if data, ok := ds.cachedData(fullPath); ok {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("解析JSON失败: %w", err)
		}
		return nil
	}

	lock := ds.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ErrDocumentNotFound{Collection: collection, ID: id}
		}
		return fmt.Errorf("读取文档失败: %w", err)
	}

	ds.updateCache(fullPath, content)

	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

// Exists 检查文档是否存在
func (ds *DocumentStore) Exists(collection, id string) bool {
	_, err := os.Stat(ds.docPath(collection, id))
	return err == nil
}

// Delete 删除文档，不存在时视为成功（失效清理用）
func (ds *DocumentStore) Delete(collection, id string) error {
	fullPath := ds.docPath(collection, id)

	lock := ds.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除文档失败: %w", err)
	}

	ds.invalidateCache(fullPath)
	return nil
}

// ListIDs 列出集合中的所有文档ID
func (ds *DocumentStore) ListIDs(collection string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(ds.BaseDir, collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取集合目录失败: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// ----------------------------------------
// 缓存管理
// ----------------------------------------

func (ds *DocumentStore) cachedData(path string) ([]byte, bool) {
	ds.cacheMutex.RLock()
	defer ds.cacheMutex.RUnlock()

	entry, exists := ds.cache[path]
	if !exists || time.Since(entry.Timestamp) >= ds.cacheExpiry {
		return nil, false
	}
	return entry.Data, true
}

func (ds *DocumentStore) updateCache(path string, data []byte) {
	ds.cacheMutex.Lock()
	defer ds.cacheMutex.Unlock()

	ds.cache[path] = &cacheEntry{
		Data:      data,
		Timestamp: time.Now(),
	}

	// 简单的缓存大小控制：超限时删除最老的条目
	if len(ds.cache) > ds.maxCacheSize {
		var oldestKey string
		var oldestTime time.Time
		for key, entry := range ds.cache {
			if oldestKey == "" || entry.Timestamp.Before(oldestTime) {
				oldestKey = key
				oldestTime = entry.Timestamp
			}
		}
		if oldestKey != "" {
			delete(ds.cache, oldestKey)
		}
	}
}

func (ds *DocumentStore) invalidateCache(path string) {
	ds.cacheMutex.Lock()
	defer ds.cacheMutex.Unlock()

	delete(ds.cache, path)
}
