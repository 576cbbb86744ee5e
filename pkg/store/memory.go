package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/feldberlin/timething-web/pkg/models"
)

// MemoryStore 内存存储（RWMutex 保证并发安全）
// 记录进出时做一次 JSON 深拷贝，避免调用方共享内部指针
type MemoryStore struct {
	records map[string]*models.Transcription
	order   []string // 创建顺序
	mu      sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.Transcription),
	}
}

func clone(t *models.Transcription) (*models.Transcription, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("序列化记录失败: %w", err)
	}
	var out models.Transcription
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("反序列化记录失败: %w", err)
	}
	return &out, nil
}

// Create 保存记录
func (ms *MemoryStore) Create(t *models.Transcription) error {
	c, err := clone(t)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.records[t.ID]; !exists {
		ms.order = append(ms.order, t.ID)
	}
	ms.records[t.ID] = c
	return nil
}

// Get 获取记录
func (ms *MemoryStore) Get(id string) (*models.Transcription, error) {
	ms.mu.RLock()
	t, exists := ms.records[id]
	ms.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	return clone(t)
}

// Update 更新记录
func (ms *MemoryStore) Update(id string, updateFn func(*models.Transcription)) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, exists := ms.records[id]
	if !exists {
		return ErrNotFound
	}

	c, err := clone(t)
	if err != nil {
		return err
	}
	updateFn(c)
	ms.records[id] = c
	return nil
}

// List 按创建顺序倒序列出所有记录
func (ms *MemoryStore) List() ([]*models.Transcription, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*models.Transcription, 0, len(ms.order))
	for i := len(ms.order) - 1; i >= 0; i-- {
		t, exists := ms.records[ms.order[i]]
		if !exists {
			continue
		}
		c, err := clone(t)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete 删除记录
func (ms *MemoryStore) Delete(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.records[id]; !exists {
		return ErrNotFound
	}
	delete(ms.records, id)
	return nil
}

// Close 关闭存储
func (ms *MemoryStore) Close() error {
	return nil
}
