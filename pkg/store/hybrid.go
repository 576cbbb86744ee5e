package store

import (
	"log"

	"github.com/feldberlin/timething-web/pkg/models"
)

// HybridStore 混合存储：Redis（热数据） + PostgreSQL（冷数据）
// 写入先落 Redis，后台异步同步到数据库；读取优先 Redis，未命中回源并回写
type HybridStore struct {
	redis     Store
	db        Store
	syncQueue chan *models.Transcription
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewHybridStore 创建混合存储
func NewHybridStore(redis, db Store) *HybridStore {
	s := &HybridStore{
		redis:     redis,
		db:        db,
		syncQueue: make(chan *models.Transcription, 100),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	go s.syncWorker()

	return s
}

// Create 保存记录：立即写 Redis，异步写数据库
func (s *HybridStore) Create(t *models.Transcription) error {
	if err := s.redis.Create(t); err != nil {
		// Redis 写入失败不影响持久化路径
		log.Printf("⚠️ Redis 写入失败: %v", err)
	}

	select {
	case s.syncQueue <- t:
	default:
		// 同步队列满时降级为同步写库，保证不丢
		return s.db.Create(t)
	}
	return nil
}

// Get 获取记录：优先 Redis，未命中查数据库并回写
func (s *HybridStore) Get(id string) (*models.Transcription, error) {
	t, err := s.redis.Get(id)
	if err == nil {
		return t, nil
	}

	t, err = s.db.Get(id)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Create(t); err != nil {
		log.Printf("⚠️ Redis 回写失败: %v", err)
	}
	return t, nil
}

// Update 更新记录
func (s *HybridStore) Update(id string, updateFn func(*models.Transcription)) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}

	updateFn(t)
	return s.Create(t)
}

// List 列出所有记录（走持久层，避免 Redis 过期造成的缺失）
func (s *HybridStore) List() ([]*models.Transcription, error) {
	return s.db.List()
}

// Delete 删除记录
func (s *HybridStore) Delete(id string) error {
	if err := s.redis.Delete(id); err != nil && err != ErrNotFound {
		return err
	}
	return s.db.Delete(id)
}

// Close 关闭两层存储，等待同步队列排空
func (s *HybridStore) Close() error {
	close(s.stopCh)
	<-s.doneCh

	if err := s.redis.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// syncWorker 后台同步 goroutine
func (s *HybridStore) syncWorker() {
	defer close(s.doneCh)

	for {
		select {
		case t := <-s.syncQueue:
			if err := s.db.Create(t); err != nil {
				log.Printf("❌ 同步到数据库失败 (id=%s): %v", t.ID, err)
			}
		case <-s.stopCh:
			// 排空剩余任务
			for {
				select {
				case t := <-s.syncQueue:
					if err := s.db.Create(t); err != nil {
						log.Printf("❌ 同步到数据库失败 (id=%s): %v", t.ID, err)
					}
				default:
					return
				}
			}
		}
	}
}
