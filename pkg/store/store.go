package store

import (
	"errors"

	"github.com/feldberlin/timething-web/pkg/models"
)

// ErrNotFound 请求的转写记录不存在
var ErrNotFound = errors.New("转写记录不存在")

// Store 转写记录元数据存储接口
// 按 id 单写者约束由调用方（API 层的运行锁）保证，存储本身不做跨调用加锁
type Store interface {
	// Create 保存记录（存在时覆盖）
	Create(t *models.Transcription) error

	// Get 获取记录
	Get(id string) (*models.Transcription, error)

	// Update 读取-修改-写回（使用回调函数模式）
	Update(id string, updateFn func(*models.Transcription)) error

	// List 列出所有记录（按创建顺序倒序）
	List() ([]*models.Transcription, error)

	// Delete 删除记录
	Delete(id string) error

	// Close 关闭存储连接
	Close() error
}
