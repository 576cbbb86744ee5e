package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// 媒体流式读取的分块大小
const ChunkSize = 1024 * 1024

// BlobStore 本地媒体文件存储
// 每个 id 对应一个原始媒体文件，转码产物为同名 .wav
type BlobStore struct {
	dir string
}

// NewBlobStore 创建媒体存储，确保目录存在
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建媒体目录失败: %w", err)
	}
	return &BlobStore{dir: dir}, nil
}

// Path 原始媒体文件路径
func (bs *BlobStore) Path(id string) string {
	return filepath.Join(bs.dir, id)
}

// TranscodedPath 转码后的 wav 文件路径
func (bs *BlobStore) TranscodedPath(id string) string {
	return bs.Path(id) + ".wav"
}

// Size 当前已持久化的字节数，文件不存在时为 0
func (bs *BlobStore) Size(id string) (int64, error) {
	info, err := os.Stat(bs.Path(id))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取文件信息失败: %w", err)
	}
	return info.Size(), nil
}

// WriteAt 在指定偏移写入一段字节
// 偏移的连续性由上层上传协议校验，这里只负责落盘
func (bs *BlobStore) WriteAt(id string, offset int64, data []byte) error {
	flags := os.O_WRONLY | os.O_CREATE
	f, err := os.OpenFile(bs.Path(id), flags, 0644)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}

// ReadRange 把 [start, end] 闭区间内的字节分块写入 w
func (bs *BlobStore) ReadRange(id string, start, end int64, w io.Writer) error {
	f, err := os.Open(bs.Path(id))
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("定位失败: %w", err)
	}

	remaining := end - start + 1
	buf := make([]byte, ChunkSize)
	for remaining > 0 {
		size := int64(len(buf))
		if remaining < size {
			size = remaining
		}
		n, err := f.Read(buf[:size])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			remaining -= int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("读取文件失败: %w", err)
		}
	}

	return nil
}

// Remove 删除原始媒体及转码产物
func (bs *BlobStore) Remove(id string) error {
	if err := os.Remove(bs.Path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(bs.TranscodedPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
