package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/feldberlin/timething-web/pkg/models"
)

// PostgresStore PostgreSQL 元数据存储
// 聚合嵌套较深，整条记录存 JSONB 文档列，id 单独建主键
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 创建 PostgreSQL 存储
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

// migrate 建表（幂等）
func (s *PostgresStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS transcriptions (
	    transcription_id TEXT PRIMARY KEY,
	    record           JSONB NOT NULL,
	    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("建表失败: %w", err)
	}
	return nil
}

// Create 保存记录（UPSERT）
func (s *PostgresStore) Create(t *models.Transcription) error {
	record, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}

	query := `
	INSERT INTO transcriptions (transcription_id, record)
	VALUES ($1, $2)
	ON CONFLICT (transcription_id)
	DO UPDATE SET
	    record = EXCLUDED.record,
	    updated_at = now()
	`
	if _, err := s.db.Exec(query, t.ID, record); err != nil {
		return fmt.Errorf("写入数据库失败: %w", err)
	}

	return nil
}

// Get 获取记录
func (s *PostgresStore) Get(id string) (*models.Transcription, error) {
	var record []byte
	query := `SELECT record FROM transcriptions WHERE transcription_id = $1`
	err := s.db.QueryRow(query, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}

	var t models.Transcription
	if err := json.Unmarshal(record, &t); err != nil {
		return nil, fmt.Errorf("反序列化记录失败: %w", err)
	}

	return &t, nil
}

// Update 更新记录
func (s *PostgresStore) Update(id string, updateFn func(*models.Transcription)) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}

	updateFn(t)
	return s.Create(t)
}

// List 按创建时间倒序列出所有记录
func (s *PostgresStore) List() ([]*models.Transcription, error) {
	query := `SELECT record FROM transcriptions ORDER BY created_at DESC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}
	defer rows.Close()

	var out []*models.Transcription
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("读取行失败: %w", err)
		}

		var t models.Transcription
		if err := json.Unmarshal(record, &t); err != nil {
			return nil, fmt.Errorf("反序列化记录失败: %w", err)
		}
		out = append(out, &t)
	}

	return out, rows.Err()
}

// Delete 删除记录
func (s *PostgresStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM transcriptions WHERE transcription_id = $1`, id)
	if err != nil {
		return fmt.Errorf("删除失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close 关闭数据库连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
