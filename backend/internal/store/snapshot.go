// Package store 持久化层：MySQL 里的字段内容快照，冷启动时不用重放全量日志。
package store

import (
	"context"
	"errors"
	"time"

	sqlmysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// FieldSnapshot 一篇文档某个字段在某个版本时的可见内容。
// (document_id, field, revision) 唯一：同一个版本重复保存是幂等的。
type FieldSnapshot struct {
	ID         uint   `gorm:"primaryKey"`
	DocumentID string `gorm:"size:64;uniqueIndex:idx_doc_field_rev"`
	Field      string `gorm:"size:32;uniqueIndex:idx_doc_field_rev"`
	Revision   uint64 `gorm:"uniqueIndex:idx_doc_field_rev"`
	Content    string `gorm:"type:longtext"`
	CreatedAt  time.Time
}

func (FieldSnapshot) TableName() string { return "field_snapshots" }

// InitMySQL 打开连接并建表。
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&FieldSnapshot{}); err != nil {
		return nil, err
	}
	return db, nil
}

type SnapshotStore struct{ db *gorm.DB }

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save 保存一份快照。唯一键冲突（1062）说明这个版本已经存过，当作成功。
func (s *SnapshotStore) Save(ctx context.Context, docID, field string, revision uint64, content string) error {
	snap := FieldSnapshot{
		DocumentID: docID,
		Field:      field,
		Revision:   revision,
		Content:    content,
	}
	err := s.db.WithContext(ctx).Create(&snap).Error
	if err != nil {
		var mysqlErr *sqlmysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

// Latest 取某字段最新的一份快照；没有快照时返回 (nil, nil)。
func (s *SnapshotStore) Latest(ctx context.Context, docID, field string) (*FieldSnapshot, error) {
	var snap FieldSnapshot
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND field = ?", docID, field).
		Order("revision DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
