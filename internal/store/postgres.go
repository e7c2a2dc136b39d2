package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/veripack/veripack-backend/internal/config"
	"github.com/veripack/veripack-backend/internal/logger"
)

// kvEntry is the single table behind the postgres backend. One row per keyed
// value, bucket column for listing.
type kvEntry struct {
	Bucket string         `gorm:"primaryKey;size:32"`
	Key    string         `gorm:"primaryKey;size:128"`
	Value  datatypes.JSON `gorm:"not null"`
}

func (kvEntry) TableName() string { return "kv_entries" }

type postgresKV struct {
	log *logger.Logger
	db  *gorm.DB
}

func newPostgresKV(cfg config.StoreConfig, log *logger.Logger) (*postgresKV, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres backend selected but POSTGRES_DSN is empty")
	}
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &postgresKV{log: log.With("store", "postgres"), db: db}, nil
}

func (p *postgresKV) get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	var entry kvEntry
	err := p.db.WithContext(ctx).
		Where("bucket = ? AND key = ?", bucket, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres get %s: %w", bucket, err)
	}
	return []byte(entry.Value), true, nil
}

func (p *postgresKV) set(ctx context.Context, bucket, key string, val []byte) error {
	entry := kvEntry{Bucket: bucket, Key: key, Value: datatypes.JSON(val)}
	err := p.db.WithContext(ctx).Save(&entry).Error
	if err != nil {
		return fmt.Errorf("postgres set %s: %w", bucket, err)
	}
	return nil
}

func (p *postgresKV) delete(ctx context.Context, bucket, key string) (bool, error) {
	res := p.db.WithContext(ctx).
		Where("bucket = ? AND key = ?", bucket, key).
		Delete(&kvEntry{})
	if res.Error != nil {
		return false, fmt.Errorf("postgres delete %s: %w", bucket, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (p *postgresKV) list(ctx context.Context, bucket string) ([][]byte, error) {
	var entries []kvEntry
	err := p.db.WithContext(ctx).Where("bucket = ?", bucket).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("postgres list %s: %w", bucket, err)
	}
	out := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		out = append(out, []byte(entry.Value))
	}
	return out, nil
}
