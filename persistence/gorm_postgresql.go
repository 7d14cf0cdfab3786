// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// zapWriter routes gorm's log lines into the process logger.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Log.Debugf(format, args...)
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := gormlogger.New(
		zapWriter{},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormGameRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveGameRecord 保存游戏记录
func (p *GormPostgreSQL) SaveGameRecord(ctx context.Context, rec *models.GameRecord) error {
	row := models.NewGormGameRecord(rec)
	if err := p.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	rec.ID = row.ID
	return nil
}

func (p *GormPostgreSQL) GameRecord(ctx context.Context, id uint) (models.GameRecord, error) {
	var row models.GormGameRecord
	if err := p.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GameRecord{}, ErrRecordNotFound
		}
		return models.GameRecord{}, err
	}
	return row.ToGameRecord(), nil
}

func (p *GormPostgreSQL) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	var rows []models.GormGameRecord
	err := p.db.WithContext(ctx).
		Order("finished_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toGameRecords(rows), nil
}

// PlayerGameRecords 使用jsonb包含查询
func (p *GormPostgreSQL) PlayerGameRecords(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error) {
	filter, err := standingsFilter(playerID)
	if err != nil {
		return nil, err
	}

	var rows []models.GormGameRecord
	err = p.db.WithContext(ctx).
		Where("standings @> ?::jsonb", filter).
		Order("finished_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toGameRecords(rows), nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toGameRecords(rows []models.GormGameRecord) []models.GameRecord {
	out := make([]models.GameRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToGameRecord())
	}
	return out
}

// standingsFilter matches any standings array holding the player.
func standingsFilter(playerID string) (string, error) {
	data, err := json.Marshal([]map[string]string{{"playerId": playerID}})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
