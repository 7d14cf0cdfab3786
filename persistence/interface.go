// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/simonserver/models"
)

// Recorder 对局归档接口
type Recorder interface {
	// SaveGameRecord stores rec and sets rec.ID.
	SaveGameRecord(ctx context.Context, rec *models.GameRecord) error
	GameRecord(ctx context.Context, id uint) (models.GameRecord, error)
	// RecentGameRecords returns the newest records first.
	RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error)
	// PlayerGameRecords returns the newest records the player took part in.
	PlayerGameRecords(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownDriver  = errors.New("unknown database driver")
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverGorm     = "gorm"
	DriverPostgres = "postgres"
)

const defaultLimit = 20

// DSN builds a libpq connection string.
func DSN(host string, port int, user, password, dbname, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// Open returns the recorder for driver.
func Open(ctx context.Context, driver, dsn string) (Recorder, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverGorm:
		return NewGormPostgreSQL(dsn)
	case DriverPostgres:
		return NewPostgreSQL(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultLimit
	}
	return limit
}
