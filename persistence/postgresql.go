// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/simonserver/models"
)

const queryTimeout = 5 * time.Second

// PostgreSQL 数据库实现，与GORM版本共用 game_records 表
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(ctx context.Context, dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            room_code TEXT NOT NULL,
            winner_id TEXT,
            rounds_played BIGINT DEFAULT 0,
            solo BOOLEAN DEFAULT false,
            standings JSONB NOT NULL,
            started_at TIMESTAMPTZ,
            finished_at TIMESTAMPTZ
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_game_records_room_code ON game_records(room_code);
        CREATE INDEX IF NOT EXISTS idx_game_records_winner_id ON game_records(winner_id);
        CREATE INDEX IF NOT EXISTS idx_game_records_finished_at ON game_records(finished_at);
    `)
	return err
}

// SaveGameRecord 保存游戏记录
func (p *PostgreSQL) SaveGameRecord(ctx context.Context, rec *models.GameRecord) error {
	standings, err := json.Marshal(rec.Standings)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
        INSERT INTO game_records (room_code, winner_id, rounds_played, solo, standings, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	var id int64
	err = p.db.QueryRowContext(ctx, query,
		rec.RoomCode, rec.WinnerID, rec.RoundsPlayed, rec.Solo, standings, rec.StartedAt, rec.FinishedAt,
	).Scan(&id)
	if err != nil {
		return err
	}
	rec.ID = uint(id)
	return nil
}

const selectRecord = `
        SELECT id, room_code, COALESCE(winner_id, ''), rounds_played, solo, standings, started_at, finished_at
        FROM game_records
        WHERE deleted_at IS NULL`

func (p *PostgreSQL) GameRecord(ctx context.Context, id uint) (models.GameRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rec, err := scanRecord(p.db.QueryRowContext(ctx, selectRecord+` AND id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.GameRecord{}, ErrRecordNotFound
	}
	return rec, err
}

func (p *PostgreSQL) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		selectRecord+` ORDER BY finished_at DESC, id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (p *PostgreSQL) PlayerGameRecords(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error) {
	filter, err := standingsFilter(playerID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		selectRecord+` AND standings @> $1::jsonb ORDER BY finished_at DESC, id DESC LIMIT $2`,
		filter, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.GameRecord, error) {
	var (
		rec       models.GameRecord
		id        int64
		standings []byte
	)
	err := row.Scan(&id, &rec.RoomCode, &rec.WinnerID, &rec.RoundsPlayed, &rec.Solo, &standings, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		return models.GameRecord{}, err
	}
	rec.ID = uint(id)
	if err := json.Unmarshal(standings, &rec.Standings); err != nil {
		return models.GameRecord{}, err
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]models.GameRecord, error) {
	defer rows.Close()

	var out []models.GameRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
