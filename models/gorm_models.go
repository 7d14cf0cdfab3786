// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormGameRecord 已结束对局的归档
type GormGameRecord struct {
	gorm.Model
	RoomCode     string     `gorm:"index;not null"`
	WinnerID     string     `gorm:"index"`
	RoundsPlayed int        `gorm:"default:0"`
	Solo         bool       `gorm:"default:false"`
	Standings    []Standing `gorm:"serializer:json;type:jsonb;not null"`
	StartedAt    time.Time
	FinishedAt   time.Time `gorm:"index"`
}

func (GormGameRecord) TableName() string {
	return "game_records"
}

// ToGameRecord converts the row into the transport model.
func (r *GormGameRecord) ToGameRecord() GameRecord {
	return GameRecord{
		ID:           r.ID,
		RoomCode:     r.RoomCode,
		WinnerID:     r.WinnerID,
		RoundsPlayed: r.RoundsPlayed,
		Solo:         r.Solo,
		Standings:    r.Standings,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

// NewGormGameRecord builds a row from the transport model.
func NewGormGameRecord(rec *GameRecord) *GormGameRecord {
	return &GormGameRecord{
		RoomCode:     rec.RoomCode,
		WinnerID:     rec.WinnerID,
		RoundsPlayed: rec.RoundsPlayed,
		Solo:         rec.Solo,
		Standings:    rec.Standings,
		StartedAt:    rec.StartedAt,
		FinishedAt:   rec.FinishedAt,
	}
}
