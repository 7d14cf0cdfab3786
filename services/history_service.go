// services/history_service.go
package services

import (
	"context"
	"fmt"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/persistence"
)

// statsWindow is how many archived games PlayerStats aggregates.
const statsWindow = 100

type HistoryService struct {
	recorder persistence.Recorder
}

func NewHistoryService(recorder persistence.Recorder) *HistoryService {
	return &HistoryService{recorder: recorder}
}

// Record 归档一局已结束的游戏
func (s *HistoryService) Record(ctx context.Context, result models.GameResult) (models.GameRecord, error) {
	if len(result.Standings) == 0 {
		return models.GameRecord{}, fmt.Errorf("game in room %s has no standings", result.RoomCode)
	}

	rec := models.GameRecord{
		RoomCode:     result.RoomCode,
		RoundsPlayed: result.RoundsPlayed,
		Solo:         result.Solo,
		Standings:    result.Standings,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}
	if result.Winner != nil {
		rec.WinnerID = result.Winner.PlayerID
	}

	if err := s.recorder.SaveGameRecord(ctx, &rec); err != nil {
		return models.GameRecord{}, fmt.Errorf("save game record for room %s: %w", result.RoomCode, err)
	}
	logger.Log.Infof("room %s: game #%d archived, %d rounds, winner %q", rec.RoomCode, rec.ID, rec.RoundsPlayed, rec.WinnerID)
	return rec, nil
}

func (s *HistoryService) RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return s.recorder.RecentGameRecords(ctx, limit)
}

func (s *HistoryService) Game(ctx context.Context, id uint) (models.GameRecord, error) {
	return s.recorder.GameRecord(ctx, id)
}

// PlayerStats 统计玩家最近的对局
func (s *HistoryService) PlayerStats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	records, err := s.recorder.PlayerGameRecords(ctx, playerID, statsWindow)
	if err != nil {
		return models.PlayerStats{}, err
	}

	stats := models.PlayerStats{PlayerID: playerID}
	for _, rec := range records {
		st, ok := standingOf(rec, playerID)
		if !ok {
			continue
		}
		stats.TotalGames++
		if rec.WinnerID == playerID {
			stats.Wins++
		}
		stats.BestScore = max(stats.BestScore, st.Score)

		// 幸存到最后的玩家按总轮数计
		reached := rec.RoundsPlayed
		if st.EliminatedRound > 0 {
			reached = st.EliminatedRound
		}
		stats.BestRound = max(stats.BestRound, reached)
	}
	return stats, nil
}

func standingOf(rec models.GameRecord, playerID string) (models.Standing, bool) {
	for _, st := range rec.Standings {
		if st.PlayerID == playerID {
			return st, true
		}
	}
	return models.Standing{}, false
}
