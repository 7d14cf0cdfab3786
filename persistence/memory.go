package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/simonserver/models"
)

// MemoryStore keeps records in process. It is the default when no database
// is configured and does not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.GameRecord
	nextID  uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) SaveGameRecord(ctx context.Context, rec *models.GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++
	stored := *rec
	stored.Standings = append([]models.Standing(nil), rec.Standings...)
	s.records = append(s.records, stored)
	return nil
}

func (s *MemoryStore) GameRecord(ctx context.Context, id uint) (models.GameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return models.GameRecord{}, ErrRecordNotFound
}

func (s *MemoryStore) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return s.newest(clampLimit(limit), func(models.GameRecord) bool { return true }), nil
}

func (s *MemoryStore) PlayerGameRecords(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error) {
	return s.newest(clampLimit(limit), func(rec models.GameRecord) bool {
		for _, st := range rec.Standings {
			if st.PlayerID == playerID {
				return true
			}
		}
		return false
	}), nil
}

// newest walks backwards, since records are appended in save order.
func (s *MemoryStore) newest(limit int, keep func(models.GameRecord) bool) []models.GameRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.GameRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(s.records[i]) {
			out = append(out, s.records[i])
		}
	}
	return out
}

func (s *MemoryStore) Close() error {
	return nil
}
