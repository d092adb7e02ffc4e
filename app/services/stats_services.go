package services

import (
	"context"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/metrics"
)

type StatsService struct {
	users UserStore
	files FileStore
}

func NewStatsService(users UserStore, files FileStore) *StatsService {
	return &StatsService{users: users, files: files}
}

func (s *StatsService) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	var err error

	if st.Users, err = s.users.Count(ctx); err != nil {
		return st, err
	}
	if st.Files, err = s.files.Count(ctx); err != nil {
		return st, err
	}
	if st.BlockedUsers, err = s.users.CountBlocked(ctx); err != nil {
		return st, err
	}
	return st, nil
}

// RefreshGauges updates the bot_users and bot_files gauges. It runs on
// the scheduler.
func (s *StatsService) RefreshGauges(ctx context.Context) {
	st, err := s.Stats(ctx)
	if err != nil {
		logger.WithCtx(ctx).Warn("stats: refresh gauges", "error", err)
		return
	}
	metrics.Users.Set(float64(st.Users))
	metrics.Files.Set(float64(st.Files))
}
