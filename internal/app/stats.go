package app

import (
	"context"
	"fmt"
	"time"
)

// ChannelStats is the per-channel view served by the admin surfaces.
type ChannelStats struct {
	ChannelName    string      `json:"channel_name"`
	Mode           ChannelMode `json:"mode"`
	TotalUploads   int         `json:"total_uploads"`
	UploadsLast24h int         `json:"uploads_last_24h"`
	UploadsPerDay  int         `json:"uploads_per_day"`
	LastUploadAt   *time.Time  `json:"last_upload_at,omitempty"`
}

// StatsService derives upload statistics from the registry and the ledger.
type StatsService struct {
	Registry Registry
	Ledger   Ledger
}

func NewStatsService(registry Registry, ledger Ledger) *StatsService {
	return &StatsService{Registry: registry, Ledger: ledger}
}

// ChannelStats reports stats for one channel, or ErrUnknownChannel.
func (s *StatsService) ChannelStats(ctx context.Context, name string) (ChannelStats, error) {
	ch, err := s.Registry.GetChannel(ctx, name)
	if err != nil {
		return ChannelStats{}, err
	}
	if ch == nil {
		return ChannelStats{}, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return s.statsFor(ctx, *ch)
}

// AllStats reports stats for every configured channel, in roster order.
func (s *StatsService) AllStats(ctx context.Context) ([]ChannelStats, error) {
	channels, err := s.Registry.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]ChannelStats, 0, len(channels))
	for _, ch := range channels {
		st, err := s.statsFor(ctx, ch)
		if err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, nil
}

func (s *StatsService) statsFor(ctx context.Context, ch Channel) (ChannelStats, error) {
	now := time.Now().UTC()

	total, err := s.Ledger.History(ctx, ch.ChannelName)
	if err != nil {
		return ChannelStats{}, fmt.Errorf("history for %s: %w", ch.ChannelName, err)
	}
	recent, err := s.Ledger.Recent(ctx, ch.ChannelName, now.Add(-24*time.Hour))
	if err != nil {
		return ChannelStats{}, fmt.Errorf("recent count for %s: %w", ch.ChannelName, err)
	}

	st := ChannelStats{
		ChannelName:    ch.ChannelName,
		Mode:           ch.Mode,
		TotalUploads:   len(total),
		UploadsLast24h: len(recent),
		UploadsPerDay:  ch.UploadsPerDay,
	}
	latest, err := s.Ledger.Latest(ctx, ch.ChannelName)
	if err != nil {
		return ChannelStats{}, fmt.Errorf("latest upload for %s: %w", ch.ChannelName, err)
	}
	if latest != nil {
		t := *latest
		st.LastUploadAt = &t
	}
	return st, nil
}
