package intake

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval = 10 * time.Minute
	DefaultMaxAge        = time.Hour
)

// StartSweeper removes transient files older than maxAge on every tick. Requests
// release their own files; this only catches files orphaned by a crash.
func (s *Store) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	go s.sweepLoop(ctx, interval, maxAge)
}

func (s *Store) sweepLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.sweep(time.Now().Add(-maxAge)); err != nil {
				s.logger.Warn("sweep transient files", zap.Error(err))
			}
		}
	}
}

// sweep deletes transient files last modified before cutoff and returns how many
// were removed.
func (s *Store) sweep(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove stale transient file", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("swept stale transient files", zap.Int("count", removed))
	}
	return removed, nil
}
