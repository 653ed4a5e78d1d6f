package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneResult summarizes one retention sweep.
type PruneResult struct {
	Removed []string
	Failed  int
}

// PruneDaemonLogs deletes the files in dir matching pattern whose last write is
// older than retentionDays. The file named by current is never removed, and a
// non-positive retention keeps everything.
func PruneDaemonLogs(logger *slog.Logger, dir, pattern string, retentionDays int, current string) PruneResult {
	var result PruneResult
	if retentionDays <= 0 || dir == "" {
		return result
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return result
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	keep := filepath.Clean(current)

	for _, path := range matches {
		if filepath.Clean(path) == keep {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			result.Failed++
			WarnWithContext(logger, "could not prune old daemon log", "log_retention_failed",
				String("path", path),
				Error(err),
				Hint("check ownership of log_dir"),
				Impact("old log file remains on disk"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
	}
	if len(result.Removed) > 0 {
		logger.Info("pruned old daemon logs",
			Int("count", len(result.Removed)),
			Int("retention_days", retentionDays),
			Event("log_pruned"),
		)
	}
	return result
}
