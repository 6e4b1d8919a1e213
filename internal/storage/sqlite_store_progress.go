package storage

import (
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/treefix50/trainingtime/internal/server"
)

// UpsertProgress records the latest position of a viewer. Percentage and
// furthest position only ever grow; completion is left untouched.
func (s *Store) UpsertProgress(p server.Progress) error {
	if err := s.writable(); err != nil {
		return err
	}
	now := s.now().Unix()
	updatedAt := p.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	lastPlayed := p.LastPlayedAt
	if lastPlayed == 0 {
		lastPlayed = updatedAt
	}
	percent := math.Min(math.Max(p.PercentWatched, 0), 100)
	if math.IsNaN(percent) {
		percent = 0
	}

	_, err := s.db.Exec(`
		INSERT INTO watch_progress (
			video_id, viewer_id, position_seconds, duration_seconds,
			percent_watched, furthest_seconds, updated_at, last_played_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id, viewer_id) DO UPDATE SET
			position_seconds=excluded.position_seconds,
			duration_seconds=CASE WHEN excluded.duration_seconds > 0
				THEN excluded.duration_seconds ELSE watch_progress.duration_seconds END,
			percent_watched=MAX(watch_progress.percent_watched, excluded.percent_watched),
			furthest_seconds=MAX(watch_progress.furthest_seconds, excluded.furthest_seconds),
			updated_at=excluded.updated_at,
			last_played_at=MAX(watch_progress.last_played_at, excluded.last_played_at)
	`,
		p.VideoID,
		p.ViewerID,
		max(p.PositionSeconds, 0),
		max(p.DurationSeconds, 0),
		percent,
		max(p.FurthestSeconds, 0),
		updatedAt,
		lastPlayed,
	)
	return err
}

// MarkCompleted stamps the first completion time for a viewer.
func (s *Store) MarkCompleted(videoID, viewerID string, at time.Time) error {
	if err := s.writable(); err != nil {
		return err
	}
	ts := at.Unix()
	_, err := s.db.Exec(`
		INSERT INTO watch_progress (video_id, viewer_id, completed_at, updated_at, last_played_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(video_id, viewer_id) DO UPDATE SET
			completed_at=COALESCE(watch_progress.completed_at, excluded.completed_at),
			updated_at=excluded.updated_at
	`, videoID, viewerID, ts, ts, ts)
	return err
}

const progressColumns = `video_id, viewer_id, position_seconds, duration_seconds,
	percent_watched, furthest_seconds, completed_at, updated_at, last_played_at`

func scanProgress(row rowScanner) (server.Progress, error) {
	var (
		p           server.Progress
		completedAt sql.NullInt64
	)
	err := row.Scan(
		&p.VideoID,
		&p.ViewerID,
		&p.PositionSeconds,
		&p.DurationSeconds,
		&p.PercentWatched,
		&p.FurthestSeconds,
		&completedAt,
		&p.UpdatedAt,
		&p.LastPlayedAt,
	)
	if err != nil {
		return server.Progress{}, err
	}
	if completedAt.Valid {
		ts := completedAt.Int64
		p.CompletedAt = &ts
	}
	return p, nil
}

func (s *Store) GetProgress(videoID, viewerID string) (*server.Progress, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errNoDB
	}
	row := s.db.QueryRow(`SELECT `+progressColumns+`
		FROM watch_progress
		WHERE video_id = ? AND viewer_id = ?
	`, videoID, viewerID)
	p, err := scanProgress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &p, true, nil
}

// ListProgress returns every progress row of a viewer, most recently played first.
func (s *Store) ListProgress(viewerID string) ([]server.Progress, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.Query(`SELECT `+progressColumns+`
		FROM watch_progress
		WHERE viewer_id = ?
		ORDER BY last_played_at DESC, video_id
	`, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []server.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeleteProgress(videoID, viewerID string) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM watch_progress WHERE video_id = ? AND viewer_id = ?`, videoID, viewerID)
	return err
}

// Stats aggregates a viewer's progress over the catalog, optionally limited
// to one category.
func (s *Store) Stats(viewerID, category string) (server.TrainingStats, error) {
	if s == nil || s.db == nil {
		return server.TrainingStats{}, errNoDB
	}
	stats := server.TrainingStats{ViewerID: viewerID}

	where := ""
	args := []any{viewerID}
	if c := strings.TrimSpace(category); c != "" && !strings.EqualFold(c, server.CategoryAll) {
		where = "WHERE lower(v.category) = lower(?)"
		args = append(args, c)
		stats.Category = c
	}

	rows, err := s.db.Query(`
		SELECT COALESCE(p.percent_watched, 0), p.completed_at IS NOT NULL
		FROM videos v
		LEFT JOIN watch_progress p ON p.video_id = v.id AND p.viewer_id = ?
		`+where, args...)
	if err != nil {
		return server.TrainingStats{}, err
	}
	defer rows.Close()

	var percents []float64
	for rows.Next() {
		var (
			percent   float64
			completed bool
		)
		if err := rows.Scan(&percent, &completed); err != nil {
			return server.TrainingStats{}, err
		}
		stats.TotalVideos++
		if completed {
			stats.CompletedVideos++
		}
		percents = append(percents, percent)
	}
	if err := rows.Err(); err != nil {
		return server.TrainingStats{}, err
	}
	stats.OverallProgress = server.OverallPercent(percents, stats.TotalVideos)
	return stats, nil
}
