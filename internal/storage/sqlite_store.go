package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/treefix50/trainingtime/internal/server"
)

func (s *Store) SaveVideos(videos []server.Video) (err error) {
	if err := s.writable(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO videos (id, path, title, category, size, modified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path=excluded.path,
			title=excluded.title,
			category=excluded.category,
			size=excluded.size,
			modified=excluded.modified
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range videos {
		category := v.Category
		if category == "" {
			category = server.CategoryGeneral
		}
		_, err = stmt.Exec(
			v.ID,
			v.VideoPath,
			nullString(v.Title),
			category,
			v.Size,
			v.Modified.Unix(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) DeleteVideos(ids []string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		"DELETE FROM videos WHERE id IN (%s)",
		strings.Join(placeholders, ","),
	)

	_, err := s.db.Exec(query, args...)
	return err
}

func (s *Store) ListVideos() ([]server.Video, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}

	rows, err := s.db.Query(`
		SELECT id, path, title, category, size, modified
		FROM videos
		ORDER BY title COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []server.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return videos, nil
}

func (s *Store) GetVideo(id string) (server.Video, bool, error) {
	if s == nil || s.db == nil {
		return server.Video{}, false, errNoDB
	}

	row := s.db.QueryRow(`
		SELECT id, path, title, category, size, modified
		FROM videos
		WHERE id = ?
	`, id)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return server.Video{}, false, nil
		}
		return server.Video{}, false, err
	}
	return v, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (server.Video, error) {
	var (
		v        server.Video
		title    sql.NullString
		size     sql.NullInt64
		modified sql.NullInt64
	)
	if err := row.Scan(&v.ID, &v.VideoPath, &title, &v.Category, &size, &modified); err != nil {
		return server.Video{}, err
	}
	v.Title = title.String
	v.Size = size.Int64
	v.Modified = time.Unix(modified.Int64, 0)
	return v, nil
}

// AddRoot registers path as a library root, returning the existing entry if
// it is already known.
func (s *Store) AddRoot(path string) (server.LibraryRoot, error) {
	if err := s.writable(); err != nil {
		return server.LibraryRoot{}, err
	}
	root := server.LibraryRoot{
		ID:        uuid.NewString(),
		Path:      path,
		CreatedAt: s.now().Truncate(time.Second),
	}
	_, err := s.db.Exec(`
		INSERT INTO library_roots (id, path, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO NOTHING
	`, root.ID, root.Path, root.CreatedAt.Unix())
	if err != nil {
		return server.LibraryRoot{}, err
	}

	var createdAt int64
	err = s.db.QueryRow(`SELECT id, created_at FROM library_roots WHERE path = ?`, path).Scan(&root.ID, &createdAt)
	if err != nil {
		return server.LibraryRoot{}, err
	}
	root.CreatedAt = time.Unix(createdAt, 0)
	return root, nil
}

func (s *Store) ListRoots() ([]server.LibraryRoot, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.Query(`SELECT id, path, created_at FROM library_roots ORDER BY created_at, path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roots []server.LibraryRoot
	for rows.Next() {
		var (
			root      server.LibraryRoot
			createdAt int64
		)
		if err := rows.Scan(&root.ID, &root.Path, &createdAt); err != nil {
			return nil, err
		}
		root.CreatedAt = time.Unix(createdAt, 0)
		roots = append(roots, root)
	}
	return roots, rows.Err()
}

func (s *Store) StartScanRun(rootID string, startedAt time.Time) (server.ScanRun, error) {
	if err := s.writable(); err != nil {
		return server.ScanRun{}, err
	}
	run := server.ScanRun{
		ID:        uuid.NewString(),
		RootID:    rootID,
		StartedAt: startedAt,
		Status:    server.ScanStatusRunning,
	}
	_, err := s.db.Exec(`
		INSERT INTO scan_runs (id, root_id, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.RootID, startedAt.Unix(), run.Status)
	if err != nil {
		return server.ScanRun{}, err
	}
	return run, nil
}

func (s *Store) FinishScanRun(id string, finishedAt time.Time) error {
	return s.endScanRun(id, finishedAt, server.ScanStatusFinished, "")
}

func (s *Store) FailScanRun(id string, finishedAt time.Time, errMsg string) error {
	return s.endScanRun(id, finishedAt, server.ScanStatusFailed, errMsg)
}

func (s *Store) endScanRun(id string, finishedAt time.Time, status, errMsg string) error {
	if err := s.writable(); err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE scan_runs SET finished_at = ?, status = ?, error = ?
		WHERE id = ?
	`, finishedAt.Unix(), status, nullString(errMsg), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("storage: scan run %s not found", id)
	}
	return nil
}

// LatestScanRun returns the most recent scan run for rootID.
func (s *Store) LatestScanRun(rootID string) (server.ScanRun, bool, error) {
	if s == nil || s.db == nil {
		return server.ScanRun{}, false, errNoDB
	}
	var (
		run        server.ScanRun
		startedAt  int64
		finishedAt sql.NullInt64
		errMsg     sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT id, root_id, started_at, finished_at, status, error
		FROM scan_runs
		WHERE root_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, rootID).Scan(&run.ID, &run.RootID, &startedAt, &finishedAt, &run.Status, &errMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return server.ScanRun{}, false, nil
		}
		return server.ScanRun{}, false, err
	}
	run.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		run.FinishedAt = time.Unix(finishedAt.Int64, 0)
	}
	run.Error = errMsg.String
	return run, true, nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
