package storage

import "fmt"

const schemaVideos = `
CREATE TABLE IF NOT EXISTS videos (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	title TEXT,
	category TEXT NOT NULL DEFAULT 'General',
	size INTEGER,
	modified INTEGER
);`

const schemaVideosIndexes = `
CREATE INDEX IF NOT EXISTS idx_videos_title ON videos(title);
CREATE INDEX IF NOT EXISTS idx_videos_category ON videos(category);`

const schemaWatchProgress = `
CREATE TABLE IF NOT EXISTS watch_progress (
	video_id TEXT NOT NULL,
	viewer_id TEXT NOT NULL DEFAULT '',
	position_seconds INTEGER NOT NULL DEFAULT 0 CHECK (position_seconds >= 0),
	duration_seconds INTEGER NOT NULL DEFAULT 0 CHECK (duration_seconds >= 0),
	percent_watched REAL NOT NULL DEFAULT 0 CHECK (percent_watched >= 0 AND percent_watched <= 100),
	furthest_seconds INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER,
	updated_at INTEGER NOT NULL,
	last_played_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (video_id, viewer_id),
	FOREIGN KEY (video_id) REFERENCES videos(id) ON DELETE CASCADE
);`

const schemaWatchProgressIndexes = `
CREATE INDEX IF NOT EXISTS idx_watch_progress_viewer ON watch_progress(viewer_id, last_played_at DESC);
CREATE INDEX IF NOT EXISTS idx_watch_progress_completed ON watch_progress(viewer_id, completed_at);`

const schemaLibraryRoots = `
CREATE TABLE IF NOT EXISTS library_roots (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);`

const schemaScanRuns = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id TEXT PRIMARY KEY,
	root_id TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	status TEXT NOT NULL,
	error TEXT,
	FOREIGN KEY (root_id) REFERENCES library_roots(id) ON DELETE CASCADE
);`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY
);`

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			schemaVideos,
			schemaWatchProgress,
			schemaLibraryRoots,
			schemaScanRuns,
		},
	},
	{
		version: 2,
		statements: []string{
			schemaVideosIndexes,
			schemaWatchProgressIndexes,
			`CREATE INDEX IF NOT EXISTS idx_scan_runs_root ON scan_runs(root_id, started_at DESC);`,
		},
	},
}

func (s *Store) EnsureSchema() error {
	return s.MigrateSchema()
}

func (s *Store) MigrateSchema() error {
	if s == nil || s.db == nil {
		return errNoDB
	}

	if _, err := s.db.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("storage: create schema_migrations table: %w", err)
	}

	current, err := s.currentSchemaVersion()
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.version <= current {
			continue
		}
		if err := s.applyMigration(migration); err != nil {
			return err
		}
		current = migration.version
	}

	return nil
}

// SchemaVersion reports the highest applied migration.
func (s *Store) SchemaVersion() (int, error) {
	return s.currentSchemaVersion()
}

func (s *Store) currentSchemaVersion() (int, error) {
	if s == nil || s.db == nil {
		return 0, errNoDB
	}

	var version int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("storage: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(m migration) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: start migration %d: %w", m.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, statement := range m.statements {
		if _, err = tx.Exec(statement); err != nil {
			return fmt.Errorf("storage: migration %d failed: %w", m.version, err)
		}
	}

	if _, err = tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("storage: record migration %d: %w", m.version, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit migration %d: %w", m.version, err)
	}
	return nil
}
