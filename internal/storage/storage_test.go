package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/treefix50/trainingtime/internal/server"
)

func newTestStore(t *testing.T, ensureSchema bool) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}

	store := &Store{db: db, now: func() time.Time { return time.Unix(1700000000, 0) }}
	if ensureSchema {
		if err := store.EnsureSchema(); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
	}

	return store
}

func seedVideos(t *testing.T, store *Store, videos ...server.Video) {
	t.Helper()
	if err := store.SaveVideos(videos); err != nil {
		t.Fatalf("SaveVideos() error = %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	store := newTestStore(t, false)

	if err := store.MigrateSchema(); err != nil {
		t.Fatalf("MigrateSchema() error = %v", err)
	}
	// applying twice is a no-op
	if err := store.MigrateSchema(); err != nil {
		t.Fatalf("second MigrateSchema() error = %v", err)
	}

	rows, err := store.db.Query(`
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
	`)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan sqlite_master: %v", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("sqlite_master rows: %v", err)
	}

	for _, table := range []string{"schema_migrations", "videos", "watch_progress", "library_roots", "scan_runs"} {
		if !found[table] {
			t.Fatalf("expected table %q to exist", table)
		}
	}

	version, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != len(migrations) {
		t.Fatalf("unexpected schema version: got %d want %d", version, len(migrations))
	}
}

func TestSaveVideos(t *testing.T) {
	store := newTestStore(t, true)

	modified := time.Unix(1700000000, 0)
	videos := []server.Video{
		{ID: "v1", Title: "Closing Deals", Category: "Sales Techniques", VideoPath: "/t/sales/closing.mp4", Size: 100, Modified: modified},
		{ID: "v2", Title: "Welcome", VideoPath: "/t/welcome.mp4", Size: 200, Modified: modified.Add(10 * time.Second)},
	}
	seedVideos(t, store, videos...)

	got, ok, err := store.GetVideo("v2")
	if err != nil || !ok {
		t.Fatalf("GetVideo() = %v, %v", ok, err)
	}
	if got.Category != server.CategoryGeneral {
		t.Fatalf("empty category stored as %q, want General", got.Category)
	}
	if !got.Modified.Equal(videos[1].Modified) || got.Size != 200 || got.VideoPath != "/t/welcome.mp4" {
		t.Fatalf("unexpected stored video: %+v", got)
	}

	videos[0].Title = "Closing Deals 2"
	videos[0].Size = 555
	seedVideos(t, store, videos[0])

	all, err := store.ListVideos()
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(all) != 2 || all[0].Title != "Closing Deals 2" || all[0].Size != 555 {
		t.Fatalf("unexpected videos after update: %+v", all)
	}

	if _, ok, err := store.GetVideo("missing"); ok || err != nil {
		t.Fatalf("GetVideo(missing) = %v, %v", ok, err)
	}
}

func TestDeleteVideosCascadesProgress(t *testing.T) {
	store := newTestStore(t, true)
	seedVideos(t, store, server.Video{ID: "v1", Title: "A", VideoPath: "/a.mp4"})

	if err := store.UpsertProgress(server.Progress{VideoID: "v1", ViewerID: "ann", PositionSeconds: 10, DurationSeconds: 100, PercentWatched: 10}); err != nil {
		t.Fatalf("UpsertProgress() error = %v", err)
	}
	if err := store.DeleteVideos([]string{"v1"}); err != nil {
		t.Fatalf("DeleteVideos() error = %v", err)
	}
	if _, ok, err := store.GetProgress("v1", "ann"); ok || err != nil {
		t.Fatalf("progress survived video deletion: ok=%v err=%v", ok, err)
	}
}

func TestUpsertProgressKeepsMaximums(t *testing.T) {
	store := newTestStore(t, true)
	seedVideos(t, store, server.Video{ID: "v1", Title: "A", VideoPath: "/a.mp4"})

	first := server.Progress{VideoID: "v1", ViewerID: "ann", PositionSeconds: 60, DurationSeconds: 100, PercentWatched: 60, FurthestSeconds: 60, UpdatedAt: 1000}
	if err := store.UpsertProgress(first); err != nil {
		t.Fatalf("UpsertProgress() error = %v", err)
	}
	rewind := server.Progress{VideoID: "v1", ViewerID: "ann", PositionSeconds: 10, PercentWatched: 12.5, FurthestSeconds: 10, UpdatedAt: 1100}
	if err := store.UpsertProgress(rewind); err != nil {
		t.Fatalf("UpsertProgress() error = %v", err)
	}

	got, ok, err := store.GetProgress("v1", "ann")
	if err != nil || !ok {
		t.Fatalf("GetProgress() = %v, %v", ok, err)
	}
	if got.PositionSeconds != 10 {
		t.Fatalf("position = %d, want latest 10", got.PositionSeconds)
	}
	if got.PercentWatched != 60 || got.FurthestSeconds != 60 {
		t.Fatalf("percent/furthest decreased: %+v", got)
	}
	if got.DurationSeconds != 100 {
		t.Fatalf("unknown duration overwrote stored one: %d", got.DurationSeconds)
	}
	if got.UpdatedAt != 1100 || got.LastPlayedAt != 1100 {
		t.Fatalf("timestamps = %d/%d, want 1100", got.UpdatedAt, got.LastPlayedAt)
	}
	if got.Completed() {
		t.Fatalf("progress unexpectedly completed")
	}
}

func TestUpsertProgressClampsPercent(t *testing.T) {
	store := newTestStore(t, true)
	seedVideos(t, store, server.Video{ID: "v1", Title: "A", VideoPath: "/a.mp4"})

	if err := store.UpsertProgress(server.Progress{VideoID: "v1", ViewerID: "ann", PercentWatched: 140}); err != nil {
		t.Fatalf("UpsertProgress() error = %v", err)
	}
	got, _, _ := store.GetProgress("v1", "ann")
	if got.PercentWatched != 100 {
		t.Fatalf("percent = %v, want 100", got.PercentWatched)
	}
}

func TestMarkCompletedIsSticky(t *testing.T) {
	store := newTestStore(t, true)
	seedVideos(t, store, server.Video{ID: "v1", Title: "A", VideoPath: "/a.mp4"})

	if err := store.MarkCompleted("v1", "ann", time.Unix(2000, 0)); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := store.MarkCompleted("v1", "ann", time.Unix(3000, 0)); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := store.UpsertProgress(server.Progress{VideoID: "v1", ViewerID: "ann", PositionSeconds: 5, PercentWatched: 5}); err != nil {
		t.Fatalf("UpsertProgress() error = %v", err)
	}

	got, ok, err := store.GetProgress("v1", "ann")
	if err != nil || !ok {
		t.Fatalf("GetProgress() = %v, %v", ok, err)
	}
	if !got.Completed() || *got.CompletedAt != 2000 {
		t.Fatalf("completedAt = %v, want 2000", got.CompletedAt)
	}
	if got.ResumeSeconds() != 0 {
		t.Fatalf("completed video resumes at %d, want 0", got.ResumeSeconds())
	}
}

func TestListProgressAndDelete(t *testing.T) {
	store := newTestStore(t, true)
	seedVideos(t, store,
		server.Video{ID: "v1", Title: "A", VideoPath: "/a.mp4"},
		server.Video{ID: "v2", Title: "B", VideoPath: "/b.mp4"},
	)
	_ = store.UpsertProgress(server.Progress{VideoID: "v1", ViewerID: "ann", LastPlayedAt: 100})
	_ = store.UpsertProgress(server.Progress{VideoID: "v2", ViewerID: "ann", LastPlayedAt: 200})
	_ = store.UpsertProgress(server.Progress{VideoID: "v2", ViewerID: "bob", LastPlayedAt: 300})

	list, err := store.ListProgress("ann")
	if err != nil {
		t.Fatalf("ListProgress() error = %v", err)
	}
	if len(list) != 2 || list[0].VideoID != "v2" {
		t.Fatalf("unexpected progress list: %+v", list)
	}

	if err := store.DeleteProgress("v2", "ann"); err != nil {
		t.Fatalf("DeleteProgress() error = %v", err)
	}
	list, _ = store.ListProgress("ann")
	if len(list) != 1 {
		t.Fatalf("expected one row after delete, got %d", len(list))
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t, true)
	seedVideos(t, store,
		server.Video{ID: "v1", Title: "A", Category: "Compliance", VideoPath: "/a.mp4"},
		server.Video{ID: "v2", Title: "B", Category: "Compliance", VideoPath: "/b.mp4"},
		server.Video{ID: "v3", Title: "C", Category: "Leadership", VideoPath: "/c.mp4"},
	)
	_ = store.UpsertProgress(server.Progress{VideoID: "v1", ViewerID: "ann", PercentWatched: 100})
	_ = store.MarkCompleted("v1", "ann", time.Unix(100, 0))
	_ = store.UpsertProgress(server.Progress{VideoID: "v2", ViewerID: "ann", PercentWatched: 50})
	_ = store.UpsertProgress(server.Progress{VideoID: "v3", ViewerID: "bob", PercentWatched: 90})

	stats, err := store.Stats("ann", "")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalVideos != 3 || stats.CompletedVideos != 1 || stats.OverallProgress != 50 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	stats, err = store.Stats("ann", "compliance")
	if err != nil {
		t.Fatalf("Stats(category) error = %v", err)
	}
	if stats.TotalVideos != 2 || stats.CompletedVideos != 1 || stats.OverallProgress != 75 {
		t.Fatalf("unexpected category stats: %+v", stats)
	}

	stats, err = store.Stats("nobody", "All")
	if err != nil {
		t.Fatalf("Stats(nobody) error = %v", err)
	}
	if stats.TotalVideos != 3 || stats.CompletedVideos != 0 || stats.OverallProgress != 0 {
		t.Fatalf("unexpected stats for new viewer: %+v", stats)
	}
}

func TestRootsAndScanRuns(t *testing.T) {
	store := newTestStore(t, true)

	root, err := store.AddRoot("/srv/training")
	if err != nil {
		t.Fatalf("AddRoot() error = %v", err)
	}
	again, err := store.AddRoot("/srv/training")
	if err != nil {
		t.Fatalf("AddRoot() again error = %v", err)
	}
	if again.ID != root.ID {
		t.Fatalf("AddRoot() returned a new id for a known path: %s vs %s", again.ID, root.ID)
	}
	roots, err := store.ListRoots()
	if err != nil || len(roots) != 1 {
		t.Fatalf("ListRoots() = %v, %v", roots, err)
	}

	run, err := store.StartScanRun(root.ID, time.Unix(500, 0))
	if err != nil {
		t.Fatalf("StartScanRun() error = %v", err)
	}
	if err := store.FailScanRun(run.ID, time.Unix(510, 0), "permission denied"); err != nil {
		t.Fatalf("FailScanRun() error = %v", err)
	}
	latest, ok, err := store.LatestScanRun(root.ID)
	if err != nil || !ok {
		t.Fatalf("LatestScanRun() = %v, %v", ok, err)
	}
	if latest.Status != server.ScanStatusFailed || latest.Error != "permission denied" || latest.FinishedAt.Unix() != 510 {
		t.Fatalf("unexpected scan run: %+v", latest)
	}
	if err := store.FinishScanRun("missing", time.Unix(600, 0)); err == nil {
		t.Fatalf("expected error finishing an unknown scan run")
	}
}

func TestOpenFileAndMaintenance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainingtime.db")
	store, err := Open(path, Options{BusyTimeout: time.Second, CacheSize: -2000})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	seedVideos(t, store, server.Video{ID: "v1", Title: "A", VideoPath: "/a.mp4"})

	results, err := store.IntegrityCheck()
	if err != nil || len(results) != 1 || results[0] != "ok" {
		t.Fatalf("IntegrityCheck() = %v, %v", results, err)
	}
	if err := store.Analyze(); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if err := store.Vacuum(""); err != nil {
		t.Fatalf("Vacuum() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestReadOnlyStoreRejectsWrites(t *testing.T) {
	store := newTestStore(t, true)
	seedVideos(t, store, server.Video{ID: "v1", Title: "A", VideoPath: "/a.mp4"})
	store.readOnly = true

	if !store.ReadOnly() {
		t.Fatalf("expected read-only store")
	}
	if _, ok, err := store.GetVideo("v1"); !ok || err != nil {
		t.Fatalf("read-only GetVideo() = %v, %v", ok, err)
	}
	if err := store.UpsertProgress(server.Progress{VideoID: "v1", ViewerID: "ann"}); err == nil {
		t.Fatalf("expected write to read-only store to fail")
	}
	if _, err := store.AddRoot("/srv"); err == nil {
		t.Fatalf("expected AddRoot on read-only store to fail")
	}
}

func TestReadOnlyMemoryRejected(t *testing.T) {
	if _, err := Open(":memory:", Options{ReadOnly: true}); err == nil {
		t.Fatalf("expected error for read-only in-memory database")
	}
}
