package server

import (
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Categories lists the catalog categories in display order. "All" is a
// filter, not a category a video can belong to.
var Categories = []string{
	CategoryAll,
	"Sales Techniques",
	"Product Knowledge",
	"Customer Service",
	"Compliance",
	"Leadership",
	"Technical Skills",
	"Onboarding",
	CategoryGeneral,
}

const (
	CategoryAll     = "All"
	CategoryGeneral = "General"
)

var videoExtensions = map[string]bool{
	".avi":  true,
	".m2ts": true,
	".m4v":  true,
	".mkv":  true,
	".mov":  true,
	".mp4":  true,
	".ts":   true,
	".webm": true,
}

type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	VideoPath string    `json:"videoPath"`
	Size      int64     `json:"size"`
	Modified  time.Time `json:"modified"`
}

type Library struct {
	root   string
	rootID string
	// scanMu serialises concurrent scans.
	scanMu sync.Mutex
	mu     sync.RWMutex
	items  map[string]Video
	store  VideoStore
	// lastScan tracks the time the library last completed a scan.
	lastScan time.Time
}

func storeReadOnly(store VideoStore) bool {
	if store == nil {
		return false
	}
	return store.ReadOnly()
}

func NewLibrary(root string, store VideoStore) (*Library, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	items := map[string]Video{}
	var rootID string
	if store != nil && !storeReadOnly(store) {
		rootEntry, err := store.AddRoot(root)
		if err != nil {
			return nil, err
		}
		rootID = rootEntry.ID
	}
	if store != nil {
		stored, err := store.ListVideos()
		if err != nil {
			return nil, err
		}
		for _, v := range stored {
			items[v.ID] = v
		}
	}
	return &Library{
		root:   root,
		rootID: rootID,
		items:  items,
		store:  store,
	}, nil
}

func (l *Library) Root() string { return l.root }

func (l *Library) Scan() error {
	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	found := map[string]Video{}
	var scanErrs []error
	var scanRunID string
	if l.store != nil && l.rootID != "" {
		run, err := l.store.StartScanRun(l.rootID, time.Now())
		if err != nil {
			scanErrs = append(scanErrs, err)
		} else {
			scanRunID = run.ID
		}
	}

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			scanErrs = append(scanErrs, err)
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		if !videoExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			scanErrs = append(scanErrs, err)
			return nil
		}

		id := stableID(path)
		found[id] = Video{
			ID:        id,
			Title:     strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			Category:  categoryFor(l.root, path),
			VideoPath: path,
			Size:      info.Size(),
			Modified:  info.ModTime(),
		}
		return nil
	})
	if err != nil {
		scanErrs = append(scanErrs, err)
	}

	l.mu.Lock()
	previous := l.items
	lastScan := l.lastScan
	l.items = found
	l.lastScan = time.Now()
	l.mu.Unlock()

	if l.store != nil && !storeReadOnly(l.store) {
		if ids := removedIDs(previous, found); len(ids) > 0 {
			if err := l.store.DeleteVideos(ids); err != nil {
				scanErrs = append(scanErrs, err)
			}
		}
		if changed := diffItems(found, previous, lastScan); len(changed) > 0 {
			if err := l.store.SaveVideos(changed); err != nil {
				scanErrs = append(scanErrs, err)
			}
		}
	}

	libraryVideos.Set(float64(len(found)))
	scanErr := errors.Join(scanErrs...)
	if scanRunID != "" {
		finishedAt := time.Now()
		if scanErr != nil {
			if err := l.store.FailScanRun(scanRunID, finishedAt, scanErr.Error()); err != nil {
				scanErr = errors.Join(scanErr, err)
			}
		} else if err := l.store.FinishScanRun(scanRunID, finishedAt); err != nil {
			scanErr = err
		}
	}
	libraryScans.WithLabelValues(resultLabel(scanErr)).Inc()
	return scanErr
}

// ScanRootID is the store id of the library root; empty without a writable store.
func (l *Library) ScanRootID() string { return l.rootID }

func (l *Library) All() []Video {
	out := l.snapshotItems()
	sortVideos(out)
	return out
}

// ByCategory filters the catalog; "All" or "" returns everything.
func (l *Library) ByCategory(category string) []Video {
	all := l.All()
	if category == "" || strings.EqualFold(category, CategoryAll) {
		return all
	}
	out := make([]Video, 0, len(all))
	for _, v := range all {
		if strings.EqualFold(v.Category, category) {
			out = append(out, v)
		}
	}
	return out
}

func (l *Library) Get(id string) (Video, bool) {
	l.mu.RLock()
	it, ok := l.items[id]
	l.mu.RUnlock()
	if ok {
		return it, true
	}
	if l.store != nil {
		v, ok, err := l.store.GetVideo(id)
		if err == nil && ok {
			return v, true
		}
	}
	return Video{}, false
}

func (l *Library) LastScan() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastScan
}

func (l *Library) snapshotItems() []Video {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Video, 0, len(l.items))
	for _, item := range l.items {
		out = append(out, item)
	}
	return out
}

func sortVideos(videos []Video) {
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].Title != videos[j].Title {
			return videos[i].Title < videos[j].Title
		}
		return videos[i].ID < videos[j].ID
	})
}

func diffItems(found, previous map[string]Video, lastScan time.Time) []Video {
	out := make([]Video, 0, len(found))
	for id, item := range found {
		prev, ok := previous[id]
		if lastScan.IsZero() || !ok || !videoEqual(item, prev) {
			out = append(out, item)
		}
	}
	return out
}

func removedIDs(previous, found map[string]Video) []string {
	if len(previous) == 0 {
		return nil
	}
	out := make([]string, 0, len(previous))
	for id := range previous {
		if _, ok := found[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func videoEqual(a, b Video) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Category == b.Category &&
		a.VideoPath == b.VideoPath &&
		a.Size == b.Size &&
		a.Modified.Equal(b.Modified)
}

// categoryFor derives the category from the first directory below root.
func categoryFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return CategoryGeneral
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return CategoryGeneral
	}
	if c, ok := NormalizeCategory(parts[0]); ok && c != CategoryAll {
		return c
	}
	return CategoryGeneral
}

// NormalizeCategory matches name against the known categories, ignoring case
// and treating '-' and '_' as spaces.
func NormalizeCategory(name string) (string, bool) {
	cleaned := strings.Join(strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(name)), " ")
	for _, c := range Categories {
		if strings.EqualFold(c, cleaned) {
			return c, true
		}
	}
	return "", false
}

// videoAvailable reports whether the file behind a catalog entry can be played.
func videoAvailable(v Video) bool {
	if strings.TrimSpace(v.VideoPath) == "" {
		return false
	}
	st, err := os.Stat(v.VideoPath)
	return err == nil && st.Mode().IsRegular()
}

func stableID(s string) string {
	h := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(h[:8]) // short but stable
}
