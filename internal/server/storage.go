package server

import "time"

// VideoStore defines the storage operations used for the catalog and watch progress.
type VideoStore interface {
	ReadOnly() bool
	AddRoot(path string) (LibraryRoot, error)
	ListRoots() ([]LibraryRoot, error)
	StartScanRun(rootID string, startedAt time.Time) (ScanRun, error)
	FinishScanRun(id string, finishedAt time.Time) error
	FailScanRun(id string, finishedAt time.Time, errMsg string) error
	LatestScanRun(rootID string) (ScanRun, bool, error)
	SaveVideos(videos []Video) error
	DeleteVideos(ids []string) error
	ListVideos() ([]Video, error)
	GetVideo(id string) (Video, bool, error)
	UpsertProgress(p Progress) error
	MarkCompleted(videoID, viewerID string, at time.Time) error
	GetProgress(videoID, viewerID string) (*Progress, bool, error)
	ListProgress(viewerID string) ([]Progress, error)
	DeleteProgress(videoID, viewerID string) error
	Stats(viewerID, category string) (TrainingStats, error)
}

type LibraryRoot struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

type ScanRun struct {
	ID         string    `json:"id"`
	RootID     string    `json:"rootId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

const (
	ScanStatusRunning  = "running"
	ScanStatusFinished = "finished"
	ScanStatusFailed   = "failed"
)
