package server

import "math"

// Progress is the stored watch progress of one viewer on one video.
type Progress struct {
	VideoID         string  `json:"videoId"`
	ViewerID        string  `json:"viewerId"`
	PositionSeconds int64   `json:"positionSeconds"`
	DurationSeconds int64   `json:"durationSeconds"`
	PercentWatched  float64 `json:"percentWatched"`
	FurthestSeconds int64   `json:"furthestSeconds"`
	CompletedAt     *int64  `json:"completedAt,omitempty"`
	UpdatedAt       int64   `json:"updatedAt"`
	LastPlayedAt    int64   `json:"lastPlayedAt"`
}

func (p *Progress) Completed() bool {
	return p != nil && p.CompletedAt != nil
}

// ResumeSeconds is the position a new session should start from. Completed
// videos start over.
func (p *Progress) ResumeSeconds() int {
	if p == nil || p.Completed() || p.PositionSeconds <= 0 {
		return 0
	}
	if p.DurationSeconds > 0 && p.PositionSeconds >= p.DurationSeconds {
		return 0
	}
	return int(p.PositionSeconds)
}

type TrainingStats struct {
	ViewerID        string `json:"viewerId"`
	Category        string `json:"category,omitempty"`
	TotalVideos     int    `json:"totalVideos"`
	CompletedVideos int    `json:"completedVideos"`
	OverallProgress int    `json:"overallProgress"`
}

// OverallPercent averages per-video percentages, counting unwatched videos
// as 0 and capping each at 100.
func OverallPercent(percents []float64, totalVideos int) int {
	if totalVideos <= 0 {
		return 0
	}
	sum := 0.0
	for _, p := range percents {
		sum += math.Min(math.Max(p, 0), 100)
	}
	return int(math.Round(sum / float64(totalVideos)))
}

// VideoWithProgress is a catalog entry annotated for one viewer.
type VideoWithProgress struct {
	Video
	Progress *Progress `json:"progress,omitempty"`
}
