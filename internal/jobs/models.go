package jobs

import (
	"strings"
	"time"

	"webmill/internal/config"
)

// Status represents the lifecycle of a conversion job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusProcessing,
	StatusComplete,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status will never change again.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Options are the immutable per-job conversion parameters.
type Options struct {
	Quality          int
	AudioBitrate     string
	DetectBackground bool
}

// DefaultOptions returns the documented submission defaults.
func DefaultOptions() Options {
	return Options{
		Quality:      30,
		AudioBitrate: "128k",
	}
}

// Normalized clamps the quality into its valid range and fills an empty audio
// bitrate with the default. Out-of-range values are clamped, never rejected.
func (o Options) Normalized() Options {
	out := o
	if out.Quality < config.QualityMin {
		out.Quality = config.QualityMin
	}
	if out.Quality > config.QualityMax {
		out.Quality = config.QualityMax
	}
	if strings.TrimSpace(out.AudioBitrate) == "" {
		out.AudioBitrate = DefaultOptions().AudioBitrate
	}
	return out
}

// Record is the persisted state of a single conversion job.
type Record struct {
	ID            string
	Status        Status
	Progress      int
	ResultPath    string
	DetectedColor string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewRecord returns the record persisted when a job is accepted.
func NewRecord(id string) *Record {
	return &Record{
		ID:       id,
		Status:   StatusProcessing,
		Progress: 5,
	}
}

// IsTerminal reports whether the record has reached a final state.
func (r *Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// MarkComplete transitions the record to its successful terminal state.
func (r *Record) MarkComplete(resultPath string) {
	r.Status = StatusComplete
	r.Progress = 100
	r.ResultPath = resultPath
	r.ErrorMessage = ""
}

// MarkFailed transitions the record to its failed terminal state. Progress is
// left where the monitor last put it.
func (r *Record) MarkFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.ResultPath = ""
}
