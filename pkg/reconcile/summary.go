package reconcile

import (
	"fmt"
	"time"
)

// Phase is the state of one run.
type Phase string

const (
	PhaseScanning Phase = "scanning"
	PhaseCleaning Phase = "cleaning"
	PhaseFinished Phase = "finished"
	PhaseStopped  Phase = "stopped"
)

// SkipReason says why a candidate produced no upload.
type SkipReason string

const (
	SkipAlreadyExists     SkipReason = "already-exists"
	SkipBelowPriceFloor   SkipReason = "below-price-floor"
	SkipOutOfStock        SkipReason = "out-of-stock"
	SkipMalformed         SkipReason = "malformed"
	SkipTranslationFailed SkipReason = "translation-failed"
)

// Summary is the externally visible result of a run. The engine owns the live value;
// everyone else gets copies from Snapshot.
type Summary struct {
	RunID               string             `json:"run_id" yaml:"run_id"`
	Merchant            string             `json:"merchant" yaml:"merchant"`
	Phase               Phase              `json:"phase" yaml:"phase"`
	Seen                int                `json:"seen" yaml:"seen"`
	Uploaded            int                `json:"uploaded" yaml:"uploaded"`
	Skipped             map[SkipReason]int `json:"skipped" yaml:"skipped"`
	UploadFailed        int                `json:"upload_failed" yaml:"upload_failed"`
	Deleted             int                `json:"deleted" yaml:"deleted"`
	DeleteFailed        int                `json:"delete_failed" yaml:"delete_failed"`
	AlreadyDraft        int                `json:"already_draft" yaml:"already_draft"`
	Reactivated         int                `json:"reactivated" yaml:"reactivated"`
	TranslationFailures int                `json:"translation_failures" yaml:"translation_failures"`
	Stopped             bool               `json:"stopped" yaml:"stopped"`
	StopReason          string             `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Running             bool               `json:"running" yaml:"running"`
	Status              string             `json:"status" yaml:"status"`
	Errors              []string           `json:"errors,omitempty" yaml:"errors,omitempty"`
	StartedAt           time.Time          `json:"started_at" yaml:"started_at"`
	FinishedAt          time.Time          `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// NewSummary returns a running summary in the scanning phase.
func NewSummary(runID, merchant string) *Summary {
	return &Summary{
		RunID:     runID,
		Merchant:  merchant,
		Phase:     PhaseScanning,
		Skipped:   map[SkipReason]int{},
		Running:   true,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (s *Summary) Snapshot() Summary {
	if s == nil {
		return Summary{}
	}
	out := *s
	out.Skipped = make(map[SkipReason]int, len(s.Skipped))
	for k, v := range s.Skipped {
		out.Skipped[k] = v
	}
	out.Errors = append([]string(nil), s.Errors...)
	return out
}

// SkippedTotal sums skips over every reason.
func (s Summary) SkippedTotal() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

func (s *Summary) skip(reason SkipReason) {
	if s.Skipped == nil {
		s.Skipped = map[SkipReason]int{}
	}
	s.Skipped[reason]++
}

func (s *Summary) errorf(format string, args ...interface{}) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Stop moves the run to the terminal stopped state. Cleanup is never reached afterwards.
func (s *Summary) Stop(reason string) {
	s.Phase = PhaseStopped
	s.Stopped = true
	s.StopReason = reason
	s.Running = false
	s.Status = "stopped: " + reason
	s.FinishedAt = time.Now().UTC()
}

func (s *Summary) finish() {
	s.Phase = PhaseFinished
	s.Running = false
	s.Status = fmt.Sprintf("finished: seen=%d uploaded=%d skipped=%d deleted=%d", s.Seen, s.Uploaded, s.SkippedTotal(), s.Deleted)
	s.FinishedAt = time.Now().UTC()
}
