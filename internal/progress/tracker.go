// Package progress tracks ingestion runs. A Tracker is written by the run that owns it and
// read by any number of observers.
package progress

import (
	"errors"
	"sync"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
)

// Stage is the phase of an ingestion run.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageInit       Stage = "init"
	StageParsing    Stage = "parsing"
	StageProcessing Stage = "processing"
	StageStoring    Stage = "storing"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// Terminal reports whether no further transitions follow s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

// Percent checkpoints. Processing spans processingStart..storingPercent.
const (
	parsingPercent    = 5.0
	processingStart   = 10.0
	processingSpan    = 85.0
	storingPercent    = 95.0
	completionPercent = 100.0
)

// Snapshot is a consistent copy of a run's progress.
type Snapshot struct {
	RunID           string               `json:"run_id"`
	Filename        string               `json:"filename,omitempty"`
	Owner           string               `json:"owner,omitempty"`
	Stage           Stage                `json:"stage"`
	ProgressPercent float64              `json:"progress_percent"`
	CurrentChunk    int                  `json:"current_chunk"`
	TotalChunks     int                  `json:"total_chunks"`
	Message         string               `json:"message"`
	IsCompleted     bool                 `json:"is_completed"`
	Result          *models.IngestResult `json:"result,omitempty"`
	Error           string               `json:"error,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Tracker holds the progress of one ingestion run. Percent never decreases and a terminal
// snapshot never changes again.
type Tracker struct {
	id      string
	mu      sync.RWMutex
	snap    Snapshot
	err     error
	changed chan struct{}
	done    chan struct{}
}

// NewTracker returns a tracker in the idle stage.
func NewTracker(runID, filename, owner string) *Tracker {
	return &Tracker{
		id: runID,
		snap: Snapshot{
			RunID:     runID,
			Filename:  filename,
			Owner:     owner,
			Stage:     StageIdle,
			Message:   "waiting to start",
			UpdatedAt: time.Now(),
		},
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the run id.
func (t *Tracker) ID() string {
	return t.id
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyLocked()
}

// Watch returns the current progress and a channel closed at the next change. For a terminal
// run the channel never closes; use Done to wait for completion.
func (t *Tracker) Watch() (Snapshot, <-chan struct{}) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyLocked(), t.changed
}

// Done is closed once the run completes or fails.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Result returns the outcome of a finished run. Before the run finishes it returns an error.
func (t *Tracker) Result() (models.IngestResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch t.snap.Stage {
	case StageCompleted:
		return *t.snap.Result, nil
	case StageError:
		return models.IngestResult{}, t.err
	}
	return models.IngestResult{}, errors.New("ingestion has not finished")
}

func (t *Tracker) copyLocked() Snapshot {
	s := t.snap
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	return s
}

// Init marks the start of a run.
func (t *Tracker) Init(message string) {
	t.update(func(s *Snapshot) {
		s.Stage = StageInit
		s.ProgressPercent = 0
		s.Message = message
	})
}

// Parsing marks that the document has been split into total chunks.
func (t *Tracker) Parsing(total int, message string) {
	t.update(func(s *Snapshot) {
		s.Stage = StageParsing
		s.ProgressPercent = parsingPercent
		s.TotalChunks = total
		s.Message = message
	})
}

// Deduplicated marks that prior points of the document were removed.
func (t *Tracker) Deduplicated(message string) {
	t.update(func(s *Snapshot) {
		s.Stage = StageProcessing
		s.ProgressPercent = processingStart
		s.Message = message
	})
}

// Processing records that current of total chunks have been stored.
func (t *Tracker) Processing(current, total int, message string) {
	t.update(func(s *Snapshot) {
		s.Stage = StageProcessing
		s.CurrentChunk = current
		s.TotalChunks = total
		if total > 0 {
			s.ProgressPercent = processingStart + processingSpan*float64(current)/float64(total)
		}
		s.Message = message
	})
}

// Storing marks the finalisation step.
func (t *Tracker) Storing(message string) {
	t.update(func(s *Snapshot) {
		s.Stage = StageStoring
		s.ProgressPercent = storingPercent
		s.Message = message
	})
}

// Complete finishes the run with result.
func (t *Tracker) Complete(result models.IngestResult, message string) {
	t.update(func(s *Snapshot) {
		s.Stage = StageCompleted
		s.ProgressPercent = completionPercent
		s.CurrentChunk = result.ProcessedChunks
		s.TotalChunks = result.TotalChunks
		s.Message = message
		s.Result = &result
	})
}

// Fail finishes the run with err. Percent stays where the run stopped.
func (t *Tracker) Fail(err error) {
	t.update(func(s *Snapshot) {
		s.Stage = StageError
		s.Message = err.Error()
		s.Error = err.Error()
		t.err = err
	})
}

func (t *Tracker) update(apply func(*Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Stage.Terminal() {
		return
	}
	prev := t.snap.ProgressPercent
	apply(&t.snap)
	if t.snap.ProgressPercent < prev {
		t.snap.ProgressPercent = prev
	}
	if t.snap.ProgressPercent > completionPercent {
		t.snap.ProgressPercent = completionPercent
	}
	t.snap.IsCompleted = t.snap.Stage.Terminal()
	t.snap.UpdatedAt = time.Now()

	close(t.changed)
	t.changed = make(chan struct{})
	if t.snap.IsCompleted {
		close(t.done)
	}
}
