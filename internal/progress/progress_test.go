package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_InitialSnapshot(t *testing.T) {
	tr := NewTracker("run-1", "report.pdf", "alice")
	s := tr.Snapshot()
	assert.Equal(t, StageIdle, s.Stage)
	assert.Equal(t, 0.0, s.ProgressPercent)
	assert.False(t, s.IsCompleted)
	assert.Equal(t, "run-1", s.RunID)

	_, err := tr.Result()
	assert.Error(t, err)
}

func TestTracker_StageSequence(t *testing.T) {
	tr := NewTracker("run", "f", "o")
	tr.Init("starting")
	assert.Equal(t, StageInit, tr.Snapshot().Stage)

	tr.Parsing(4, "parsed")
	s := tr.Snapshot()
	assert.Equal(t, StageParsing, s.Stage)
	assert.Equal(t, 5.0, s.ProgressPercent)
	assert.Equal(t, 4, s.TotalChunks)

	tr.Deduplicated("removed old points")
	assert.Equal(t, 10.0, tr.Snapshot().ProgressPercent)

	tr.Processing(2, 4, "chunk 2/4")
	s = tr.Snapshot()
	assert.Equal(t, StageProcessing, s.Stage)
	assert.InDelta(t, 52.5, s.ProgressPercent, 1e-9)
	assert.Equal(t, 2, s.CurrentChunk)

	tr.Storing("finalizing")
	assert.Equal(t, 95.0, tr.Snapshot().ProgressPercent)

	result := models.IngestResult{Filename: "f", Owner: "o", ProcessedChunks: 4, TotalChunks: 4}
	tr.Complete(result, "done")
	s = tr.Snapshot()
	assert.Equal(t, StageCompleted, s.Stage)
	assert.Equal(t, 100.0, s.ProgressPercent)
	assert.True(t, s.IsCompleted)

	select {
	case <-tr.Done():
	default:
		t.Fatal("Done should be closed after completion")
	}
	got, err := tr.Result()
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestTracker_PercentNeverDecreases(t *testing.T) {
	tr := NewTracker("run", "f", "o")
	tr.Init("")
	tr.Processing(3, 4, "")
	high := tr.Snapshot().ProgressPercent
	tr.Parsing(4, "late parsing update")
	assert.Equal(t, high, tr.Snapshot().ProgressPercent)
}

func TestTracker_TerminalIsFrozen(t *testing.T) {
	tr := NewTracker("run", "f", "o")
	tr.Init("")
	tr.Processing(1, 2, "")
	boom := errors.New("embedding service unreachable")
	tr.Fail(boom)

	s := tr.Snapshot()
	assert.Equal(t, StageError, s.Stage)
	assert.True(t, s.IsCompleted)
	assert.Equal(t, boom.Error(), s.Message)

	tr.Complete(models.IngestResult{TotalChunks: 2}, "")
	tr.Processing(2, 2, "")
	assert.Equal(t, s.Stage, tr.Snapshot().Stage)
	assert.Equal(t, s.ProgressPercent, tr.Snapshot().ProgressPercent)

	_, err := tr.Result()
	assert.ErrorIs(t, err, boom)
}

func TestTracker_WatchSignalsChange(t *testing.T) {
	tr := NewTracker("run", "f", "o")
	before, changed := tr.Watch()
	assert.Equal(t, StageIdle, before.Stage)

	go tr.Init("go")
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed on change")
	}
	assert.Equal(t, StageInit, tr.Snapshot().Stage)
}

func TestTracker_ConcurrentReadersSeeMonotonicProgress(t *testing.T) {
	tr := NewTracker("run", "f", "o")
	const total = 200

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1.0
			for {
				s := tr.Snapshot()
				if s.ProgressPercent < last {
					t.Errorf("progress went back from %v to %v", last, s.ProgressPercent)
					return
				}
				last = s.ProgressPercent
				if s.IsCompleted {
					return
				}
			}
		}()
	}

	tr.Init("")
	tr.Parsing(total, "")
	tr.Deduplicated("")
	for i := 1; i <= total; i++ {
		tr.Processing(i, total, "")
	}
	tr.Storing("")
	tr.Complete(models.IngestResult{ProcessedChunks: total, TotalChunks: total}, "")
	wg.Wait()
}

func TestRegistry_NewAndGet(t *testing.T) {
	r := NewRegistry(10, time.Hour)
	tr := r.New("report.pdf", "alice")
	require.NotEmpty(t, tr.ID())

	got, ok := r.Get(tr.ID())
	require.True(t, ok)
	assert.Same(t, tr, got)
	assert.Equal(t, 1, r.Active())

	tr.Complete(models.IngestResult{}, "done")
	assert.Eventually(t, func() bool { return r.Active() == 0 }, time.Second, 10*time.Millisecond)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Expires(t *testing.T) {
	r := NewRegistry(10, 50*time.Millisecond)
	tr := r.New("f", "o")
	tr.Complete(models.IngestResult{}, "")
	assert.Eventually(t, func() bool {
		_, ok := r.Get(tr.ID())
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRegistry_RunningRunsOutliveTTLAndSize(t *testing.T) {
	r := NewRegistry(2, 50*time.Millisecond)
	runs := []*Tracker{r.New("a.pdf", "alice"), r.New("b.pdf", "alice"), r.New("c.pdf", "bob")}

	time.Sleep(200 * time.Millisecond)
	for _, tr := range runs {
		got, ok := r.Get(tr.ID())
		require.True(t, ok, "in-flight run %s must stay readable", tr.ID())
		assert.Same(t, tr, got)
	}
	assert.Equal(t, 3, r.Active())

	runs[0].Complete(models.IngestResult{}, "")
	assert.Eventually(t, func() bool { return r.Active() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, ok := r.Get(runs[0].ID())
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
