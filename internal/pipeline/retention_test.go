package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
)

type fakeTimelineStore struct {
	batches  []int64
	err      error
	gotDays  int
	gotBatch int
	calls    int
	onDelete func()
}

func (f *fakeTimelineStore) DeleteOlderThan(_ context.Context, days, batch int) (int64, error) {
	f.calls++
	f.gotDays, f.gotBatch = days, batch
	if f.onDelete != nil {
		f.onDelete()
	}
	if len(f.batches) > 0 {
		n := f.batches[0]
		f.batches = f.batches[1:]
		return n, nil
	}
	return 0, f.err
}

type memSweepTasks struct {
	seq       int64
	createErr error
	created   []string
	completed map[int64]any
	batches   []int64
	gotDays   int
	calls     int
}

func (m *memSweepTasks) Create(_ context.Context, taskType string, _ any) (*domain.BackgroundTask, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.seq++
	m.created = append(m.created, taskType)
	return &domain.BackgroundTask{ID: m.seq, TaskID: fmt.Sprintf("sweep-%d", m.seq), TaskType: taskType}, nil
}

func (m *memSweepTasks) Complete(_ context.Context, id int64, result any) error {
	if m.completed == nil {
		m.completed = map[int64]any{}
	}
	m.completed[id] = result
	return nil
}

func (m *memSweepTasks) DeleteFinishedOlderThan(_ context.Context, days, _ int) (int64, error) {
	m.calls++
	m.gotDays = days
	if len(m.batches) > 0 {
		n := m.batches[0]
		m.batches = m.batches[1:]
		return n, nil
	}
	return 0, nil
}

type fakeSheetStore struct {
	batches  []int64
	gotGrace int
}

func (f *fakeSheetStore) DeleteExpired(_ context.Context, graceDays, _ int) (int64, error) {
	f.gotGrace = graceDays
	if len(f.batches) > 0 {
		n := f.batches[0]
		f.batches = f.batches[1:]
		return n, nil
	}
	return 0, nil
}

func newTestSweeper(timeline *fakeTimelineStore, tasks *memSweepTasks, sheets *fakeSheetStore) *Sweeper {
	s := NewSweeper(config.RetentionConfig{
		TimelineDays:  180,
		TaskDays:      90,
		SheetGrace:    7,
		BatchSize:     5000,
		IntervalHours: 24,
	}, SweepStores{Timeline: timeline, Tasks: tasks, Sheets: sheets})
	s.pause = 0
	return s
}

func TestSweepOnce_DrainsInBatches(t *testing.T) {
	timeline := &fakeTimelineStore{batches: []int64{5000, 120}}
	tasks := &memSweepTasks{batches: []int64{40}}
	sheets := &fakeSheetStore{batches: []int64{3}}
	s := newTestSweeper(timeline, tasks, sheets)

	sum, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}

	if sum.TimelineEvents != 5120 || sum.Tasks != 40 || sum.DealSheets != 3 {
		t.Errorf("summary = %+v, want 5120/40/3", sum)
	}
	if sum.Errors != 0 {
		t.Errorf("errors = %d, want 0", sum.Errors)
	}

	// A full batch means another pass; the drain stops on the first short
	// zero.
	if timeline.calls != 3 {
		t.Errorf("timeline delete calls = %d, want 3", timeline.calls)
	}
	if timeline.gotDays != 180 || timeline.gotBatch != 5000 {
		t.Errorf("timeline args = %d days batch %d, want 180/5000", timeline.gotDays, timeline.gotBatch)
	}
	if tasks.gotDays != 90 {
		t.Errorf("task horizon = %d days, want 90", tasks.gotDays)
	}
	if sheets.gotGrace != 7 {
		t.Errorf("sheet grace = %d days, want 7", sheets.gotGrace)
	}

	if len(tasks.created) != 1 || tasks.created[0] != domain.TaskRetentionSweep {
		t.Fatalf("tasks created = %v, want one retention_sweep", tasks.created)
	}
	got, ok := tasks.completed[1].(*SweepSummary)
	if !ok || got.TimelineEvents != 5120 {
		t.Errorf("completed task result = %+v, want the pass summary", tasks.completed[1])
	}
}

func TestSweepOnce_TableErrorIsSoft(t *testing.T) {
	timeline := &fakeTimelineStore{batches: []int64{10}, err: errors.New("lock timeout")}
	tasks := &memSweepTasks{batches: []int64{5}}
	sheets := &fakeSheetStore{batches: []int64{2}}
	s := newTestSweeper(timeline, tasks, sheets)

	sum, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}

	if sum.TimelineEvents != 10 {
		t.Errorf("timeline events = %d, want partial 10 kept", sum.TimelineEvents)
	}
	if sum.Errors != 1 {
		t.Errorf("errors = %d, want 1", sum.Errors)
	}
	if sum.Tasks != 5 || sum.DealSheets != 2 {
		t.Errorf("later tables = %d/%d, want 5/2 (sweep keeps going)", sum.Tasks, sum.DealSheets)
	}
	if len(tasks.completed) != 1 {
		t.Error("pass not recorded on the task")
	}
}

func TestSweepOnce_TaskRecordFailureIsSoft(t *testing.T) {
	timeline := &fakeTimelineStore{batches: []int64{8}}
	tasks := &memSweepTasks{createErr: errors.New("tasks table busy")}
	sheets := &fakeSheetStore{}
	s := newTestSweeper(timeline, tasks, sheets)

	sum, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if sum.TimelineEvents != 8 {
		t.Errorf("timeline events = %d, want sweep to run anyway", sum.TimelineEvents)
	}
	if len(tasks.completed) != 0 {
		t.Error("completed a task that was never created")
	}
}

func TestSweepOnce_CancelledBeforeStart(t *testing.T) {
	timeline := &fakeTimelineStore{batches: []int64{100}}
	tasks := &memSweepTasks{}
	sheets := &fakeSheetStore{}
	s := newTestSweeper(timeline, tasks, sheets)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SweepOnce(ctx)
	if err == nil {
		t.Fatal("SweepOnce() expected context error")
	}
	if timeline.calls != 0 {
		t.Errorf("timeline delete calls = %d, want 0", timeline.calls)
	}
	if len(tasks.created) != 0 {
		t.Errorf("tasks created = %v, want none", tasks.created)
	}
}

func TestSweepOnce_CancelMidDrainStopsBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timeline := &fakeTimelineStore{batches: []int64{100, 200}, onDelete: cancel}
	tasks := &memSweepTasks{batches: []int64{5}}
	sheets := &fakeSheetStore{batches: []int64{2}}
	s := newTestSweeper(timeline, tasks, sheets)

	sum, err := s.SweepOnce(ctx)
	if err == nil {
		t.Fatal("SweepOnce() expected context error")
	}

	if sum.TimelineEvents != 100 {
		t.Errorf("timeline events = %d, want first batch only", sum.TimelineEvents)
	}
	if timeline.calls != 1 {
		t.Errorf("timeline delete calls = %d, want 1", timeline.calls)
	}
	if tasks.calls != 0 {
		t.Errorf("task deletes = %d, want 0 after cancel", tasks.calls)
	}
	// The pass record still lands; Complete runs detached from the cancel.
	if len(tasks.completed) != 1 {
		t.Error("cancelled pass not recorded on the task")
	}
}
