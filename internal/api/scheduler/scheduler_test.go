package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenger067850/todo-manager/internal/config"
	"github.com/fenger067850/todo-manager/internal/model"
	"github.com/fenger067850/todo-manager/internal/pkg/dedup"
	"github.com/fenger067850/todo-manager/internal/pkg/notify"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	mu       sync.Mutex
	pending  []model.PendingReminder
	active   map[string]bool
	markErr  map[string]error
	loadErr  error
	lastNow  time.Time
	lastSize int
}

func newFakeStore(ids ...string) *fakeStore {
	s := &fakeStore{active: map[string]bool{}, markErr: map[string]error{}}
	for _, id := range ids {
		s.pending = append(s.pending, model.PendingReminder{ID: id, TodoID: "todo-" + id, TodoTitle: "t"})
		s.active[id] = true
	}
	return s
}

func (s *fakeStore) PendingReminders(ctx context.Context, now time.Time, limit int) ([]model.PendingReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNow, s.lastSize = now, limit
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []model.PendingReminder
	for _, p := range s.pending {
		if s.active[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkReminderProcessed(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErr[id]; err != nil {
		return false, err
	}
	if !s.active[id] {
		return false, nil
	}
	s.active[id] = false
	return true, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]bool
	calls atomic.Int32
}

func (n *fakeNotifier) NotifyReminder(ctx context.Context, r *model.PendingReminder) error {
	n.calls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[r.ID] {
		return errors.New("smtp down")
	}
	n.sent = append(n.sent, r.ID)
	return nil
}

func (n *fakeNotifier) sentIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGuard(t *testing.T) *dedup.Guard {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return dedup.NewGuard(rdb, time.Hour)
}

func TestProcessPending_NotifiesAndMarks(t *testing.T) {
	store := newFakeStore("a", "b")
	n := &fakeNotifier{}
	s := New(store, n, nil, testLogger(), Options{BatchSize: 50})

	res, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != (Result{Found: 2, Processed: 2}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := n.sentIDs(); len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %v", got)
	}
	if store.lastSize != 50 {
		t.Fatalf("batch size not passed, got %d", store.lastSize)
	}

	res, err = s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("second run should find nothing, got %+v", res)
	}
}

func TestProcessPending_NotifyFailureKeepsActive(t *testing.T) {
	store := newFakeStore("a", "b")
	n := &fakeNotifier{fail: map[string]bool{"a": true}}
	guard := newGuard(t)
	s := New(store, n, guard, testLogger(), Options{})

	res, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != (Result{Found: 2, Processed: 1, Failed: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if !store.active["a"] {
		t.Fatalf("failed reminder must stay active")
	}

	// 通知恢复后重试，发送权已释放
	n.mu.Lock()
	n.fail = nil
	n.mu.Unlock()
	res, err = s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res != (Result{Found: 1, Processed: 1}) {
		t.Fatalf("unexpected retry result %+v", res)
	}
}

func TestProcessPending_MarkFailureDoesNotResend(t *testing.T) {
	store := newFakeStore("a")
	store.markErr["a"] = errors.New("db down")
	n := &fakeNotifier{}
	s := New(store, n, newGuard(t), testLogger(), Options{})

	res, _ := s.ProcessPending(context.Background())
	if res != (Result{Found: 1, Failed: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}

	delete(store.markErr, "a")
	res, _ = s.ProcessPending(context.Background())
	if res != (Result{Found: 1, Skipped: 1}) {
		t.Fatalf("unexpected retry result %+v", res)
	}
	if n.calls.Load() != 1 {
		t.Fatalf("expected exactly one notification, got %d", n.calls.Load())
	}
	if store.active["a"] {
		t.Fatalf("reminder should be marked on retry")
	}
}

func TestProcessPending_AlreadyMarkedIsSkipped(t *testing.T) {
	store := newFakeStore("a")
	n := &fakeNotifier{}
	s := New(store, n, nil, testLogger(), Options{})

	// 模拟并发批处理在发送后抢先标记
	s.notifier = notifierFunc(func(ctx context.Context, r *model.PendingReminder) error {
		store.mu.Lock()
		store.active[r.ID] = false
		store.mu.Unlock()
		return nil
	})

	res, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != (Result{Found: 1, Skipped: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestProcessPending_LoadError(t *testing.T) {
	store := newFakeStore()
	store.loadErr = errors.New("db down")
	s := New(store, &fakeNotifier{}, nil, testLogger(), Options{})

	if _, err := s.ProcessPending(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestProcessPending_UsesUTCNow(t *testing.T) {
	store := newFakeStore()
	s := New(store, &fakeNotifier{}, nil, testLogger(), Options{})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if _, err := s.ProcessPending(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !store.lastNow.Equal(fixed) {
		t.Fatalf("expected now %v, got %v", fixed, store.lastNow)
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(newFakeStore(), &fakeNotifier{}, nil, testLogger(), Options{Schedule: "not a schedule"})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestStart_RunsOnSchedule(t *testing.T) {
	store := newFakeStore("a")
	n := &fakeNotifier{}
	s := New(store, n, nil, testLogger(), Options{Schedule: "@every 1s"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if n.calls.Load() > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("scheduled batch did not run")
}

type notifierFunc func(ctx context.Context, r *model.PendingReminder) error

func (f notifierFunc) NotifyReminder(ctx context.Context, r *model.PendingReminder) error {
	return f(ctx, r)
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{
		App:      config.AppConfig{NotifyWorkers: 2, NotifyQueueCapacity: 8},
		Reminder: config.ReminderConfig{Schedule: "@every 5m", BatchSize: 10, DedupWindow: time.Hour},
	}

	s := NewFromConfig(cfg, newFakeStore(), nil, testLogger())
	if s.pool != nil {
		t.Fatalf("no email pool expected without smtp config")
	}
	if s.deduper != nil {
		t.Fatalf("no deduper expected without redis")
	}
	if s.schedule != "@every 5m" || s.batchSize != 10 {
		t.Fatalf("options not applied: %q %d", s.schedule, s.batchSize)
	}

	cfg.Email = config.EmailConfig{SMTPHost: "smtp.example.com", SMTPUser: "u", FromEmail: "todo@example.com"}
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s = NewFromConfig(cfg, newFakeStore(), rdb, testLogger())
	if s.pool == nil {
		t.Fatalf("email pool expected")
	}
	if s.deduper == nil {
		t.Fatalf("deduper expected")
	}
	multi, ok := s.notifier.(notify.Multi)
	if !ok || len(multi) != 2 {
		t.Fatalf("expected log + async notifiers, got %T", s.notifier)
	}
	s.StartWorkers(context.Background())
	s.Stop()
}
