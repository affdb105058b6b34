// Package queue 提供固定 worker 数的内存任务池，用于异步发送提醒通知。
package queue

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrFull 任务池已满。
	ErrFull = errors.New("queue is full")
	// ErrClosed 任务池已关闭。
	ErrClosed = errors.New("queue is closed")
)

// Task 是一个带名称的异步任务，Name 仅用于日志。
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool 内存任务池。
type Pool struct {
	logger  *slog.Logger
	workers int
	tasks   chan Task
	timeout time.Duration

	// OnDepth 在入队/出队后以当前积压数回调，用于上报指标。
	OnDepth func(depth int)

	wg      sync.WaitGroup
	mu      sync.RWMutex // 保护 tasks 的关闭与发送
	closed  atomic.Bool
	started atomic.Bool

	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// Stats 任务池计数快照。
type Stats struct {
	Enqueued  int64
	Succeeded int64
	Failed    int64
	Rejected  int64
	Panics    int64
	Pending   int
}

// New 创建任务池；timeout > 0 时每个任务都在带超时的 context 中执行。
func New(logger *slog.Logger, workers, capacity int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		logger:  logger,
		workers: workers,
		tasks:   make(chan Task, capacity),
		timeout: timeout,
	}
}

// Start 启动 worker，重复调用无效。
//
// worker 不随 ctx 取消而退出，只在 Shutdown 关闭队列并处理完积压任务后结束；
// 任务拿到的 context 保留 ctx 的值但不继承取消。
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	base := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(base, i)
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.reportDepth()
		p.run(ctx, task, id)
	}
}

func (p *Pool) run(ctx context.Context, task Task, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.failed.Add(1)
			p.logger.Error("task panic recovered",
				slog.String("task", task.Name),
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := task.Run(runCtx); err != nil {
		p.failed.Add(1)
		p.logger.Warn("task failed",
			slog.String("task", task.Name),
			slog.Int("worker_id", workerID),
			slog.String("error", err.Error()))
		return
	}
	p.succeeded.Add(1)
}

// Submit 非阻塞入队。
func (p *Pool) Submit(task Task) error {
	if task.Run == nil {
		return errors.New("task has no run func")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		p.rejected.Add(1)
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		p.enqueued.Add(1)
		p.reportDepth()
		return nil
	default:
		p.rejected.Add(1)
		p.logger.Warn("queue full, reject task",
			slog.String("task", task.Name),
			slog.Int("capacity", cap(p.tasks)))
		return ErrFull
	}
}

// Shutdown 拒绝新任务并等待已入队任务执行完毕，超时返回错误。
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return nil
	}
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("queue drained")
		return nil
	case <-time.After(timeout):
		return errors.New("queue shutdown timeout")
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Enqueued:  p.enqueued.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
		Pending:   len(p.tasks),
	}
}

func (p *Pool) reportDepth() {
	if p.OnDepth != nil {
		p.OnDepth(len(p.tasks))
	}
}
