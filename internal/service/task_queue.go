package service

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/urlefy/internal/metrics"
	"go.uber.org/zap"
)

// Имена фоновых задач (метка task в метриках)
const (
	TaskClickIncrement = "click_increment"
	TaskPersist        = "persist"
)

const defaultRetryBackoff = 100 * time.Millisecond

// Task фоновая операция, которая не должна блокировать ответ клиенту
type Task struct {
	Name string
	Code string
	Run  func(ctx context.Context) error
}

// TaskQueue очередь фоновых задач поверх пула воркеров
type TaskQueue interface {
	Start()
	Stop(ctx context.Context) error
	Enqueue(task Task) bool
	Stats() QueueStats
}

type TaskQueueConfig struct {
	Workers      int
	QueueSize    int
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// taskQueue: ограниченная очередь + фиксированное число воркеров.
// Каждая задача выполняется до MaxAttempts раз, неудачи логируются и считаются.
type taskQueue struct {
	cfg     TaskQueueConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	tasks   chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewTaskQueue создаёт очередь; воркеры стартуют в Start
func NewTaskQueue(cfg TaskQueueConfig, logger *zap.Logger, m *metrics.Metrics) TaskQueue {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &taskQueue{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tasks:   make(chan Task, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start запускает воркеры
func (q *taskQueue) Start() {
	q.logger.Info("Запуск воркеров фоновых задач",
		zap.Int("workers", q.cfg.Workers),
		zap.Int("queue_size", q.cfg.QueueSize),
	)

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop перестаёт принимать задачи и дожидается обработки уже поставленных.
// Если ctx истёк раньше, оставшиеся задачи отменяются.
func (q *taskQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.logger.Info("Остановка очереди фоновых задач...", zap.Int("pending", len(q.tasks)))

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("Очередь фоновых задач остановлена")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn("Очередь остановлена по таймауту, часть задач отменена")
		return ctx.Err()
	}
}

func (q *taskQueue) worker(id int) {
	defer q.wg.Done()

	q.logger.Debug("Воркер запущен", zap.Int("id", id))

	for task := range q.tasks {
		q.metrics.SetQueueDepth(len(q.tasks))
		q.process(task)
	}

	q.logger.Debug("Воркер остановлен", zap.Int("id", id))
}

// process выполняет задачу с повторами и линейной задержкой
func (q *taskQueue) process(task Task) {
	var err error

	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		if q.ctx.Err() != nil {
			err = q.ctx.Err()
			break
		}

		ctx, cancel := context.WithTimeout(q.ctx, q.cfg.Timeout)
		err = task.Run(ctx)
		cancel()

		if err == nil {
			q.metrics.Task(task.Name, metrics.TaskSucceeded)
			return
		}

		if attempt == q.cfg.MaxAttempts {
			break
		}

		q.metrics.Task(task.Name, metrics.TaskRetried)
		q.logger.Debug("Повторная попытка фоновой задачи",
			zap.String("task", task.Name),
			zap.String("short_code", task.Code),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-q.ctx.Done():
		case <-time.After(time.Duration(attempt) * q.cfg.RetryBackoff):
		}
	}

	q.metrics.Task(task.Name, metrics.TaskFailed)
	q.logger.Error("Фоновая задача не выполнена",
		zap.String("task", task.Name),
		zap.String("short_code", task.Code),
		zap.Error(err),
	)
}

// Enqueue неблокирующая постановка задачи. false: очередь заполнена или остановлена.
func (q *taskQueue) Enqueue(task Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.metrics.Task(task.Name, metrics.TaskRejected)
		q.logger.Warn("Очередь остановлена, задача отклонена",
			zap.String("task", task.Name),
			zap.String("short_code", task.Code),
		)
		return false
	}

	select {
	case q.tasks <- task:
		q.metrics.SetQueueDepth(len(q.tasks))
		return true
	default:
		q.metrics.Task(task.Name, metrics.TaskRejected)
		q.logger.Warn("Очередь фоновых задач заполнена, задача отклонена",
			zap.String("task", task.Name),
			zap.String("short_code", task.Code),
		)
		return false
	}
}

// Stats состояние очереди для health-эндпоинта
func (q *taskQueue) Stats() QueueStats {
	return QueueStats{
		BufferSize:  cap(q.tasks),
		BufferUsed:  len(q.tasks),
		WorkerCount: q.cfg.Workers,
	}
}

// QueueStats статистика очереди фоновых задач
type QueueStats struct {
	BufferSize  int `json:"buffer_size"`  // Общая ёмкость очереди
	BufferUsed  int `json:"buffer_used"`  // Текущее заполнение
	WorkerCount int `json:"worker_count"` // Количество воркеров
}
