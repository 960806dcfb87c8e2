package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// TaskStatus represents the status of a background task.
type TaskStatus string

const (
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusStopped  TaskStatus = "stopped"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusCanceled TaskStatus = "canceled"
)

// Task represents a supervised background task.
type Task struct {
	Name        string
	Description string
	StartTime   time.Time
	Status      TaskStatus
	Error       error
	cancel      context.CancelFunc
}

// TaskFunc is a function that runs as a background task.
type TaskFunc func(ctx context.Context) error

// TaskManager supervises named background goroutines with panic recovery
// and coordinated shutdown.
type TaskManager struct {
	tasks  map[string]*Task
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskManager creates a task manager scoped to the given context.
func NewTaskManager(ctx context.Context) *TaskManager {
	ctx, cancel := context.WithCancel(ctx)
	return &TaskManager{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches a new named background task.
func (tm *TaskManager) Start(name, description string, fn TaskFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.tasks[name]; exists {
		return fmt.Errorf("task %s already exists", name)
	}

	taskCtx, taskCancel := context.WithCancel(tm.ctx)
	task := &Task{
		Name:        name,
		Description: description,
		StartTime:   time.Now(),
		Status:      TaskStatusRunning,
		cancel:      taskCancel,
	}
	tm.tasks[name] = task

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"task":  name,
					"panic": r,
				}).Error("Task panicked")
				tm.mu.Lock()
				task.Status = TaskStatusFailed
				task.Error = fmt.Errorf("panic: %v", r)
				tm.mu.Unlock()
			}
		}()

		log.WithFields(log.Fields{
			"task":        name,
			"description": description,
		}).Info("Task started")

		err := fn(taskCtx)

		tm.mu.Lock()
		if err != nil {
			if taskCtx.Err() == context.Canceled {
				task.Status = TaskStatusCanceled
			} else {
				task.Status = TaskStatusFailed
				task.Error = err
				log.WithFields(log.Fields{
					"task":  name,
					"error": err,
				}).Error("Task failed")
			}
		} else {
			task.Status = TaskStatusStopped
			log.WithField("task", name).Info("Task stopped")
		}
		tm.mu.Unlock()
	}()

	return nil
}

// Stop cancels a specific running task.
func (tm *TaskManager) Stop(name string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, exists := tm.tasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}
	if task.Status != TaskStatusRunning {
		return fmt.Errorf("task %s is not running", name)
	}
	task.cancel()
	return nil
}

// StopAll cancels every task.
func (tm *TaskManager) StopAll() {
	tm.cancel()
}

// Wait blocks until all tasks have exited.
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

// ListTasks returns a copy of all task records.
func (tm *TaskManager) ListTasks() []*Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tasks := make([]*Task, 0, len(tm.tasks))
	for _, task := range tm.tasks {
		tasks = append(tasks, &Task{
			Name:        task.Name,
			Description: task.Description,
			StartTime:   task.StartTime,
			Status:      task.Status,
			Error:       task.Error,
		})
	}
	return tasks
}
