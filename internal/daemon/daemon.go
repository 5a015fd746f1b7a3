package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is the work a background daemon does. It should run until the context
// is cancelled.
type Task func(ctx context.Context, name string) error

// Manager supervises background tasks and restarts them when they fail.
type Manager struct {
	logger  *slog.Logger
	daemons map[string]Task
	wg      sync.WaitGroup
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		daemons: make(map[string]Task),
	}
}

func (m *Manager) Add(name string, task Task) {
	m.daemons[name] = task
}

func (m *Manager) Start(ctx context.Context) {
	for name, task := range m.daemons {
		m.wg.Add(1)
		go m.supervise(ctx, name, task)
	}
}

// Wait blocks until every daemon has stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) supervise(ctx context.Context, name string, task Task) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Daemon received shutdown signal", "daemon", name)
			return
		default:
			if err := task(ctx, name); err != nil {
				m.logger.Error("Daemon crashed, restarting", "daemon", name, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
				continue
			}
			m.logger.Info("Daemon exited cleanly", "daemon", name)
			return
		}
	}
}
