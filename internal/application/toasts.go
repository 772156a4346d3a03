package application

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/averlane/beatlink-cli/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	defaultToastDwell = 2 * time.Second
	toastFile         = "toasts.toml"
	toastFileMode     = 0o600
	toastDirMode      = 0o700
)

type toastSnapshot struct {
	Toasts []domain.Toast `toml:"toasts"`
}

// ToastQueue is the strictly-FIFO queue behind the one-at-a-time notice
// surface. Each popped toast is shown for the dwell time. The queue is
// persisted per state dir as a best-effort cache and reconstructs cleanly
// from a missing or corrupt snapshot.
type ToastQueue struct {
	path   string
	dwell  time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	items []domain.Toast
}

// NewToastQueue loads any persisted snapshot from stateDir. An empty
// stateDir keeps the queue memory-only.
func NewToastQueue(stateDir string, dwell time.Duration, logger *zap.Logger) *ToastQueue {
	if dwell <= 0 {
		dwell = defaultToastDwell
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &ToastQueue{dwell: dwell, logger: logger}
	if stateDir != "" {
		q.path = filepath.Join(stateDir, toastFile)
		q.load()
	}
	return q
}

func (q *ToastQueue) Push(toast domain.Toast) {
	q.mu.Lock()
	q.items = append(q.items, toast)
	q.persistLocked()
	q.mu.Unlock()
}

// Pop removes and returns the oldest toast.
func (q *ToastQueue) Pop() (domain.Toast, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return domain.Toast{}, false
	}
	toast := q.items[0]
	q.items = append([]domain.Toast(nil), q.items[1:]...)
	q.persistLocked()
	return toast, true
}

func (q *ToastQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dwell is how long a popped toast stays visible.
func (q *ToastQueue) Dwell() time.Duration {
	return q.dwell
}

func (q *ToastQueue) load() {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			q.logger.Warn("read toast snapshot", zap.Error(err))
		}
		return
	}

	var snapshot toastSnapshot
	if err := toml.Unmarshal(data, &snapshot); err != nil {
		q.logger.Warn("decode toast snapshot, starting empty", zap.Error(err))
		return
	}
	q.items = snapshot.Toasts
}

func (q *ToastQueue) persistLocked() {
	if q.path == "" {
		return
	}

	data, err := toml.Marshal(toastSnapshot{Toasts: q.items})
	if err != nil {
		q.logger.Warn("encode toast snapshot", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(q.path), toastDirMode); err != nil {
		q.logger.Warn("create state directory", zap.Error(err))
		return
	}
	if err := os.WriteFile(q.path, data, toastFileMode); err != nil {
		q.logger.Warn("write toast snapshot", zap.Error(err))
	}
}
