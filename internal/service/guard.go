package service

import (
	"context"
	"sync"

	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"
)

// Guard admits one mutating operation at a time.
type Guard struct {
	slot chan struct{}

	mu      sync.Mutex
	current models.Operation
}

// NewGuard creates an idle guard.
func NewGuard() *Guard {
	return &Guard{slot: make(chan struct{}, 1)}
}

// TryAcquire takes the slot for op without waiting. When the slot is
// held it returns an operation_in_progress error naming the holder.
func (g *Guard) TryAcquire(op models.Operation) (func(), error) {
	select {
	case g.slot <- struct{}{}:
		return g.hold(op), nil
	default:
		return nil, apperrors.OperationInProgress(string(g.Current()))
	}
}

// Acquire waits for the slot until ctx is done.
func (g *Guard) Acquire(ctx context.Context, op models.Operation) (func(), error) {
	select {
	case g.slot <- struct{}{}:
		return g.hold(op), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Guard) hold(op models.Operation) func() {
	g.mu.Lock()
	g.current = op
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.current = ""
			g.mu.Unlock()
			<-g.slot
		})
	}
}

// Current names the operation holding the slot, or "".
func (g *Guard) Current() models.Operation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
