package dispatch

import (
	"context"
	"sync"
	"time"
)

type Stage int

const (
	// StagePending — повторный бродкаст всем активным курьерам, пока заказ
	// никто не взял.
	StagePending Stage = iota + 1
	// StageClaimed — напоминание взявшему курьеру, пока не доставлено.
	StageClaimed
)

type timerKey struct {
	orderID int64
	stage   Stage
}

type registryEntry struct {
	stop chan struct{}
}

// TimerRegistry держит не больше одного таймера на пару (заказ, стадия).
// Schedule для той же пары сначала снимает существующий таймер.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[timerKey]*registryEntry
}

func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[timerKey]*registryEntry)}
}

// Schedule запускает повторяющийся таймер. fn возвращает false, чтобы таймер
// снялся сам (например, статус ушёл из применимого диапазона стадии).
func (r *TimerRegistry) Schedule(orderID int64, stage Stage, interval time.Duration, fn func(ctx context.Context) bool) {
	if interval <= 0 || fn == nil {
		return
	}
	key := timerKey{orderID: orderID, stage: stage}
	e := &registryEntry{stop: make(chan struct{})}

	r.mu.Lock()
	if old, ok := r.timers[key]; ok {
		close(old.stop)
	}
	r.timers[key] = e
	r.mu.Unlock()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-t.C:
				select {
				case <-e.stop:
					return
				default:
				}
				if !fn(context.Background()) {
					r.remove(key, e)
					return
				}
			}
		}
	}()
}

func (r *TimerRegistry) remove(key timerKey, e *registryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.timers[key]; ok && cur == e {
		delete(r.timers, key)
	}
}

func (r *TimerRegistry) Cancel(orderID int64, stage Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := timerKey{orderID: orderID, stage: stage}
	e, ok := r.timers[key]
	if !ok {
		return false
	}
	close(e.stop)
	delete(r.timers, key)
	return true
}

func (r *TimerRegistry) Active(orderID int64, stage Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[timerKey{orderID: orderID, stage: stage}]
	return ok
}

func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *TimerRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.timers {
		close(e.stop)
		delete(r.timers, k)
	}
}
