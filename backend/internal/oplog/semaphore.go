package oplog

import (
	"context"
	"errors"
)

// Semaphore 基于带缓冲通道的计数信号量，限制并发度。
type Semaphore struct {
	ch chan struct{}
}

func NewSemaphore(max int) *Semaphore {
	if max <= 0 {
		max = 100
	}
	return &Semaphore{ch: make(chan struct{}, max)}
}

func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.New("Acquire reach time limit")
	}
}

func (s *Semaphore) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return errors.New("Release failed, semaphore is not acquired")
	}
}
