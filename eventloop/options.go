// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

// defaultWorkerPoolSize bounds concurrent QueueWork calls, unless configured.
const defaultWorkerPoolSize = 4

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	workerPoolSize int
	metricsEnabled bool
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger configures the structured logger, used for recovered panics,
// poll failures, and handle lifecycle diagnostics. A nil logger disables
// logging, which is also the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithWorkerPoolSize bounds the number of QueueWork functions (including
// asynchronous filesystem operations) that may run concurrently.
func WithWorkerPoolSize(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 1 {
			return fmt.Errorf("eventloop: invalid worker pool size: %d", n)
		}
		opts.workerPoolSize = n
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Loop.
// When enabled, metrics can be accessed via Loop.Metrics().
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		workerPoolSize: defaultWorkerPoolSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
