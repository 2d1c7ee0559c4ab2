// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package job runs a task on a fixed interval.
package job

import (
	"context"
	"sync/atomic"
	"time"
)

// Job calls its task every interval. A tick that arrives while the previous call is still
// running is dropped.
type Job struct {
	interval time.Duration
	task     func(context.Context)
	running  atomic.Bool
}

func New(interval time.Duration, task func(context.Context)) *Job {
	return &Job{
		interval: interval,
		task:     task,
	}
}

// Start blocks until ctx is canceled. Tasks receive ctx and should return once it is done.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !j.running.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer j.running.Store(false)
				j.task(ctx)
			}()
		}
	}
}

// Running reports whether a task call is in progress.
func (j *Job) Running() bool {
	return j.running.Load()
}
