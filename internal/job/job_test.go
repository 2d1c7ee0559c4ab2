// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"
)

func TestJob_Start(t *testing.T) {
	t.Run("task runs on every tick", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var calls atomic.Int32
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			go New(time.Second, func(context.Context) { calls.Add(1) }).Start(ctx)

			time.Sleep(time.Second*3 + time.Millisecond)
			synctest.Wait()
			if got := calls.Load(); got != 3 {
				t.Errorf("expected 3 calls, got %d", got)
			}
		})
	})
	t.Run("start returns on cancel", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			done := make(chan struct{})
			go func() {
				New(time.Second, func(context.Context) {}).Start(ctx)
				close(done)
			}()

			synctest.Wait()
			select {
			case <-done:
				t.Fatal("expected job to run until the context is canceled")
			default:
			}
			cancel()
			synctest.Wait()
			select {
			case <-done:
			default:
				t.Fatal("expected job to return after the context was canceled")
			}
		})
	})
	t.Run("overlapping ticks are dropped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var calls atomic.Int32
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			job := New(time.Second, func(ctx context.Context) {
				calls.Add(1)
				select {
				case <-ctx.Done():
				case <-time.After(time.Millisecond * 3500):
				}
			})
			go job.Start(ctx)

			time.Sleep(time.Second + time.Millisecond)
			synctest.Wait()
			if !job.Running() {
				t.Error("expected task to be running")
			}
			time.Sleep(time.Second * 3)
			synctest.Wait()
			if got := calls.Load(); got != 1 {
				t.Errorf("expected 1 call while the first one runs, got %d", got)
			}
			time.Sleep(time.Second)
			synctest.Wait()
			if got := calls.Load(); got != 2 {
				t.Errorf("expected 2 calls, got %d", got)
			}
		})
	})
	t.Run("nil task or zero interval return immediately", func(t *testing.T) {
		New(time.Second, nil).Start(t.Context())
		New(0, func(context.Context) {}).Start(t.Context())
	})
}
