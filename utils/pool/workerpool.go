/*
 * Copyright 2024 The Framepipe Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pool provides a bounded worker pool for concurrent task execution.
//
// Note: This file is inspired by:
// Valyala, A. (2023) workerpool.go (Version 1.48.0)
// [Source code]. https://github.com/valyala/fasthttp/blob/master/workerpool.go
// 1.Change the Serve(c net.Conn) method to Submit(fn func()) error method
package pool

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

// WorkerPool serves incoming functions using a pool of workers in FILO
// order: the most recently stopped worker serves the next incoming function.
// This scheme keeps CPU caches hot.
type WorkerPool struct {
	// MaxWorkersCount bounds the number of concurrently running workers.
	MaxWorkersCount int

	// MaxIdleWorkerDuration is how long a worker may sit idle before it is
	// cleaned up. Defaults to 10 seconds.
	MaxIdleWorkerDuration time.Duration

	lock         sync.Mutex
	workersCount int
	mustStop     bool

	// idle workers, FILO
	ready []*workerChan

	stopCh         chan struct{}
	workerChanPool sync.Pool
	startOnce      sync.Once
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan func()
}

// Start launches the idle-worker cleanup loop. Safe to call more than once.
func (wp *WorkerPool) Start() {
	if wp.stopCh != nil {
		return
	}
	wp.startOnce.Do(func() {
		wp.stopCh = make(chan struct{})
		stopCh := wp.stopCh
		wp.workerChanPool.New = func() interface{} {
			return &workerChan{
				ch: make(chan func(), workerChanCap),
			}
		}
		go func() {
			var scratch []*workerChan
			for {
				wp.clean(&scratch)
				select {
				case <-stopCh:
					return
				default:
					time.Sleep(wp.getMaxIdleWorkerDuration())
				}
			}
		}()
	})
}

// Stop shuts the pool down. Busy workers finish their current task and then
// exit; idle workers exit immediately.
func (wp *WorkerPool) Stop() {
	if wp.stopCh == nil {
		return
	}
	close(wp.stopCh)
	wp.stopCh = nil

	wp.lock.Lock()
	ready := wp.ready
	for i := range ready {
		ready[i].ch <- nil
		ready[i] = nil
	}
	wp.ready = ready[:0]
	wp.mustStop = true
	wp.lock.Unlock()
}

// Release is an alias for Stop, satisfying the types.Pool contract.
func (wp *WorkerPool) Release() {
	wp.Stop()
}

func (wp *WorkerPool) getMaxIdleWorkerDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

func (wp *WorkerPool) clean(scratch *[]*workerChan) {
	criticalTime := time.Now().Add(-wp.getMaxIdleWorkerDuration())

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready)

	// binary search for the least recently used worker that is still fresh
	l, r, mid := 0, n-1, 0
	for l <= r {
		mid = (l + r) / 2
		if criticalTime.After(wp.ready[mid].lastUseTime) {
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	i := r
	if i == -1 {
		wp.lock.Unlock()
		return
	}

	*scratch = append((*scratch)[:0], ready[:i+1]...)
	m := copy(ready, ready[i+1:])
	for i = m; i < n; i++ {
		ready[i] = nil
	}
	wp.ready = ready[:m]
	wp.lock.Unlock()

	// Notify obsolete workers to stop. Must happen outside the lock since
	// ch.ch may block.
	tmp := *scratch
	for i := range tmp {
		tmp[i].ch <- nil
		tmp[i] = nil
	}
}

// Submit submits a function for execution. It returns an error if no idle
// worker is available and the maximum worker count has been reached.
func (wp *WorkerPool) Submit(fn func()) error {
	ch := wp.getCh()
	if ch == nil {
		return errors.New("no idle workers")
	}
	ch.ch <- fn
	return nil
}

var workerChanCap = func() int {
	// Blocking channel if GOMAXPROCS=1, which immediately switches the
	// submitter to the worker. Buffered otherwise so the submitter does not
	// lag on CPU-bound tasks.
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	return 1
}()

func (wp *WorkerPool) getCh() *workerChan {
	var ch *workerChan
	createWorker := false

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready) - 1
	if n < 0 {
		if wp.workersCount < wp.MaxWorkersCount {
			createWorker = true
			wp.workersCount++
		}
	} else {
		ch = ready[n]
		ready[n] = nil
		wp.ready = ready[:n]
	}
	wp.lock.Unlock()

	if ch == nil {
		if !createWorker {
			return nil
		}
		vch := wp.workerChanPool.Get()
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.workerChanPool.Put(vch)
		}()
	}
	return ch
}

func (wp *WorkerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()
	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return false
	}
	wp.ready = append(wp.ready, ch)
	wp.lock.Unlock()
	return true
}

func (wp *WorkerPool) workerFunc(ch *workerChan) {
	var fn func()
	for fn = range ch.ch {
		if fn == nil {
			break
		}
		fn()
		fn = nil
		if !wp.release(ch) {
			break
		}
	}
	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}
