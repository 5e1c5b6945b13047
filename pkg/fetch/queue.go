// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fetch

import "sync"

// 📬 Queue runs dispatched callbacks one at a time, in order, on its own
// goroutine. Pass q.Dispatch to WithDispatcher. Dispatch never blocks, so a
// callback may dispatch further callbacks.
type Queue struct {
	mu      sync.Mutex
	closed  bool
	pending []func()
	wake    chan struct{}
	done    chan struct{}
}

// NewQueue starts a queue with room for size callbacks before it grows
func NewQueue(size int) *Queue {
	q := &Queue{
		pending: make([]func(), 0, size),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		f := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		f()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dispatch enqueues f. Callbacks dispatched after Close are dropped.
func (q *Queue) Dispatch(f func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, f)
	q.mu.Unlock()
	q.signal()
}

// Close runs the callbacks already queued and stops the queue. It must not be
// called from a callback.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}
