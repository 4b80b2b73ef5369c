// Copyright 2025 Nguyen Nhat Nguyen
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

package internal

import (
	"fmt"
	"runtime/debug"
)

// dispatcher runs the coroutines of one decision cycle. Exactly one coroutine
// executes at a time; control moves through unbuffered channels, so state
// shared between coroutines needs no locking.
type dispatcher struct {
	coroutines []*coroutine
	current    *coroutine
	closed     bool
}

// cycleEnded unwinds a coroutine still parked when its decision cycle closes.
type cycleEnded struct{}

type coroutine struct {
	id   int
	name string
	fn   func()

	resume chan bool
	yield  chan struct{}

	started  bool
	finished bool

	// blockedOn is non-nil while the coroutine is parked.
	blockedOn  func() bool
	blockedSeq int64

	err error
}

func (d *dispatcher) spawn(name string, fn func()) *coroutine {
	co := &coroutine{
		id:     len(d.coroutines),
		name:   name,
		fn:     fn,
		resume: make(chan bool),
		yield:  make(chan struct{}),
	}
	d.coroutines = append(d.coroutines, co)
	return co
}

func (co *coroutine) runnable() bool {
	if co.finished {
		return false
	}
	return !co.started || co.blockedOn()
}

// step hands control to the coroutine and waits until it parks or returns.
func (co *coroutine) step() {
	if !co.started {
		co.started = true
		go co.body()
	} else {
		co.resume <- true
	}
	<-co.yield
}

func (co *coroutine) body() {
	defer func() {
		if r := recover(); r != nil {
			if _, unwound := r.(cycleEnded); !unwound {
				co.err = &PanicError{Value: r, Stack: string(debug.Stack())}
			}
		}
		co.finished = true
		co.blockedOn = nil
		co.yield <- struct{}{}
	}()
	co.fn()
}

// waitUntil parks the calling coroutine until cond holds. It must run on the
// coroutine's own goroutine.
func (co *coroutine) waitUntil(cond func() bool, seq int64) {
	for !cond() {
		co.blockedOn = cond
		co.blockedSeq = seq
		co.yield <- struct{}{}
		if ok := <-co.resume; !ok {
			panic(cycleEnded{})
		}
	}
	co.blockedOn = nil
	co.blockedSeq = 0
}

// runUntilBlocked sweeps the coroutines in creation order, stepping every
// runnable one, until none can make progress.
func (d *dispatcher) runUntilBlocked() error {
	if d.closed {
		return fmt.Errorf("dispatcher already closed")
	}
	for {
		progressed := false
		for i := 0; i < len(d.coroutines); i++ {
			co := d.coroutines[i]
			if !co.runnable() {
				continue
			}
			d.current = co
			co.step()
			d.current = nil
			progressed = true
			if co.err != nil {
				return co.err
			}
		}
		if !progressed {
			return nil
		}
	}
}

// close unwinds every parked coroutine so no goroutine outlives the cycle.
func (d *dispatcher) close() {
	if d.closed {
		return
	}
	d.closed = true
	for _, co := range d.coroutines {
		if !co.started || co.finished {
			continue
		}
		d.current = co
		for !co.finished {
			co.resume <- false
			<-co.yield
		}
		d.current = nil
	}
}
