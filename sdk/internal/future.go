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
	"reflect"

	"github.com/ngnhng/replayflow/api/serde"
)

type FutureState int

const (
	FuturePending FutureState = iota
	FutureFulfilled
	FutureFailed
)

func (s FutureState) String() string {
	switch s {
	case FuturePending:
		return "pending"
	case FutureFulfilled:
		return "fulfilled"
	case FutureFailed:
		return "failed"
	default:
		return fmt.Sprintf("FutureState(%d)", int(s))
	}
}

var _ Future = (*future)(nil)

type Future interface {
	// Get suspends the calling coroutine until the future settles, then
	// decodes the value into valuePtr or returns the failure.
	Get(ctx Context, valuePtr any) error
	// Peek returns the current state without suspending.
	Peek() FutureState
	IsReady() bool
	// Seq is the creation sequence number, stable across replays.
	Seq() int64
}

type (
	// encodedValue is a payload produced by a task or a workflow.
	encodedValue []byte
	// joinedValue holds the inputs of a join, in input order.
	joinedValue []*future
)

type future struct {
	seq   int64
	state FutureState
	value any
	err   error

	listeners []func()
	serde     serde.BinarySerde
	converter *serde.TypeConverter
}

func (f *future) Seq() int64        { return f.seq }
func (f *future) Peek() FutureState { return f.state }
func (f *future) IsReady() bool     { return f.state != FuturePending }
func (f *future) settled() bool     { return f.state != FuturePending }
func (f *future) String() string    { return fmt.Sprintf("future#%d(%s)", f.seq, f.state) }

// resolve settles the future and runs its listeners in registration order.
func (f *future) resolve(value any, err error) error {
	if f.state != FuturePending {
		return fmt.Errorf("%w: future #%d is already %s", ErrDoubleResolution, f.seq, f.state)
	}
	if err != nil {
		f.state = FutureFailed
		f.err = err
	} else {
		f.state = FutureFulfilled
		f.value = value
	}

	listeners := f.listeners
	f.listeners = nil
	for _, l := range listeners {
		l()
	}
	return nil
}

func (f *future) onSettled(fn func()) {
	if f.settled() {
		fn()
		return
	}
	f.listeners = append(f.listeners, fn)
}

func (f *future) Get(ctx Context, valuePtr any) error {
	if !f.settled() {
		wc, ok := ctx.(*workflowContext)
		if !ok || wc == nil || wc.exec.dispatcher.current == nil {
			panic(ErrReadOutsideScheduler)
		}
		wc.exec.dispatcher.current.waitUntil(f.settled, f.seq)
	}
	if f.err != nil {
		return f.err
	}
	return f.decode(valuePtr)
}

func (f *future) decode(valuePtr any) error {
	if valuePtr == nil || f.value == nil {
		return nil
	}
	target := reflect.ValueOf(valuePtr)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("future #%d: value pointer must be a non-nil pointer, got %T", f.seq, valuePtr)
	}

	switch v := f.value.(type) {
	case encodedValue:
		if len(v) == 0 {
			return nil
		}
		if err := f.serde.DeserializeBinary(v, valuePtr); err != nil {
			return fmt.Errorf("future #%d: %w", f.seq, err)
		}
		return nil
	case joinedValue:
		slice := target.Elem()
		if slice.Kind() != reflect.Slice {
			return fmt.Errorf("future #%d: joined value needs a slice pointer, got %T", f.seq, valuePtr)
		}
		out := reflect.MakeSlice(slice.Type(), len(v), len(v))
		for i, part := range v {
			if err := part.decode(out.Index(i).Addr().Interface()); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		slice.Set(out)
		return nil
	default:
		converted, err := f.converter.ConvertToType(v, target.Elem().Type())
		if err != nil {
			return fmt.Errorf("future #%d: %w", f.seq, err)
		}
		target.Elem().Set(converted)
		return nil
	}
}

// firstFailure returns the failure of the lowest-index failed future.
func firstFailure(futures []*future) error {
	for _, f := range futures {
		if f.state == FutureFailed {
			return f.err
		}
	}
	return nil
}

// whenAllSettled calls fn once every future has settled. With no futures it
// calls fn immediately.
func whenAllSettled(futures []*future, fn func()) {
	remaining := 0
	for _, f := range futures {
		if !f.settled() {
			remaining++
		}
	}
	if remaining == 0 {
		fn()
		return
	}
	for _, f := range futures {
		if f.settled() {
			continue
		}
		f.onSettled(func() {
			remaining--
			if remaining == 0 {
				fn()
			}
		})
	}
}

func asFutures(in []Future) []*future {
	out := make([]*future, 0, len(in))
	for _, f := range in {
		impl, ok := f.(*future)
		if !ok {
			panic(fmt.Sprintf("unsupported future implementation %T", f))
		}
		out = append(out, impl)
	}
	return out
}
