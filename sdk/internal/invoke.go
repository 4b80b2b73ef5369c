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
	"context"
	"fmt"
	"reflect"

	"github.com/ngnhng/replayflow/api/serde"
)

var (
	contextType         = reflect.TypeOf((*context.Context)(nil)).Elem()
	workflowContextType = reflect.TypeOf((*Context)(nil)).Elem()
	errorInterface      = reflect.TypeOf((*error)(nil)).Elem()
)

// handlerShape is a validated handler of the form func(first[, In]) ([Out,] error).
type handlerShape struct {
	fn     reflect.Value
	in     reflect.Type
	hasOut bool
}

func newHandlerShape(fn any, first reflect.Type) (*handlerShape, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler is nil")
	}
	fnv := reflect.ValueOf(fn)
	fnt := fnv.Type()
	if fnt.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler is not a function: %T", fn)
	}
	if fnt.IsVariadic() {
		return nil, fmt.Errorf("handler must not be variadic")
	}
	if fnt.NumIn() < 1 || fnt.NumIn() > 2 || fnt.In(0) != first {
		return nil, fmt.Errorf("handler must accept %s and at most one input, got %s", first, fnt)
	}
	if fnt.NumOut() < 1 || fnt.NumOut() > 2 || !fnt.Out(fnt.NumOut()-1).Implements(errorInterface) {
		return nil, fmt.Errorf("handler must return ([Out,] error), got %s", fnt)
	}

	shape := &handlerShape{fn: fnv, hasOut: fnt.NumOut() == 2}
	if fnt.NumIn() == 2 {
		shape.in = fnt.In(1)
	}
	return shape, nil
}

// call decodes input, invokes the handler and encodes its output.
func (h *handlerShape) call(first any, input []byte, s serde.BinarySerde) ([]byte, error) {
	args := []reflect.Value{reflect.ValueOf(first)}
	if h.in != nil {
		arg := reflect.New(h.in)
		if len(input) > 0 {
			if err := s.DeserializeBinary(input, arg.Interface()); err != nil {
				return nil, fmt.Errorf("decode input: %w", err)
			}
		}
		args = append(args, arg.Elem())
	}

	out := h.fn.Call(args)
	if errv := out[len(out)-1]; !errv.IsNil() {
		return nil, errv.Interface().(error)
	}
	if !h.hasOut {
		return nil, nil
	}
	data, err := s.SerializeBinary(out[0].Interface())
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	return data, nil
}
