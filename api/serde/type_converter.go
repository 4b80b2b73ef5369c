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

package serde

import (
	"fmt"
	"math"
	"reflect"
)

// TypeConverter turns loosely typed values, such as numbers and maps decoded
// into any, into a concrete Go type.
type TypeConverter struct {
	serde BinarySerde
}

func NewTypeConverter(s BinarySerde) *TypeConverter {
	return &TypeConverter{serde: s}
}

// ConvertToType converts value to target. Numbers convert directly and fail
// when the conversion would drop a fraction. Everything else is re-encoded
// with the converter's serde and decoded into target.
func (tc *TypeConverter) ConvertToType(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type() == target:
		return v, nil
	case isNumeric(v.Kind()) && isNumeric(target.Kind()):
		return convertNumber(v, target)
	case v.Type().ConvertibleTo(target) && !isNumeric(v.Kind()):
		return v.Convert(target), nil
	default:
		return tc.roundTrip(value, target)
	}
}

func convertNumber(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	if isFloat(v.Kind()) && !isFloat(target.Kind()) {
		f := v.Float()
		if f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("cannot convert %v to %s without losing its fraction", f, target)
		}
	}
	return v.Convert(target), nil
}

func (tc *TypeConverter) roundTrip(value any, target reflect.Type) (reflect.Value, error) {
	data, err := tc.serde.SerializeBinary(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("convert %T to %s: %w", value, target, err)
	}
	elem := target
	if target.Kind() == reflect.Pointer {
		elem = target.Elem()
	}
	out := reflect.New(elem)
	if err := tc.serde.DeserializeBinary(data, out.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("convert %T to %s: %w", value, target, err)
	}
	if target.Kind() == reflect.Pointer {
		return out, nil
	}
	return out.Elem(), nil
}

func isNumeric(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || isFloat(k)
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
