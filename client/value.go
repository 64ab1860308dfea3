// Copyright 2025 Google LLC
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

package client

import (
	"fmt"
	"slices"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/fmt/fmtarray"
)

// Value is the data of an array fetched from the backend.
type Value struct {
	shape shape.Shape
	data  []byte
}

func newValue(sh shape.Shape, data []byte) *Value {
	sh.AxisLengths = slices.Clone(sh.AxisLengths)
	return &Value{shape: sh, data: data}
}

// Shape of the value.
func (v *Value) Shape() *shape.Shape {
	return &v.shape
}

// Bytes returns the raw data of the value in row-major order.
func (v *Value) Bytes() []byte {
	return v.data
}

// ToSlice returns the elements of a value in row-major order.
func ToSlice[T dtype.GoDataType](v *Value) ([]T, error) {
	if want := dtype.Generic[T](); v.shape.DType != want {
		return nil, errors.Errorf("cannot convert a %s value to a %s slice", v.shape.DType.String(), want.String())
	}
	if len(v.data) == 0 {
		return []T{}, nil
	}
	return dtype.ToSlice[T](slices.Clone(v.data)), nil
}

// ToAtom returns the element of a value with no axes.
func ToAtom[T dtype.GoDataType](v *Value) (T, error) {
	var zero T
	if len(v.shape.AxisLengths) != 0 {
		return zero, errors.Errorf("cannot convert a value with axes %v to an atom", v.shape.AxisLengths)
	}
	vals, err := ToSlice[T](v)
	if err != nil {
		return zero, err
	}
	if len(vals) != 1 {
		return zero, errors.Errorf("value holds %d elements but want 1", len(vals))
	}
	return vals[0], nil
}

// Float64s returns the elements of a float64 value.
func (v *Value) Float64s() ([]float64, error) {
	return ToSlice[float64](v)
}

// Float64 returns the element of a float64 value with no axes.
func (v *Value) Float64() (float64, error) {
	return ToAtom[float64](v)
}

func sprint[T dtype.GoDataType](v *Value) string {
	vals, err := ToSlice[T](v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return fmtarray.Sprint(vals, v.shape.AxisLengths)
}

func (v *Value) String() string {
	switch v.shape.DType {
	case dtype.Float32:
		return sprint[float32](v)
	case dtype.Float64:
		return sprint[float64](v)
	case dtype.Int32:
		return sprint[int32](v)
	case dtype.Int64:
		return sprint[int64](v)
	}
	return fmt.Sprintf("%s%v%x", v.shape.DType.String(), v.shape.AxisLengths, v.data)
}
