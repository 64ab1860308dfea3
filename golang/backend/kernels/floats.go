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

// Package kernels implements the array operations of the reference backend in Go.
package kernels

import (
	"bytes"
	"math"
	"slices"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/tiles/fmt/fmtarray"
)

type (
	// Float values supported by the kernels.
	Float interface {
		float32 | float64
	}

	// Array is a multi-dimensional array of floating point values
	// owned by the backend. Arrays are never modified once built.
	Array[T Float] struct {
		shape  shape.Shape
		values []T
	}

	// Unary kernel like copy or sqrt.
	Unary[T Float] func(*Array[T]) (*Array[T], error)

	// Binary kernel like +, -, *, /.
	Binary[T Float] func(*Array[T], *Array[T]) (*Array[T], error)

	// Ternary kernel like axpy.
	Ternary[T Float] func(*Array[T], *Array[T], *Array[T]) (*Array[T], error)
)

// New returns an array given its values and the length of its axes.
func New[T Float](values []T, axes []int) (*Array[T], error) {
	a := &Array[T]{
		shape: shape.Shape{
			DType:       dtype.Generic[T](),
			AxisLengths: axes,
		},
		values: values,
	}
	if len(values) != a.shape.Size() {
		return nil, errors.Errorf("mismatch between the number of values (=%d) and the number of elements (=%d) in shape %s", len(values), a.shape.Size(), a.shape.String())
	}
	return a, nil
}

// Atom returns an atomic array.
func Atom[T Float](v T) *Array[T] {
	return &Array[T]{
		shape:  shape.Shape{DType: dtype.Generic[T]()},
		values: []T{v},
	}
}

// Fill returns an array with all elements set to the same value.
func Fill[T Float](v T, axes []int) *Array[T] {
	sh := shape.Shape{DType: dtype.Generic[T](), AxisLengths: axes}
	values := make([]T, sh.Size())
	for i := range values {
		values[i] = v
	}
	return &Array[T]{shape: sh, values: values}
}

// FromRaw returns a new array from raw data.
func FromRaw[T Float](data []byte, axes []int) (*Array[T], error) {
	var values []T
	if len(data) > 0 {
		values = dtype.ToSlice[T](bytes.Clone(data))
	}
	return New(values, axes)
}

// Shape of the array.
func (a *Array[T]) Shape() *shape.Shape {
	return &a.shape
}

// Values of the array in row-major order.
func (a *Array[T]) Values() []T {
	return a.values
}

// Axes returns the length of each axis.
func (a *Array[T]) Axes() []int {
	return a.shape.AxisLengths
}

// IsAtomic returns true if the array holds a single value and has no axis.
func (a *Array[T]) IsAtomic() bool {
	return len(a.shape.AxisLengths) == 0
}

// Buffer returns the data of the array as a generic []byte buffer.
func (a *Array[T]) Buffer() []byte {
	if len(a.values) == 0 {
		return []byte{}
	}
	ptr := unsafe.Pointer(&(a.values[0]))
	return unsafe.Slice((*byte)(ptr), len(a.values)*dtype.Sizeof(a.shape.DType))
}

// String representation of the array.
func (a *Array[T]) String() string {
	return fmtarray.Sprint[T](a.values, a.shape.AxisLengths)
}

func sameShape[T Float](op string, x, y *Array[T]) error {
	if !slices.Equal(x.Axes(), y.Axes()) {
		return errors.Errorf("operator %s not supported between %s and %s: shape mismatch", op, x.shape.String(), y.shape.String())
	}
	return nil
}

func elementwise[T Float](x, y *Array[T], f func(T, T) T) *Array[T] {
	z := make([]T, len(x.values))
	for i, xi := range x.values {
		z[i] = f(xi, y.values[i])
	}
	return &Array[T]{shape: x.shape, values: z}
}

// Add two arrays of the same shape.
func Add[T Float](x, y *Array[T]) (*Array[T], error) {
	if err := sameShape("+", x, y); err != nil {
		return nil, err
	}
	return elementwise(x, y, func(xi, yi T) T { return xi + yi }), nil
}

// Sub subtracts two arrays of the same shape.
func Sub[T Float](x, y *Array[T]) (*Array[T], error) {
	if err := sameShape("-", x, y); err != nil {
		return nil, err
	}
	return elementwise(x, y, func(xi, yi T) T { return xi - yi }), nil
}

func scale[T Float](s T, y *Array[T]) *Array[T] {
	z := make([]T, len(y.values))
	for i, yi := range y.values {
		z[i] = s * yi
	}
	return &Array[T]{shape: y.shape, values: z}
}

// Mul multiplies an array by an atomic value. At least one operand must be atomic.
func Mul[T Float](x, y *Array[T]) (*Array[T], error) {
	switch {
	case x.IsAtomic():
		return scale(x.values[0], y), nil
	case y.IsAtomic():
		return scale(y.values[0], x), nil
	}
	return nil, errors.Errorf("operator * not supported between %s and %s: one operand must be atomic", x.shape.String(), y.shape.String())
}

// Div divides two atomic values.
func Div[T Float](x, y *Array[T]) (*Array[T], error) {
	if !x.IsAtomic() || !y.IsAtomic() {
		return nil, errors.Errorf("operator / not supported between %s and %s: operands must be atomic", x.shape.String(), y.shape.String())
	}
	return Atom(x.values[0] / y.values[0]), nil
}

// MatMul computes matrix-matrix, matrix-vector, or vector-vector products.
func MatMul[T Float](x, y *Array[T]) (*Array[T], error) {
	xAxes, yAxes := x.Axes(), y.Axes()
	switch {
	case len(xAxes) == 1 && len(yAxes) == 1 && xAxes[0] == yAxes[0]:
		var dot T
		for i, xi := range x.values {
			dot += xi * y.values[i]
		}
		return Atom(dot), nil
	case len(xAxes) == 2 && len(yAxes) == 1 && xAxes[1] == yAxes[0]:
		rows, cols := xAxes[0], xAxes[1]
		z := make([]T, rows)
		for r := range rows {
			for c := range cols {
				z[r] += x.values[r*cols+c] * y.values[c]
			}
		}
		return New(z, []int{rows})
	case len(xAxes) == 2 && len(yAxes) == 2 && xAxes[1] == yAxes[0]:
		rows, inner, cols := xAxes[0], xAxes[1], yAxes[1]
		z := make([]T, rows*cols)
		for r := range rows {
			for k := range inner {
				xrk := x.values[r*inner+k]
				for c := range cols {
					z[r*cols+c] += xrk * y.values[k*cols+c]
				}
			}
		}
		return New(z, []int{rows, cols})
	}
	return nil, errors.Errorf("operator @ not supported between %s and %s: dimension mismatch", x.shape.String(), y.shape.String())
}

// Copy returns a copy of an array.
func Copy[T Float](x *Array[T]) (*Array[T], error) {
	return &Array[T]{shape: x.shape, values: slices.Clone(x.values)}, nil
}

// Sqrt computes the square root of all the elements of an array.
func Sqrt[T Float](x *Array[T]) (*Array[T], error) {
	z := make([]T, len(x.values))
	for i, xi := range x.values {
		z[i] = T(math.Sqrt(float64(xi)))
	}
	return &Array[T]{shape: x.shape, values: z}, nil
}

// Axpy computes a*x+y where a is atomic.
func Axpy[T Float](a, x, y *Array[T]) (*Array[T], error) {
	if !a.IsAtomic() {
		return nil, errors.Errorf("axpy: factor of shape %s is not atomic", a.shape.String())
	}
	if err := sameShape("axpy", x, y); err != nil {
		return nil, err
	}
	s := a.values[0]
	return elementwise(x, y, func(xi, yi T) T { return s*xi + yi }), nil
}

// AxpyMultiplier computes m*a*x+y where m and a are atomic.
func AxpyMultiplier[T Float](a, x, y, m *Array[T]) (*Array[T], error) {
	if !m.IsAtomic() {
		return nil, errors.Errorf("axpy: multiplier of shape %s is not atomic", m.shape.String())
	}
	if !a.IsAtomic() {
		return nil, errors.Errorf("axpy: factor of shape %s is not atomic", a.shape.String())
	}
	return Axpy(Atom(m.values[0]*a.values[0]), x, y)
}
