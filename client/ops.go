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
	"slices"

	"github.com/grailbio/base/log"
	"github.com/gx-org/backend/dtype"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/graph"
	"github.com/gx-org/tiles/wire"
)

// shapeRule returns the axes of the result of an operation given its operands.
// The record of a scalar literal is nil.
type shapeRule func(recs []*graph.Record) ([]int, error)

func numAxes(rec *graph.Record) int {
	if rec == nil {
		return 0
	}
	return rec.NumAxes()
}

func axesOf(rec *graph.Record) []int {
	if rec == nil {
		return []int{}
	}
	return slices.Clone(rec.Axes)
}

func sameShape(x, y *graph.Record) error {
	if x == nil || y == nil {
		return errors.Wrapf(ErrShapeMismatch, "elementwise operation requires two arrays")
	}
	if !slices.Equal(x.Axes, y.Axes) {
		return errors.Wrapf(ErrShapeMismatch, "%v and %v", x.Axes, y.Axes)
	}
	return nil
}

func elementwise(recs []*graph.Record) ([]int, error) {
	if err := sameShape(recs[0], recs[1]); err != nil {
		return nil, err
	}
	return axesOf(recs[0]), nil
}

func unaryShape(recs []*graph.Record) ([]int, error) {
	return axesOf(recs[0]), nil
}

func scaleShape(recs []*graph.Record) ([]int, error) {
	x, y := recs[0], recs[1]
	switch {
	case numAxes(x) == 0:
		return axesOf(y), nil
	case numAxes(y) == 0:
		return axesOf(x), nil
	}
	return nil, errors.Wrapf(ErrDimensionMismatch, "one operand needs to be a scalar but got %d and %d axes", numAxes(x), numAxes(y))
}

func scalarShape(recs []*graph.Record) ([]int, error) {
	for _, rec := range recs {
		if numAxes(rec) != 0 {
			return nil, errors.Wrapf(ErrDimensionMismatch, "operands need to be scalars but got %d axes", numAxes(rec))
		}
	}
	return []int{}, nil
}

func matmulShape(recs []*graph.Record) ([]int, error) {
	x, y := recs[0].Axes, recs[1].Axes
	switch {
	case len(x) == 2 && len(y) == 2:
		if x[1] == y[0] {
			return []int{x[0], y[1]}, nil
		}
	case len(x) == 2 && len(y) == 1:
		if x[1] == y[0] {
			return []int{x[0]}, nil
		}
	case len(x) == 1 && len(y) == 1:
		if x[0] == y[0] {
			return []int{}, nil
		}
	}
	return nil, errors.Wrapf(ErrDimensionMismatch, "cannot multiply %v by %v", x, y)
}

func axpyShape(recs []*graph.Record) ([]int, error) {
	if numAxes(recs[0]) != 0 {
		return nil, errors.Wrapf(ErrDimensionMismatch, "multiplier needs to be a scalar but got %d axes", numAxes(recs[0]))
	}
	if err := sameShape(recs[1], recs[2]); err != nil {
		return nil, err
	}
	return axesOf(recs[2]), nil
}

// resolve returns the graph operand of an argument of an operation and the
// record of the array if the argument is an array.
// The session lock must be held.
func (s *Session) resolve(x Operand) (graph.Operand, *graph.Record, error) {
	switch x := x.(type) {
	case Scalar:
		return graph.Scalar(float64(x)), nil, nil
	case *Array:
		if x == nil {
			return graph.Operand{}, nil, errors.Errorf("nil array")
		}
		if x.sess != s {
			return graph.Operand{}, nil, errors.Errorf("array %s belongs to another session", x.name)
		}
		rec, err := x.record()
		if err != nil {
			return graph.Operand{}, nil, err
		}
		return graph.ArrayRef(x.name), rec, nil
	}
	return graph.Operand{}, nil, errors.Errorf("operand type %T not supported", x)
}

// apply records an operation in the graph.
// The graph is sent to the backend if the operation is too deep.
func (s *Session) apply(op wire.Opcode, rule shapeRule, xs ...Operand) (*Array, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	operands := make([]graph.Operand, len(xs))
	recs := make([]*graph.Record, len(xs))
	dt := dtype.Invalid
	for i, x := range xs {
		var err error
		operands[i], recs[i], err = s.resolve(x)
		if err != nil {
			return nil, errors.Wrapf(err, "operand %d of %s", i, op)
		}
		if recs[i] == nil {
			continue
		}
		if dt == dtype.Invalid {
			dt = recs[i].DType
		} else if dt != recs[i].DType {
			return nil, errors.Wrapf(ErrShapeMismatch, "%s: operands have different data types %s and %s", op, dt.String(), recs[i].DType.String())
		}
	}
	axes, err := rule(recs)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid operands for %s", op)
	}
	name, err := s.names.allocate()
	if err != nil {
		return nil, err
	}
	node, err := s.arena.NewOp(name, op, operands, dt, axes)
	if err != nil {
		return nil, err
	}
	if node.Depth > s.maxDepth {
		log.Debug.Printf("tiles: %s has depth %d above %d: evaluating", name, node.Depth, s.maxDepth)
		if err := s.flush(s.ctx, name); err != nil {
			s.release(name)
			return nil, err
		}
	}
	return &Array{sess: s, name: name}, nil
}

// Add returns a+y. a and y must have the same shape.
func (a *Array) Add(y *Array) (*Array, error) {
	return a.sess.apply(wire.Add, elementwise, a, y)
}

// Sub returns a-y. a and y must have the same shape.
func (a *Array) Sub(y *Array) (*Array, error) {
	return a.sess.apply(wire.Sub, elementwise, a, y)
}

// Mul returns a*y where a or y has no axes.
func (a *Array) Mul(y Operand) (*Array, error) {
	return a.sess.apply(wire.Mul, scaleShape, a, y)
}

// Div returns a/y where both a and y have no axes.
func (a *Array) Div(y Operand) (*Array, error) {
	return a.sess.apply(wire.Div, scalarShape, a, y)
}

// MatMul returns the matrix product of a by y.
// Supported ranks are matrix-matrix, matrix-vector and vector-vector (dot product).
func (a *Array) MatMul(y *Array) (*Array, error) {
	return a.sess.apply(wire.MatMul, matmulShape, a, y)
}

// Copy returns a new array with the same content as a.
func (a *Array) Copy() (*Array, error) {
	return a.sess.apply(wire.Copy, unaryShape, a)
}

// Neg returns -a.
func (a *Array) Neg() (*Array, error) {
	return a.Mul(Scalar(-1))
}

// Sqrt returns the elementwise square root of a.
func (a *Array) Sqrt() (*Array, error) {
	return a.sess.apply(wire.Sqrt, unaryShape, a)
}

// Axpy returns a*x+y where a has no axes and x and y have the same shape.
func Axpy(a Operand, x, y *Array) (*Array, error) {
	return x.sess.apply(wire.Axpy, axpyShape, a, x, y)
}

// AxpyMultiplier returns m*a*x+y where a has no axes and x and y have the same shape.
func AxpyMultiplier(a Operand, x, y *Array, m float64) (*Array, error) {
	return x.sess.apply(wire.AxpyMultiplier, axpyShape, a, x, y, Scalar(m))
}
