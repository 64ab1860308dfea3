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
	"context"
	"fmt"
	"slices"

	"github.com/gx-org/backend/dtype"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/graph"
	"github.com/gx-org/tiles/wire"
)

// Operand is an argument of an operation: either an *Array or a Scalar.
type Operand interface {
	operand()
}

// Scalar is a float64 literal passed as an operand.
type Scalar float64

func (Scalar) operand() {}

// Array is a handle on an array stored by the backend, or to be computed by
// the backend from other arrays.
//
// An array is not computed until its value is needed. The state of the array
// is owned by its session: Array only carries the name of the array.
type Array struct {
	sess *Session
	name wire.Name
}

var _ Operand = (*Array)(nil)

func (*Array) operand() {}

// Name of the array on the backend.
func (a *Array) Name() wire.Name {
	return a.name
}

// Session owning the array.
func (a *Array) Session() *Session {
	return a.sess
}

// record returns the record of the array. The session lock must be held.
func (a *Array) record() (*graph.Record, error) {
	rec, ok := a.sess.arena.Record(a.name)
	if !ok || !a.sess.arena.Held(a.name) {
		return nil, errors.Errorf("array %s has been released", a.name)
	}
	return rec, nil
}

func (a *Array) snapshot() (graph.Record, error) {
	if err := a.sess.lock(); err != nil {
		return graph.Record{}, err
	}
	defer a.sess.mu.Unlock()
	rec, err := a.record()
	if err != nil {
		return graph.Record{}, err
	}
	cpy := *rec
	cpy.Axes = slices.Clone(rec.Axes)
	return cpy, nil
}

// DType returns the element type of the array,
// or dtype.Invalid if the array has been released or its session closed.
func (a *Array) DType() dtype.DataType {
	rec, err := a.snapshot()
	if err != nil {
		return dtype.Invalid
	}
	return rec.DType
}

// NumAxes returns the rank of the array,
// or 0 if the array has been released or its session closed.
func (a *Array) NumAxes() int {
	rec, err := a.snapshot()
	if err != nil {
		return 0
	}
	return rec.NumAxes()
}

// Valid returns true if the backend holds the data of the array.
// It returns false if the array has been released or its session closed.
func (a *Array) Valid() bool {
	rec, err := a.snapshot()
	if err != nil {
		return false
	}
	return rec.Valid
}

// Evaluate sends the graph computing the array to the backend.
// It is a no-op if the array is valid.
func (a *Array) Evaluate(ctx context.Context) error {
	if err := a.sess.lock(); err != nil {
		return err
	}
	defer a.sess.mu.Unlock()
	if _, err := a.record(); err != nil {
		return err
	}
	return a.sess.flush(ctx, a.name)
}

// Shape evaluates the array and returns the length of its axes as computed by the backend.
func (a *Array) Shape(ctx context.Context) ([]int, error) {
	if err := a.sess.lock(); err != nil {
		return nil, err
	}
	defer a.sess.mu.Unlock()
	rec, err := a.record()
	if err != nil {
		return nil, err
	}
	if err := a.sess.flush(ctx, a.name); err != nil {
		return nil, err
	}
	return slices.Clone(rec.Axes), nil
}

// Fetch evaluates the array and returns its data.
func (a *Array) Fetch(ctx context.Context) (*Value, error) {
	if err := a.sess.lock(); err != nil {
		return nil, err
	}
	defer a.sess.mu.Unlock()
	if _, err := a.record(); err != nil {
		return nil, err
	}
	return a.sess.fetch(ctx, a.name)
}

// Retain declares that the value of the array will be needed after the
// evaluation of another array computed from it. The backend keeps a retained
// array when it computes it.
func (a *Array) Retain() error {
	if err := a.sess.lock(); err != nil {
		return err
	}
	defer a.sess.mu.Unlock()
	if _, err := a.record(); err != nil {
		return err
	}
	return a.sess.arena.Retain(a.name)
}

// Release declares that the caller does not use the array anymore.
// The backend deletes the array with the next command once no pending
// operation needs it. Release is idempotent.
func (a *Array) Release() {
	s := a.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.release(a.name)
}

func (s *Session) release(name wire.Name) {
	for _, dropped := range s.arena.Release(name) {
		s.deletions.enqueue(dropped)
	}
	if _, ok := s.arena.Record(name); !ok {
		delete(s.failed, name)
	}
}

// Graph returns the nodes computing the array in pre-order.
// The nodes are copies: modifying them has no effect on the session.
func (a *Array) Graph() ([]graph.Node, error) {
	if err := a.sess.lock(); err != nil {
		return nil, err
	}
	defer a.sess.mu.Unlock()
	if _, err := a.record(); err != nil {
		return nil, err
	}
	var nodes []graph.Node
	for node := range a.sess.arena.Nodes(a.name) {
		cpy := *node
		cpy.Operands = slices.Clone(node.Operands)
		nodes = append(nodes, cpy)
	}
	return nodes, nil
}

// Fingerprint returns a hash of the graph computing the array.
func (a *Array) Fingerprint() (uint64, error) {
	if err := a.sess.lock(); err != nil {
		return 0, err
	}
	defer a.sess.mu.Unlock()
	if _, err := a.record(); err != nil {
		return 0, err
	}
	return a.sess.arena.Fingerprint(a.name)
}

// String returns the name and the shape of the array known by the client.
func (a *Array) String() string {
	rec, err := a.snapshot()
	if err != nil {
		return a.name.String() + "(released)"
	}
	state := "pending"
	if rec.Valid {
		state = "valid"
	}
	return fmt.Sprintf("%s%v%s(%s)", a.name, rec.Axes, rec.DType, state)
}
