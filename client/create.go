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
	"unsafe"

	"github.com/grailbio/base/log"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/graph"
	"github.com/gx-org/tiles/wire"
)

// CreateOption sets the initial content of an array.
type CreateOption func(*wire.CreateRequest)

// WithData initializes an array with a raw buffer in row-major order.
func WithData(data []byte) CreateOption {
	return func(req *wire.CreateRequest) {
		req.Data = data
		req.Init = nil
	}
}

// FromFloat64s initializes an array with float64 values in row-major order.
func FromFloat64s(values []float64) CreateOption {
	data := []byte{}
	if len(values) > 0 {
		ptr := unsafe.Pointer(&values[0])
		data = unsafe.Slice((*byte)(ptr), len(values)*dtype.Sizeof(dtype.Float64))
	}
	return WithData(data)
}

// Fill initializes all the elements of an array with the same value.
func Fill(v float64) CreateOption {
	return func(req *wire.CreateRequest) {
		req.Init = &v
		req.Data = nil
	}
}

// checkType returns an error if arrays of a data type cannot be stored by backends.
// Create requests do not carry a data type: backends hold float64 values.
func checkType(dt dtype.DataType) error {
	if dt != dtype.Float64 {
		return errors.Wrapf(ErrUnsupportedDType, "cannot create a %s array", dt.String())
	}
	return nil
}

func checkAxes(axes []int) error {
	if len(axes) > 2 {
		return errors.Wrapf(ErrUnsupportedRank, "cannot create an array with %d axes", len(axes))
	}
	for i, ax := range axes {
		if ax < 0 {
			return errors.Errorf("invalid negative length %d for axis %d", ax, i)
		}
	}
	return nil
}

// Create allocates an array on the backend.
// Without options, the backend chooses the content of the array.
// Only float64 arrays are supported.
//
// If the backend fails to create the array, a warning is logged and the array
// is returned anyway: the creation is attempted again when the array is
// evaluated.
func (s *Session) Create(ctx context.Context, dt dtype.DataType, axes []int, opts ...CreateOption) (*Array, error) {
	if err := checkType(dt); err != nil {
		return nil, err
	}
	if err := checkAxes(axes); err != nil {
		return nil, err
	}
	sh := shape.Shape{DType: dt, AxisLengths: axes}
	req := &wire.CreateRequest{Axes: make([]uint64, len(axes))}
	for i, ax := range axes {
		req.Axes[i] = uint64(ax)
	}
	for _, opt := range opts {
		opt(req)
	}
	if req.Data != nil {
		if want := sh.Size() * dtype.Sizeof(dt); len(req.Data) != want {
			return nil, errors.Errorf("cannot create %s array: got %d bytes of data but want %d", dt, len(req.Data), want)
		}
	}
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	name, err := s.names.allocate()
	if err != nil {
		return nil, err
	}
	req.Name = name
	ok, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.arena.NewLeaf(name, dt, axes, ok); err != nil {
		return nil, err
	}
	if !ok {
		log.Error.Printf("tiles: backend failed to create %s %v: creation will be attempted again on evaluation", name, sh.String())
		s.failed[name] = req
	}
	return &Array{sess: s, name: name}, nil
}

// create sends a create request and returns the status replied by the backend.
func (s *Session) create(ctx context.Context, req *wire.CreateRequest) (bool, error) {
	log.Debug.Printf("tiles: creating %s with axes %v", req.Name, req.Axes)
	reply, err := s.call(ctx, wire.Create, req.Encode(), 1)
	if err != nil {
		return false, err
	}
	return reply[0] != 0, nil
}

// recreate attempts again to create the arrays of a graph the backend
// failed to create.
func (s *Session) recreate(ctx context.Context, root wire.Name) error {
	var leaves []*graph.Record
	for node := range s.arena.Nodes(root) {
		if !node.IsLeaf() {
			continue
		}
		if _, failed := s.failed[node.Result]; !failed {
			continue
		}
		rec, _ := s.arena.Record(node.Result)
		leaves = append(leaves, rec)
	}
	for _, rec := range leaves {
		ok, err := s.create(ctx, s.failed[rec.Name])
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(ErrCreation, "array %s", rec.Name)
		}
		delete(s.failed, rec.Name)
		if err := s.arena.SetValid(rec.Name, rec.Axes); err != nil {
			return err
		}
	}
	return nil
}

// Wrap returns a handle on an array already materialized by the backend,
// for example by another program using the same client id.
// The caller is responsible for the name being unique in the session.
func (s *Session) Wrap(name wire.Name, dt dtype.DataType, axes []int) (*Array, error) {
	if err := checkType(dt); err != nil {
		return nil, err
	}
	if err := checkAxes(axes); err != nil {
		return nil, err
	}
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if _, err := s.arena.NewLeaf(name, dt, axes, true); err != nil {
		return nil, err
	}
	return &Array{sess: s, name: name}, nil
}
