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

	"github.com/grailbio/base/log"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/graph"
	"github.com/gx-org/tiles/wire"
)

// flush sends the graph computing an array to the backend.
// The session lock must be held.
func (s *Session) flush(ctx context.Context, name wire.Name) error {
	rec, ok := s.arena.Record(name)
	if !ok {
		return errors.Errorf("array %s unknown", name)
	}
	if rec.Valid {
		return nil
	}
	if err := s.recreate(ctx, name); err != nil {
		return err
	}
	if rec.Valid {
		// The array was a leaf the backend failed to create.
		return nil
	}
	node, err := s.arena.NodeOf(name)
	if err != nil {
		return err
	}
	validated := graph.NewValidatedSet(rec)
	cmd, err := s.arena.Compile(node, validated, true)
	if err != nil {
		return err
	}
	var payload wire.Buffer
	s.deletions.appendTo(&payload)
	payload.Write(cmd)
	log.Debug.Printf("tiles: evaluating %s: %d bytes, %d arrays to validate, %d arrays to delete", name, payload.Len(), validated.Len(), s.deletions.count)
	reply, err := s.call(ctx, wire.Operate, payload.Bytes(), validated.ReplySize())
	if err != nil {
		return err
	}
	s.deletions.reset()
	return s.reconcile(reply, validated)
}

// reconcile updates the arrays computed by a command given the reply of the backend.
// Shapes are matched by name: the backend is free to order them.
// The whole reply is read before any array is updated.
func (s *Session) reconcile(reply []byte, validated *graph.ValidatedSet) error {
	r := wire.NewReader(reply)
	shapes := make(map[wire.Name][]int, validated.Len())
	for range validated.Len() {
		name := r.Name()
		if err := r.Err(); err != nil {
			return errors.Wrap(err, "cannot read operation reply")
		}
		rec, ok := validated.Load(name)
		if !ok {
			return errors.Errorf("backend returned the shape of %s which was not computed", name)
		}
		if _, seen := shapes[name]; seen {
			return errors.Errorf("backend returned the shape of %s twice", name)
		}
		axes := make([]int, rec.NumAxes())
		for i := range axes {
			axes[i] = int(r.Uint64())
		}
		if err := r.Err(); err != nil {
			return errors.Wrapf(err, "cannot read the shape of %s", name)
		}
		shapes[name] = axes
	}
	if r.Len() > 0 {
		log.Error.Printf("tiles: %d unexpected trailing bytes in operation reply", r.Len())
	}
	names := validated.Names()
	for _, name := range names {
		if err := s.arena.SetValid(name, shapes[name]); err != nil {
			return err
		}
	}
	// All the arrays are set valid before any node is collapsed, so that
	// intermediate arrays only used by the command are deleted.
	for _, name := range names {
		dropped, err := s.arena.Collapse(name)
		if err != nil {
			return err
		}
		for _, name := range dropped {
			s.deletions.enqueue(name)
		}
	}
	return nil
}

// fetch evaluates an array and returns its data.
func (s *Session) fetch(ctx context.Context, name wire.Name) (*Value, error) {
	if err := s.flush(ctx, name); err != nil {
		return nil, err
	}
	rec, ok := s.arena.Record(name)
	if !ok {
		return nil, errors.Errorf("array %s unknown", name)
	}
	sh := shape.Shape{DType: rec.DType, AxisLengths: rec.Axes}
	size := sh.Size() * dtype.Sizeof(rec.DType)
	data, err := s.call(ctx, wire.Fetch, wire.EncodeFetch(name), size)
	if err != nil {
		return nil, err
	}
	return newValue(sh, data), nil
}
