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

package graph

import (
	"math"

	"github.com/pkg/errors"
	"github.com/gx-org/tiles/wire"
)

// ErrUnknownOpcode is returned when a node carries an opcode that backends do not know.
// It is always the sign of a bug in the client.
var ErrUnknownOpcode = errors.New("unknown opcode")

// ValidatedSet is the set of arrays materialized by a single command,
// in the order they have been added.
type ValidatedSet struct {
	names   []wire.Name
	records map[wire.Name]*Record
}

// NewValidatedSet returns a set containing the root of a command.
func NewValidatedSet(root *Record) *ValidatedSet {
	s := &ValidatedSet{records: make(map[wire.Name]*Record)}
	s.add(root)
	return s
}

func (s *ValidatedSet) add(rec *Record) {
	if _, in := s.records[rec.Name]; in {
		return
	}
	s.names = append(s.names, rec.Name)
	s.records[rec.Name] = rec
}

// Load returns the record of an array in the set.
func (s *ValidatedSet) Load(name wire.Name) (*Record, bool) {
	rec, ok := s.records[name]
	return rec, ok
}

// Len returns the number of arrays in the set.
func (s *ValidatedSet) Len() int {
	return len(s.names)
}

// Names returns the names of the arrays in the order they have been added.
func (s *ValidatedSet) Names() []wire.Name {
	return append([]wire.Name{}, s.names...)
}

// Records iterates over the records in the order they have been added.
func (s *ValidatedSet) Records() func(func(*Record) bool) {
	return func(yield func(*Record) bool) {
		for _, name := range s.names {
			if !yield(s.records[name]) {
				break
			}
		}
	}
}

// ReplySize returns the size in bytes of the reply of the backend to the command.
func (s *ValidatedSet) ReplySize() int {
	numAxes := make([]int, 0, len(s.names))
	for rec := range s.Records() {
		numAxes = append(numAxes, rec.NumAxes())
	}
	return wire.ShapesSize(numAxes...)
}

// Compile serializes a node into a command record.
//
// Operands already in the validated set are referenced by name instead of
// being computed again. Operands which are not valid yet are compiled
// recursively: they are saved by the backend, and added to the validated set,
// if they are aliased outside of the graph (see Aliased).
func (a *Arena) Compile(node *Node, validated *ValidatedSet, save bool) ([]byte, error) {
	var b wire.Buffer
	if node.IsLeaf() {
		wire.AppendLeaf(&b, node.Result)
		return b.Bytes(), nil
	}
	if !node.Op.Known() {
		return nil, errors.Wrapf(ErrUnknownOpcode, "cannot compile %s", node.Result)
	}
	if len(node.Operands) > math.MaxUint8 {
		return nil, errors.Errorf("cannot compile %s: %d operands exceed the maximum of %d", node.Result, len(node.Operands), math.MaxUint8)
	}
	wire.AppendOpHeader(&b, node.Op, node.Result, save, uint8(len(node.Operands)))
	for i, operand := range node.Operands {
		sub, err := a.compileOperand(operand, validated)
		if err != nil {
			return nil, errors.Wrapf(err, "operand %d of %s", i, node.Result)
		}
		wire.AppendSub(&b, sub)
	}
	return b.Bytes(), nil
}

func (a *Arena) compileOperand(operand Operand, validated *ValidatedSet) ([]byte, error) {
	var b wire.Buffer
	if operand.IsScalar {
		wire.AppendScalar(&b, operand.Scalar)
		return b.Bytes(), nil
	}
	if _, done := validated.Load(operand.Array); done {
		wire.AppendLeaf(&b, operand.Array)
		return b.Bytes(), nil
	}
	rec, ok := a.records[operand.Array]
	if !ok {
		return nil, errors.Errorf("array %s unknown", operand.Array)
	}
	save := a.Aliased(rec.Name)
	sub, err := a.Compile(a.nodes[rec.node], validated, save)
	if err != nil {
		return nil, err
	}
	if !rec.Valid && save {
		validated.add(rec)
	}
	return sub, nil
}
