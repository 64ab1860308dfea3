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

// Package graph records pending array operations as an expression graph
// and compiles the graph into operation commands.
//
// Nodes are stored in an arena and referenced by id. Operands refer to arrays
// by name: the node computing an array is always looked up through the array
// record, so that a node never holds a pointer to a handle owned by a caller.
package graph

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tiles/wire"
)

// NodeID identifies a node in an arena.
type NodeID int

// Operand of a node: either an array or a scalar literal.
type Operand struct {
	// Array referenced by the operand if IsScalar is false.
	Array wire.Name
	// Scalar value if IsScalar is true.
	Scalar float64
	// IsScalar is true for scalar literals.
	IsScalar bool
}

// ArrayRef returns an operand referencing an array.
func ArrayRef(name wire.Name) Operand {
	return Operand{Array: name}
}

// Scalar returns a scalar literal operand.
func Scalar(v float64) Operand {
	return Operand{Scalar: v, IsScalar: true}
}

func (op Operand) String() string {
	if op.IsScalar {
		return fmt.Sprint(op.Scalar)
	}
	return op.Array.String()
}

// Node is a pending computation. Nodes are never modified once built.
type Node struct {
	// ID of the node in its arena.
	ID NodeID
	// Result is the name the backend binds the result of the node to.
	Result wire.Name
	// Op is the operation computed by the node. Leaf for arrays already on the backend.
	Op wire.Opcode
	// Operands of the operation. A leaf has a single operand referencing itself.
	Operands []Operand
	// Depth of the node: 0 for leaves and nodes without array operands,
	// 1 + the maximum depth of the array operands otherwise.
	Depth int
}

// IsLeaf returns true if the node references an array without computation.
func (n *Node) IsLeaf() bool {
	return n.Op == wire.Leaf
}

func (n *Node) String() string {
	if n.IsLeaf() {
		return n.Result.String()
	}
	return fmt.Sprintf("%s = %s%v", n.Result, n.Op, n.Operands)
}

// Record is the state of an array known by the arena.
//
// Fields are owned by the arena: callers must only read them.
type Record struct {
	// Name of the array.
	Name wire.Name
	// DType is the element type of the array.
	DType dtype.DataType
	// Axes is the length of every axis. It is the shape inferred when the
	// array is computed by an operation, overwritten by the backend once the
	// array has been materialized.
	Axes []int
	// Valid is true if the backend holds the data of the array
	// and the node of the array is a leaf.
	Valid bool

	node     NodeID
	refs     int
	held     bool
	retained bool
}

// NumAxes returns the rank of the array.
func (r *Record) NumAxes() int {
	return len(r.Axes)
}

// Arena owns the nodes and array records of a session.
type Arena struct {
	nodes   map[NodeID]*Node
	records map[wire.Name]*Record
	next    NodeID
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{
		nodes:   make(map[NodeID]*Node),
		records: make(map[wire.Name]*Record),
	}
}

// Record returns the record of an array.
func (a *Arena) Record(name wire.Name) (*Record, bool) {
	rec, ok := a.records[name]
	return rec, ok
}

// Node returns a node given its id.
func (a *Arena) Node(id NodeID) (*Node, bool) {
	n, ok := a.nodes[id]
	return n, ok
}

// NodeOf returns the current node of an array.
func (a *Arena) NodeOf(name wire.Name) (*Node, error) {
	rec, ok := a.records[name]
	if !ok {
		return nil, errors.Errorf("array %s unknown", name)
	}
	return a.nodes[rec.node], nil
}

// NumNodes returns the number of nodes in the arena.
func (a *Arena) NumNodes() int {
	return len(a.nodes)
}

// NumRecords returns the number of arrays known by the arena.
func (a *Arena) NumRecords() int {
	return len(a.records)
}

func (a *Arena) newNode(result wire.Name, op wire.Opcode, operands []Operand, depth int) *Node {
	n := &Node{
		ID:       a.next,
		Result:   result,
		Op:       op,
		Operands: operands,
		Depth:    depth,
	}
	a.next++
	a.nodes[n.ID] = n
	return n
}

func (a *Arena) newRecord(name wire.Name, dt dtype.DataType, axes []int) (*Record, error) {
	if _, exists := a.records[name]; exists {
		return nil, errors.Errorf("array %s already exists", name)
	}
	rec := &Record{
		Name:  name,
		DType: dt,
		Axes:  slices.Clone(axes),
		held:  true,
	}
	a.records[name] = rec
	return rec, nil
}

// NewLeaf records an array created directly on the backend.
// valid is false if the backend has not materialized the array yet.
func (a *Arena) NewLeaf(name wire.Name, dt dtype.DataType, axes []int, valid bool) (*Record, error) {
	rec, err := a.newRecord(name, dt, axes)
	if err != nil {
		return nil, err
	}
	rec.Valid = valid
	rec.node = a.newNode(name, wire.Leaf, []Operand{ArrayRef(name)}, 0).ID
	return rec, nil
}

// NewOp records an array computed by an operation on other arrays.
// Operand shapes are not checked.
func (a *Arena) NewOp(result wire.Name, op wire.Opcode, operands []Operand, dt dtype.DataType, axes []int) (*Node, error) {
	if op == wire.Leaf {
		return nil, errors.Errorf("cannot build an operation node for %s with a leaf opcode", result)
	}
	if !op.Known() {
		return nil, errors.Wrapf(ErrUnknownOpcode, "cannot build node for %s", result)
	}
	depth := 0
	for _, operand := range operands {
		if operand.IsScalar {
			continue
		}
		node, err := a.NodeOf(operand.Array)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid operand for %s", op)
		}
		depth = max(depth, 1+node.Depth)
	}
	rec, err := a.newRecord(result, dt, axes)
	if err != nil {
		return nil, err
	}
	for _, operand := range operands {
		if !operand.IsScalar {
			a.records[operand.Array].refs++
		}
	}
	node := a.newNode(result, op, slices.Clone(operands), depth)
	rec.node = node.ID
	return node, nil
}

// Retain marks an array as used by the caller beyond the graph in which it appears.
// A retained array is kept by the backend when it is computed as part of
// another array.
func (a *Arena) Retain(name wire.Name) error {
	rec, ok := a.records[name]
	if !ok {
		return errors.Errorf("cannot retain %s: array unknown", name)
	}
	rec.retained = true
	return nil
}

// Held returns true if the caller has not released an array.
func (a *Arena) Held(name wire.Name) bool {
	rec, ok := a.records[name]
	return ok && rec.held
}

// Aliased returns true if the result of an array is needed outside of the
// graph being compiled, that is if the array has been retained or if more
// than one pending node uses it.
func (a *Arena) Aliased(name wire.Name) bool {
	rec, ok := a.records[name]
	if !ok {
		return false
	}
	return rec.retained || rec.refs > 1
}

// SetValid records the shape of an array materialized by the backend.
// The node of the array is not collapsed: see Collapse.
func (a *Arena) SetValid(name wire.Name, axes []int) error {
	rec, ok := a.records[name]
	if !ok {
		return errors.Errorf("cannot validate %s: array unknown", name)
	}
	if len(axes) != len(rec.Axes) {
		return errors.Errorf("cannot validate %s: backend returned %d axes but want %d", name, len(axes), len(rec.Axes))
	}
	rec.Axes = slices.Clone(axes)
	rec.Valid = true
	return nil
}

// Collapse replaces the node of a valid array by a leaf referencing the array.
// It returns the names of the valid arrays which are not referenced anymore
// and have been removed from the arena. Collapsing an array unknown
// to the arena is a no-op.
func (a *Arena) Collapse(name wire.Name) ([]wire.Name, error) {
	rec, ok := a.records[name]
	if !ok {
		return nil, nil
	}
	if !rec.Valid {
		return nil, errors.Errorf("cannot collapse %s: array not valid", name)
	}
	old := a.nodes[rec.node]
	if old.IsLeaf() {
		return nil, nil
	}
	rec.node = a.newNode(name, wire.Leaf, []Operand{ArrayRef(name)}, 0).ID
	var dropped []wire.Name
	a.deleteNode(old, &dropped)
	return dropped, nil
}

// Release records that the caller does not use an array anymore.
// The array stays in the arena as long as pending nodes reference it.
// It returns the names of the valid arrays removed from the arena.
func (a *Arena) Release(name wire.Name) []wire.Name {
	rec, ok := a.records[name]
	if !ok || !rec.held {
		return nil
	}
	rec.held = false
	rec.retained = false
	var dropped []wire.Name
	a.dropIfUnused(rec, &dropped)
	return dropped
}

func (a *Arena) dropIfUnused(rec *Record, dropped *[]wire.Name) {
	if rec.held || rec.refs > 0 {
		return
	}
	delete(a.records, rec.Name)
	if rec.Valid {
		*dropped = append(*dropped, rec.Name)
	}
	a.deleteNode(a.nodes[rec.node], dropped)
}

func (a *Arena) deleteNode(node *Node, dropped *[]wire.Name) {
	delete(a.nodes, node.ID)
	if node.IsLeaf() {
		return
	}
	for _, operand := range node.Operands {
		if operand.IsScalar {
			continue
		}
		rec, ok := a.records[operand.Array]
		if !ok {
			continue
		}
		rec.refs--
		a.dropIfUnused(rec, dropped)
	}
}
