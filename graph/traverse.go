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
	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
	"github.com/gx-org/tiles/wire"
)

// Nodes iterates, in pre-order, over the nodes reachable from the current node of an array.
// A node shared by several operations is visited once.
// The arena must not be modified during the iteration.
func (a *Arena) Nodes(root wire.Name) func(func(*Node) bool) {
	return func(yield func(*Node) bool) {
		seen := make(map[NodeID]bool)
		var visit func(name wire.Name) bool
		visit = func(name wire.Name) bool {
			rec, ok := a.records[name]
			if !ok {
				return true
			}
			node := a.nodes[rec.node]
			if seen[node.ID] {
				return true
			}
			seen[node.ID] = true
			if !yield(node) {
				return false
			}
			if node.IsLeaf() {
				return true
			}
			for _, operand := range node.Operands {
				if operand.IsScalar {
					continue
				}
				if !visit(operand.Array) {
					return false
				}
			}
			return true
		}
		visit(root)
	}
}

// Fingerprint returns a hash of the structure of the graph computing an array.
// Two graphs computing the same operations over the same arrays and scalars
// have the same fingerprint.
func (a *Arena) Fingerprint(root wire.Name) (uint64, error) {
	if _, ok := a.records[root]; !ok {
		return 0, errors.Errorf("array %s unknown", root)
	}
	h := murmur3.New64()
	var b wire.Buffer
	var write func(name wire.Name)
	write = func(name wire.Name) {
		node := a.nodes[a.records[name].node]
		b.PutUint64(uint64(node.Op))
		if node.IsLeaf() {
			b.PutName(name)
			return
		}
		b.PutUint8(uint8(len(node.Operands)))
		for _, operand := range node.Operands {
			b.PutBool(operand.IsScalar)
			if operand.IsScalar {
				b.PutFloat64(operand.Scalar)
				continue
			}
			write(operand.Array)
		}
	}
	write(root)
	h.Write(b.Bytes())
	return h.Sum64(), nil
}
