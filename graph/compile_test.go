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

package graph_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/graph"
	"github.com/gx-org/tiles/wire"
)

func compileRoot(t *testing.T, a *graph.Arena, root wire.Name) (*wire.Expr, *graph.ValidatedSet) {
	t.Helper()
	rec, ok := a.Record(root)
	if !ok {
		t.Fatalf("array %s unknown", root)
	}
	node, err := a.NodeOf(root)
	if err != nil {
		t.Fatal(err)
	}
	validated := graph.NewValidatedSet(rec)
	cmd, err := a.Compile(node, validated, true)
	if err != nil {
		t.Fatal(err)
	}
	expr, err := wire.DecodeExpr(cmd)
	if err != nil {
		t.Fatal(err)
	}
	return expr, validated
}

func count(expr *wire.Expr, f func(*wire.Expr) bool) int {
	n := 0
	if f(expr) {
		n++
	}
	for _, operand := range expr.Operands {
		n += count(operand, f)
	}
	return n
}

func TestCompileLeafBackReference(t *testing.T) {
	// z = (a + b) - a
	const a, b, sum, z = 1, 2, 3, 4
	arena := graph.NewArena()
	newLeaves(t, arena, a, b)
	newOp(t, arena, sum, wire.Add, graph.ArrayRef(a), graph.ArrayRef(b))
	newOp(t, arena, z, wire.Sub, graph.ArrayRef(sum), graph.ArrayRef(a))
	got, validated := compileRoot(t, arena, z)
	want := &wire.Expr{
		Op:   wire.Sub,
		Name: z,
		Save: true,
		Operands: []*wire.Expr{
			{Op: wire.Add, Name: sum, Operands: []*wire.Expr{
				{Op: wire.Leaf, Name: a},
				{Op: wire.Leaf, Name: b},
			}},
			{Op: wire.Leaf, Name: a},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected command (-want +got):\n%s", diff)
	}
	if n := count(got, func(e *wire.Expr) bool { return e.Op == wire.Add }); n != 1 {
		t.Errorf("got %d encodings of the addition but want 1", n)
	}
	if got, want := validated.Names(), []wire.Name{z}; !cmp.Equal(got, want) {
		t.Errorf("got validated arrays %v but want %v", got, want)
	}
}

func TestCompileSharedSubexpression(t *testing.T) {
	// s = a + b; z = s - s
	const a, b, s, z = 1, 2, 3, 4
	arena := graph.NewArena()
	newLeaves(t, arena, a, b)
	newOp(t, arena, s, wire.Add, graph.ArrayRef(a), graph.ArrayRef(b))
	newOp(t, arena, z, wire.Sub, graph.ArrayRef(s), graph.ArrayRef(s))
	got, validated := compileRoot(t, arena, z)
	want := &wire.Expr{
		Op:   wire.Sub,
		Name: z,
		Save: true,
		Operands: []*wire.Expr{
			{Op: wire.Add, Name: s, Save: true, Operands: []*wire.Expr{
				{Op: wire.Leaf, Name: a},
				{Op: wire.Leaf, Name: b},
			}},
			{Op: wire.Leaf, Name: s},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected command (-want +got):\n%s", diff)
	}
	if got, want := validated.Names(), []wire.Name{z, s}; !cmp.Equal(got, want) {
		t.Errorf("got validated arrays %v but want %v", got, want)
	}
	if got, want := validated.ReplySize(), 2*(8+8); got != want {
		t.Errorf("got reply size %d but want %d", got, want)
	}
}

func TestCompileRetained(t *testing.T) {
	const a, b, s, z = 1, 2, 3, 4
	arena := graph.NewArena()
	newLeaves(t, arena, a, b)
	newOp(t, arena, s, wire.Add, graph.ArrayRef(a), graph.ArrayRef(b))
	newOp(t, arena, z, wire.Axpy, graph.Scalar(2), graph.ArrayRef(s), graph.ArrayRef(b))
	if err := arena.Retain(s); err != nil {
		t.Fatal(err)
	}
	got, validated := compileRoot(t, arena, z)
	if !got.Operands[1].Save {
		t.Errorf("retained operand not saved: %+v", got.Operands[1])
	}
	if !got.Operands[0].IsScalar || got.Operands[0].Value != 2 {
		t.Errorf("got first operand %+v but want scalar 2", got.Operands[0])
	}
	if got, want := validated.Names(), []wire.Name{z, s}; !cmp.Equal(got, want) {
		t.Errorf("got validated arrays %v but want %v", got, want)
	}
}

func TestCompileLeafRoot(t *testing.T) {
	arena := graph.NewArena()
	newLeaves(t, arena, 1)
	got, _ := compileRoot(t, arena, 1)
	if want := (&wire.Expr{Op: wire.Leaf, Name: 1}); !cmp.Equal(got, want) {
		t.Errorf("got %+v but want %+v", got, want)
	}
}

func TestCompileUnknownOpcode(t *testing.T) {
	arena := graph.NewArena()
	node := &graph.Node{Result: 1, Op: wire.Opcode(42)}
	_, err := arena.Compile(node, graph.NewValidatedSet(&graph.Record{Name: 1}), true)
	if !errors.Is(err, graph.ErrUnknownOpcode) {
		t.Errorf("got error %v but want %v", err, graph.ErrUnknownOpcode)
	}
}
