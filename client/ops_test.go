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

package client_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gx-org/backend/dtype"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/client"
	"github.com/gx-org/tiles/golang/backend"
	"github.com/gx-org/tiles/wire"
)

func TestShapeErrors(t *testing.T) {
	sess, tr := newSession(t, backend.New())
	ctx := context.Background()
	vec3 := fromValues(t, sess, []float64{1, 2, 3}, 3)
	vec4 := fromValues(t, sess, []float64{1, 2, 3, 4}, 4)
	mat23 := fromValues(t, sess, make([]float64, 6), 2, 3)
	atom, err := sess.Create(ctx, dtype.Float64, nil, client.Fill(2))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		build func() (*client.Array, error)
		want  error
	}{
		{
			name:  "add",
			build: func() (*client.Array, error) { return vec3.Add(vec4) },
			want:  client.ErrShapeMismatch,
		},
		{
			name:  "sub",
			build: func() (*client.Array, error) { return vec3.Sub(mat23) },
			want:  client.ErrShapeMismatch,
		},
		{
			name:  "mul",
			build: func() (*client.Array, error) { return vec3.Mul(vec3) },
			want:  client.ErrDimensionMismatch,
		},
		{
			name:  "div",
			build: func() (*client.Array, error) { return vec3.Div(client.Scalar(2)) },
			want:  client.ErrDimensionMismatch,
		},
		{
			name:  "div by array",
			build: func() (*client.Array, error) { return atom.Div(vec3) },
			want:  client.ErrDimensionMismatch,
		},
		{
			name:  "matmul matrix-matrix",
			build: func() (*client.Array, error) { return mat23.MatMul(mat23) },
			want:  client.ErrDimensionMismatch,
		},
		{
			name:  "matmul vector-matrix",
			build: func() (*client.Array, error) { return vec3.MatMul(mat23) },
			want:  client.ErrDimensionMismatch,
		},
		{
			name:  "matmul vector-vector",
			build: func() (*client.Array, error) { return vec3.MatMul(vec4) },
			want:  client.ErrDimensionMismatch,
		},
		{
			name:  "axpy factor",
			build: func() (*client.Array, error) { return client.Axpy(vec3, vec3, vec3) },
			want:  client.ErrDimensionMismatch,
		},
		{
			name:  "axpy operands",
			build: func() (*client.Array, error) { return client.Axpy(client.Scalar(1), vec3, vec4) },
			want:  client.ErrShapeMismatch,
		},
		{
			name:  "axpy with multiplier",
			build: func() (*client.Array, error) { return client.AxpyMultiplier(atom, vec4, vec3, 2) },
			want:  client.ErrShapeMismatch,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := test.build()
			if !errors.Is(err, test.want) {
				t.Errorf("got error %v, want %v", err, test.want)
			}
			if got != nil {
				t.Errorf("got array %s, want nil", got)
			}
		})
	}
	if got := tr.Count(wire.Operate); got != 0 {
		t.Errorf("got %d operation requests, want 0", got)
	}
}

func TestMatMul(t *testing.T) {
	sess, _ := newSession(t, backend.New())
	ctx := context.Background()
	mat23 := fromValues(t, sess, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	mat32 := fromValues(t, sess, []float64{1, 0, 0, 1, 1, 1}, 3, 2)
	vec3 := fromValues(t, sess, []float64{1, 1, 2}, 3)
	tests := []struct {
		name   string
		x, y   *client.Array
		axes   []int
		values []float64
	}{
		{
			name:   "matrix-matrix",
			x:      mat23,
			y:      mat32,
			axes:   []int{2, 2},
			values: []float64{4, 5, 10, 11},
		},
		{
			name:   "matrix-vector",
			x:      mat23,
			y:      vec3,
			axes:   []int{2},
			values: []float64{9, 21},
		},
		{
			name:   "vector-vector",
			x:      vec3,
			y:      vec3,
			axes:   []int{},
			values: []float64{6},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := test.x.MatMul(test.y)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := res.NumAxes(), len(test.axes); got != want {
				t.Errorf("wrong number of axes before evaluation: got %d, want %d", got, want)
			}
			axes, err := res.Shape(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.axes, axes, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("unexpected shape (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(test.values, fetch(t, res)); diff != "" {
				t.Errorf("unexpected values (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScalarOps(t *testing.T) {
	sess, _ := newSession(t, backend.New())
	ctx := context.Background()
	vec := fromValues(t, sess, []float64{1, 4, 9}, 3)
	x, err := sess.Create(ctx, dtype.Float64, nil, client.Fill(6))
	if err != nil {
		t.Fatal(err)
	}
	y, err := sess.Create(ctx, dtype.Float64, nil, client.Fill(4))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		build func() (*client.Array, error)
		want  []float64
	}{
		{
			name:  "neg",
			build: vec.Neg,
			want:  []float64{-1, -4, -9},
		},
		{
			name:  "sqrt",
			build: vec.Sqrt,
			want:  []float64{1, 2, 3},
		},
		{
			name:  "copy",
			build: vec.Copy,
			want:  []float64{1, 4, 9},
		},
		{
			name:  "mul by atom",
			build: func() (*client.Array, error) { return x.Mul(vec) },
			want:  []float64{6, 24, 54},
		},
		{
			name:  "div",
			build: func() (*client.Array, error) { return x.Div(y) },
			want:  []float64{1.5},
		},
		{
			name:  "div by scalar",
			build: func() (*client.Array, error) { return x.Div(client.Scalar(3)) },
			want:  []float64{2},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := test.build()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.want, fetch(t, res)); diff != "" {
				t.Errorf("unexpected values (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSessions(t *testing.T) {
	bck := backend.New()
	s1, _ := newSession(t, bck)
	s2, _ := newSession(t, bck)
	a := fromValues(t, s1, []float64{1}, 1)
	b := fromValues(t, s2, []float64{1}, 1)
	if _, err := a.Add(b); err == nil {
		t.Errorf("expected an error when mixing arrays of different sessions")
	}
}

func TestGraph(t *testing.T) {
	sess, _ := newSession(t, backend.New())
	a := fromValues(t, sess, []float64{1, 2}, 2)
	b := fromValues(t, sess, []float64{3, 4}, 2)
	s, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	z, err := client.Axpy(client.Scalar(2), s, a)
	if err != nil {
		t.Fatal(err)
	}
	nodes, err := z.Graph()
	if err != nil {
		t.Fatal(err)
	}
	var got []wire.Name
	for _, node := range nodes {
		got = append(got, node.Result)
	}
	want := []wire.Name{z.Name(), s.Name(), a.Name(), b.Name()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected traversal (-want +got):\n%s", diff)
	}
	if got := nodes[0].Depth; got != 2 {
		t.Errorf("wrong depth: got %d, want 2", got)
	}
	before, err := z.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	again, err := z.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if before != again {
		t.Errorf("fingerprint changed without modification: %x and %x", before, again)
	}
	if err := z.Evaluate(context.Background()); err != nil {
		t.Fatal(err)
	}
	after, err := z.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Errorf("fingerprint %x unchanged after evaluation", before)
	}
}
