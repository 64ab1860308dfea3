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

package backend_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/tiles/golang/backend"
	"github.com/gx-org/tiles/wire"
)

type tester struct {
	t     *testing.T
	bck   *backend.Backend
	epoch int64
}

func (ts *tester) handle(h wire.Handler, payload []byte) ([]byte, error) {
	req := wire.Envelope(ts.epoch, payload)
	ts.epoch++
	return ts.bck.Handle(h, req)
}

func (ts *tester) mustHandle(h wire.Handler, payload []byte) []byte {
	ts.t.Helper()
	reply, err := ts.handle(h, payload)
	if err != nil {
		ts.t.Fatal(err)
	}
	return reply
}

func (ts *tester) create(name wire.Name, values []float64, axes ...uint64) {
	ts.t.Helper()
	var data wire.Buffer
	for _, v := range values {
		data.PutFloat64(v)
	}
	req := &wire.CreateRequest{Name: name, Axes: axes, Data: data.Bytes()}
	if values == nil {
		req.Data = nil
	}
	if reply := ts.mustHandle(wire.Create, req.Encode()); !bytes.Equal(reply, []byte{1}) {
		ts.t.Fatalf("creation of %s failed: %v", name, reply)
	}
}

func (ts *tester) values(name wire.Name) []float64 {
	ts.t.Helper()
	reply := ts.mustHandle(wire.Fetch, wire.EncodeFetch(name))
	r := wire.NewReader(reply)
	var vals []float64
	for r.Len() > 0 {
		vals = append(vals, r.Float64())
	}
	return vals
}

func leaf(name wire.Name) []byte {
	var b wire.Buffer
	wire.AppendLeaf(&b, name)
	return b.Bytes()
}

func scalar(v float64) []byte {
	var b wire.Buffer
	wire.AppendScalar(&b, v)
	return b.Bytes()
}

func op(code wire.Opcode, result wire.Name, save bool, operands ...[]byte) []byte {
	var b wire.Buffer
	wire.AppendOpHeader(&b, code, result, save, uint8(len(operands)))
	for _, operand := range operands {
		wire.AppendSub(&b, operand)
	}
	return b.Bytes()
}

func operation(deleted []wire.Name, cmd []byte) []byte {
	var names wire.Buffer
	for _, name := range deleted {
		names.PutName(name)
	}
	var b wire.Buffer
	wire.AppendDeletion(&b, uint32(len(deleted)), names.Bytes())
	b.Write(cmd)
	return b.Bytes()
}

func TestConnect(t *testing.T) {
	ts := &tester{t: t, bck: backend.New()}
	first := ts.mustHandle(wire.Connect, nil)
	second := ts.mustHandle(wire.Connect, nil)
	if diff := cmp.Diff([][]byte{{0}, {1}}, [][]byte{first, second}); diff != "" {
		t.Errorf("unexpected client ids (-want +got):\n%s", diff)
	}
	ts.mustHandle(wire.Disconnect, wire.EncodeDisconnect(0))
	if _, err := ts.handle(wire.Disconnect, wire.EncodeDisconnect(0)); err == nil {
		t.Errorf("expected an error when disconnecting a client twice")
	}
	if got := ts.mustHandle(wire.Connect, nil); !bytes.Equal(got, []byte{0}) {
		t.Errorf("got client id %v, want [0]", got)
	}
	if diff := cmp.Diff([]int64{0, 1, 2, 3, 4}, ts.bck.Epochs()); diff != "" {
		t.Errorf("unexpected epochs (-want +got):\n%s", diff)
	}
}

func TestCreate(t *testing.T) {
	ts := &tester{t: t, bck: backend.New()}
	ts.create(1, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6}, ts.values(1)); diff != "" {
		t.Errorf("unexpected values (-want +got):\n%s", diff)
	}
	arr, ok := ts.bck.Lookup(1)
	if !ok {
		t.Fatal("array 1 not found")
	}
	if diff := cmp.Diff([]int{2, 3}, arr.Axes()); diff != "" {
		t.Errorf("unexpected axes (-want +got):\n%s", diff)
	}

	fillValue := 2.5
	fill := &wire.CreateRequest{Name: 2, Axes: []uint64{2}, Init: &fillValue}
	ts.mustHandle(wire.Create, fill.Encode())
	if diff := cmp.Diff([]float64{2.5, 2.5}, ts.values(2)); diff != "" {
		t.Errorf("unexpected values (-want +got):\n%s", diff)
	}

	// Names cannot be reused.
	if reply := ts.mustHandle(wire.Create, fill.Encode()); !bytes.Equal(reply, []byte{0}) {
		t.Errorf("got status %v when creating an existing array, want [0]", reply)
	}
	ts.bck.FailCreations(1)
	other := &wire.CreateRequest{Name: 3, Axes: []uint64{2}, Init: &fillValue}
	if reply := ts.mustHandle(wire.Create, other.Encode()); !bytes.Equal(reply, []byte{0}) {
		t.Errorf("got status %v for a failing creation, want [0]", reply)
	}
	if reply := ts.mustHandle(wire.Create, other.Encode()); !bytes.Equal(reply, []byte{1}) {
		t.Errorf("got status %v after a failing creation, want [1]", reply)
	}
}

func TestOperate(t *testing.T) {
	ts := &tester{t: t, bck: backend.New()}
	ts.create(1, []float64{1, 2}, 2)
	ts.create(2, []float64{3, 4}, 2)
	ts.create(3, []float64{0}, 1)
	// z = (a+b) - (a+b) where a+b is saved, then w = 2*(a+b)+z
	sum := op(wire.Add, 10, true, leaf(1), leaf(2))
	z := op(wire.Sub, 11, true, sum, leaf(10))
	reply := ts.mustHandle(wire.Operate, operation([]wire.Name{3}, z))
	want := wire.EncodeShapes([]wire.ShapeRecord{
		{Name: 10, Axes: []uint64{2}},
		{Name: 11, Axes: []uint64{2}},
	})
	if diff := cmp.Diff(want, reply); diff != "" {
		t.Errorf("unexpected reply (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]wire.Name{1, 2, 10, 11}, ts.bck.Names()); diff != "" {
		t.Errorf("unexpected arrays (-want +got):\n%s", diff)
	}
	w := op(wire.Axpy, 12, true, scalar(2), leaf(10), leaf(11))
	reply = ts.mustHandle(wire.Operate, operation(nil, w))
	if diff := cmp.Diff(wire.EncodeShapes([]wire.ShapeRecord{{Name: 12, Axes: []uint64{2}}}), reply); diff != "" {
		t.Errorf("unexpected reply (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{8, 12}, ts.values(12)); diff != "" {
		t.Errorf("unexpected values (-want +got):\n%s", diff)
	}

	dot := op(wire.MatMul, 13, true, leaf(1), leaf(2))
	reply = ts.mustHandle(wire.Operate, operation([]wire.Name{10, 11}, dot))
	if diff := cmp.Diff(wire.EncodeShapes([]wire.ShapeRecord{{Name: 13}}), reply); diff != "" {
		t.Errorf("unexpected reply (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{11}, ts.values(13)); diff != "" {
		t.Errorf("unexpected values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]wire.Name{1, 2, 12, 13}, ts.bck.Names()); diff != "" {
		t.Errorf("unexpected arrays (-want +got):\n%s", diff)
	}
}

func TestOperateErrors(t *testing.T) {
	ts := &tester{t: t, bck: backend.New()}
	ts.create(1, []float64{1, 2}, 2)
	ts.create(2, []float64{1, 2, 3}, 3)
	tests := []struct {
		name string
		cmd  []byte
	}{
		{
			name: "unknown array",
			cmd:  op(wire.Copy, 10, true, leaf(42)),
		},
		{
			name: "shape mismatch",
			cmd:  op(wire.Add, 10, true, leaf(1), leaf(2)),
		},
		{
			name: "arity",
			cmd:  op(wire.Add, 10, true, leaf(1)),
		},
		{
			name: "unknown opcode",
			cmd:  op(wire.Opcode(9), 10, true, leaf(1)),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ts.handle(wire.Operate, operation(nil, test.cmd)); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestDelete(t *testing.T) {
	ts := &tester{t: t, bck: backend.New()}
	ts.create(1, nil, 4)
	ts.create(2, nil, 2, 2)
	ts.create(3, nil)
	if got := len(ts.values(1)); got != 4 {
		t.Errorf("got %d values, want 4", got)
	}
	ts.mustHandle(wire.Delete, wire.EncodeDelete(1, 3))
	if diff := cmp.Diff([]wire.Name{2}, ts.bck.Names()); diff != "" {
		t.Errorf("unexpected arrays (-want +got):\n%s", diff)
	}
	if _, err := ts.handle(wire.Fetch, wire.EncodeFetch(1)); err == nil {
		t.Errorf("expected an error when fetching a deleted array")
	}
}

func TestExit(t *testing.T) {
	ts := &tester{t: t, bck: backend.New()}
	if got := ts.mustHandle(wire.Sync, nil); !bytes.Equal(got, []byte{1}) {
		t.Errorf("got sync reply %v, want [1]", got)
	}
	ts.mustHandle(wire.Exit, nil)
	if !ts.bck.Exited() {
		t.Errorf("backend has not exited")
	}
	if _, err := ts.handle(wire.Sync, nil); err == nil {
		t.Errorf("expected an error after exit")
	}
}

func TestServeHTTP(t *testing.T) {
	srv := httptest.NewServer(backend.New())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/" + string(wire.Sync))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("got status %s, want %d", resp.Status, http.StatusMethodNotAllowed)
	}
	resp, err = srv.Client().Post(srv.URL+"/prefix/"+string(wire.Connect), "application/octet-stream", bytes.NewReader(wire.Envelope(0, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %s, want %d", resp.Status, http.StatusOK)
	}
}
