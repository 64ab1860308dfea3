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

// Package backend implements a reference tiles backend in Go.
//
// The backend keeps arrays in memory and computes operations with the Go
// kernels of the kernels package. It serves requests in process (see Handle)
// or over HTTP (see ServeHTTP).
package backend

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tiles/golang/backend/kernels"
	"github.com/gx-org/tiles/transport"
	"github.com/gx-org/tiles/wire"
	"golang.org/x/exp/maps"
)

type array = kernels.Array[float64]

// Backend holds arrays for its clients.
type Backend struct {
	mu        sync.Mutex
	symbols   map[wire.Name]*array
	clientIDs []uint8
	epochs    []int64
	failures  int
	exited    bool
}

var _ transport.Handler = (*Backend)(nil)

// New returns a backend without any array.
func New() *Backend {
	b := &Backend{symbols: make(map[wire.Name]*array)}
	for id := 255; id >= 0; id-- {
		b.clientIDs = append(b.clientIDs, uint8(id))
	}
	return b
}

// FailCreations makes the next n creation requests fail.
func (b *Backend) FailCreations(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
}

// Names returns the sorted names of all the arrays held by the backend.
func (b *Backend) Names() []wire.Name {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := maps.Keys(b.symbols)
	slices.Sort(keys)
	return keys
}

// Lookup returns an array given its name.
func (b *Backend) Lookup(name wire.Name) (*array, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	arr, ok := b.symbols[name]
	return arr, ok
}

// Epochs returns the epochs of all the requests received, in order of reception.
func (b *Backend) Epochs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.epochs)
}

// Exited returns true once the backend has received an exit request.
func (b *Backend) Exited() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exited
}

// Handle processes a request.
func (b *Backend) Handle(h wire.Handler, req []byte) ([]byte, error) {
	epoch, payload, err := wire.DecodeEnvelope(req)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exited {
		return nil, errors.Errorf("backend has exited")
	}
	if n := len(b.epochs); n > 0 && b.epochs[n-1] >= epoch {
		log.Debug.Printf("backend: %s request with epoch %d received after epoch %d", h, epoch, b.epochs[n-1])
	}
	b.epochs = append(b.epochs, epoch)
	switch h {
	case wire.Connect:
		return b.connect()
	case wire.Disconnect:
		return nil, b.disconnect(payload)
	case wire.Create:
		return b.create(payload), nil
	case wire.Operate:
		return b.operate(payload)
	case wire.Fetch:
		return b.fetch(payload)
	case wire.Delete:
		names, err := wire.DecodeDelete(payload)
		if err != nil {
			return nil, err
		}
		b.remove(names)
		return nil, nil
	case wire.Sync:
		return []byte{1}, nil
	case wire.Exit:
		b.exited = true
		return nil, nil
	}
	return nil, errors.Errorf("handler %q unknown", h)
}

func (b *Backend) connect() ([]byte, error) {
	if len(b.clientIDs) == 0 {
		return nil, errors.Errorf("too many clients connected to the backend")
	}
	id := b.clientIDs[len(b.clientIDs)-1]
	b.clientIDs = b.clientIDs[:len(b.clientIDs)-1]
	log.Debug.Printf("backend: client %d connected", id)
	return []byte{id}, nil
}

func (b *Backend) disconnect(payload []byte) error {
	id, err := wire.DecodeDisconnect(payload)
	if err != nil {
		return err
	}
	if slices.Contains(b.clientIDs, id) {
		return errors.Errorf("client %d is not connected", id)
	}
	b.clientIDs = append(b.clientIDs, id)
	log.Debug.Printf("backend: client %d disconnected", id)
	return nil
}

func (b *Backend) create(payload []byte) []byte {
	failure := []byte{0}
	if b.failures > 0 {
		b.failures--
		return failure
	}
	req, err := wire.DecodeCreate(payload, dtype.Sizeof(dtype.Float64))
	if err != nil {
		log.Error.Printf("backend: %v", err)
		return failure
	}
	if _, exists := b.symbols[req.Name]; exists {
		log.Error.Printf("backend: array %s already exists", req.Name)
		return failure
	}
	axes := make([]int, len(req.Axes))
	size := 1
	for i, ax := range req.Axes {
		axes[i] = int(ax)
		size *= axes[i]
	}
	var arr *array
	switch {
	case req.Data != nil:
		arr, err = kernels.FromRaw[float64](req.Data, axes)
		if err != nil {
			log.Error.Printf("backend: %v", err)
			return failure
		}
	case req.Init != nil:
		arr = kernels.Fill(*req.Init, axes)
	default:
		values := make([]float64, size)
		for i := range values {
			values[i] = rand.Float64()
		}
		arr, _ = kernels.New(values, axes)
	}
	b.symbols[req.Name] = arr
	return []byte{1}
}

func (b *Backend) remove(names []wire.Name) {
	for _, name := range names {
		if _, ok := b.symbols[name]; !ok {
			log.Error.Printf("backend: cannot delete %s: array unknown", name)
			continue
		}
		delete(b.symbols, name)
	}
}

func (b *Backend) fetch(payload []byte) ([]byte, error) {
	name, err := wire.DecodeFetch(payload)
	if err != nil {
		return nil, err
	}
	arr, ok := b.symbols[name]
	if !ok {
		return nil, errors.Errorf("cannot fetch %s: array unknown", name)
	}
	return slices.Clone(arr.Buffer()), nil
}

func (b *Backend) operate(payload []byte) ([]byte, error) {
	deleted, expr, err := wire.DecodeOperation(payload)
	if err != nil {
		return nil, err
	}
	b.remove(deleted)
	var recs []wire.ShapeRecord
	if _, err := b.eval(expr, &recs); err != nil {
		return nil, err
	}
	return wire.EncodeShapes(recs), nil
}
