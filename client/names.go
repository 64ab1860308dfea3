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
	"github.com/gx-org/tiles/wire"
)

// nameAllocator allocates unique array names for a client.
// Names are never reused, even after the array has been deleted.
type nameAllocator struct {
	clientID uint8
	next     uint64
}

func (n *nameAllocator) allocate() (wire.Name, error) {
	name, err := wire.MakeName(n.clientID, n.next)
	if err != nil {
		return 0, err
	}
	n.next++
	return name, nil
}

// epochSequencer numbers outgoing requests.
type epochSequencer struct {
	n int64
}

func (e *epochSequencer) next() int64 {
	epoch := e.n
	e.n++
	return epoch
}

// deletionBatch accumulates the names of arrays to delete on the backend.
// The batch is sent with the next operation request.
type deletionBatch struct {
	names wire.Buffer
	count uint32
}

func (d *deletionBatch) enqueue(name wire.Name) {
	d.names.PutName(name)
	d.count++
}

// appendTo appends the deletion segment to a payload.
// The batch is not cleared: see reset.
func (d *deletionBatch) appendTo(b *wire.Buffer) {
	wire.AppendDeletion(b, d.count, d.names.Bytes())
}

func (d *deletionBatch) reset() {
	d.names.Reset()
	d.count = 0
}
