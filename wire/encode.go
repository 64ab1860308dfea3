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

package wire

import (
	"encoding/binary"
	"math"
)

// Buffer accumulates the bytes of a payload.
type Buffer struct {
	b []byte
}

// PutUint64 appends a 64-bit unsigned integer.
func (b *Buffer) PutUint64(v uint64) {
	b.b = binary.LittleEndian.AppendUint64(b.b, v)
}

// PutInt64 appends a 64-bit signed integer.
func (b *Buffer) PutInt64(v int64) {
	b.PutUint64(uint64(v))
}

// PutUint32 appends a 32-bit unsigned integer.
func (b *Buffer) PutUint32(v uint32) {
	b.b = binary.LittleEndian.AppendUint32(b.b, v)
}

// PutUint8 appends a byte.
func (b *Buffer) PutUint8(v uint8) {
	b.b = append(b.b, v)
}

// PutBool appends a boolean as a single byte.
func (b *Buffer) PutBool(v bool) {
	if v {
		b.PutUint8(1)
		return
	}
	b.PutUint8(0)
}

// PutFloat64 appends a float64 using its IEEE 754 representation.
func (b *Buffer) PutFloat64(v float64) {
	b.PutUint64(math.Float64bits(v))
}

// PutName appends an array name.
func (b *Buffer) PutName(n Name) {
	b.PutUint64(uint64(n))
}

// Write appends raw bytes. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int {
	return len(b.b)
}

// Bytes returns the content of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.b
}

// Reset empties the buffer but keeps its storage.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
}

// Envelope wraps a payload with the epoch of the request and the payload length.
func Envelope(epoch int64, payload []byte) []byte {
	var b Buffer
	b.b = make([]byte, 0, HeaderSize+len(payload))
	b.PutInt64(epoch)
	b.PutUint32(uint32(len(payload)))
	b.Write(payload)
	return b.Bytes()
}

// AppendLeaf appends a leaf record referencing an array already on the backend.
func AppendLeaf(b *Buffer, name Name) {
	b.PutUint64(uint64(Leaf))
	b.PutBool(false)
	b.PutName(name)
}

// AppendScalar appends a scalar literal record.
func AppendScalar(b *Buffer, v float64) {
	b.PutUint64(uint64(Leaf))
	b.PutBool(true)
	b.PutFloat64(v)
}

// AppendOpHeader appends the header of an operation record.
// It must be followed by numOperands length-prefixed operand records.
func AppendOpHeader(b *Buffer, op Opcode, result Name, save bool, numOperands uint8) {
	b.PutUint64(uint64(op))
	b.PutName(result)
	b.PutBool(save)
	b.PutUint8(numOperands)
}

// AppendSub appends a length-prefixed operand record.
func AppendSub(b *Buffer, sub []byte) {
	b.PutUint32(uint32(len(sub)))
	b.Write(sub)
}

// AppendDeletion appends a deletion segment given the raw bytes of count names.
func AppendDeletion(b *Buffer, count uint32, names []byte) {
	b.PutUint32(count)
	b.Write(names)
}

// CreateRequest asks a backend to allocate an array.
//
// At most one of Data and Init is set. If none are set, the backend chooses
// the content of the array.
type CreateRequest struct {
	Name Name
	Axes []uint64
	Data []byte
	Init *float64
}

// Encode the request into a payload.
func (r *CreateRequest) Encode() []byte {
	var b Buffer
	b.PutName(r.Name)
	b.PutUint32(uint32(len(r.Axes)))
	b.PutBool(r.Data != nil)
	b.PutBool(r.Data == nil && r.Init != nil)
	for _, ax := range r.Axes {
		b.PutUint64(ax)
	}
	switch {
	case r.Data != nil:
		b.Write(r.Data)
	case r.Init != nil:
		b.PutFloat64(*r.Init)
	}
	return b.Bytes()
}

// EncodeFetch returns the payload of a fetch request.
func EncodeFetch(name Name) []byte {
	var b Buffer
	b.PutName(name)
	return b.Bytes()
}

// EncodeDelete returns the payload of a standalone deletion request.
func EncodeDelete(names ...Name) []byte {
	var b Buffer
	b.PutUint32(uint32(len(names)))
	for _, name := range names {
		b.PutName(name)
	}
	return b.Bytes()
}

// EncodeDisconnect returns the payload of a disconnection request.
func EncodeDisconnect(clientID uint8) []byte {
	return []byte{clientID}
}

// ShapeRecord is the shape of an array materialized by an operation.
type ShapeRecord struct {
	Name Name
	Axes []uint64
}

// EncodeShapes returns the reply to an operation request.
func EncodeShapes(recs []ShapeRecord) []byte {
	var b Buffer
	for _, rec := range recs {
		b.PutName(rec.Name)
		for _, ax := range rec.Axes {
			b.PutUint64(ax)
		}
	}
	return b.Bytes()
}

// ShapesSize returns the size of the reply to an operation given the number of axes
// of every array materialized by the operation.
func ShapesSize(numAxes ...int) int {
	size := 0
	for _, n := range numAxes {
		size += NameSize + n*DimSize
	}
	return size
}
