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

	"github.com/pkg/errors"
)

// Reader reads values from a payload.
//
// The first error is sticky: once a read fails, all subsequent reads return
// zero values and Err returns the error.
type Reader struct {
	b   []byte
	off int
	err error
}

// NewReader returns a reader over a payload.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.err = errors.Errorf("payload too short: cannot read %d bytes at offset %d of %d", n, r.off, len(r.b))
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

// Uint64 reads a 64-bit unsigned integer.
func (r *Reader) Uint64() uint64 {
	p := r.next(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

// Int64 reads a 64-bit signed integer.
func (r *Reader) Int64() int64 {
	return int64(r.Uint64())
}

// Uint32 reads a 32-bit unsigned integer.
func (r *Reader) Uint32() uint32 {
	p := r.next(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

// Uint8 reads a byte.
func (r *Reader) Uint8() uint8 {
	p := r.next(1)
	if p == nil {
		return 0
	}
	return p[0]
}

// Bool reads a boolean stored as a single byte.
func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

// Float64 reads a float64.
func (r *Reader) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

// Name reads an array name.
func (r *Reader) Name() Name {
	return Name(r.Uint64())
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) []byte {
	return r.next(n)
}

// Rest returns all the bytes not read yet.
func (r *Reader) Rest() []byte {
	return r.next(r.Len())
}

// Len returns the number of bytes not read yet.
func (r *Reader) Len() int {
	return len(r.b) - r.off
}

// Err returns the first error encountered by the reader.
func (r *Reader) Err() error {
	return r.err
}

// DecodeEnvelope splits a request into its epoch and payload.
func DecodeEnvelope(req []byte) (epoch int64, payload []byte, err error) {
	r := NewReader(req)
	epoch = r.Int64()
	size := r.Uint32()
	payload = r.Bytes(int(size))
	if err := r.Err(); err != nil {
		return 0, nil, errors.Wrap(err, "cannot decode request envelope")
	}
	if r.Len() != 0 {
		return 0, nil, errors.Errorf("request envelope declares %d bytes of payload but %d bytes are trailing", size, r.Len())
	}
	return epoch, payload, nil
}

// DecodeCreate decodes the payload of a creation request.
// itemSize is the size in bytes of one element, used to size the raw data.
func DecodeCreate(payload []byte, itemSize int) (*CreateRequest, error) {
	r := NewReader(payload)
	req := &CreateRequest{Name: r.Name()}
	numAxes := r.Uint32()
	hasData := r.Bool()
	hasInit := r.Bool()
	if r.Err() == nil && numAxes > 2 {
		return nil, errors.Errorf("creation request for %s: %d axes not supported", req.Name, numAxes)
	}
	size := 1
	req.Axes = make([]uint64, numAxes)
	for i := range req.Axes {
		req.Axes[i] = r.Uint64()
		size *= int(req.Axes[i])
	}
	switch {
	case hasData:
		req.Data = r.Bytes(size * itemSize)
	case hasInit:
		v := r.Float64()
		req.Init = &v
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrapf(err, "cannot decode creation request")
	}
	return req, nil
}

// DecodeFetch decodes the payload of a fetch request.
func DecodeFetch(payload []byte) (Name, error) {
	r := NewReader(payload)
	name := r.Name()
	return name, errors.Wrap(r.Err(), "cannot decode fetch request")
}

func decodeNames(r *Reader) []Name {
	count := r.Uint32()
	if r.Err() != nil {
		return nil
	}
	if int(count) > r.Len()/NameSize {
		r.next(int(count) * NameSize)
		return nil
	}
	names := make([]Name, count)
	for i := range names {
		names[i] = r.Name()
	}
	return names
}

// DecodeDelete decodes the payload of a standalone deletion request.
func DecodeDelete(payload []byte) ([]Name, error) {
	r := NewReader(payload)
	names := decodeNames(r)
	return names, errors.Wrap(r.Err(), "cannot decode deletion request")
}

// DecodeDisconnect decodes the payload of a disconnection request.
func DecodeDisconnect(payload []byte) (uint8, error) {
	r := NewReader(payload)
	id := r.Uint8()
	return id, errors.Wrap(r.Err(), "cannot decode disconnection request")
}

// Expr is a decoded command graph.
type Expr struct {
	// Op is the opcode of the expression. Leaf for arrays and scalars.
	Op Opcode
	// Name of the array referenced by a leaf, or of the result of an operation.
	Name Name
	// Save is true if the backend must keep the result of the operation.
	Save bool
	// IsScalar is true for a scalar literal.
	IsScalar bool
	// Value of a scalar literal.
	Value float64
	// Operands of an operation.
	Operands []*Expr
}

// DecodeOperation decodes the payload of an operation request into the names
// to delete and the command graph.
func DecodeOperation(payload []byte) ([]Name, *Expr, error) {
	r := NewReader(payload)
	deleted := decodeNames(r)
	if err := r.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "cannot decode deletion segment")
	}
	expr, err := DecodeExpr(r.Rest())
	if err != nil {
		return nil, nil, err
	}
	return deleted, expr, nil
}

// DecodeExpr decodes a single expression record.
func DecodeExpr(sub []byte) (*Expr, error) {
	r := NewReader(sub)
	expr := &Expr{Op: Opcode(r.Uint64())}
	if expr.Op == Leaf {
		expr.IsScalar = r.Bool()
		if expr.IsScalar {
			expr.Value = r.Float64()
		} else {
			expr.Name = r.Name()
		}
		return expr, errors.Wrap(r.Err(), "cannot decode leaf record")
	}
	expr.Name = r.Name()
	expr.Save = r.Bool()
	numOperands := r.Uint8()
	for i := range int(numOperands) {
		size := r.Uint32()
		opSub := r.Bytes(int(size))
		if err := r.Err(); err != nil {
			return nil, errors.Wrapf(err, "cannot decode operand %d of %s", i, expr.Op)
		}
		operand, err := DecodeExpr(opSub)
		if err != nil {
			return nil, err
		}
		expr.Operands = append(expr.Operands, operand)
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s record", expr.Op)
	}
	return expr, nil
}
