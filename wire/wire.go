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

// Package wire encodes and decodes the binary requests exchanged between
// a tiles client and a backend.
//
// Every request is wrapped in an envelope:
//
//	[epoch int64][payload length uint32][payload]
//
// All integers are little-endian.
package wire

import (
	"fmt"

	"github.com/pkg/errors"
)

// Name identifies an array on a backend.
//
// The top 8 bits hold the id of the client which allocated the name,
// the low 56 bits a per-client counter.
type Name uint64

const (
	counterBits = 56

	// MaxCounter is the largest counter a client can use in a name.
	MaxCounter = 1<<counterBits - 1
)

// MakeName returns the name of the array given a client id and a counter.
func MakeName(clientID uint8, counter uint64) (Name, error) {
	if counter > MaxCounter {
		return 0, errors.Errorf("name counter %d exceeds the maximum of %d", counter, uint64(MaxCounter))
	}
	return Name(uint64(clientID)<<counterBits | counter), nil
}

// ClientID returns the id of the client which allocated the name.
func (n Name) ClientID() uint8 {
	return uint8(n >> counterBits)
}

// Counter returns the per-client counter of the name.
func (n Name) Counter() uint64 {
	return uint64(n) & MaxCounter
}

func (n Name) String() string {
	return fmt.Sprintf("a%d.%d", n.ClientID(), n.Counter())
}

// Opcode of an operation in a command graph.
type Opcode uint64

// Opcodes understood by backends.
const (
	Leaf           Opcode = 0
	Add            Opcode = 1
	Sub            Opcode = 2
	Mul            Opcode = 3
	Div            Opcode = 4
	MatMul         Opcode = 5
	Copy           Opcode = 6
	Axpy           Opcode = 7
	AxpyMultiplier Opcode = 8
	Sqrt           Opcode = 10
)

var opcodeNames = map[Opcode]string{
	Leaf:           "leaf",
	Add:            "+",
	Sub:            "-",
	Mul:            "*",
	Div:            "/",
	MatMul:         "@",
	Copy:           "copy",
	Axpy:           "axpy",
	AxpyMultiplier: "axpy_multiplier",
	Sqrt:           "sqrt",
}

// Known returns true if the opcode is understood by backends.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

func (op Opcode) String() string {
	s, ok := opcodeNames[op]
	if !ok {
		return fmt.Sprintf("opcode(%d)", uint64(op))
	}
	return s
}

// Handler is the name of an endpoint exposed by a backend.
type Handler string

// Endpoints exposed by backends.
const (
	Connect    Handler = "aum_connect"
	Disconnect Handler = "aum_disconnect"
	Create     Handler = "aum_creation"
	Operate    Handler = "aum_operation"
	Fetch      Handler = "aum_fetch"
	Delete     Handler = "aum_delete"
	Sync       Handler = "aum_sync"
	Exit       Handler = "aum_exit"
)

// Handlers lists all the endpoints in a stable order.
var Handlers = []Handler{Connect, Disconnect, Create, Operate, Fetch, Delete, Sync, Exit}

// Sizes of fixed-size records.
const (
	// HeaderSize is the size of the envelope header.
	HeaderSize = 8 + 4
	// LeafSize is the size of a leaf or scalar record.
	LeafSize = 8 + 1 + 8
	// NameSize is the size of an array name.
	NameSize = 8
	// DimSize is the size of an axis length in creation requests and replies.
	DimSize = 8
)
