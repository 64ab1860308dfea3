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
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/graph"
)

// Errors returned by operations. Use errors.Is to test for them.
var (
	// ErrShapeMismatch is returned when operands of an elementwise operation
	// do not have the same shape.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDimensionMismatch is returned when the ranks or the axis lengths of
	// the operands are not compatible with the operation.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrUnsupportedRank is returned when creating an array with more than 2 axes.
	ErrUnsupportedRank = errors.New("unsupported rank")

	// ErrUnknownOpcode is returned when an operation is not known by backends.
	ErrUnknownOpcode = graph.ErrUnknownOpcode

	// ErrUnsupportedDType is returned when creating an array of another data type than float64.
	ErrUnsupportedDType = errors.New("unsupported data type")

	// ErrCreation is returned when the backend failed to create an array.
	ErrCreation = errors.New("backend failed to create array")

	// ErrClosed is returned when using a session after it has been closed.
	ErrClosed = errors.New("session closed")
)
