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

package backend

import (
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/golang/backend/kernels"
	"github.com/gx-org/tiles/wire"
)

type kernel struct {
	arity int
	apply func([]*array) (*array, error)
}

func unary(k kernels.Unary[float64]) kernel {
	return kernel{arity: 1, apply: func(xs []*array) (*array, error) { return k(xs[0]) }}
}

func binary(k kernels.Binary[float64]) kernel {
	return kernel{arity: 2, apply: func(xs []*array) (*array, error) { return k(xs[0], xs[1]) }}
}

func ternary(k kernels.Ternary[float64]) kernel {
	return kernel{arity: 3, apply: func(xs []*array) (*array, error) { return k(xs[0], xs[1], xs[2]) }}
}

var opKernels = map[wire.Opcode]kernel{
	wire.Add:    binary(kernels.Add[float64]),
	wire.Sub:    binary(kernels.Sub[float64]),
	wire.Mul:    binary(kernels.Mul[float64]),
	wire.Div:    binary(kernels.Div[float64]),
	wire.MatMul: binary(kernels.MatMul[float64]),
	wire.Copy:   unary(kernels.Copy[float64]),
	wire.Sqrt:   unary(kernels.Sqrt[float64]),
	wire.Axpy:   ternary(kernels.Axpy[float64]),
	wire.AxpyMultiplier: {arity: 4, apply: func(xs []*array) (*array, error) {
		return kernels.AxpyMultiplier(xs[0], xs[1], xs[2], xs[3])
	}},
}

// eval computes an expression. The shape of every array saved by the
// expression is appended to recs, operands before the operation using them.
func (b *Backend) eval(expr *wire.Expr, recs *[]wire.ShapeRecord) (*array, error) {
	if expr.Op == wire.Leaf {
		if expr.IsScalar {
			return kernels.Atom(expr.Value), nil
		}
		arr, ok := b.symbols[expr.Name]
		if !ok {
			return nil, errors.Errorf("symbol %s not found", expr.Name)
		}
		return arr, nil
	}
	k, ok := opKernels[expr.Op]
	if !ok {
		return nil, errors.Errorf("operation %s not implemented", expr.Op)
	}
	if len(expr.Operands) != k.arity {
		return nil, errors.Errorf("operation %s: got %d operands but want %d", expr.Op, len(expr.Operands), k.arity)
	}
	operands := make([]*array, len(expr.Operands))
	for i, operand := range expr.Operands {
		var err error
		if operands[i], err = b.eval(operand, recs); err != nil {
			return nil, err
		}
	}
	res, err := k.apply(operands)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot compute %s", expr.Name)
	}
	if expr.Save {
		b.symbols[expr.Name] = res
		rec := wire.ShapeRecord{Name: expr.Name}
		for _, ax := range res.Axes() {
			rec.Axes = append(rec.Axes, uint64(ax))
		}
		*recs = append(*recs, rec)
	}
	return res, nil
}
