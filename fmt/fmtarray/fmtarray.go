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

// Package fmtarray formats the values of arrays of rank 0, 1, or 2.
package fmtarray

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
)

const tab = "\t"

type builder[T dtype.GoDataType] struct {
	w    strings.Builder
	data []T
	axes []int
}

func newBuilder[T dtype.GoDataType](data []T, axes []int) (*builder[T], error) {
	if len(axes) > 2 {
		return nil, errors.Errorf("cannot format an array with %d axes", len(axes))
	}
	total := 1
	for _, size := range axes {
		total *= size
	}
	if total != len(data) {
		return nil, errors.Errorf("len(data)=%d does not match axes %v=%d", len(data), axes, total)
	}
	return &builder[T]{data: data, axes: axes}, nil
}

func toValue[T dtype.GoDataType](x T) string {
	var fmtstr string
	switch any(x).(type) {
	case float32:
		fmtstr = "%.6f"
	case float64:
		fmtstr = "%.10f"
	default:
		return fmt.Sprint(x)
	}
	result := fmt.Sprintf(fmtstr, x)
	if strings.ContainsRune(result, '.') {
		// Trailing zeroes, and the point if nothing is left after it.
		result = strings.TrimRight(result, "0")
		result = strings.TrimSuffix(result, ".")
	}
	return result
}

func (b *builder[T]) printRow(row []T) {
	vals := make([]string, len(row))
	for i, x := range row {
		vals[i] = toValue(x)
	}
	fmt.Fprintf(&b.w, "{%s}", strings.Join(vals, ", "))
}

func (b *builder[T]) printValues() {
	switch len(b.axes) {
	case 0:
		fmt.Fprintf(&b.w, "(%s)", toValue(b.data[0]))
	case 1:
		b.printRow(b.data)
	case 2:
		cols := b.axes[1]
		b.w.WriteString("{\n")
		for r := range b.axes[0] {
			b.w.WriteString(tab)
			b.printRow(b.data[r*cols : (r+1)*cols])
			b.w.WriteString(",\n")
		}
		b.w.WriteString("}")
	}
}

func (b *builder[T]) printType() {
	for _, size := range b.axes {
		fmt.Fprintf(&b.w, "[%d]", size)
	}
	var zero T
	fmt.Fprintf(&b.w, "%T", zero)
}

// SDataPrint returns the values of an array without its type.
func SDataPrint[T dtype.GoDataType](data []T, axes []int) string {
	b, err := newBuilder(data, axes)
	if err != nil {
		return err.Error()
	}
	b.printValues()
	return b.w.String()
}

// Sprint returns the type and the values of an array.
func Sprint[T dtype.GoDataType](data []T, axes []int) string {
	b, err := newBuilder(data, axes)
	if err != nil {
		return err.Error()
	}
	b.printType()
	b.printValues()
	return b.w.String()
}
