/*
Copyright © 2026 the Regrid authors.
This file is part of Regrid.

Regrid is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Regrid is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Regrid.  If not, see <http://www.gnu.org/licenses/>.
*/

package regrid

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ctessum/cdf"
)

func pairWeights(entries ...[3]float64) *Weights {
	w := new(Weights)
	for _, e := range entries {
		w.add(int(e[0]), int(e[1]), e[2])
	}
	return w
}

func TestApplySlabConservative(t *testing.T) {
	op := &Operator{
		Method:  Conservative,
		Weights: pairWeights([3]float64{0, 0, 0.5}, [3]float64{0, 1, 0.5}),
	}
	dst := make([]float64, 1)
	dstMask := make([]bool, 1)

	if err := op.applySlab([]float64{2, 4}, nil, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	if dstMask[0] || dst[0] != 3 {
		t.Errorf("want 3 but have %g (masked %v)", dst[0], dstMask[0])
	}

	// A partially masked stencil renormalizes over the unmasked
	// contributions.
	if err := op.applySlab([]float64{2, 4}, []bool{false, true}, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	if dstMask[0] || dst[0] != 2 {
		t.Errorf("want 2 but have %g (masked %v)", dst[0], dstMask[0])
	}

	// A fully masked stencil comes out masked.
	if err := op.applySlab([]float64{2, 4}, []bool{true, true}, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	if !dstMask[0] {
		t.Error("a fully masked stencil should come out masked")
	}
}

func TestApplySlabLinear(t *testing.T) {
	op := &Operator{
		Method:  Linear,
		Weights: pairWeights([3]float64{0, 0, 0.5}, [3]float64{0, 1, 0.5}),
	}
	dst := make([]float64, 2)
	dstMask := make([]bool, 2)

	if err := op.applySlab([]float64{2, 4}, nil, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	if dstMask[0] || dst[0] != 3 {
		t.Errorf("want 3 but have %g (masked %v)", dst[0], dstMask[0])
	}
	// Destination point 1 has no contributions at all.
	if !dstMask[1] {
		t.Error("a destination point with no contributions should be masked")
	}

	// Any masked contribution masks the interpolated point.
	if err := op.applySlab([]float64{2, 4}, []bool{false, true}, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	if !dstMask[0] {
		t.Error("a stencil with a masked contribution should come out masked")
	}
}

func TestApplySlabNearestDTOS(t *testing.T) {
	op := &Operator{
		Method:  NearestDTOS,
		Weights: pairWeights([3]float64{0, 0, 1}, [3]float64{0, 1, 1}, [3]float64{1, 2, 1}),
	}
	dst := make([]float64, 2)
	dstMask := make([]bool, 2)

	if err := op.applySlab([]float64{2, 4, 7}, nil, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	// Destination points sum their nearest source points.
	if dstMask[0] || dst[0] != 6 {
		t.Errorf("want 6 but have %g (masked %v)", dst[0], dstMask[0])
	}
	if dstMask[1] || dst[1] != 7 {
		t.Errorf("want 7 but have %g (masked %v)", dst[1], dstMask[1])
	}

	// Masking every contributing source point masks the sum.
	if err := op.applySlab([]float64{2, 4, 7}, []bool{true, true, false}, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	if !dstMask[0] {
		t.Error("a sum with only masked contributions should be masked")
	}
	if dstMask[1] || dst[1] != 7 {
		t.Errorf("want 7 but have %g (masked %v)", dst[1], dstMask[1])
	}
}

func TestApplySlabNearestSTODMaskMismatch(t *testing.T) {
	op := &Operator{
		Method:  NearestSTOD,
		Weights: pairWeights([3]float64{0, 0, 1}),
	}
	dst := make([]float64, 1)
	dstMask := make([]bool, 1)

	// The weights were computed without a source mask, so masked data
	// can't be regridded with them.
	err := op.applySlab([]float64{2, 4}, []bool{false, true}, dst, dstMask)
	if err == nil {
		t.Fatal("a source mask differing from the operator's should be an error")
	}

	// A matching mask is fine.
	op.SrcMask = []bool{false, true}
	if err := op.applySlab([]float64{2, 4}, []bool{false, true}, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	if dstMask[0] || dst[0] != 2 {
		t.Errorf("want 2 but have %g (masked %v)", dst[0], dstMask[0])
	}
}

func TestApplySlabDstMask(t *testing.T) {
	op := &Operator{
		Method:  Linear,
		Weights: pairWeights([3]float64{0, 0, 1}, [3]float64{1, 1, 1}),
		DstMask: []bool{false, true},
	}
	dst := make([]float64, 2)
	dstMask := make([]bool, 2)
	if err := op.applySlab([]float64{2, 4}, nil, dst, dstMask); err != nil {
		t.Fatal(err)
	}
	if dstMask[0] || dst[0] != 2 {
		t.Errorf("want 2 but have %g (masked %v)", dst[0], dstMask[0])
	}
	if !dstMask[1] {
		t.Error("the destination grid mask should mask point 1")
	}
}

func TestOperatorApply(t *testing.T) {
	// A field with a leading time axis: each time slab is regridded
	// independently.
	data := testArray([]int{2, 2, 2},
		1, 2,
		3, 4,

		5, 6,
		7, 8)
	f, err := NewField("q", []string{"t", "y", "x"}, data)
	if err != nil {
		t.Fatal(err)
	}
	g := sphGrid([]float64{10, 30}, []float64{10, 30}, nil, nil, false)
	g.AxisIndices = []int{1, 2}

	op := &Operator{
		Method:      Conservative,
		CoordSystem: Spherical,
		Weights: pairWeights([3]float64{0, 0, 0.25}, [3]float64{0, 1, 0.25},
			[3]float64{0, 2, 0.25}, [3]float64{0, 3, 0.25}),
		SrcShape: []int{2, 2},
		DstShape: []int{1, 1},
	}
	out, err := op.Apply(f, g)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out.Data.Shape, []int{2, 1, 1}) {
		t.Fatalf("output shape: want [2 1 1] but have %v", out.Data.Shape)
	}
	if out.Mask != nil {
		t.Error("output should not be masked")
	}
	if have := out.Data.Get(0, 0, 0); have != 2.5 {
		t.Errorf("slab 0: want 2.5 but have %g", have)
	}
	if have := out.Data.Get(1, 0, 0); have != 6.5 {
		t.Errorf("slab 1: want 6.5 but have %g", have)
	}
}

func TestOperatorCheck(t *testing.T) {
	lat := latCoord("y", testArray([]int{2}, 10, 30), nil)
	lon := lonCoord("x", testArray([]int{2}, 10, 30), nil)
	op := &Operator{
		Method:      Linear,
		CoordSystem: Spherical,
		SrcShape:    []int{2, 2},
		SrcCoords:   []*Coord{lat, lon},
	}

	g := sphGrid([]float64{10, 30}, []float64{10, 30}, nil, nil, false)
	if err := op.Check(g, true); err != nil {
		t.Fatal(err)
	}

	bad := sphGrid([]float64{10, 30, 50}, []float64{10, 30}, nil, nil, false)
	if err := op.Check(bad, false); err == nil {
		t.Error("a shape mismatch should be an error")
	}

	cyc := sphGrid([]float64{10, 30}, []float64{10, 30}, nil, nil, true)
	if err := op.Check(cyc, false); err == nil {
		t.Error("a cyclicity mismatch should be an error")
	}

	cart := &Grid{CoordSystem: Cartesian, AxisIndices: []int{0, 1}, Shape: []int{2, 2}}
	if err := op.Check(cart, false); err == nil {
		t.Error("a coordinate system mismatch should be an error")
	}

	moved := sphGrid([]float64{10, 31}, []float64{10, 30}, nil, nil, false)
	if err := op.Check(moved, false); err != nil {
		t.Error("moved coordinates should pass without the element-wise check")
	}
	if err := op.Check(moved, true); err == nil {
		t.Error("moved coordinates should fail the element-wise check")
	}
}

func TestOperatorReadWrite(t *testing.T) {
	op := &Operator{
		Method:      NearestSTOD,
		CoordSystem: Spherical,
		Weights: pairWeights([3]float64{0, 1, 1}, [3]float64{1, 2, 0.5},
			[3]float64{2, 0, 0.25}),
		SrcShape:  []int{2, 2},
		DstShape:  []int{1, 3},
		SrcCyclic: true,
		SrcCoords: []*Coord{
			latCoord("y", testArray([]int{2}, 10, 30), edgeBounds(0, 20, 40)),
			lonCoord("x", testArray([]int{2}, 10, 30), nil),
		},
		DstAxisKeys: []string{"y", "x"},
		DstCoords: []*Coord{
			latCoord("y", testArray([]int{1}, 20), nil),
			lonCoord("x", testArray([]int{3}, 10, 30, 50), nil),
		},
		SrcMask: []bool{false, true, false, false},
		DstMask: []bool{false, false, true},
	}

	fname := filepath.Join(t.TempDir(), "operator.nc")
	w, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	if err := op.Write(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	have, err := ReadOperator(r)
	if err != nil {
		t.Fatal(err)
	}

	if have.Method != op.Method {
		t.Errorf("method: want %v but have %v", op.Method, have.Method)
	}
	if have.CoordSystem != op.CoordSystem {
		t.Errorf("coordinate system: want %v but have %v", op.CoordSystem, have.CoordSystem)
	}
	if !reflect.DeepEqual(have.SrcShape, op.SrcShape) || !reflect.DeepEqual(have.DstShape, op.DstShape) {
		t.Errorf("shapes: want %v %v but have %v %v",
			op.SrcShape, op.DstShape, have.SrcShape, have.DstShape)
	}
	if have.SrcCyclic != op.SrcCyclic || have.DstCyclic != op.DstCyclic {
		t.Errorf("cyclicity: want %v %v but have %v %v",
			op.SrcCyclic, op.DstCyclic, have.SrcCyclic, have.DstCyclic)
	}
	if !reflect.DeepEqual(have.DstAxisKeys, op.DstAxisKeys) {
		t.Errorf("destination axis keys: want %v but have %v", op.DstAxisKeys, have.DstAxisKeys)
	}
	if !reflect.DeepEqual(have.Weights.Row, op.Weights.Row) ||
		!reflect.DeepEqual(have.Weights.Col, op.Weights.Col) {
		t.Errorf("weight indices: want %v %v but have %v %v",
			op.Weights.Row, op.Weights.Col, have.Weights.Row, have.Weights.Col)
	}
	for k, v := range op.Weights.W {
		if math.Abs(have.Weights.W[k]-v) > 1e-15 {
			t.Errorf("weight %d: want %g but have %g", k, v, have.Weights.W[k])
		}
	}
	if !reflect.DeepEqual(have.SrcMask, op.SrcMask) || !reflect.DeepEqual(have.DstMask, op.DstMask) {
		t.Errorf("masks: want %v %v but have %v %v",
			op.SrcMask, op.DstMask, have.SrcMask, have.DstMask)
	}
	if len(have.SrcCoords) != 2 || len(have.DstCoords) != 2 {
		t.Fatalf("want 2 coordinates per grid but have %d and %d",
			len(have.SrcCoords), len(have.DstCoords))
	}
	for i, c := range op.SrcCoords {
		h := have.SrcCoords[i]
		if h.Name != c.Name || h.StandardName != c.StandardName || h.Units != c.Units {
			t.Errorf("source coordinate %d metadata: want %+v but have %+v", i, c, h)
		}
		if !h.equalValues(c) {
			t.Errorf("source coordinate %d values: want %v but have %v", i, c.Values, h.Values)
		}
	}
	for i, c := range op.DstCoords {
		if !have.DstCoords[i].equalValues(c) {
			t.Errorf("destination coordinate %d values mismatch", i)
		}
	}
}

func TestReadOperatorForeignFile(t *testing.T) {
	// A NetCDF file carrying the right data version but none of the
	// other operator attributes must come back as an error rather
	// than a panic.
	h := cdf.NewHeader([]string{"n"}, []int{1})
	h.AddAttribute("", "data_version", OperatorDataVersion)
	h.AddVariable("v", []string{"n"}, []float64{0})
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		t.Fatal(errs[0])
	}

	fname := filepath.Join(t.TempDir(), "foreign.nc")
	w, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Writer("v", []int{0}, []int{1}).Write([]float64{0}); err != nil {
		t.Fatal(err)
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := ReadOperator(r); err == nil ||
		!strings.Contains(err.Error(), "attribute") {
		t.Fatalf("want a missing attribute error but have %v", err)
	}
}

func TestMasksEqual(t *testing.T) {
	if !masksEqual(nil, nil) {
		t.Error("nil masks should be equal")
	}
	if !masksEqual(nil, []bool{false, false}) {
		t.Error("a nil mask should equal an all-false mask")
	}
	if masksEqual(nil, []bool{false, true}) {
		t.Error("a nil mask should not equal a mask with missing points")
	}
	if masksEqual([]bool{true, false}, []bool{false, true}) {
		t.Error("different masks should not be equal")
	}
	if !masksEqual([]bool{true, false}, []bool{true, false}) {
		t.Error("identical masks should be equal")
	}
}
