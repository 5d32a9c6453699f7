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
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// OperatorDataVersion is the version of the regrid operator file
// format. It must be updated whenever the format changes.
const OperatorDataVersion = "1"

// An Operator holds regridding weights along with the grid
// information needed to check that a source field is compatible with
// them and to update the metadata of regridded fields. Computing the
// weights is in general much more expensive than applying them, so an
// operator can be reused to regrid any number of fields that share
// the source grid, and can be stored to a file.
type Operator struct {
	Method      Method
	CoordSystem CoordSystem
	Weights     *Weights

	// SrcShape and DstShape are the regrid axis sizes of the source
	// and destination grids.
	SrcShape, DstShape []int

	SrcCyclic, DstCyclic bool

	// SrcCoords are the source grid coordinates the weights were
	// computed from, kept so that reuse against a different source
	// grid can be detected.
	SrcCoords []*Coord

	// DstAxisKeys and DstCoords describe the destination grid, for
	// updating the coordinate metadata of regridded fields.
	DstAxisKeys []string
	DstCoords   []*Coord

	// SrcMask is the source grid mask that was folded into the
	// weights, or nil if none was. When non-nil, the mask of any
	// field the operator is applied to must match it.
	SrcMask []bool

	// DstMask marks destination grid points that are always masked
	// in the result, or is nil.
	DstMask []bool
}

// Check returns an error if a source grid is not compatible with the
// operator. If checkCoords is true the source grid coordinates are
// also compared element-wise with those the weights were computed
// from, which can be slow for large grids.
func (op *Operator) Check(g *Grid, checkCoords bool) error {
	if g.CoordSystem != op.CoordSystem {
		return fmt.Errorf("regrid: can't reuse operator: coordinate system mismatch: "+
			"%v != %v", g.CoordSystem, op.CoordSystem)
	}
	if g.Cyclic != op.SrcCyclic {
		return fmt.Errorf("regrid: can't reuse operator: source grid cyclicity mismatch")
	}
	if !shapesEqual(g.dataShape(), op.SrcShape) {
		return fmt.Errorf("regrid: can't reuse operator: source grid shape mismatch: "+
			"%v != %v", g.dataShape(), op.SrcShape)
	}
	if !checkCoords {
		return nil
	}
	coords := g.Coords[:len(g.AxisIndices)]
	if len(coords) != len(op.SrcCoords) {
		return fmt.Errorf("regrid: can't reuse operator: source grid coordinates mismatch")
	}
	for i, c := range coords {
		o := op.SrcCoords[i]
		if !arraysEqual(c.Values, o.Values) {
			return fmt.Errorf("regrid: can't reuse operator: source grid coordinates mismatch")
		}
		if !arraysEqual(c.Bounds, o.Bounds) {
			return fmt.Errorf("regrid: can't reuse operator: source grid coordinate " +
				"bounds mismatch")
		}
	}
	return nil
}

// applySlab regrids one slab of data: src holds the source grid
// values in row-major grid order and srcMask marks missing source
// points (it may be nil). The results are written to dst and dstMask,
// which must have the destination grid size. Destination points with
// no valid contributions come out masked.
func (op *Operator) applySlab(src []float64, srcMask []bool, dst []float64, dstMask []bool) error {
	if op.SrcMask != nil || op.Method == NearestSTOD {
		if !masksEqual(srcMask, op.SrcMask) {
			return fmt.Errorf("regrid: can't regrid data with a source grid mask " +
				"that differs from the mask used to compute the regridding weights")
		}
	}

	n := len(dst)
	num := make([]float64, n)
	den := make([]float64, n)
	contrib := make([]bool, n)
	missing := make([]bool, n)

	w := op.Weights
	for k, wt := range w.W {
		r, c := w.Row[k], w.Col[k]
		contrib[r] = true
		if srcMask != nil && srcMask[c] {
			missing[r] = true
			continue
		}
		num[r] += wt * src[c]
		den[r] += wt
	}

	for j := 0; j < n; j++ {
		switch {
		case !contrib[j]:
			dstMask[j] = true
		case op.Method.Conservative():
			// Renormalize over the unmasked contributions so that
			// partially masked stencils still hold a mean.
			if den[j] <= 1e-12 {
				dstMask[j] = true
			} else {
				dst[j] = num[j] / den[j]
				dstMask[j] = false
			}
		case op.Method == NearestDTOS:
			if den[j] == 0 {
				dstMask[j] = true
			} else {
				dst[j] = num[j]
				dstMask[j] = false
			}
		default:
			// Linear interpolation and nearest-source mapping do not
			// admit partial stencils.
			if missing[j] {
				dstMask[j] = true
			} else {
				dst[j] = num[j]
				dstMask[j] = false
			}
		}
		if op.DstMask != nil && op.DstMask[j] {
			dstMask[j] = true
		}
	}
	return nil
}

// Apply regrids the data of a field whose regrid axes are described
// by g, which must have been extracted from the field. The returned
// field has the same non-regrid axes as the input and the regrid axis
// sizes of the destination grid; its coordinate metadata is not
// updated.
func (op *Operator) Apply(f *Field, g *Grid) (*Field, error) {
	if f.Data == nil {
		return nil, fmt.Errorf("regrid: field %s has no data", f.Name)
	}

	srcShape := f.Data.Shape
	outShape := append([]int{}, srcShape...)
	for d, ai := range g.AxisIndices {
		outShape[ai] = op.DstShape[d]
	}

	regridDim := make([]bool, len(srcShape))
	for _, ai := range g.AxisIndices {
		regridDim[ai] = true
	}
	var otherDims []int
	slabs := 1
	for i, isRegrid := range regridDim {
		if !isRegrid {
			otherDims = append(otherDims, i)
			slabs *= srcShape[i]
		}
	}

	srcN, dstN := 1, 1
	for _, s := range op.SrcShape {
		srcN *= s
	}
	for _, s := range op.DstShape {
		dstN *= s
	}

	out := &Field{
		Name:  f.Name,
		Units: f.Units,
		Axes:  append([]string{}, f.Axes...),
		Data:  sparse.ZerosDense(outShape...),
	}
	outMask := sparse.ZerosDense(outShape...)
	anyMasked := false

	src := make([]float64, srcN)
	var srcMask []bool
	dst := make([]float64, dstN)
	dstMask := make([]bool, dstN)

	otherShape := make([]int, len(otherDims))
	for i, d := range otherDims {
		otherShape[i] = srcShape[d]
	}
	otherIdx := make([]int, len(otherDims))
	gIdx := make([]int, len(op.SrcShape))
	dataIdx := make([]int, len(srcShape))
	outIdx := make([]int, len(outShape))

	for s := 0; s < slabs; s++ {
		unflattenIndex(s, otherShape, otherIdx)
		for i, d := range otherDims {
			dataIdx[d] = otherIdx[i]
			outIdx[d] = otherIdx[i]
		}

		// Gather the slab in row-major grid order.
		srcMask = nil
		for r := 0; r < srcN; r++ {
			unflattenIndex(r, op.SrcShape, gIdx)
			for d, ai := range g.AxisIndices {
				dataIdx[ai] = gIdx[d]
			}
			i := flattenIndex(dataIdx, srcShape)
			src[r] = f.Data.Elements[i]
			if f.Mask != nil && f.Mask.Elements[i] != 0 {
				if srcMask == nil {
					srcMask = make([]bool, srcN)
				}
				srcMask[r] = true
			}
		}

		if err := op.applySlab(src, srcMask, dst, dstMask); err != nil {
			return nil, err
		}

		for r := 0; r < dstN; r++ {
			unflattenIndex(r, op.DstShape, gIdx)
			for d, ai := range g.AxisIndices {
				outIdx[ai] = gIdx[d]
			}
			i := flattenIndex(outIdx, outShape)
			out.Data.Elements[i] = dst[r]
			if dstMask[r] {
				outMask.Elements[i] = 1
				anyMasked = true
			}
		}
	}

	if anyMasked {
		out.Mask = outMask
	}
	return out, nil
}

func masksEqual(a, b []bool) bool {
	anyTrue := func(m []bool) bool {
		for _, v := range m {
			if v {
				return true
			}
		}
		return false
	}
	if a == nil || b == nil {
		return !anyTrue(a) && !anyTrue(b)
	}
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if b[i] != v {
			return false
		}
	}
	return true
}

// Write stores the operator in a NetCDF file.
func (op *Operator) Write(w *os.File) error {
	dims := []string{"links"}
	lengths := []int{len(op.Weights.W)}
	addArrayDim := func(name string, a *sparse.DenseArray) {
		n := 1
		for _, s := range a.Shape {
			n *= s
		}
		dims = append(dims, name)
		lengths = append(lengths, n)
	}
	for i, c := range op.SrcCoords {
		addArrayDim(fmt.Sprintf("src_coord_%d_points", i), c.Values)
		if c.Bounds != nil {
			addArrayDim(fmt.Sprintf("src_bounds_%d_points", i), c.Bounds)
		}
	}
	for i, c := range op.DstCoords {
		addArrayDim(fmt.Sprintf("dst_coord_%d_points", i), c.Values)
		if c.Bounds != nil {
			addArrayDim(fmt.Sprintf("dst_bounds_%d_points", i), c.Bounds)
		}
	}
	if op.SrcMask != nil {
		dims = append(dims, "src_points")
		lengths = append(lengths, len(op.SrcMask))
	}
	if op.DstMask != nil {
		dims = append(dims, "dst_points")
		lengths = append(lengths, len(op.DstMask))
	}

	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "comment", "regridding weights and grid information")
	h.AddAttribute("", "data_version", OperatorDataVersion)
	h.AddAttribute("", "method", op.Method.String())
	h.AddAttribute("", "coord_system", op.CoordSystem.String())
	h.AddAttribute("", "src_shape", intsToInt32(op.SrcShape))
	h.AddAttribute("", "dst_shape", intsToInt32(op.DstShape))
	h.AddAttribute("", "src_cyclic", []int32{boolToInt32(op.SrcCyclic)})
	h.AddAttribute("", "dst_cyclic", []int32{boolToInt32(op.DstCyclic)})
	h.AddAttribute("", "dst_axis_keys", strings.Join(op.DstAxisKeys, " "))
	h.AddAttribute("", "n_src_coords", []int32{int32(len(op.SrcCoords))})
	h.AddAttribute("", "n_dst_coords", []int32{int32(len(op.DstCoords))})

	h.AddVariable("row", []string{"links"}, []int32{0})
	h.AddVariable("col", []string{"links"}, []int32{0})
	h.AddVariable("S", []string{"links"}, []float64{0})

	addCoordVars := func(prefix string, coords []*Coord) {
		for i, c := range coords {
			name := fmt.Sprintf("%s_coord_%d", prefix, i)
			h.AddVariable(name, []string{name + "_points"}, []float64{0})
			h.AddAttribute(name, "shape", intsToInt32(c.Values.Shape))
			h.AddAttribute(name, "name", c.Name)
			if c.StandardName != "" {
				h.AddAttribute(name, "standard_name", c.StandardName)
			}
			if c.Units != "" {
				h.AddAttribute(name, "units", c.Units)
			}
			if len(c.Axes) > 0 {
				h.AddAttribute(name, "axes", strings.Join(c.Axes, " "))
			}
			if c.Bounds != nil {
				bname := fmt.Sprintf("%s_bounds_%d", prefix, i)
				h.AddVariable(bname, []string{bname + "_points"}, []float64{0})
				h.AddAttribute(bname, "shape", intsToInt32(c.Bounds.Shape))
			}
		}
	}
	addCoordVars("src", op.SrcCoords)
	addCoordVars("dst", op.DstCoords)
	if op.SrcMask != nil {
		h.AddVariable("src_mask", []string{"src_points"}, []int32{0})
	}
	if op.DstMask != nil {
		h.AddVariable("dst_mask", []string{"dst_points"}, []int32{0})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("regrid: operator file header: %v", errs[0])
	}

	f, err := cdf.Create(w, h)
	if err != nil {
		return err
	}

	writeVar := func(name string, data interface{}) error {
		end := f.Header.Lengths(name)
		start := make([]int, len(end))
		_, err := f.Writer(name, start, end).Write(data)
		return err
	}
	if err := writeVar("row", op.Weights.Row); err != nil {
		return fmt.Errorf("regrid: writing operator rows: %v", err)
	}
	if err := writeVar("col", op.Weights.Col); err != nil {
		return fmt.Errorf("regrid: writing operator columns: %v", err)
	}
	if err := writeVar("S", op.Weights.W); err != nil {
		return fmt.Errorf("regrid: writing operator weights: %v", err)
	}
	writeCoordVars := func(prefix string, coords []*Coord) error {
		for i, c := range coords {
			name := fmt.Sprintf("%s_coord_%d", prefix, i)
			if err := writeVar(name, c.Values.Elements); err != nil {
				return fmt.Errorf("regrid: writing operator variable %s: %v", name, err)
			}
			if c.Bounds != nil {
				bname := fmt.Sprintf("%s_bounds_%d", prefix, i)
				if err := writeVar(bname, c.Bounds.Elements); err != nil {
					return fmt.Errorf("regrid: writing operator variable %s: %v", bname, err)
				}
			}
		}
		return nil
	}
	if err := writeCoordVars("src", op.SrcCoords); err != nil {
		return err
	}
	if err := writeCoordVars("dst", op.DstCoords); err != nil {
		return err
	}
	if op.SrcMask != nil {
		if err := writeVar("src_mask", boolsToInt32(op.SrcMask)); err != nil {
			return fmt.Errorf("regrid: writing operator source mask: %v", err)
		}
	}
	if op.DstMask != nil {
		if err := writeVar("dst_mask", boolsToInt32(op.DstMask)); err != nil {
			return fmt.Errorf("regrid: writing operator destination mask: %v", err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// ReadOperator reads an operator from a NetCDF file written by
// Operator.Write.
func ReadOperator(rw cdf.ReaderWriterAt) (*Operator, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
	}
	h := f.Header

	dataVersion, _ := h.GetAttribute("", "data_version").(string)
	if dataVersion != OperatorDataVersion {
		return nil, fmt.Errorf("regrid.ReadOperator: operator file version %s is "+
			"incompatible with the required version %s", dataVersion, OperatorDataVersion)
	}

	op := new(Operator)
	method, err := attrString(h, "", "method")
	if err != nil {
		return nil, err
	}
	if op.Method, err = ParseMethod(method); err != nil {
		return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
	}
	coordSystem, err := attrString(h, "", "coord_system")
	if err != nil {
		return nil, err
	}
	if op.CoordSystem, err = ParseCoordSystem(coordSystem); err != nil {
		return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
	}
	srcShape, err := attrInt32s(h, "", "src_shape", 1)
	if err != nil {
		return nil, err
	}
	op.SrcShape = int32sToInts(srcShape)
	dstShape, err := attrInt32s(h, "", "dst_shape", 1)
	if err != nil {
		return nil, err
	}
	op.DstShape = int32sToInts(dstShape)
	srcCyclic, err := attrInt32s(h, "", "src_cyclic", 1)
	if err != nil {
		return nil, err
	}
	op.SrcCyclic = srcCyclic[0] != 0
	dstCyclic, err := attrInt32s(h, "", "dst_cyclic", 1)
	if err != nil {
		return nil, err
	}
	op.DstCyclic = dstCyclic[0] != 0
	axisKeys, err := attrString(h, "", "dst_axis_keys")
	if err != nil {
		return nil, err
	}
	op.DstAxisKeys = strings.Fields(axisKeys)

	readVar := func(name string, data interface{}) error {
		_, err := f.Reader(name, nil, nil).Read(data)
		return err
	}

	nLinks := h.Lengths("row")[0]
	op.Weights = &Weights{
		Row: make([]int32, nLinks),
		Col: make([]int32, nLinks),
		W:   make([]float64, nLinks),
	}
	if err := readVar("row", op.Weights.Row); err != nil {
		return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
	}
	if err := readVar("col", op.Weights.Col); err != nil {
		return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
	}
	if err := readVar("S", op.Weights.W); err != nil {
		return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
	}

	readCoords := func(prefix string, n int) ([]*Coord, error) {
		coords := make([]*Coord, n)
		for i := range coords {
			name := fmt.Sprintf("%s_coord_%d", prefix, i)
			c := new(Coord)
			c.Name, _ = h.GetAttribute(name, "name").(string)
			c.StandardName, _ = h.GetAttribute(name, "standard_name").(string)
			c.Units, _ = h.GetAttribute(name, "units").(string)
			if axes, ok := h.GetAttribute(name, "axes").(string); ok {
				c.Axes = strings.Fields(axes)
			}
			shape, err := attrInt32s(h, name, "shape", 1)
			if err != nil {
				return nil, err
			}
			c.Values = sparse.ZerosDense(int32sToInts(shape)...)
			if err := readVar(name, c.Values.Elements); err != nil {
				return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
			}
			bname := fmt.Sprintf("%s_bounds_%d", prefix, i)
			if hasVariable(h, bname) {
				bshape, err := attrInt32s(h, bname, "shape", 1)
				if err != nil {
					return nil, err
				}
				c.Bounds = sparse.ZerosDense(int32sToInts(bshape)...)
				if err := readVar(bname, c.Bounds.Elements); err != nil {
					return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
				}
			}
			coords[i] = c
		}
		return coords, nil
	}
	nSrcAttr, err := attrInt32s(h, "", "n_src_coords", 1)
	if err != nil {
		return nil, err
	}
	nDstAttr, err := attrInt32s(h, "", "n_dst_coords", 1)
	if err != nil {
		return nil, err
	}
	nSrc, nDst := int(nSrcAttr[0]), int(nDstAttr[0])
	if op.SrcCoords, err = readCoords("src", nSrc); err != nil {
		return nil, err
	}
	if op.DstCoords, err = readCoords("dst", nDst); err != nil {
		return nil, err
	}

	if hasVariable(h, "src_mask") {
		m := make([]int32, h.Lengths("src_mask")[0])
		if err := readVar("src_mask", m); err != nil {
			return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
		}
		op.SrcMask = int32sToBools(m)
	}
	if hasVariable(h, "dst_mask") {
		m := make([]int32, h.Lengths("dst_mask")[0])
		if err := readVar("dst_mask", m); err != nil {
			return nil, fmt.Errorf("regrid.ReadOperator: %v", err)
		}
		op.DstMask = int32sToBools(m)
	}
	return op, nil
}

// attrString returns a string header attribute, or an error when the
// attribute is missing or has another type.
func attrString(h *cdf.Header, v, name string) (string, error) {
	s, ok := h.GetAttribute(v, name).(string)
	if !ok {
		return "", fmt.Errorf("regrid.ReadOperator: the operator file has no "+
			"string attribute %q", name)
	}
	return s, nil
}

// attrInt32s returns an []int32 header attribute with at least minLen
// elements, or an error when it is missing, has another type, or is
// too short.
func attrInt32s(h *cdf.Header, v, name string, minLen int) ([]int32, error) {
	s, ok := h.GetAttribute(v, name).([]int32)
	if !ok {
		return nil, fmt.Errorf("regrid.ReadOperator: the operator file has no "+
			"integer attribute %q", name)
	}
	if len(s) < minLen {
		return nil, fmt.Errorf("regrid.ReadOperator: the operator file attribute "+
			"%q is empty", name)
	}
	return s, nil
}

func hasVariable(h *cdf.Header, name string) bool {
	for _, v := range h.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

func intsToInt32(s []int) []int32 {
	o := make([]int32, len(s))
	for i, v := range s {
		o[i] = int32(v)
	}
	return o
}

func int32sToInts(s []int32) []int {
	o := make([]int, len(s))
	for i, v := range s {
		o[i] = int(v)
	}
	return o
}

func boolsToInt32(s []bool) []int32 {
	o := make([]int32, len(s))
	for i, v := range s {
		if v {
			o[i] = 1
		}
	}
	return o
}

func int32sToBools(s []int32) []bool {
	o := make([]bool, len(s))
	for i, v := range s {
		o[i] = v != 0
	}
	return o
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
