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

	"github.com/ctessum/sparse"
)

// A Spec holds the options controlling a regridding operation.
type Spec struct {
	// Method is the interpolation method.
	Method Method

	// CoordSystem selects spherical or Cartesian regridding.
	CoordSystem CoordSystem

	// SrcCyclic and DstCyclic specify whether the longitude axis of
	// a spherical grid is cyclic. When nil the cyclicity is inferred
	// from the grid coordinates, defaulting to false.
	SrcCyclic, DstCyclic *bool

	// UseSrcMask controls how the source grid mask affects nearest
	// source to destination regridding: if true (the default)
	// destination cells nearest to a masked source point are masked;
	// if false destination cells are mapped to from unmasked source
	// cells only. It must be true for all other methods.
	UseSrcMask bool

	// UseDstMask, when the destination grid comes from a field with
	// data, guarantees that masked destination cells stay masked in
	// the result.
	UseDstMask bool

	// SrcAxes and DstAxes identify the X and Y axes of spherical
	// grids whose latitude and longitude coordinates are 2-d, e.g.
	// {"X": "x", "Y": "y"}.
	SrcAxes, DstAxes map[string]string

	// Axes names the axes of a Cartesian regridding, between 1 and 3
	// of them. They apply to both grids unless DstCartesianAxes is
	// also set.
	Axes []string

	// DstCartesianAxes optionally names the destination grid axes of
	// a Cartesian regridding when they differ from Axes.
	DstCartesianAxes []string

	// IgnoreDegenerate, for conservative regridding, skips grid
	// cells whose outlines collapse to a line or a point instead of
	// reporting an error.
	IgnoreDegenerate bool

	// CheckCoordinates enables the element-wise comparison of the
	// source grid coordinates with those of a reused operator.
	CheckCoordinates bool
}

// NewSpec returns a Spec with the default options for the given
// method and coordinate system.
func NewSpec(method Method, coordSystem CoordSystem) *Spec {
	return &Spec{
		Method:           method,
		CoordSystem:      coordSystem,
		UseSrcMask:       true,
		IgnoreDegenerate: true,
	}
}

// Regrid interpolates the data of src onto the grid of dst, which
// may be a field with data or a data-less field built by
// DestinationSpherical or DestinationCartesian. It returns the
// regridded field together with the regrid operator, which can be
// passed to RegridWithOperator to regrid further fields sharing the
// same source grid without recomputing the weights.
func Regrid(src, dst *Field, spec *Spec) (*Field, *Operator, error) {
	if err := checkSpec(spec); err != nil {
		return nil, nil, err
	}
	if dst == nil {
		return nil, nil, fmt.Errorf("regrid: no destination grid given")
	}
	// Grid extraction can insert size-1 axes into the field, so work
	// on a copy.
	src = src.Copy()

	dstAxes := spec.Axes
	if spec.DstCartesianAxes != nil {
		dstAxes = spec.DstCartesianAxes
	}
	dstGrid, err := getGrid(dst, "destination", spec.Method, spec.CoordSystem,
		spec.DstCyclic, spec.DstAxes, dstAxes)
	if err != nil {
		return nil, nil, err
	}
	srcGrid, err := getGrid(src, "source", spec.Method, spec.CoordSystem,
		spec.SrcCyclic, spec.SrcAxes, spec.Axes)
	if err != nil {
		return nil, nil, err
	}
	if err := conformCoordinateUnits(srcGrid, dstGrid); err != nil {
		return nil, nil, err
	}

	// The destination mask is normally applied to results after the
	// weights have been applied, but for nearest source to
	// destination regridding it has to be excluded from the mapping
	// itself.
	var dstMask, weightsDstMask []bool
	if spec.UseDstMask && dst.Data != nil {
		dstMask = maskToBools(dst.gridMask(dstGrid))
		if spec.Method == NearestSTOD {
			weightsDstMask = dstMask
			dstMask = nil
		}
	}

	// For nearest source to destination regridding the source mask
	// is folded into the weights, so it must not vary between
	// regridding slices.
	var srcMask []bool
	if spec.Method == NearestSTOD && src.Data != nil {
		srcMask = maskToBools(src.gridMask(srcGrid))
	}

	var w *Weights
	switch spec.Method {
	case Conservative:
		w, err = conservativeWeights(srcGrid, dstGrid, spec.IgnoreDegenerate)
	case Linear:
		w, err = linearWeights(srcGrid, dstGrid)
	case NearestSTOD:
		excluded := srcMask
		if spec.UseSrcMask {
			// Masked source points stay in the mapping; destination
			// points mapped to them come out masked.
			excluded = nil
		}
		w, err = nearestSTODWeights(srcGrid, dstGrid, excluded, weightsDstMask)
	case NearestDTOS:
		w, err = nearestDTOSWeights(srcGrid, dstGrid)
	default:
		err = fmt.Errorf("regrid: no weight generation for method %v", spec.Method)
	}
	if err != nil {
		return nil, nil, err
	}
	if srcGrid.Dummy {
		w.quarter()
	}

	op := &Operator{
		Method:      spec.Method,
		CoordSystem: spec.CoordSystem,
		Weights:     w,
		SrcShape:    srcGrid.dataShape(),
		DstShape:    dstGrid.dataShape(),
		SrcCyclic:   srcGrid.Cyclic,
		DstCyclic:   dstGrid.Cyclic,
		SrcCoords:   srcGrid.Coords[:len(srcGrid.AxisIndices)],
		DstAxisKeys: dstGrid.AxisKeys,
		DstCoords:   dstGrid.Coords[:len(dstGrid.AxisIndices)],
		SrcMask:     srcMask,
		DstMask:     dstMask,
	}

	if src.Data == nil {
		// Weights only; there is no data to regrid.
		return nil, op, nil
	}

	out, err := applyAndUpdate(op, src, srcGrid)
	if err != nil {
		return nil, nil, err
	}
	return out, op, nil
}

// RegridWithOperator regrids a field with previously computed
// weights. The source grid of the field must match the one the
// operator was created from; spec supplies the source grid selection
// options (SrcAxes, Axes, CheckCoordinates), while the method,
// coordinate system and cyclicity are taken from the operator.
func RegridWithOperator(src *Field, op *Operator, spec *Spec) (*Field, error) {
	if spec == nil {
		spec = NewSpec(op.Method, op.CoordSystem)
	}
	src = src.Copy()
	srcGrid, err := getGrid(src, "source", op.Method, op.CoordSystem,
		spec.SrcCyclic, spec.SrcAxes, spec.Axes)
	if err != nil {
		return nil, err
	}
	if err := op.Check(srcGrid, spec.CheckCoordinates); err != nil {
		return nil, err
	}
	return applyAndUpdate(op, src, srcGrid)
}

// applyAndUpdate applies the operator to a field and rebuilds the
// coordinate metadata of the result: coordinates spanning any regrid
// axis are replaced with the destination grid coordinates, renamed to
// the source axis names, and all others are kept.
func applyAndUpdate(op *Operator, src *Field, g *Grid) (*Field, error) {
	out, err := op.Apply(src, g)
	if err != nil {
		return nil, err
	}

	axisMap := make(map[string]string, len(op.DstAxisKeys))
	for d, dstAxis := range op.DstAxisKeys {
		axisMap[dstAxis] = g.AxisKeys[d]
	}

	for _, c := range src.Coords {
		spans := false
		for _, a := range c.Axes {
			if axisIn(a, g.AxisKeys) {
				spans = true
				break
			}
		}
		if !spans {
			out.Coords = append(out.Coords, c.Copy())
		}
	}
	for _, c := range op.DstCoords {
		cc := c.Copy()
		axes := make([]string, len(cc.Axes))
		for i, a := range cc.Axes {
			srcAxis, ok := axisMap[a]
			if !ok {
				return nil, fmt.Errorf("regrid: destination grid coordinate %s spans "+
					"unknown axis %s", cc.Name, a)
			}
			axes[i] = srcAxis
		}
		cc.Axes = axes
		out.Coords = append(out.Coords, cc)
	}
	return out, nil
}

func checkSpec(spec *Spec) error {
	if err := spec.Method.supported(); err != nil {
		return err
	}
	if !spec.UseSrcMask && spec.Method != NearestSTOD {
		return fmt.Errorf("regrid: the UseSrcMask option can only be false when "+
			"using the %v regridding method", NearestSTOD)
	}
	switch spec.CoordSystem {
	case Spherical:
	case Cartesian:
		if len(spec.Axes) == 0 {
			return fmt.Errorf("regrid: the axes must be set for Cartesian regridding")
		}
	default:
		return fmt.Errorf("regrid: invalid coordinate system %v", spec.CoordSystem)
	}
	return nil
}

// GridOf extracts the regrid axes and coordinates of a field
// according to the options in spec, for use with Field.WriteShapefile.
func GridOf(f *Field, spec *Spec) (*Grid, error) {
	return getGrid(f, "source", spec.Method, spec.CoordSystem,
		spec.SrcCyclic, spec.SrcAxes, spec.Axes)
}

// getGrid extracts the regrid axes and coordinates of a field.
func getGrid(f *Field, name string, method Method, coordSystem CoordSystem,
	cyclic *bool, xyAxes map[string]string, axes []string) (*Grid, error) {
	if coordSystem == Spherical {
		return SphericalGrid(f, name, method, cyclic, xyAxes)
	}
	return CartesianGrid(f, name, method, axes)
}

// maskToBools converts a mask array to booleans, collapsing to nil
// when no points are masked.
func maskToBools(m *sparse.DenseArray) []bool {
	if m == nil {
		return nil
	}
	out := make([]bool, len(m.Elements))
	any := false
	for i, v := range m.Elements {
		if v != 0 {
			out[i] = true
			any = true
		}
	}
	if !any {
		return nil
	}
	return out
}
