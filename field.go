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
	"strings"

	"github.com/ctessum/sparse"
)

// A Coord is a coordinate variable: values locating cells along one
// or two axes of a field, plus optional cell bounds.
type Coord struct {
	Name         string
	StandardName string
	Units        string

	// Axes are the names of the field axes that the values span:
	// one axis for a dimension coordinate, two for a curvilinear
	// auxiliary coordinate.
	Axes []string

	// Values holds the coordinate values; its shape matches the
	// sizes of Axes.
	Values *sparse.DenseArray

	// Bounds holds cell vertices, with one trailing vertex dimension
	// appended to the shape of Values: 2 vertices for 1-d cells and
	// 4 for 2-d cells. Nil when no bounds are available.
	Bounds *sparse.DenseArray
}

var (
	latUnits = []string{"degrees_north", "degree_north", "degrees_n", "degree_n", "degreesn", "degreen"}
	lonUnits = []string{"degrees_east", "degree_east", "degrees_e", "degree_e", "degreese", "degreee"}
)

// IsLatitude reports whether the coordinate is a latitude coordinate,
// judged by its units or standard name.
func (c *Coord) IsLatitude() bool {
	if c.StandardName == "latitude" {
		return true
	}
	u := strings.ToLower(c.Units)
	for _, lu := range latUnits {
		if u == lu {
			return true
		}
	}
	return false
}

// IsLongitude reports whether the coordinate is a longitude
// coordinate, judged by its units or standard name.
func (c *Coord) IsLongitude() bool {
	if c.StandardName == "longitude" {
		return true
	}
	u := strings.ToLower(c.Units)
	for _, lu := range lonUnits {
		if u == lu {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the coordinate.
func (c *Coord) Copy() *Coord {
	o := &Coord{
		Name:         c.Name,
		StandardName: c.StandardName,
		Units:        c.Units,
		Axes:         append([]string{}, c.Axes...),
	}
	if c.Values != nil {
		o.Values = c.Values.Copy()
	}
	if c.Bounds != nil {
		o.Bounds = c.Bounds.Copy()
	}
	return o
}

// equalValues reports whether c and o have element-wise equal values
// and bounds.
func (c *Coord) equalValues(o *Coord) bool {
	if !arraysEqual(c.Values, o.Values) {
		return false
	}
	return arraysEqual(c.Bounds, o.Bounds)
}

func arraysEqual(a, b *sparse.DenseArray) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i, s := range a.Shape {
		if b.Shape[i] != s {
			return false
		}
	}
	for i, v := range a.Elements {
		if b.Elements[i] != v {
			return false
		}
	}
	return true
}

// A Field is a data variable together with the names of its axes, its
// coordinate variables, and an optional missing-data mask.
type Field struct {
	Name  string
	Units string

	// Axes holds one name per data dimension.
	Axes []string

	// Data holds the field data. It is nil for a field that only
	// carries a grid definition.
	Data *sparse.DenseArray

	// Mask marks missing data: nonzero elements of Mask flag the
	// corresponding elements of Data as missing. Nil when no data
	// are missing.
	Mask *sparse.DenseArray

	Coords []*Coord
}

// NewField creates a field holding data with the given axis names,
// one per data dimension.
func NewField(name string, axes []string, data *sparse.DenseArray) (*Field, error) {
	if data == nil {
		return nil, fmt.Errorf("regrid: field %s: missing data", name)
	}
	if len(axes) != len(data.Shape) {
		return nil, fmt.Errorf("regrid: field %s: %d axis names for %d data dimensions",
			name, len(axes), len(data.Shape))
	}
	seen := make(map[string]struct{})
	for _, a := range axes {
		if _, ok := seen[a]; ok {
			return nil, fmt.Errorf("regrid: field %s: duplicate axis %s", name, a)
		}
		seen[a] = struct{}{}
	}
	return &Field{Name: name, Axes: append([]string{}, axes...), Data: data}, nil
}

// AddCoord attaches a coordinate variable to the field. The
// coordinate's axes must be field axes, and its shape must match
// their sizes.
func (f *Field) AddCoord(c *Coord) error {
	if c.Values == nil {
		return fmt.Errorf("regrid: coordinate %s: missing values", c.Name)
	}
	if len(c.Axes) != len(c.Values.Shape) {
		return fmt.Errorf("regrid: coordinate %s: %d axes for %d value dimensions",
			c.Name, len(c.Axes), len(c.Values.Shape))
	}
	for i, a := range c.Axes {
		n, err := f.axisSize(a)
		if err != nil {
			return fmt.Errorf("regrid: coordinate %s: %v", c.Name, err)
		}
		if c.Values.Shape[i] != n {
			return fmt.Errorf("regrid: coordinate %s: axis %s has size %d but values have size %d",
				c.Name, a, n, c.Values.Shape[i])
		}
	}
	if c.Bounds != nil {
		if len(c.Bounds.Shape) != len(c.Values.Shape)+1 {
			return fmt.Errorf("regrid: coordinate %s: bounds must have one more dimension than values", c.Name)
		}
		for i, s := range c.Values.Shape {
			if c.Bounds.Shape[i] != s {
				return fmt.Errorf("regrid: coordinate %s: bounds shape does not match values", c.Name)
			}
		}
	}
	f.Coords = append(f.Coords, c)
	return nil
}

// axisIndex returns the position of the named axis in the field data,
// or -1 if the field has no such axis.
func (f *Field) axisIndex(name string) int {
	for i, a := range f.Axes {
		if a == name {
			return i
		}
	}
	return -1
}

// axisSize returns the size of the named axis, taken from the data
// shape, or from a coordinate for a data-less field.
func (f *Field) axisSize(name string) (int, error) {
	if i := f.axisIndex(name); i >= 0 && f.Data != nil {
		return f.Data.Shape[i], nil
	}
	for _, c := range f.Coords {
		for i, a := range c.Axes {
			if a == name {
				return c.Values.Shape[i], nil
			}
		}
	}
	if f.axisIndex(name) >= 0 {
		return 0, fmt.Errorf("axis %s has no size", name)
	}
	return 0, fmt.Errorf("no axis %s", name)
}

// dimCoord returns the 1-d coordinate spanning exactly the named
// axis, or nil if there is none or it is not unique.
func (f *Field) dimCoord(axis string) *Coord {
	var found *Coord
	for _, c := range f.Coords {
		if len(c.Axes) == 1 && c.Axes[0] == axis {
			if found != nil {
				return nil
			}
			found = c
		}
	}
	return found
}

// coordBy returns the first coordinate with the given number of axes
// satisfying pred, or nil.
func (f *Field) coordBy(naxes int, pred func(*Coord) bool) *Coord {
	for _, c := range f.Coords {
		if len(c.Axes) == naxes && pred(c) {
			return c
		}
	}
	return nil
}

// insertAxis appends a trailing size-1 dimension named name to the
// field data, so that the data spans an axis it previously did not.
func (f *Field) insertAxis(name string) {
	shape := append(append([]int{}, f.Data.Shape...), 1)
	d := sparse.ZerosDense(shape...)
	copy(d.Elements, f.Data.Elements)
	f.Data = d
	if f.Mask != nil {
		m := sparse.ZerosDense(shape...)
		copy(m.Elements, f.Mask.Elements)
		f.Mask = m
	}
	f.Axes = append(f.Axes, name)
}

// gridMask extracts the missing-data mask for the regrid axes of grid
// g: the subspace defined by index 0 in every non-regrid dimension.
// The result is in grid element order (row-major over the real regrid
// axes, excluding any dummy axis), with nonzero marking missing
// points. It returns nil when the field has no mask.
func (f *Field) gridMask(g *Grid) *sparse.DenseArray {
	if f.Mask == nil {
		return nil
	}
	shape := g.dataShape()
	out := sparse.ZerosDense(shape...)
	dataIdx := make([]int, len(f.Data.Shape))
	gridIdx := make([]int, len(shape))
	for r := range out.Elements {
		unflattenIndex(r, shape, gridIdx)
		for i := range dataIdx {
			dataIdx[i] = 0
		}
		for k, ax := range g.AxisIndices {
			dataIdx[ax] = gridIdx[k]
		}
		out.Elements[r] = f.Mask.Get(dataIdx...)
	}
	return out
}

// gridValues extracts the data values for the regrid axes of grid g:
// the subspace defined by index 0 in every non-regrid dimension, in
// grid element order. It returns nil when the field has no data.
func (f *Field) gridValues(g *Grid) *sparse.DenseArray {
	if f.Data == nil {
		return nil
	}
	shape := g.dataShape()
	out := sparse.ZerosDense(shape...)
	dataIdx := make([]int, len(f.Data.Shape))
	gridIdx := make([]int, len(shape))
	for r := range out.Elements {
		unflattenIndex(r, shape, gridIdx)
		for i := range dataIdx {
			dataIdx[i] = 0
		}
		for k, ax := range g.AxisIndices {
			dataIdx[ax] = gridIdx[k]
		}
		out.Elements[r] = f.Data.Get(dataIdx...)
	}
	return out
}

// Copy returns a deep copy of the field.
func (f *Field) Copy() *Field {
	o := &Field{
		Name:  f.Name,
		Units: f.Units,
		Axes:  append([]string{}, f.Axes...),
	}
	if f.Data != nil {
		o.Data = f.Data.Copy()
	}
	if f.Mask != nil {
		o.Mask = f.Mask.Copy()
	}
	for _, c := range f.Coords {
		o.Coords = append(o.Coords, c.Copy())
	}
	return o
}

// unflattenIndex converts flat row-major index r over shape into the
// multidimensional index out.
func unflattenIndex(r int, shape []int, out []int) {
	for i := len(shape) - 1; i >= 0; i-- {
		out[i] = r % shape[i]
		r /= shape[i]
	}
}

// flattenIndex converts multidimensional index idx over shape into a
// flat row-major index.
func flattenIndex(idx, shape []int) int {
	r := 0
	for i, v := range idx {
		r = r*shape[i] + v
	}
	return r
}
