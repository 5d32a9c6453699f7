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
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// CoordSystem is the coordinate system of a grid.
type CoordSystem int

const (
	// Spherical grids have latitude and longitude axes; the
	// longitude axis may be cyclic.
	Spherical CoordSystem = iota + 1
	// Cartesian grids have 1 to 3 arbitrary axes.
	Cartesian
)

func (cs CoordSystem) String() string {
	switch cs {
	case Spherical:
		return "spherical"
	case Cartesian:
		return "Cartesian"
	}
	return fmt.Sprintf("unknown coordinate system (%d)", int(cs))
}

// ParseCoordSystem converts a coordinate system name to a
// CoordSystem.
func ParseCoordSystem(s string) (CoordSystem, error) {
	switch s {
	case "spherical":
		return Spherical, nil
	case "Cartesian", "cartesian":
		return Cartesian, nil
	}
	return 0, fmt.Errorf("regrid: invalid coordinate system %q; must be "+
		"'spherical' or 'Cartesian'", s)
}

// lonPeriod is the period of a cyclic longitude axis [degrees].
const lonPeriod = 360.

// A Grid holds the axis and coordinate information needed to regrid a
// field: which field axes are being regridded, their sizes, and their
// coordinates.
type Grid struct {
	CoordSystem CoordSystem

	// AxisKeys are the names of the regrid axes: [Y, X] for
	// spherical grids, the given axes in data order for Cartesian
	// grids.
	AxisKeys []string

	// AxisIndices are the positions of the regrid axes in the
	// field's data array, parallel to AxisKeys.
	AxisIndices []int

	// Shape holds the regrid axis sizes, parallel to AxisKeys, plus
	// one trailing entry for a dummy axis, if present.
	Shape []int

	// Coords holds one coordinate per entry of Shape. For a grid
	// with 2-d coordinates each entry spans both axes in (Y, X)
	// order.
	Coords []*Coord

	// Cyclic reports whether the X axis of a spherical grid is
	// cyclic (the last cell is adjacent to the first).
	Cyclic bool

	// TwoD reports whether the coordinates are 2-d (curvilinear).
	TwoD bool

	// Dummy reports that a trailing two-point dummy axis was added
	// for 1-d Cartesian regridding, and that the weight matrix must
	// be quartered after generation.
	Dummy bool
}

// dataShape returns the sizes of the real (non-dummy) regrid axes.
func (g *Grid) dataShape() []int {
	return g.Shape[:len(g.AxisIndices)]
}

// size returns the total number of grid points, including any dummy
// axis.
func (g *Grid) size() int {
	n := 1
	for _, s := range g.Shape {
		n *= s
	}
	return n
}

// SphericalGrid extracts the latitude-longitude grid of a field.
// 1-d latitude and longitude dimension coordinates are preferred;
// 2-d auxiliary coordinates are used when no 1-d coordinates are
// found, in which case xyAxes must identify the X and Y axes by name.
// name identifies the field in error messages ("source" or
// "destination"). If cyclic is nil, the cyclicity of the longitude
// axis is inferred from its coordinates, defaulting to false.
func SphericalGrid(f *Field, name string, method Method, cyclic *bool, xyAxes map[string]string) (*Grid, error) {
	var lat, lon *Coord
	var yAxis, xAxis string
	twoD := false

	lat = f.coordBy(1, (*Coord).IsLatitude)
	lon = f.coordBy(1, (*Coord).IsLongitude)
	if lat != nil && lon != nil {
		yAxis = lat.Axes[0]
		xAxis = lon.Axes[0]
	} else {
		lat = f.coordBy(2, (*Coord).IsLatitude)
		lon = f.coordBy(2, (*Coord).IsLongitude)
		if lat == nil || lon == nil {
			return nil, fmt.Errorf("regrid: could not find 1-d nor 2-d latitude and "+
				"longitude coordinates for the %s grid", name)
		}
		if !sameAxisSet(lat.Axes, lon.Axes) {
			return nil, fmt.Errorf("regrid: 2-d latitude and longitude coordinates "+
				"of the %s grid must span the same axes", name)
		}
		if xyAxes == nil || xyAxes["X"] == "" || xyAxes["Y"] == "" {
			return nil, fmt.Errorf("regrid: the X and Y axes of the %s grid must be "+
				"specified when the latitude and longitude coordinates are 2-d", name)
		}
		xAxis, yAxis = xyAxes["X"], xyAxes["Y"]
		if !axisIn(xAxis, lat.Axes) || !axisIn(yAxis, lat.Axes) {
			return nil, fmt.Errorf("regrid: axes %s and %s do not match the axes of the "+
				"2-d coordinates of the %s grid", xAxis, yAxis, name)
		}
		twoD = true
	}

	if xAxis == yAxis {
		return nil, fmt.Errorf("regrid: the X and Y axes must be distinct, but they "+
			"are the same for the %s grid", name)
	}

	ySize, err := f.axisSize(yAxis)
	if err != nil {
		return nil, fmt.Errorf("regrid: %s grid: %v", name, err)
	}
	xSize, err := f.axisSize(xAxis)
	if err != nil {
		return nil, fmt.Errorf("regrid: %s grid: %v", name, err)
	}

	// A size 1 axis can't anchor an interpolation stencil.
	if name == "source" && method == Linear && (xSize == 1 || ySize == 1) {
		return nil, fmt.Errorf("regrid: neither the longitude nor latitude axis of "+
			"the source grid can have size 1 for %v regridding", method)
	}

	latC, lonC := lat.Copy(), lon.Copy()
	if twoD {
		// Store 2-d coordinates in (Y, X) axis order.
		if lat.Axes[0] == xAxis {
			latC.Values = transpose2d(latC.Values)
			latC.Bounds = transpose2dBounds(latC.Bounds)
			latC.Axes = []string{yAxis, xAxis}
		}
		if lon.Axes[0] == xAxis {
			lonC.Values = transpose2d(lonC.Values)
			lonC.Bounds = transpose2dBounds(lonC.Bounds)
			lonC.Axes = []string{yAxis, xAxis}
		}
	}

	if method.Conservative() {
		if latC.Bounds == nil || lonC.Bounds == nil {
			return nil, fmt.Errorf("regrid: the %s grid coordinates must have cell "+
				"bounds for %v regridding", name, method)
		}
	}

	isCyclic := false
	if cyclic != nil {
		isCyclic = *cyclic
	} else if !twoD {
		isCyclic = inferCyclic(lonC)
	}

	g := &Grid{
		CoordSystem: Spherical,
		AxisKeys:    []string{yAxis, xAxis},
		Shape:       []int{ySize, xSize},
		Coords:      []*Coord{latC, lonC},
		Cyclic:      isCyclic,
		TwoD:        twoD,
	}
	if err := g.setAxisIndices(f); err != nil {
		return nil, fmt.Errorf("regrid: %s grid: %v", name, err)
	}
	return g, nil
}

// CartesianGrid extracts the named axes of a field for Cartesian
// regridding. Each axis must have a unique 1-d dimension coordinate.
// The axes are reordered to their relative order in the field's data
// array. For a single axis, a dummy second axis is appended so that
// 2-d weight generation can serve 1-d regridding.
func CartesianGrid(f *Field, name string, method Method, axes []string) (*Grid, error) {
	if n := len(axes); n < 1 || n > 3 {
		return nil, fmt.Errorf("regrid: between 1 and 3 axes must be specified for "+
			"Cartesian regridding; got %d", len(axes))
	}
	for i, a := range axes {
		for _, b := range axes[:i] {
			if a == b {
				return nil, fmt.Errorf("regrid: duplicate %s grid axis %s", name, a)
			}
		}
	}

	keys := append([]string{}, axes...)
	sizes := make([]int, len(keys))
	coords := make([]*Coord, len(keys))
	for i, a := range keys {
		n, err := f.axisSize(a)
		if err != nil {
			return nil, fmt.Errorf("regrid: %s grid: %v", name, err)
		}
		sizes[i] = n
		c := f.dimCoord(a)
		if c == nil {
			return nil, fmt.Errorf("regrid: no unique %s grid dimension coordinate "+
				"for axis %s", name, a)
		}
		coords[i] = c.Copy()
	}

	g := &Grid{
		CoordSystem: Cartesian,
		AxisKeys:    keys,
		Shape:       sizes,
		Coords:      coords,
	}
	if err := g.setAxisIndices(f); err != nil {
		return nil, fmt.Errorf("regrid: %s grid: %v", name, err)
	}

	// Reorder the axes into the same relative order as they occur in
	// the data array.
	order := make([]int, len(g.AxisIndices))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return g.AxisIndices[order[i]] < g.AxisIndices[order[j]]
	})
	g.AxisKeys = permuteStrings(g.AxisKeys, order)
	g.Shape = permuteInts(g.Shape, order)
	g.Coords = permuteCoords(g.Coords, order)
	idx := permuteInts(g.AxisIndices, order)
	sort.Ints(idx)
	g.AxisIndices = idx

	if method.Conservative() {
		for _, c := range g.Coords {
			if c.Bounds == nil {
				return nil, fmt.Errorf("regrid: the %s grid coordinates must have "+
					"cell bounds for %v regridding", name, method)
			}
		}
	}

	if len(axes) == 1 {
		// Cell overlap and interpolation stencils are generated on
		// 2-d grids, so those methods get a dummy second axis. The
		// dummy coordinate values are arbitrary as long as the
		// source and destination grids agree on them. The nearest
		// point methods work on 1-d grids directly.
		switch {
		case method.Conservative():
			c := &Coord{Name: "dummy", Values: sparse.ZerosDense(1)}
			c.Bounds = sparse.ZerosDense(1, 2)
			c.Bounds.Elements[0] = -0.5
			c.Bounds.Elements[1] = 0.5
			g.Coords = append(g.Coords, c)
			g.Shape = append(g.Shape, 1)
		case method == Linear:
			c := &Coord{Name: "dummy", Values: sparse.ZerosDense(2)}
			c.Values.Elements[1] = 1
			g.Coords = append(g.Coords, c)
			g.Shape = append(g.Shape, 2)
			g.Dummy = true
		}
	}
	return g, nil
}

// setAxisIndices records the position of each regrid axis in the
// field's data array, inserting trailing size-1 dimensions for axes
// the data does not span. For a data-less field the axes are taken in
// grid order.
func (g *Grid) setAxisIndices(f *Field) error {
	if f.Data == nil {
		g.AxisIndices = make([]int, len(g.AxisKeys))
		for i := range g.AxisIndices {
			g.AxisIndices[i] = i
		}
		return nil
	}
	for _, key := range g.AxisKeys {
		if f.axisIndex(key) < 0 {
			f.insertAxis(key)
		}
	}
	g.AxisIndices = make([]int, len(g.AxisKeys))
	for i, key := range g.AxisKeys {
		g.AxisIndices[i] = f.axisIndex(key)
	}
	return nil
}

// DestinationSpherical creates a data-less field holding a spherical
// destination grid defined by literal latitude and longitude
// coordinates. For 2-d coordinates, axisOrder must be ("Y", "X") or
// ("X", "Y"), giving the axis order of the coordinate arrays.
func DestinationSpherical(lat, lon *Coord, axisOrder ...string) (*Field, error) {
	if lat == nil || lon == nil {
		return nil, fmt.Errorf("regrid: latitude and longitude coordinates must be " +
			"specified for the destination grid")
	}
	lat, lon = lat.Copy(), lon.Copy()
	lat.StandardName = "latitude"
	lon.StandardName = "longitude"

	f := &Field{Name: "destination"}
	switch len(lat.Values.Shape) {
	case 1:
		if len(lon.Values.Shape) != 1 {
			return nil, fmt.Errorf("regrid: latitude and longitude coordinates for " +
				"the destination grid must have the same number of dimensions")
		}
		lat.Axes = []string{"y"}
		lon.Axes = []string{"x"}
		f.Axes = []string{"y", "x"}
	case 2:
		if len(axisOrder) != 2 {
			return nil, fmt.Errorf("regrid: the axis order must be specified when " +
				"providing 2-d latitude and longitude coordinates")
		}
		var dims []string
		if axisOrder[0] == "Y" && axisOrder[1] == "X" {
			dims = []string{"y", "x"}
		} else if axisOrder[0] == "X" && axisOrder[1] == "Y" {
			dims = []string{"x", "y"}
		} else {
			return nil, fmt.Errorf("regrid: the axis order must be ('X', 'Y') or "+
				"('Y', 'X'); got %v", axisOrder)
		}
		if !shapesEqual(lat.Values.Shape, lon.Values.Shape) {
			return nil, fmt.Errorf("regrid: 2-d longitude and latitude coordinates " +
				"for the destination grid must have the same shape")
		}
		lat.Axes = dims
		lon.Axes = append([]string{}, dims...)
		f.Axes = []string{"y", "x"}
	default:
		return nil, fmt.Errorf("regrid: longitude and latitude coordinates for the " +
			"destination grid must be 1-d or 2-d")
	}
	f.Coords = []*Coord{lat, lon}
	return f, nil
}

// DestinationCartesian creates a data-less field holding a Cartesian
// destination grid defined by literal 1-d coordinates. Each
// coordinate's name becomes an axis name.
func DestinationCartesian(coords ...*Coord) (*Field, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("regrid: at least one coordinate must be specified " +
			"for the destination grid")
	}
	f := &Field{Name: "destination"}
	for _, c := range coords {
		if c.Values == nil || len(c.Values.Shape) != 1 {
			return nil, fmt.Errorf("regrid: destination grid coordinate %s must be 1-d", c.Name)
		}
		cc := c.Copy()
		cc.Axes = []string{cc.Name}
		f.Axes = append(f.Axes, cc.Name)
		f.Coords = append(f.Coords, cc)
	}
	return f, nil
}

// inferCyclic reports whether a 1-d longitude coordinate spans the
// whole globe, so that its last cell is adjacent to its first.
func inferCyclic(lon *Coord) bool {
	if lon.Bounds != nil {
		n := lon.Bounds.Shape[0]
		span := lon.Bounds.Get(n-1, 1) - lon.Bounds.Get(0, 0)
		return math.Abs(math.Abs(span)-lonPeriod) < 1e-6*lonPeriod
	}
	v := lon.Values
	n := v.Shape[0]
	if n < 2 {
		return false
	}
	d := v.Get(1) - v.Get(0)
	span := v.Get(n-1) + d - v.Get(0)
	return math.Abs(math.Abs(span)-lonPeriod) < math.Abs(d)*1e-3
}

// axisValues returns the coordinate values of grid axis dim as a
// float64 slice, for grids with 1-d coordinates.
func (g *Grid) axisValues(dim int) []float64 {
	v := g.Coords[dim].Values
	out := make([]float64, v.Shape[0])
	copy(out, v.Elements)
	return out
}

// pointAt returns the (x, y) location of the grid point with the
// given index along each entry of Shape.
func (g *Grid) pointAt(idx []int) geom.Point {
	if g.TwoD {
		// Coords[0] is latitude and Coords[1] longitude, both (Y, X).
		return geom.Point{
			X: g.Coords[1].Values.Get(idx...),
			Y: g.Coords[0].Values.Get(idx...),
		}
	}
	// 1-d coordinates: the x direction is the last axis.
	nd := len(g.Shape)
	return geom.Point{
		X: g.Coords[nd-1].Values.Get(idx[nd-1]),
		Y: g.Coords[nd-2].Values.Get(idx[nd-2]),
	}
}

// points returns the locations of all grid points in row-major grid
// order. Only valid for grids with two entries in Shape.
func (g *Grid) points() []geom.Point {
	out := make([]geom.Point, g.size())
	idx := make([]int, len(g.Shape))
	for r := range out {
		unflattenIndex(r, g.Shape, idx)
		out[r] = g.pointAt(idx)
	}
	return out
}

// CellPolygons returns the outline of every grid cell in row-major
// grid order, built from the coordinate cell bounds. It is only
// available for grids with two entries in Shape (spherical grids,
// 2-axis Cartesian grids, and 1-axis Cartesian grids with a dummy
// axis).
func (g *Grid) CellPolygons() ([]geom.Polygonal, error) {
	if len(g.Shape) != 2 {
		return nil, fmt.Errorf("regrid: cell polygons are only available for grids "+
			"with 2 axes; got %d", len(g.Shape))
	}
	ny, nx := g.Shape[0], g.Shape[1]
	out := make([]geom.Polygonal, ny*nx)

	if g.TwoD {
		latB, lonB := g.Coords[0].Bounds, g.Coords[1].Bounds
		if latB == nil || lonB == nil {
			return nil, fmt.Errorf("regrid: grid coordinates have no cell bounds")
		}
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				ring := make([]geom.Point, 4)
				for v := 0; v < 4; v++ {
					ring[v] = geom.Point{
						X: lonB.Get(j, i, v),
						Y: clampLat(latB.Get(j, i, v), g.CoordSystem),
					}
				}
				out[j*nx+i] = geom.Polygon{ring}
			}
		}
		return out, nil
	}

	yB, xB := g.Coords[0].Bounds, g.Coords[1].Bounds
	if yB == nil || xB == nil {
		return nil, fmt.Errorf("regrid: grid coordinates have no cell bounds")
	}
	for j := 0; j < ny; j++ {
		y0 := clampLat(yB.Get(j, 0), g.CoordSystem)
		y1 := clampLat(yB.Get(j, 1), g.CoordSystem)
		for i := 0; i < nx; i++ {
			x0, x1 := xB.Get(i, 0), xB.Get(i, 1)
			out[j*nx+i] = geom.Polygon{{
				{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
			}}
		}
	}
	return out, nil
}

// clampLat clamps spherical latitudes to ±90°.
func clampLat(v float64, cs CoordSystem) float64 {
	if cs != Spherical {
		return v
	}
	if v > 90 {
		return 90
	}
	if v < -90 {
		return -90
	}
	return v
}

// contiguousBounds reports whether cell bounds are contiguous and
// non-overlapping: the upper bound of each cell must equal the lower
// bound of the next. For 2-d cells with 4 vertices, shared edges must
// agree between horizontally and vertically adjacent cells. On a
// cyclic axis differences are taken modulo period.
func contiguousBounds(b *sparse.DenseArray, cyclic bool, period float64) bool {
	nd := len(b.Shape) - 1
	switch nd {
	case 1:
		n := b.Shape[0]
		for i := 0; i < n-1; i++ {
			if !boundsMatch(b.Get(i, 1), b.Get(i+1, 0), cyclic, period) {
				return false
			}
		}
		return true
	case 2:
		if b.Shape[2] != 4 {
			return false
		}
		ny, nx := b.Shape[0], b.Shape[1]
		for j := 0; j < ny; j++ {
			for i := 0; i < nx-1; i++ {
				// Cells (j, i) and (j, i+1) share an edge.
				if !boundsMatch(b.Get(j, i, 1), b.Get(j, i+1, 0), cyclic, period) ||
					!boundsMatch(b.Get(j, i, 2), b.Get(j, i+1, 3), cyclic, period) {
					return false
				}
			}
		}
		for j := 0; j < ny-1; j++ {
			for i := 0; i < nx; i++ {
				// Cells (j, i) and (j+1, i) share an edge.
				if !boundsMatch(b.Get(j, i, 3), b.Get(j+1, i, 0), cyclic, period) ||
					!boundsMatch(b.Get(j, i, 2), b.Get(j+1, i, 1), cyclic, period) {
					return false
				}
			}
		}
		return true
	}
	return false
}

func boundsMatch(a, b float64, cyclic bool, period float64) bool {
	d := a - b
	if cyclic && period > 0 {
		d = math.Mod(d, period)
	}
	return math.Abs(d) < 1e-9
}

// transpose2d swaps the two dimensions of a 2-d array.
func transpose2d(a *sparse.DenseArray) *sparse.DenseArray {
	n, m := a.Shape[0], a.Shape[1]
	o := sparse.ZerosDense(m, n)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			o.Elements[j*n+i] = a.Elements[i*m+j]
		}
	}
	return o
}

// transpose2dBounds swaps the two leading dimensions of a bounds
// array, keeping the trailing vertex dimension in place.
func transpose2dBounds(a *sparse.DenseArray) *sparse.DenseArray {
	if a == nil {
		return nil
	}
	n, m, nv := a.Shape[0], a.Shape[1], a.Shape[2]
	o := sparse.ZerosDense(m, n, nv)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			for v := 0; v < nv; v++ {
				o.Elements[(j*n+i)*nv+v] = a.Elements[(i*m+j)*nv+v]
			}
		}
	}
	return o
}

func sameAxisSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !axisIn(x, b) {
			return false
		}
	}
	return true
}

func axisIn(a string, axes []string) bool {
	for _, x := range axes {
		if x == a {
			return true
		}
	}
	return false
}

func shapesEqual(a, b []int) bool {
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

func permuteStrings(s []string, order []int) []string {
	o := make([]string, len(s))
	for i, j := range order {
		o[i] = s[j]
	}
	return o
}

func permuteInts(s []int, order []int) []int {
	o := make([]int, len(s))
	for i, j := range order {
		o[i] = s[j]
	}
	return o
}

func permuteCoords(s []*Coord, order []int) []*Coord {
	o := make([]*Coord, len(s))
	for i, j := range order {
		o[i] = s[j]
	}
	return o
}
