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
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/floats"
)

// Weights is a sparse matrix mapping source grid points to
// destination grid points: destination point Row[k] receives
// W[k] times the value of source point Col[k]. Grid points are
// indexed in row-major order over the grid shape.
type Weights struct {
	Row, Col []int32
	W        []float64
}

func (w *Weights) add(row, col int, v float64) {
	w.Row = append(w.Row, int32(row))
	w.Col = append(w.Col, int32(col))
	w.W = append(w.W, v)
}

// gridCell associates a cell outline with its flat grid index for
// spatial indexing.
type gridCell struct {
	geom.Polygonal
	index int
}

// gridPoint associates a grid point location with its flat grid
// index.
type gridPoint struct {
	geom.Point
	index int
}

// translatePolygon returns a copy of p shifted along the x axis.
func translatePolygon(p geom.Polygonal, dx float64) geom.Polygon {
	var o geom.Polygon
	for _, ring := range p.Polygons()[0] {
		r := make([]geom.Point, len(ring))
		for i, pt := range ring {
			r[i] = geom.Point{X: pt.X + dx, Y: pt.Y}
		}
		o = append(o, r)
	}
	return o
}

// conservativeWeights computes first-order conservative regridding
// weights from the overlap areas of source and destination grid
// cells. The weights in each destination row are normalized by the
// total overlap, so that partially covered destination cells hold the
// mean over their covered fraction. Degenerate cells, whose outlines
// collapse to a line or a point, are skipped when ignoreDegenerate is
// true and cause an error otherwise.
func conservativeWeights(src, dst *Grid, ignoreDegenerate bool) (*Weights, error) {
	for _, g := range []*Grid{src, dst} {
		name := "source"
		if g == dst {
			name = "destination"
		}
		for i, c := range g.Coords {
			if c.Bounds == nil {
				continue
			}
			cyclic := g.CoordSystem == Spherical && !g.TwoD && i == 1 && g.Cyclic
			if !contiguousBounds(c.Bounds, cyclic, lonPeriod) {
				return nil, fmt.Errorf("regrid: the %s grid coordinate %s has cell "+
					"bounds that are not contiguous and non-overlapping, which is "+
					"required for conservative regridding", name, c.Name)
			}
		}
	}

	srcPolys, err := src.CellPolygons()
	if err != nil {
		return nil, err
	}
	dstPolys, err := dst.CellPolygons()
	if err != nil {
		return nil, err
	}

	index := rtree.NewTree(25, 50)
	for i, p := range srcPolys {
		a := math.Abs(p.Area())
		if a == 0 {
			if !ignoreDegenerate {
				return nil, fmt.Errorf("regrid: source grid cell %d is degenerate", i)
			}
			continue
		}
		index.Insert(&gridCell{Polygonal: p, index: i})
		if src.CoordSystem == Spherical && src.Cyclic {
			// Shifted copies let cells on either side of the
			// longitude seam find their overlaps.
			index.Insert(&gridCell{Polygonal: translatePolygon(p, -lonPeriod), index: i})
			index.Insert(&gridCell{Polygonal: translatePolygon(p, lonPeriod), index: i})
		}
	}

	w := new(Weights)
	for j, p := range dstPolys {
		a := math.Abs(p.Area())
		if a == 0 {
			if !ignoreDegenerate {
				return nil, fmt.Errorf("regrid: destination grid cell %d is degenerate", j)
			}
			continue
		}
		begin := len(w.W)
		for _, cI := range index.SearchIntersect(p.Bounds()) {
			c := cI.(*gridCell)
			isect := p.Intersection(c.Polygonal)
			if isect == nil {
				continue
			}
			ai := math.Abs(isect.Area())
			if ai == 0 {
				continue
			}
			w.add(j, c.index, ai)
		}
		// Normalize by the covered fraction of the destination cell.
		if total := floats.Sum(w.W[begin:]); total > 0 {
			floats.Scale(1/total, w.W[begin:])
		}
	}
	return w, nil
}

// axisBracket holds, for one destination point along one axis, the
// two bracketing source indices and their interpolation weights.
type axisBracket struct {
	i0, i1 int
	w0, w1 float64
	ok     bool
}

// bracket1d computes the bracketing source indices for every
// destination coordinate value along one axis. The source values must
// be monotonic. On a cyclic axis the interval between the last and
// first source points, taken modulo the period, is also valid.
// Destination points outside the source range are left unmapped.
func bracket1d(srcVals, dstVals []float64, cyclic bool, period float64) ([]axisBracket, error) {
	n := len(srcVals)
	ascending := n < 2 || srcVals[n-1] >= srcVals[0]
	xs := make([]float64, n)
	if ascending {
		copy(xs, srcVals)
	} else {
		for i, v := range srcVals {
			xs[n-1-i] = v
		}
	}
	for i := 1; i < n; i++ {
		if xs[i] <= xs[i-1] {
			return nil, fmt.Errorf("regrid: coordinates must be strictly monotonic " +
				"for linear regridding")
		}
	}
	// mapIdx converts an index in the ascending view back to an
	// index in the original order.
	mapIdx := func(i int) int {
		if ascending {
			return i
		}
		return n - 1 - i
	}

	out := make([]axisBracket, len(dstVals))
	for k, v := range dstVals {
		if cyclic && n > 1 {
			for v < xs[0] {
				v += period
			}
			for v >= xs[0]+period {
				v -= period
			}
			if v > xs[n-1] {
				// Between the last and first points, across the seam.
				t := (v - xs[n-1]) / (xs[0] + period - xs[n-1])
				out[k] = axisBracket{mapIdx(n - 1), mapIdx(0), 1 - t, t, true}
				continue
			}
		}
		if v < xs[0] || v > xs[n-1] {
			continue // unmapped
		}
		i := sort.SearchFloat64s(xs, v)
		if i < n && xs[i] == v {
			out[k] = axisBracket{mapIdx(i), mapIdx(i), 1, 0, true}
			continue
		}
		t := (v - xs[i-1]) / (xs[i] - xs[i-1])
		out[k] = axisBracket{mapIdx(i - 1), mapIdx(i), 1 - t, t, true}
	}
	return out, nil
}

// linearWeights computes multilinear interpolation weights on grids
// with 1-d coordinates. Destination points outside the source grid
// are unmapped and come out masked.
func linearWeights(src, dst *Grid) (*Weights, error) {
	if src.TwoD || dst.TwoD {
		return nil, fmt.Errorf("regrid: linear regridding requires 1-d grid coordinates")
	}
	nd := len(src.Shape)
	brackets := make([][]axisBracket, nd)
	for d := 0; d < nd; d++ {
		cyclic := src.CoordSystem == Spherical && d == 1 && src.Cyclic
		b, err := bracket1d(src.axisValues(d), dst.axisValues(d), cyclic, lonPeriod)
		if err != nil {
			return nil, err
		}
		brackets[d] = b
	}

	w := new(Weights)
	dstIdx := make([]int, nd)
	srcIdx := make([]int, nd)
	for j := 0; j < dst.size(); j++ {
		unflattenIndex(j, dst.Shape, dstIdx)
		mapped := true
		for d := 0; d < nd; d++ {
			if !brackets[d][dstIdx[d]].ok {
				mapped = false
				break
			}
		}
		if !mapped {
			continue
		}
		// Each corner of the interpolation stencil contributes the
		// product of its per-axis weights.
		for corner := 0; corner < 1<<uint(nd); corner++ {
			wt := 1.
			for d := 0; d < nd; d++ {
				b := brackets[d][dstIdx[d]]
				if corner&(1<<uint(d)) == 0 {
					srcIdx[d] = b.i0
					wt *= b.w0
				} else {
					srcIdx[d] = b.i1
					wt *= b.w1
				}
			}
			if wt == 0 {
				continue
			}
			w.add(j, flattenIndex(srcIdx, src.Shape), wt)
		}
	}
	return w, nil
}

// nearestSTODWeights maps each destination point to its single
// nearest source point. Source points masked in srcMask and
// destination points masked in dstMask are excluded from the mapping.
func nearestSTODWeights(src, dst *Grid, srcMask, dstMask []bool) (*Weights, error) {
	if len(src.Shape) != 2 || len(dst.Shape) != 2 {
		return nearestBruteForce(src, dst, srcMask, dstMask, false)
	}
	index := rtree.NewTree(25, 50)
	any := false
	for i, p := range src.points() {
		if srcMask != nil && srcMask[i] {
			continue
		}
		any = true
		index.Insert(&gridPoint{Point: p, index: i})
		if src.CoordSystem == Spherical && src.Cyclic {
			index.Insert(&gridPoint{Point: geom.Point{X: p.X - lonPeriod, Y: p.Y}, index: i})
			index.Insert(&gridPoint{Point: geom.Point{X: p.X + lonPeriod, Y: p.Y}, index: i})
		}
	}
	if !any {
		return nil, fmt.Errorf("regrid: all source grid points are masked")
	}

	w := new(Weights)
	for j, p := range dst.points() {
		if dstMask != nil && dstMask[j] {
			continue
		}
		nn := index.NearestNeighbor(p).(*gridPoint)
		w.add(j, nn.index, 1)
	}
	return w, nil
}

// nearestDTOSWeights maps each source point to its single nearest
// destination point. The value of a destination point is the sum of
// the source points nearest to it.
func nearestDTOSWeights(src, dst *Grid) (*Weights, error) {
	if len(src.Shape) != 2 || len(dst.Shape) != 2 {
		return nearestBruteForce(src, dst, nil, nil, true)
	}
	index := rtree.NewTree(25, 50)
	for j, p := range dst.points() {
		index.Insert(&gridPoint{Point: p, index: j})
		if dst.CoordSystem == Spherical && dst.Cyclic {
			index.Insert(&gridPoint{Point: geom.Point{X: p.X - lonPeriod, Y: p.Y}, index: j})
			index.Insert(&gridPoint{Point: geom.Point{X: p.X + lonPeriod, Y: p.Y}, index: j})
		}
	}

	w := new(Weights)
	for i, p := range src.points() {
		nn := index.NearestNeighbor(p).(*gridPoint)
		w.add(nn.index, i, 1)
	}
	return w, nil
}

// nearestBruteForce performs nearest-point mapping by exhaustive
// search for grids with more than 2 axes, where the 2-d spatial
// index does not apply. When dtos is true each source point maps to
// its nearest destination point; otherwise each destination point
// maps to its nearest source point.
func nearestBruteForce(src, dst *Grid, srcMask, dstMask []bool, dtos bool) (*Weights, error) {
	srcPos := gridPositions(src)
	dstPos := gridPositions(dst)

	nearest := func(v []float64, pos [][]float64, mask []bool) int {
		best, bestD := -1, math.Inf(1)
		for i, p := range pos {
			if mask != nil && mask[i] {
				continue
			}
			var d float64
			for k := range v {
				d += (v[k] - p[k]) * (v[k] - p[k])
			}
			if d < bestD {
				best, bestD = i, d
			}
		}
		return best
	}

	w := new(Weights)
	if dtos {
		for i, p := range srcPos {
			if j := nearest(p, dstPos, nil); j >= 0 {
				w.add(j, i, 1)
			}
		}
		return w, nil
	}
	for j, p := range dstPos {
		if dstMask != nil && dstMask[j] {
			continue
		}
		i := nearest(p, srcPos, srcMask)
		if i < 0 {
			return nil, fmt.Errorf("regrid: all source grid points are masked")
		}
		w.add(j, i, 1)
	}
	return w, nil
}

// gridPositions returns the coordinate vector of every grid point in
// row-major order, for grids with 1-d coordinates.
func gridPositions(g *Grid) [][]float64 {
	nd := len(g.Shape)
	vals := make([][]float64, nd)
	for d := 0; d < nd; d++ {
		vals[d] = g.axisValues(d)
	}
	out := make([][]float64, g.size())
	idx := make([]int, nd)
	for r := range out {
		unflattenIndex(r, g.Shape, idx)
		v := make([]float64, nd)
		for d := 0; d < nd; d++ {
			v[d] = vals[d][idx[d]]
		}
		out[r] = v
	}
	return out
}

// quarter reduces a weight matrix computed on grids with a two-point
// dummy axis to the single real axis, keeping only the entries in
// which both the source and destination dummy indices are zero.
func (w *Weights) quarter() {
	var row, col []int32
	var vals []float64
	for k := range w.W {
		if w.Row[k]%2 == 0 && w.Col[k]%2 == 0 {
			row = append(row, w.Row[k]/2)
			col = append(col, w.Col[k]/2)
			vals = append(vals, w.W[k])
		}
	}
	w.Row, w.Col, w.W = row, col, vals
}
