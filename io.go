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
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/sparse"
)

// fillValue is the default NetCDF fill value for missing data.
const fillValue = 9.969209968386869e+36

// ReadField reads the named variable from a NetCDF file, along with
// its coordinates. 1-d coordinate variables sharing a dimension name
// are attached as dimension coordinates, and variables named by a
// "coordinates" attribute are attached as auxiliary coordinates.
// Elements equal to the variable's _FillValue or missing_value
// attribute become masked.
func ReadField(rw cdf.ReaderWriterAt, name string) (*Field, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("regrid.ReadField: %v", err)
	}
	h := f.Header
	if !hasVariable(h, name) {
		return nil, fmt.Errorf("regrid.ReadField: no variable %s in file", name)
	}

	data, err := readArray(f, name)
	if err != nil {
		return nil, fmt.Errorf("regrid.ReadField: reading %s: %v", name, err)
	}
	axes := h.Dimensions(name)
	field, err := NewField(name, axes, data)
	if err != nil {
		return nil, err
	}
	field.Units, _ = h.GetAttribute(name, "units").(string)

	if fill, ok := attrFloat(h, name, "_FillValue"); ok {
		maskEqual(field, fill)
	}
	if miss, ok := attrFloat(h, name, "missing_value"); ok {
		maskEqual(field, miss)
	}

	coordNames := map[string]bool{}
	for _, d := range axes {
		if hasVariable(h, d) && len(h.Dimensions(d)) == 1 && h.Dimensions(d)[0] == d {
			coordNames[d] = true
		}
	}
	if aux, ok := h.GetAttribute(name, "coordinates").(string); ok {
		for _, cn := range strings.Fields(aux) {
			if hasVariable(h, cn) {
				coordNames[cn] = true
			}
		}
	}

	for cn := range coordNames {
		vals, err := readArray(f, cn)
		if err != nil {
			return nil, fmt.Errorf("regrid.ReadField: reading coordinate %s: %v", cn, err)
		}
		c := &Coord{
			Name:   cn,
			Axes:   h.Dimensions(cn),
			Values: vals,
		}
		c.StandardName, _ = h.GetAttribute(cn, "standard_name").(string)
		c.Units, _ = h.GetAttribute(cn, "units").(string)
		if bn, ok := h.GetAttribute(cn, "bounds").(string); ok && hasVariable(h, bn) {
			c.Bounds, err = readArray(f, bn)
			if err != nil {
				return nil, fmt.Errorf("regrid.ReadField: reading bounds %s: %v", bn, err)
			}
		}
		if err := field.AddCoord(c); err != nil {
			return nil, err
		}
	}
	return field, nil
}

// readArray reads a whole variable into a dense array, converting
// from whatever type it is stored as.
func readArray(f *cdf.File, name string) (*sparse.DenseArray, error) {
	dims := f.Header.Lengths(name)
	n := 1
	for _, d := range dims {
		n *= d
	}
	buf := f.Header.ZeroValue(name, n)
	if _, err := f.Reader(name, nil, nil).Read(buf); err != nil {
		return nil, err
	}
	out := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float64:
		copy(out.Elements, b)
	case []float32:
		for i, v := range b {
			out.Elements[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			out.Elements[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			out.Elements[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			out.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported variable type %T", buf)
	}
	return out, nil
}

// maskEqual masks the elements of a field equal to v.
func maskEqual(f *Field, v float64) {
	for i, e := range f.Data.Elements {
		if e == v {
			if f.Mask == nil {
				f.Mask = sparse.ZerosDense(f.Data.Shape...)
			}
			f.Mask.Elements[i] = 1
		}
	}
}

func attrFloat(h *cdf.Header, v, a string) (float64, bool) {
	switch x := h.GetAttribute(v, a).(type) {
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

// WriteNC writes the field and its coordinates to a NetCDF file.
// Masked elements are stored as the default fill value.
func (f *Field) WriteNC(w *os.File) error {
	if f.Data == nil {
		return fmt.Errorf("regrid: field %s has no data", f.Name)
	}

	dims := append([]string{}, f.Axes...)
	lengths := append([]int{}, f.Data.Shape...)
	seenBoundsDim := map[string]bool{}
	for _, c := range f.Coords {
		if c.Bounds == nil {
			continue
		}
		nv := c.Bounds.Shape[len(c.Bounds.Shape)-1]
		dim := fmt.Sprintf("nv%d", nv)
		if !seenBoundsDim[dim] {
			seenBoundsDim[dim] = true
			dims = append(dims, dim)
			lengths = append(lengths, nv)
		}
	}

	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "Conventions", "COARDS")

	var aux []string
	for _, c := range f.Coords {
		if len(c.Axes) > 1 || c.Axes[0] != c.Name {
			aux = append(aux, c.Name)
		}
	}

	h.AddVariable(f.Name, f.Axes, []float64{0})
	if f.Units != "" {
		h.AddAttribute(f.Name, "units", f.Units)
	}
	if f.Mask != nil {
		h.AddAttribute(f.Name, "_FillValue", []float64{fillValue})
	}
	if len(aux) > 0 {
		h.AddAttribute(f.Name, "coordinates", strings.Join(aux, " "))
	}

	for _, c := range f.Coords {
		h.AddVariable(c.Name, c.Axes, []float64{0})
		if c.StandardName != "" {
			h.AddAttribute(c.Name, "standard_name", c.StandardName)
		}
		if c.Units != "" {
			h.AddAttribute(c.Name, "units", c.Units)
		}
		if c.Bounds != nil {
			bname := c.Name + "_bnds"
			h.AddAttribute(c.Name, "bounds", bname)
			nv := c.Bounds.Shape[len(c.Bounds.Shape)-1]
			bdims := append(append([]string{}, c.Axes...), fmt.Sprintf("nv%d", nv))
			h.AddVariable(bname, bdims, []float64{0})
		}
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("regrid: field file header: %v", errs[0])
	}

	file, err := cdf.Create(w, h)
	if err != nil {
		return err
	}

	writeVar := func(name string, data []float64) error {
		end := file.Header.Lengths(name)
		start := make([]int, len(end))
		_, err := file.Writer(name, start, end).Write(data)
		return err
	}

	data := f.Data.Elements
	if f.Mask != nil {
		data = append([]float64{}, data...)
		for i, m := range f.Mask.Elements {
			if m != 0 {
				data[i] = fillValue
			}
		}
	}
	if err := writeVar(f.Name, data); err != nil {
		return fmt.Errorf("regrid: writing variable %s to netcdf file: %v", f.Name, err)
	}
	for _, c := range f.Coords {
		if err := writeVar(c.Name, c.Values.Elements); err != nil {
			return fmt.Errorf("regrid: writing coordinate %s to netcdf file: %v", c.Name, err)
		}
		if c.Bounds != nil {
			if err := writeVar(c.Name+"_bnds", c.Bounds.Elements); err != nil {
				return fmt.Errorf("regrid: writing bounds of %s to netcdf file: %v", c.Name, err)
			}
		}
	}
	return cdf.UpdateNumRecs(w)
}

// WriteShapefile writes the cells of a grid extracted from the field
// to a shapefile, with the field values of the first slab of any
// non-regrid axes. Masked cells are skipped. The grid coordinates
// must have cell bounds.
func (f *Field) WriteShapefile(fname string, g *Grid) error {
	polys, err := g.CellPolygons()
	if err != nil {
		return err
	}

	type cellRec struct {
		geom.Polygon
		Row, Col int
		Val      float64
	}
	e, err := shp.NewEncoder(fname, cellRec{})
	if err != nil {
		return fmt.Errorf("regrid: creating shapefile: %v", err)
	}
	defer e.Close()

	vals := f.gridValues(g)
	mask := f.gridMask(g)
	nx := g.Shape[len(g.Shape)-1]
	for r, p := range polys {
		if p == nil {
			continue
		}
		if mask != nil && mask.Elements[r] != 0 {
			continue
		}
		poly, ok := p.(geom.Polygon)
		if !ok {
			poly = geom.Polygon(p.Polygons()[0])
		}
		rec := cellRec{
			Polygon: poly,
			Row:     r / nx,
			Col:     r % nx,
		}
		if vals != nil {
			rec.Val = vals.Elements[r]
		}
		if err := e.Encode(&rec); err != nil {
			return fmt.Errorf("regrid: writing shapefile: %v", err)
		}
	}
	return nil
}
