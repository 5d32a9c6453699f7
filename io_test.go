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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/sparse"
)

func TestFieldNCRoundtrip(t *testing.T) {
	data := testArray([]int{2, 3},
		1, 2, 3,
		4, 5, 6)
	f, err := NewField("q", []string{"y", "x"}, data)
	if err != nil {
		t.Fatal(err)
	}
	f.Units = "kg m-2"
	if err := f.AddCoord(&Coord{Name: "y", StandardName: "latitude",
		Units: "degrees_north", Axes: []string{"y"},
		Values: testArray([]int{2}, 10, 30), Bounds: edgeBounds(0, 20, 40)}); err != nil {
		t.Fatal(err)
	}
	if err := f.AddCoord(&Coord{Name: "x", StandardName: "longitude",
		Units: "degrees_east", Axes: []string{"x"},
		Values: testArray([]int{3}, 10, 30, 50), Bounds: edgeBounds(0, 20, 40, 60)}); err != nil {
		t.Fatal(err)
	}
	f.Mask = sparse.ZerosDense(2, 3)
	f.Mask.Elements[4] = 1

	fname := filepath.Join(t.TempDir(), "field.nc")
	w, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.WriteNC(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	have, err := ReadField(r, "q")
	if err != nil {
		t.Fatal(err)
	}

	if have.Units != f.Units {
		t.Errorf("units: want %q but have %q", f.Units, have.Units)
	}
	if !reflect.DeepEqual(have.Axes, f.Axes) {
		t.Errorf("axes: want %v but have %v", f.Axes, have.Axes)
	}
	if have.Mask == nil {
		t.Fatal("the mask should survive the roundtrip")
	}
	for i, v := range f.Data.Elements {
		if f.Mask.Elements[i] != 0 {
			if have.Mask.Elements[i] == 0 {
				t.Errorf("element %d should be masked", i)
			}
			continue
		}
		if have.Mask.Elements[i] != 0 {
			t.Errorf("element %d should not be masked", i)
		}
		if have.Data.Elements[i] != v {
			t.Errorf("element %d: want %g but have %g", i, v, have.Data.Elements[i])
		}
	}

	if len(have.Coords) != 2 {
		t.Fatalf("want 2 coordinates but have %d", len(have.Coords))
	}
	lat := have.coordBy(1, (*Coord).IsLatitude)
	if lat == nil {
		t.Fatal("no latitude coordinate after the roundtrip")
	}
	if lat.StandardName != "latitude" || lat.Units != "degrees_north" {
		t.Errorf("latitude metadata: have %+v", lat)
	}
	wantLat := f.coordBy(1, (*Coord).IsLatitude)
	if !lat.equalValues(wantLat) {
		t.Error("latitude values and bounds should survive the roundtrip")
	}
}

func TestReadFieldAuxCoord(t *testing.T) {
	data := testArray([]int{2}, 1, 2)
	f, err := NewField("q", []string{"y"}, data)
	if err != nil {
		t.Fatal(err)
	}
	// A coordinate not named after its axis travels through the
	// "coordinates" attribute.
	if err := f.AddCoord(&Coord{Name: "latitude", StandardName: "latitude",
		Axes: []string{"y"}, Values: testArray([]int{2}, 10, 30)}); err != nil {
		t.Fatal(err)
	}

	fname := filepath.Join(t.TempDir(), "field.nc")
	w, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.WriteNC(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	have, err := ReadField(r, "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(have.Coords) != 1 || have.Coords[0].Name != "latitude" {
		t.Fatalf("want the latitude coordinate but have %+v", have.Coords)
	}
	if !reflect.DeepEqual(have.Coords[0].Axes, []string{"y"}) {
		t.Errorf("coordinate axes: want [y] but have %v", have.Coords[0].Axes)
	}
}

func TestReadFieldMissingVariable(t *testing.T) {
	data := testArray([]int{1}, 1)
	f, err := NewField("q", []string{"y"}, data)
	if err != nil {
		t.Fatal(err)
	}
	fname := filepath.Join(t.TempDir(), "field.nc")
	w, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.WriteNC(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := ReadField(r, "nope"); err == nil {
		t.Error("reading a missing variable should be an error")
	}
}

func TestWriteShapefile(t *testing.T) {
	f := latlonField(t, []float64{10, 30}, []float64{10, 30},
		[]float64{0, 20, 40}, []float64{0, 20, 40},
		func(lat, lon float64) float64 { return lat + lon })
	f.Mask = sparse.ZerosDense(2, 2)
	f.Mask.Elements[3] = 1

	g, err := SphericalGrid(f, "source", Conservative, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	fname := filepath.Join(t.TempDir(), "cells.shp")
	if err := f.WriteShapefile(fname, g); err != nil {
		t.Fatal(err)
	}
	for _, ext := range []string{".shp", ".dbf", ".shx"} {
		p := fname[:len(fname)-4] + ext
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected shapefile component %s: %v", p, err)
		}
	}
}
