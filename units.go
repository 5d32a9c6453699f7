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

	"github.com/ctessum/unit"
)

// unitTable maps unit names to their magnitude in SI base units.
// Two units are equivalent when their dimensions match, and values
// are converted by the ratio of their magnitudes.
var unitTable = map[string]*unit.Unit{
	"m":          unit.New(1, unit.Dimensions{unit.LengthDim: 1}),
	"meter":      unit.New(1, unit.Dimensions{unit.LengthDim: 1}),
	"meters":     unit.New(1, unit.Dimensions{unit.LengthDim: 1}),
	"metre":      unit.New(1, unit.Dimensions{unit.LengthDim: 1}),
	"metres":     unit.New(1, unit.Dimensions{unit.LengthDim: 1}),
	"km":         unit.New(1000, unit.Dimensions{unit.LengthDim: 1}),
	"kilometers": unit.New(1000, unit.Dimensions{unit.LengthDim: 1}),
	"kilometres": unit.New(1000, unit.Dimensions{unit.LengthDim: 1}),
	"cm":         unit.New(0.01, unit.Dimensions{unit.LengthDim: 1}),
	"mm":         unit.New(0.001, unit.Dimensions{unit.LengthDim: 1}),

	"s":       unit.New(1, unit.Dimensions{unit.TimeDim: 1}),
	"second":  unit.New(1, unit.Dimensions{unit.TimeDim: 1}),
	"seconds": unit.New(1, unit.Dimensions{unit.TimeDim: 1}),
	"minute":  unit.New(60, unit.Dimensions{unit.TimeDim: 1}),
	"minutes": unit.New(60, unit.Dimensions{unit.TimeDim: 1}),
	"hour":    unit.New(3600, unit.Dimensions{unit.TimeDim: 1}),
	"hours":   unit.New(3600, unit.Dimensions{unit.TimeDim: 1}),
	"day":     unit.New(86400, unit.Dimensions{unit.TimeDim: 1}),
	"days":    unit.New(86400, unit.Dimensions{unit.TimeDim: 1}),

	"Pa":  unit.New(1, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -1, unit.TimeDim: -2}),
	"hPa": unit.New(100, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -1, unit.TimeDim: -2}),
	"mb":  unit.New(100, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -1, unit.TimeDim: -2}),

	"K": unit.New(1, unit.Dimensions{unit.TemperatureDim: 1}),

	"degrees": unit.New(1, unit.Dimensions{unit.AngleDim: 1}),
	"radians": unit.New(57.29577951308232, unit.Dimensions{unit.AngleDim: 1}),
}

// parseUnits looks up a unit name in the unit table.
func parseUnits(s string) (*unit.Unit, error) {
	if u, ok := unitTable[s]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("regrid: unrecognized units %q", s)
}

// conformCoordinateUnits converts the source grid coordinates of a
// Cartesian regridding to the units of the corresponding destination
// grid coordinates. Coordinates without units are left alone, and
// coordinates with units that are not equivalent cause an error. For
// spherical grids the units were already checked when identifying the
// latitude and longitude coordinates.
func conformCoordinateUnits(src, dst *Grid) error {
	if src.CoordSystem == Spherical {
		return nil
	}
	n := len(src.AxisIndices)
	for dim := 0; dim < n; dim++ {
		s, d := src.Coords[dim], dst.Coords[dim]
		if s.Units == "" || d.Units == "" || s.Units == d.Units {
			continue
		}
		su, err := parseUnits(s.Units)
		if err != nil {
			return err
		}
		du, err := parseUnits(d.Units)
		if err != nil {
			return err
		}
		if !unit.DimensionsMatch(su, du) {
			return fmt.Errorf("regrid: units of source and destination coordinates "+
				"are not equivalent: %q, %q", s.Units, d.Units)
		}
		factor := su.Value() / du.Value()
		for i := range s.Values.Elements {
			s.Values.Elements[i] *= factor
		}
		if s.Bounds != nil {
			for i := range s.Bounds.Elements {
				s.Bounds.Elements[i] *= factor
			}
		}
		s.Units = d.Units
	}
	return nil
}
