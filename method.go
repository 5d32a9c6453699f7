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
	"log"
)

// Method is a regridding interpolation method.
type Method int

const (
	// Linear is (multi)linear interpolation from the source cell
	// centers surrounding each destination point.
	Linear Method = iota + 1

	// Conservative is first-order conservative regridding: each
	// destination cell gets the area-weighted average of the source
	// cells overlapping it. Requires cell bounds on both grids.
	Conservative

	// NearestSTOD assigns each destination point the value of the
	// nearest source point.
	NearestSTOD

	// NearestDTOS assigns each source point to the nearest
	// destination point; destination values are the sums of the
	// source values assigned to them.
	NearestDTOS

	// Conservative2nd and Patch are recognized but not implemented.
	Conservative2nd
	Patch
)

var methodNames = map[Method]string{
	Linear:          "linear",
	Conservative:    "conservative",
	NearestSTOD:     "nearest_stod",
	NearestDTOS:     "nearest_dtos",
	Conservative2nd: "conservative_2nd",
	Patch:           "patch",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("unknown method (%d)", int(m))
}

// ParseMethod converts a method name to a Method. "bilinear" is
// accepted as a deprecated alias for "linear", and "conservative_1st"
// as an alias for "conservative".
func ParseMethod(s string) (Method, error) {
	switch s {
	case "linear":
		return Linear, nil
	case "bilinear":
		log.Println("regrid: the 'bilinear' method has been renamed to " +
			"'linear'; it is still accepted for now but please use 'linear'")
		return Linear, nil
	case "conservative", "conservative_1st":
		return Conservative, nil
	case "conservative_2nd":
		return Conservative2nd, nil
	case "nearest_stod":
		return NearestSTOD, nil
	case "nearest_dtos":
		return NearestDTOS, nil
	case "patch":
		return Patch, nil
	}
	return 0, fmt.Errorf("regrid: invalid regridding method %q; "+
		"valid methods are linear, conservative, conservative_2nd, "+
		"nearest_stod, nearest_dtos, and patch", s)
}

// Conservative reports whether the method requires cell bounds.
func (m Method) Conservative() bool {
	return m == Conservative || m == Conservative2nd
}

// supported returns an error for methods that parse but cannot
// generate weights.
func (m Method) supported() error {
	switch m {
	case Linear, Conservative, NearestSTOD, NearestDTOS:
		return nil
	case Conservative2nd, Patch:
		return fmt.Errorf("regrid: the %s method is not supported", m)
	}
	return fmt.Errorf("regrid: invalid regridding method %v", m)
}
