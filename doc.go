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

// Package regrid interpolates gridded earth-science data from one
// horizontal grid to another.
//
// A source field is regridded onto a destination grid by computing a
// sparse matrix of interpolation weights and applying it to every
// horizontal slab of the field's data. Weight computation only depends
// on the two grids, so the resulting Operator can be saved to a NetCDF
// file and reused for any number of fields that share the source grid.
//
// Grids can be spherical (latitude-longitude, with an optionally
// cyclic longitude axis) or Cartesian (1 to 3 arbitrary axes).
// Available interpolation methods are bilinear, first-order
// conservative (polygon-overlap area weighting), nearest source to
// destination, and nearest destination to source.
package regrid

// Version gives the version number of this module.
const Version = "0.1.0"
