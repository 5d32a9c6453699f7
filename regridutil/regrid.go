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

package regridutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/regrid"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Log is the logger used by the commands in this package.
var Log logrus.FieldLogger = logrus.StandardLogger()

// SpecFromConfig builds the regridding options from the
// configuration.
func SpecFromConfig(cfg *viper.Viper) (*regrid.Spec, error) {
	method, err := regrid.ParseMethod(cfg.GetString("method"))
	if err != nil {
		return nil, err
	}
	coordSys, err := regrid.ParseCoordSystem(cfg.GetString("coordsys"))
	if err != nil {
		return nil, err
	}

	spec := regrid.NewSpec(method, coordSys)
	spec.UseSrcMask = cfg.GetBool("usesrcmask")
	spec.UseDstMask = cfg.GetBool("usedstmask")
	spec.IgnoreDegenerate = cfg.GetBool("ignoredegenerate")
	spec.CheckCoordinates = cfg.GetBool("checkcoords")

	axes, err := cast.ToStringSliceE(cfg.Get("axes"))
	if err != nil {
		return nil, fmt.Errorf("regrid: invalid axes option: %v", err)
	}
	spec.Axes = axes

	if spec.SrcAxes, err = stringMapOption(cfg, "srcaxes"); err != nil {
		return nil, err
	}
	if spec.DstAxes, err = stringMapOption(cfg, "dstaxes"); err != nil {
		return nil, err
	}
	if spec.SrcCyclic, err = cyclicOption(cfg, "srccyclic"); err != nil {
		return nil, err
	}
	if spec.DstCyclic, err = cyclicOption(cfg, "dstcyclic"); err != nil {
		return nil, err
	}
	return spec, nil
}

// stringMapOption reads a map option that may be stored as a JSON
// string.
func stringMapOption(cfg *viper.Viper, name string) (map[string]string, error) {
	v := cfg.Get(name)
	if s, ok := v.(string); ok {
		out := make(map[string]string)
		if s == "" {
			return out, nil
		}
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("regrid: invalid %s option %q: %v", name, s, err)
		}
		return out, nil
	}
	out, err := cast.ToStringMapStringE(v)
	if err != nil {
		return nil, fmt.Errorf("regrid: invalid %s option: %v", name, err)
	}
	return out, nil
}

// cyclicOption reads a tri-state cyclicity option: 'true', 'false',
// or 'auto' (nil).
func cyclicOption(cfg *viper.Viper, name string) (*bool, error) {
	switch s := cfg.GetString(name); s {
	case "", "auto":
		return nil, nil
	case "true":
		v := true
		return &v, nil
	case "false":
		v := false
		return &v, nil
	default:
		return nil, fmt.Errorf("regrid: invalid %s option %q; must be 'true', "+
			"'false' or 'auto'", name, s)
	}
}

// readField reads a variable and its coordinates from a NetCDF file.
func readField(path, varName string) (*regrid.Field, error) {
	if path == "" {
		return nil, fmt.Errorf("regrid: no input file specified")
	}
	if varName == "" {
		return nil, fmt.Errorf("regrid: no variable name specified")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return regrid.ReadField(f, varName)
}

// Weights computes regridding weights between the grids of the
// source and destination variables and saves them to an operator
// file.
func Weights(srcPath, srcVar, dstPath, dstVar, opPath string, spec *regrid.Spec) error {
	if opPath == "" {
		return fmt.Errorf("regrid: no operator file specified")
	}
	Log.WithFields(logrus.Fields{
		"src":    srcPath,
		"dst":    dstPath,
		"method": spec.Method,
	}).Info("computing regridding weights")

	src, err := readField(srcPath, srcVar)
	if err != nil {
		return err
	}
	dst, err := readField(dstPath, dstVar)
	if err != nil {
		return err
	}
	_, op, err := regrid.Regrid(src, dst, spec)
	if err != nil {
		return err
	}

	w, err := os.Create(opPath)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := op.Write(w); err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{
		"operator": opPath,
		"links":    len(op.Weights.W),
	}).Info("saved regridding weights")
	return nil
}

// Apply regrids the source variable with a saved operator and writes
// the result to a NetCDF file.
func Apply(srcPath, srcVar, opPath, outPath string, spec *regrid.Spec) error {
	if outPath == "" {
		return fmt.Errorf("regrid: no output file specified")
	}
	src, err := readField(srcPath, srcVar)
	if err != nil {
		return err
	}
	opFile, err := os.Open(opPath)
	if err != nil {
		return err
	}
	op, err := regrid.ReadOperator(opFile)
	opFile.Close()
	if err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{
		"src":    srcPath,
		"method": op.Method,
	}).Info("regridding with saved weights")

	out, err := regrid.RegridWithOperator(src, op, spec)
	if err != nil {
		return err
	}
	return writeField(out, outPath)
}

// Run regrids the source variable onto the grid of the destination
// variable and writes the result to a NetCDF file.
func Run(srcPath, srcVar, dstPath, dstVar, outPath string, spec *regrid.Spec) error {
	if outPath == "" {
		return fmt.Errorf("regrid: no output file specified")
	}
	Log.WithFields(logrus.Fields{
		"src":    srcPath,
		"dst":    dstPath,
		"method": spec.Method,
	}).Info("regridding")

	src, err := readField(srcPath, srcVar)
	if err != nil {
		return err
	}
	dst, err := readField(dstPath, dstVar)
	if err != nil {
		return err
	}
	out, _, err := regrid.Regrid(src, dst, spec)
	if err != nil {
		return err
	}
	return writeField(out, outPath)
}

// Describe prints a summary of an operator file.
func Describe(opPath string, w io.Writer) error {
	f, err := os.Open(opPath)
	if err != nil {
		return err
	}
	defer f.Close()
	op, err := regrid.ReadOperator(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "method:       %s\n", op.Method)
	fmt.Fprintf(w, "coord system: %s\n", op.CoordSystem)
	fmt.Fprintf(w, "src shape:    %v (cyclic: %v)\n", op.SrcShape, op.SrcCyclic)
	fmt.Fprintf(w, "dst shape:    %v (cyclic: %v)\n", op.DstShape, op.DstCyclic)
	fmt.Fprintf(w, "links:        %d\n", len(op.Weights.W))
	if op.SrcMask != nil {
		fmt.Fprintf(w, "src mask:     %d points\n", countTrue(op.SrcMask))
	}
	if op.DstMask != nil {
		fmt.Fprintf(w, "dst mask:     %d points\n", countTrue(op.DstMask))
	}
	return nil
}

// Cells writes the grid cells of the source variable, with their
// data values, to a shapefile.
func Cells(srcPath, srcVar, outPath string, spec *regrid.Spec) error {
	if outPath == "" {
		return fmt.Errorf("regrid: no output file specified")
	}
	src, err := readField(srcPath, srcVar)
	if err != nil {
		return err
	}
	g, err := regrid.GridOf(src, spec)
	if err != nil {
		return err
	}
	return src.WriteShapefile(outPath, g)
}

func writeField(f *regrid.Field, path string) error {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := f.WriteNC(w); err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{"output": path}).Info("saved regridded field")
	return nil
}

func countTrue(m []bool) int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}
