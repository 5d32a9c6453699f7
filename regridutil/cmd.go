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

// Package regridutil holds the command-line interface of the regrid
// tool.
package regridutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/regrid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to the regrid
	// tool.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "loglevel",
			usage: `
              loglevel sets the logging verbosity: one of 'panic',
              'fatal', 'error', 'warn', 'info', 'debug' or 'trace'.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "src",
			usage: `
              src specifies the NetCDF file holding the field to be
              regridded.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{weightsCmd.Flags(), applyCmd.Flags(),
				runCmd.Flags(), cellsCmd.Flags()},
		},
		{
			name: "var",
			usage: `
              var specifies the name of the NetCDF variable to be
              regridded.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{weightsCmd.Flags(), applyCmd.Flags(),
				runCmd.Flags(), cellsCmd.Flags()},
		},
		{
			name: "dst",
			usage: `
              dst specifies the NetCDF file holding the variable that
              defines the destination grid.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "dstvar",
			usage: `
              dstvar specifies the name of the NetCDF variable that
              defines the destination grid.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "operator",
			usage: `
              operator specifies the regrid operator file, holding
              previously computed regridding weights.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{weightsCmd.Flags(), applyCmd.Flags(),
				describeCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output specifies the file the results are written to.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets: []*pflag.FlagSet{applyCmd.Flags(), runCmd.Flags(),
				cellsCmd.Flags()},
		},
		{
			name: "method",
			usage: `
              method specifies the regridding method: one of
              'linear', 'conservative', 'nearest_stod' or
              'nearest_dtos'.`,
			shorthand:  "m",
			defaultVal: "conservative",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "coordsys",
			usage: `
              coordsys specifies the coordinate system of the
              regridding: 'spherical' or 'Cartesian'.`,
			defaultVal: "spherical",
			flagsets: []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags(),
				cellsCmd.Flags()},
		},
		{
			name: "axes",
			usage: `
              axes specifies between 1 and 3 axis names for Cartesian
              regridding.`,
			defaultVal: []string{},
			flagsets: []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags(),
				applyCmd.Flags(), cellsCmd.Flags()},
		},
		{
			name: "srcaxes",
			usage: `
              srcaxes identifies the X and Y axes of a spherical
              source grid whose latitude and longitude coordinates
              are 2-d, e.g. {"X": "x", "Y": "y"}.`,
			defaultVal: map[string]string{},
			flagsets: []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags(),
				applyCmd.Flags(), cellsCmd.Flags()},
		},
		{
			name: "dstaxes",
			usage: `
              dstaxes identifies the X and Y axes of a spherical
              destination grid whose latitude and longitude
              coordinates are 2-d.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "srccyclic",
			usage: `
              srccyclic specifies whether the longitude axis of the
              source grid is cyclic: 'true', 'false', or 'auto' to
              infer it from the grid coordinates.`,
			defaultVal: "auto",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "dstcyclic",
			usage: `
              dstcyclic specifies whether the longitude axis of the
              destination grid is cyclic: 'true', 'false', or 'auto'.`,
			defaultVal: "auto",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "usesrcmask",
			usage: `
              usesrcmask controls whether destination cells nearest to
              a masked source point are masked during nearest_stod
              regridding. It must be true for all other methods.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "usedstmask",
			usage: `
              usedstmask guarantees that cells that are masked in the
              destination grid variable stay masked in the result.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "ignoredegenerate",
			usage: `
              ignoredegenerate makes conservative regridding skip grid
              cells whose outlines collapse to a line or a point
              instead of reporting an error.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "checkcoords",
			usage: `
              checkcoords compares the source grid coordinates
              element-wise with the coordinates the operator was
              computed from, which can be slow for large grids.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{applyCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("REGRID")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(weightsCmd)
	Root.AddCommand(applyCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(describeCmd)
	Root.AddCommand(cellsCmd)
}

// setConfig finds and reads in the configuration file, if there is
// one, and sets the logging level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("regrid: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(Cfg.GetString("loglevel"))
	if err != nil {
		return fmt.Errorf("regrid: %v", err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "regrid",
	Short: "Interpolate gridded data between spherical and Cartesian grids.",
	Long: `regrid interpolates the data of a gridded NetCDF variable from one
grid to another, using linear, first-order conservative, or nearest
neighbor interpolation. Use the subcommands specified below to access
the functionality.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'REGRID_var'
where 'var' is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of regrid.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("regrid v%s\n", regrid.Version)
	},
	DisableAutoGenTag: true,
}

// weightsCmd computes regridding weights without applying them.
var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Compute regridding weights.",
	Long: `weights computes the regridding weights between the grid of the source
variable and the grid of the destination variable and saves them, with
the grid information needed to reuse them, to an operator file.
Computing the weights is in general much more expensive than applying
them, so a saved operator can be applied to any number of fields that
share the source grid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := SpecFromConfig(Cfg)
		if err != nil {
			return err
		}
		return Weights(
			os.ExpandEnv(Cfg.GetString("src")),
			Cfg.GetString("var"),
			os.ExpandEnv(Cfg.GetString("dst")),
			Cfg.GetString("dstvar"),
			os.ExpandEnv(Cfg.GetString("operator")),
			spec,
		)
	},
	DisableAutoGenTag: true,
}

// applyCmd regrids a variable with previously computed weights.
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Regrid a variable with saved weights.",
	Long: `apply regrids the source variable using the weights in an operator
file created by the weights command. The source grid of the variable
must match the grid the weights were computed from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := SpecFromConfig(Cfg)
		if err != nil {
			return err
		}
		return Apply(
			os.ExpandEnv(Cfg.GetString("src")),
			Cfg.GetString("var"),
			os.ExpandEnv(Cfg.GetString("operator")),
			os.ExpandEnv(Cfg.GetString("output")),
			spec,
		)
	},
	DisableAutoGenTag: true,
}

// runCmd computes weights and applies them in one step.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Regrid a variable.",
	Long: `run regrids the source variable onto the grid of the destination
variable and writes the result to the output file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := SpecFromConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(
			os.ExpandEnv(Cfg.GetString("src")),
			Cfg.GetString("var"),
			os.ExpandEnv(Cfg.GetString("dst")),
			Cfg.GetString("dstvar"),
			os.ExpandEnv(Cfg.GetString("output")),
			spec,
		)
	},
	DisableAutoGenTag: true,
}

// describeCmd summarizes an operator file.
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Summarize an operator file.",
	Long: `describe prints a summary of the regridding weights and grid
information in an operator file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Describe(os.ExpandEnv(Cfg.GetString("operator")), cmd.OutOrStdout())
	},
	DisableAutoGenTag: true,
}

// cellsCmd exports grid cells to a shapefile.
var cellsCmd = &cobra.Command{
	Use:   "cells",
	Short: "Export grid cells to a shapefile.",
	Long: `cells writes the grid cells of the source variable, with their data
values, to a shapefile for inspection in GIS tools. The grid
coordinates must have cell bounds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := SpecFromConfig(Cfg)
		if err != nil {
			return err
		}
		return Cells(
			os.ExpandEnv(Cfg.GetString("src")),
			Cfg.GetString("var"),
			os.ExpandEnv(Cfg.GetString("output")),
			spec,
		)
	},
	DisableAutoGenTag: true,
}
