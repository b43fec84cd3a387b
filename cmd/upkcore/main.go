// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	upkcore "github.com/saferwall/upkcore"
	"github.com/saferwall/upkcore/internal/log"
)

var verbose bool

func prettyPrint(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "\t"); err != nil {
		return string(raw)
	}
	return buf.String()
}

func newLogger() *log.Helper {
	level := log.LevelWarn
	if verbose {
		level = log.LevelDebug
	}
	return log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stderr), log.FilterLevel(level)))
}

func load(cmd *cobra.Command, args []string) error {
	path := args[0]
	logger := newLogger()
	cache := upkcore.NewContainerCache()
	loader := upkcore.NewLoader(cache, upkcore.LoaderOptions{Logger: logger})

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = path
	}

	c, err := loader.LoadFile(path, name)
	if err != nil {
		return fmt.Errorf("loading %q: %w", path, err)
	}

	type summary struct {
		Name    string `json:"name"`
		Header  any    `json:"header"`
		Exports int    `json:"export_count"`
		Imports int    `json:"import_count"`
	}
	fmt.Println(prettyPrint(summary{
		Name:    c.Name(),
		Header:  c.Header(),
		Exports: len(c.Exports()),
		Imports: len(c.Imports()),
	}))
	return nil
}

func export(cmd *cobra.Command, args []string) error {
	path := args[0]
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return fmt.Errorf("--out is required")
	}
	logger := newLogger()
	cache := upkcore.NewContainerCache()
	loader := upkcore.NewLoader(cache, upkcore.LoaderOptions{Logger: logger})

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = path
	}

	c, err := loader.LoadFile(path, name)
	if err != nil {
		return fmt.Errorf("loading %q: %w", path, err)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	resolver := upkcore.NewResolver(cache, upkcore.WithResolverLogger(logger))
	if err := upkcore.Export(c, f, upkcore.ExportOptions{Resolver: resolver, Logger: logger}); err != nil {
		return fmt.Errorf("exporting %q: %w", path, err)
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "upkcore",
		Short: "A proprietary asset-container loader and exporter",
		Long:  "upkcore decodes, resolves, and re-exports proprietary game-engine asset containers.",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("upkcore version 0.1.0")
		},
	}

	loadCmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load a container and its dependency closure, printing a summary",
		Args:  cobra.ExactArgs(1),
		RunE:  load,
	}
	loadCmd.Flags().String("name", "", "container name (defaults to the file path)")

	exportCmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Load a container and re-export a filtered, reindexed copy",
		Args:  cobra.ExactArgs(1),
		RunE:  export,
	}
	exportCmd.Flags().String("name", "", "container name (defaults to the file path)")
	exportCmd.Flags().String("out", "", "output path (required)")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.AddCommand(versionCmd, loadCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
