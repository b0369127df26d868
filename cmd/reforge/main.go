// SPDX-License-Identifier: Apache-2.0
package main

import (
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"reforge/internal/errors"
	"reforge/internal/ir"
	"reforge/internal/irtext"
	"reforge/internal/lower"
	"reforge/internal/passes"
)

func main() {
	configPath := flag.String("config", "", "YAML pipeline configuration")
	emit := flag.String("emit", "source", "output form: source or ir")
	outPath := flag.String("o", "", "output file (default stdout)")
	verbose := flag.Int("v", 0, "log verbosity")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}
	if *emit != "source" && *emit != "ir" {
		fmt.Fprintf(os.Stderr, "unknown -emit form %q\n", *emit)
		os.Exit(1)
	}

	commonlog.Configure(*verbose, nil)
	startTime := time.Now()

	var cfg *passes.PassConfig
	if *configPath != "" {
		loaded, err := passes.LoadConfig(*configPath)
		if err != nil {
			reportError(err)
			os.Exit(1)
		}
		cfg = loaded
	}

	mods := make([]*ir.Module, 0, flag.NArg())
	for _, path := range flag.Args() {
		mod, err := irtext.ParseFile(path)
		if err != nil {
			reportError(err)
			os.Exit(1)
		}
		mods = append(mods, mod)
	}

	pipeline := passes.NewPipeline(cfg)
	for _, mod := range mods {
		if err := pipeline.Run(mod); err != nil {
			reportError(err)
			os.Exit(1)
		}
	}

	// Linking happens on the optimized modules, so the symbol table reflects
	// exactly the functions the emitters are about to see.
	var table *passes.SymbolTable
	if len(mods) > 1 {
		linked, err := passes.LinkModules(mods)
		if err != nil {
			reportError(err)
			os.Exit(1)
		}
		table = linked
	}

	var output strings.Builder
	for i, mod := range mods {
		if i > 0 {
			output.WriteString("\n")
		}
		if *emit == "ir" {
			output.WriteString(ir.Print(mod))
		} else {
			output.WriteString(lower.PrintModule(mod))
		}
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(output.String()), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Print(output.String())
	}

	if table != nil {
		color.Green("Recompiled %d module(s), %d linked symbol(s) in %s",
			len(mods), len(table.Symbols()), formatDuration(time.Since(startTime)))
	} else {
		color.Green("Recompiled %d module(s) in %s", len(mods), formatDuration(time.Since(startTime)))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: reforge [flags] <file.rir> [more.rir ...]")
	flag.PrintDefaults()
}

// reportError prints the richest rendering an error carries: parse errors
// come with a caret diagnostic, invariant errors with their code.
func reportError(err error) {
	var perr *irtext.ParseError
	if stderrors.As(err, &perr) {
		fmt.Fprint(os.Stderr, perr.Pretty())
		return
	}
	var ierr *errors.InvariantError
	if stderrors.As(err, &ierr) {
		color.Red("error[%s]: %s", ierr.Code, ierr.Message)
		return
	}
	color.Red("error: %v", err)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
