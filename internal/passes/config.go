package passes

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"reforge/internal/errors"
	"reforge/internal/ir"
)

// Presets name the two built-in pipelines: literal keeps the program
// shape as close to the input as possible, optimized runs the full
// cleanup catalog.
const (
	PresetLiteral   = "literal"
	PresetOptimized = "optimized"
)

// PassConfig is the YAML pipeline configuration.
//
//	preset: optimized
//	skip:
//	  - mem2reg
//	debug:
//	  dump_ir_after:
//	    - constant-folding
//	  functions:
//	    - game::Player.update
type PassConfig struct {
	Preset string      `yaml:"preset"`
	Skip   []string    `yaml:"skip"`
	Debug  DebugConfig `yaml:"debug"`
}

// DebugConfig selects which pass boundaries dump IR, and for which
// functions.
type DebugConfig struct {
	DumpIRAfter []string `yaml:"dump_ir_after"`
	Functions   []string `yaml:"functions"`
	Out         *os.File `yaml:"-"`
}

// LoadConfig reads and validates a YAML pipeline config. Every named pass
// must exist in the registry.
func LoadConfig(path string) (*PassConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInvariant(errors.ErrorBadConfig, "", "cannot read config %s: %v", path, err)
	}
	var cfg PassConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewInvariant(errors.ErrorBadConfig, "", "malformed config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks preset and pass names against the registry
func (c *PassConfig) Validate() error {
	switch c.Preset {
	case "", PresetLiteral, PresetOptimized:
	default:
		return errors.NewInvariant(errors.ErrorBadConfig, "", "unknown preset %q", c.Preset)
	}
	for _, name := range c.Skip {
		if _, err := Lookup(name); err != nil {
			return err
		}
	}
	for _, name := range c.Debug.DumpIRAfter {
		if _, err := Lookup(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *PassConfig) skipped(name string) bool {
	for _, s := range c.Skip {
		if s == name {
			return true
		}
	}
	return false
}

// ShouldDump reports whether IR should be dumped after the named pass for
// the given function. Function matching is forgiving: "*" (or an empty
// list) takes everything, otherwise a pattern matches the bare name or any
// case-insensitive substring of the qualified name, so "player.update",
// "Player", and "game::" all select game::Player.update.
func (dc DebugConfig) ShouldDump(pass string, fn *ir.Function) bool {
	enabled := false
	for _, p := range dc.DumpIRAfter {
		if p == pass {
			enabled = true
			break
		}
	}
	if !enabled {
		return false
	}
	if len(dc.Functions) == 0 {
		return true
	}
	qualified := strings.ToLower(ir.QualifiedName(fn))
	for _, pat := range dc.Functions {
		if pat == "*" || pat == fn.Name || strings.Contains(qualified, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

func (dc DebugConfig) dumpAfter(pass string, mod *ir.Module) {
	out := dc.Out
	if out == nil {
		out = os.Stderr
	}
	for _, fn := range mod.Functions {
		if !dc.ShouldDump(pass, fn) {
			continue
		}
		fmt.Fprintf(out, "; after %s\n%s\n", pass, strings.TrimRight(ir.PrintFunction(fn), "\n"))
	}
}

// NewPipeline builds the pipeline a config describes. A nil config means
// the optimized preset with nothing skipped.
func NewPipeline(cfg *PassConfig) *Pipeline {
	if cfg == nil {
		cfg = &PassConfig{Preset: PresetOptimized}
	}

	keep := func(names ...string) []Transform {
		var ts []Transform
		for _, name := range names {
			if cfg.skipped(name) {
				continue
			}
			t, err := Lookup(name)
			if err != nil {
				// Validate already rejected unknown names
				panic(err)
			}
			ts = append(ts, t)
		}
		return ts
	}

	p := &Pipeline{}
	p.SetDebug(cfg.Debug)

	if cfg.Preset == PresetLiteral {
		p.Add(keep("type-inference")...)
		p.Add(keep("coroutine-lowering")...)
		p.AddFixpoint(keep("cfg-simplify", "dead-code-elimination")...)
		return p
	}

	p.Add(keep("type-inference", "call-site-type-flow", "constraint-solve")...)
	p.AddFixpoint(keep(
		"constant-folding",
		"cfg-simplify",
		"mem2reg",
		"redundant-cast-elimination",
		"dead-code-elimination",
	)...)
	// widening runs once, after every narrowing pass had its say
	p.Add(keep("call-site-type-widen")...)
	p.Add(keep("coroutine-lowering")...)
	// lowering introduces fresh control flow worth one more cleanup round
	p.AddFixpoint(keep("constant-folding", "cfg-simplify", "dead-code-elimination")...)
	return p
}
