package passes

import (
	"sort"

	"reforge/internal/errors"
	"reforge/internal/ir"
)

// Cross-module linking. Exported symbols live in one flat namespace;
// imports are string references resolved against it. Linking runs over the
// whole module set at once, which is why it is not a registered
// single-module pass.

// SymbolTable is the link result: every exported symbol, resolved.
type SymbolTable struct {
	Functions map[string]*ir.Function
	Globals   map[string]*ir.Global
	Owner     map[string]*ir.Module
}

// LinkModules resolves every import in the module set against the set's
// exports. Returns the symbol table on success; a duplicate export or an
// unresolvable import fails the link.
func LinkModules(mods []*ir.Module) (*SymbolTable, error) {
	table := &SymbolTable{
		Functions: make(map[string]*ir.Function),
		Globals:   make(map[string]*ir.Global),
		Owner:     make(map[string]*ir.Module),
	}

	for _, mod := range mods {
		for _, fn := range mod.Functions {
			if fn.Visibility != ir.Public {
				continue
			}
			name := ir.QualifiedName(fn)
			if prev, taken := table.Owner[name]; taken {
				return nil, errors.NewInvariant(errors.ErrorDuplicateSymbol, name,
					"symbol exported by both %s and %s", prev.Name, mod.Name)
			}
			table.Functions[name] = fn
			table.Owner[name] = mod
		}
		for _, g := range mod.Globals {
			if g.Visibility != ir.Public {
				continue
			}
			if prev, taken := table.Owner[g.Name]; taken {
				return nil, errors.NewInvariant(errors.ErrorDuplicateSymbol, g.Name,
					"symbol exported by both %s and %s", prev.Name, mod.Name)
			}
			table.Globals[g.Name] = g
			table.Owner[g.Name] = mod
		}
	}

	byName := make(map[string]*ir.Module, len(mods))
	for _, mod := range mods {
		byName[mod.Name] = mod
	}

	for _, mod := range mods {
		for _, imp := range mod.Imports {
			exporter, ok := byName[imp.From]
			if !ok {
				return nil, errors.NewInvariant(errors.ErrorUnresolvedImport, imp.Name,
					"module %s imports from unknown module %s", mod.Name, imp.From)
			}
			owner, found := table.Owner[imp.Name]
			if !found || owner != exporter {
				return nil, errors.NewInvariant(errors.ErrorUnresolvedImport, imp.Name,
					"module %s does not export %s", imp.From, imp.Name)
			}
		}
	}
	return table, nil
}

// Symbols lists every exported name in deterministic order
func (t *SymbolTable) Symbols() []string {
	names := make([]string, 0, len(t.Owner))
	for name := range t.Owner {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
