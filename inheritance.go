package lysine

import (
	"fmt"
	"sort"
	"strings"
)

// buildChain walks the extends links from start to the root of its
// hierarchy and returns the ancestor names, closest parent first. Any
// template revisited along the way means the chain loops.
func (e *Engine) buildChain(start *Template) ([]string, error) {
	var chain []string
	seen := map[string]bool{start.Name: true}
	cur := start
	for cur.Parent != "" {
		parent, ok := e.templates[cur.Parent]
		if !ok {
			return nil, NewError(ErrMissingParent,
				fmt.Sprintf("template %q extends %q, which is not registered",
					cur.Name, cur.Parent)).WithTemplate(start.Name)
		}
		if seen[parent.Name] {
			cycle := append([]string{start.Name}, append(chain, parent.Name)...)
			return nil, NewError(ErrCircularExtend,
				fmt.Sprintf("inheritance chain %s loops back to %q",
					strings.Join(cycle, " -> "), parent.Name)).WithTemplate(start.Name)
		}
		seen[parent.Name] = true
		chain = append(chain, parent.Name)
		cur = parent
	}
	return chain, nil
}

// buildInheritanceChains recomputes every template's ancestor list and
// block-definition chains. The results are computed in full before any
// template is touched, so a failure leaves the previously resolved state
// intact.
func (e *Engine) buildInheritanceChains() error {
	type resolution struct {
		ancestors []string
		chains    map[string][]BlockDef
	}

	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	resolved := make(map[string]*resolution, len(names))
	for _, name := range names {
		tpl := e.templates[name]
		if tpl.Parent == "" && len(tpl.Blocks) == 0 {
			resolved[name] = &resolution{}
			continue
		}
		ancestors, err := e.buildChain(tpl)
		if err != nil {
			return err
		}
		chains := make(map[string][]BlockDef)
		for _, owner := range append([]string{name}, ancestors...) {
			for blockName, block := range e.templates[owner].Blocks {
				chains[blockName] = append(chains[blockName], BlockDef{
					Template: owner,
					Block:    block,
				})
			}
		}
		resolved[name] = &resolution{ancestors: ancestors, chains: chains}
	}

	for name, res := range resolved {
		tpl := e.templates[name]
		tpl.Ancestors = res.ancestors
		tpl.BlockChains = res.chains
	}
	return nil
}

// checkMacroFiles verifies that every `{% import %}` target is registered.
func (e *Engine) checkMacroFiles() error {
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, imp := range e.templates[name].ImportedMacroFiles {
			if _, ok := e.templates[imp.File]; !ok {
				return NewError(ErrMissingMacroFile,
					fmt.Sprintf("template %q imports macros from %q, which is not registered",
						name, imp.File)).WithTemplate(name)
			}
		}
	}
	return nil
}

// resolveLocked runs the construction-time checks after a template-set
// mutation. The macro-file check runs first so that a failing set never
// gets chains committed. Callers hold the write lock.
func (e *Engine) resolveLocked() error {
	if err := e.checkMacroFiles(); err != nil {
		return err
	}
	return e.buildInheritanceChains()
}

// installLocked adds templates and re-resolves, restoring the previous
// template set if resolution fails. Callers hold the write lock.
func (e *Engine) installLocked(tpls ...*Template) error {
	snapshot := make(map[string]*Template, len(e.templates))
	for k, v := range e.templates {
		snapshot[k] = v
	}
	for _, t := range tpls {
		e.templates[t.Name] = t
	}
	if err := e.resolveLocked(); err != nil {
		e.templates = snapshot
		return err
	}
	return nil
}

// removeLocked deletes a template and re-resolves; if the removal breaks
// another template's chain the set is restored. Callers hold the write lock.
func (e *Engine) removeLocked(name string) error {
	if _, ok := e.templates[name]; !ok {
		return nil
	}
	snapshot := make(map[string]*Template, len(e.templates))
	for k, v := range e.templates {
		snapshot[k] = v
	}
	delete(e.templates, name)
	if err := e.resolveLocked(); err != nil {
		e.templates = snapshot
		return err
	}
	return nil
}
