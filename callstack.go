package lysine

import (
	"github.com/ctcl-bregis/lysine/value"
)

// maxMacroDepth bounds nested macro calls so a self-recursive macro fails
// instead of exhausting memory.
const maxMacroDepth = 100

type frameKind int

const (
	frameRoot frameKind = iota
	frameForLoop
	frameMacro
	frameBlock
)

// stackFrame is one scope on the call stack. Every frame owns its local
// bindings; child frames shadow same-named outer bindings without touching
// them.
type stackFrame struct {
	kind frameKind
	vars map[string]value.Value

	// Block frames only: which block is executing and where in its
	// definition chain, so super() can render the next entry.
	block    string
	chainPos int
}

func newFrame(kind frameKind) *stackFrame {
	return &stackFrame{kind: kind, vars: make(map[string]value.Value)}
}

// callStack is the scoped variable store for one render call. It is created
// fresh per render, grows on entering a for-loop body, macro call or block,
// and shrinks on exit.
type callStack struct {
	ctx        *Context
	frames     []*stackFrame
	macroDepth int
}

func newCallStack(ctx *Context) *callStack {
	return &callStack{
		ctx:    ctx,
		frames: []*stackFrame{newFrame(frameRoot)},
	}
}

func (s *callStack) push(f *stackFrame) {
	if f.kind == frameMacro {
		s.macroDepth++
	}
	s.frames = append(s.frames, f)
}

func (s *callStack) pop() {
	f := s.frames[len(s.frames)-1]
	if f.kind == frameMacro {
		s.macroDepth--
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// lookup resolves a variable path, innermost frame first. Shadowing is by
// the root segment: the first frame that binds the root name resolves the
// remaining segments inside that binding, even when they miss. Macro frames
// isolate their body: the walk stops there rather than reaching the
// caller's locals or the context. Only past the root frame does lookup fall
// back to the context.
func (s *callStack) lookup(root string, rest []string) (value.Value, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if v, ok := f.vars[root]; ok {
			if len(rest) == 0 {
				return v, true
			}
			return v.ResolveSegments(rest)
		}
		if f.kind == frameMacro {
			return value.Undefined(), false
		}
	}
	if v, ok := s.ctx.Get(root); ok {
		if len(rest) == 0 {
			return v, true
		}
		return v.ResolveSegments(rest)
	}
	return value.Undefined(), false
}

// setLocal binds a name in the innermost frame.
func (s *callStack) setLocal(name string, v value.Value) {
	s.frames[len(s.frames)-1].vars[name] = v
}

// setGlobal binds a name in the root frame, visible for the rest of the
// render regardless of the current scope.
func (s *callStack) setGlobal(name string, v value.Value) {
	s.frames[0].vars[name] = v
}

// currentBlock reports the innermost executing block and its chain
// position. Macro frames stop the search: a macro body is not part of any
// block, even when the call site is.
func (s *callStack) currentBlock() (name string, chainPos int, ok bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		switch s.frames[i].kind {
		case frameBlock:
			return s.frames[i].block, s.frames[i].chainPos, true
		case frameMacro:
			return "", 0, false
		}
	}
	return "", 0, false
}
