package vm

import (
	"bytes"
	"io"
	"log"

	"github.com/vertexdlt/vm/leb128"
	"github.com/vertexdlt/vm/opcode"
	"github.com/vertexdlt/vm/wasm"
)

// MaxFrames is the maximum call depth the engine allows before trapping
// with a stack overflow, guarding against runaway recursion blowing the
// host Go stack instead of failing cleanly.
const MaxFrames = 1024

// MaxBlocks is the maximum nesting depth of block/loop/if a single Frame
// may have open at once.
const MaxBlocks = 1024

// maxOperandStack bounds the engine's operand stack (shared by every frame
// in the call chain), catching a
// malformed or adversarial module that pushes without bound instead of
// letting it exhaust memory.
const maxOperandStack = 1 << 16

// Engine is an instantiated WASM module: its linear memory, globals, and
// the resolved host functions its imports are bound to. Debug, when set
// via EnableDebug, receives a trace line per dispatched instruction; it is
// nil by default so runs without tracing never pay for formatting.
type Engine struct {
	module    *wasm.Module
	memory    []byte
	globals   []int32
	stack     []int32
	hostFuncs []HostFunction
	gasPolicy GasPolicy
	gas       Gas
	frames    []*Frame
	Debug     *log.Logger
}

// NewVM decodes code and instantiates it: resolving every function import
// against resolver, evaluating global initializers, allocating and
// populating linear memory, and running the start function if the module
// declares one. gasLimit caps the total instruction/memory-growth cost
// gasPolicy may charge across the engine's lifetime; 0 means unlimited. The
// returned error is a decode or link failure, or a trap raised by the start
// function. A gasLimit too small for the declared initial memory is not
// returned: ExtendMemory panics with ErrOutOfGas out of NewVM. Once
// constructed, every further fault the module can raise surfaces through
// Call instead.
func NewVM(code []byte, resolver Resolver, gasPolicy GasPolicy, gasLimit uint64) (*Engine, error) {
	m, err := wasm.Decode(bytes.NewReader(code))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		module:    m,
		globals:   make([]int32, len(m.Globals)),
		hostFuncs: make([]HostFunction, 0, m.ImportFuncCount()),
		gasPolicy: gasPolicy,
		gas:       Gas{Limit: gasLimit},
	}

	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.ExternalFunction {
			return nil, ErrUnsupportedImportKind
		}
		var fn HostFunction
		if resolver != nil {
			fn = resolver.GetFunction(imp.ModuleName, imp.FieldName)
		}
		// A nil fn here is not a link error: the module may never actually
		// call this import. Resolution is only required, as ErrImportNotResolved,
		// the first time callIndex actually dispatches to it.
		e.hostFuncs = append(e.hostFuncs, fn)
	}

	for i, g := range m.Globals {
		if g.Type.ValueType != wasm.ValueTypeI32 {
			return nil, ErrUnsupportedGlobalType
		}
		v, err := e.evalConstExpr(g.Init)
		if err != nil {
			return nil, err
		}
		e.globals[i] = v
	}

	if len(m.Mems) > 1 {
		return nil, ErrMultipleMemories
	}
	if len(m.Mems) == 1 {
		e.ExtendMemory(int(m.Mems[0].Limits.Min))
	}
	for _, d := range m.Data {
		if int(d.Offset)+len(d.Init) > len(e.memory) {
			return nil, ErrDataSegmentOutOfBounds
		}
		copy(e.memory[d.Offset:], d.Init)
	}

	if m.HasStart {
		if err := e.RunStart(); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// RunStart executes the module's start function, if it declared one. NewVM
// calls this once as the last step of instantiation; a host may call it
// again to re-run the start function, and each call executes it anew. A
// module with no start section returns nil immediately.
func (e *Engine) RunStart() error {
	if !e.module.HasStart {
		return nil
	}
	_, err := e.invoke(int(e.module.Start), nil)
	return err
}

// evalConstExpr evaluates a constant initializer expression captured
// verbatim by the decoder. Only i32.const and global.get are supported,
// matching the i32-only execution model. global.get reads the current value
// of any module global; one later in declaration order is not yet
// initialized and reads as 0.
func (e *Engine) evalConstExpr(init []byte) (int32, error) {
	if len(init) == 0 {
		return 0, ErrUnsupportedGlobalType
	}
	switch opcode.Opcode(init[0]) {
	case opcode.I32Const:
		v, _, err := leb128.Decode(init, 1, 32, true)
		if err != nil {
			return 0, err
		}
		return int32(v), nil
	case opcode.GlobalGet:
		idx, _, err := leb128.Decode(init, 1, 32, false)
		if err != nil {
			return 0, err
		}
		if int(idx) >= len(e.globals) {
			return 0, ErrUnsupportedGlobalType
		}
		return e.globals[idx], nil
	default:
		return 0, ErrUnsupportedGlobalType
	}
}

// EnableDebug redirects the engine's trace logger to w, so a caller such as
// the vmrun CLI can opt into per-instruction tracing without the engine
// paying for formatting when no one asked for it.
func (e *Engine) EnableDebug(w io.Writer) {
	e.Debug = log.New(w, "vm: ", 0)
}

// GetFunctionIndex looks up an exported function's call index by name.
func (e *Engine) GetFunctionIndex(name string) (int, bool) {
	return e.module.ExportedFunc(name)
}

// Call invokes the exported function name with args, recovering any trap
// or gas exhaustion the execution raises and returning it as an error.
func (e *Engine) Call(name string, args ...int32) (int32, error) {
	idx, ok := e.module.ExportedFunc(name)
	if !ok {
		return 0, ErrFuncNotFound
	}
	ft, err := e.module.TypeOfFunction(idx)
	if err != nil {
		return 0, err
	}
	if len(args) != len(ft.Params) {
		return 0, ErrWrongNumberOfArgs
	}
	return e.invoke(idx, args)
}

// Invoke calls the function at call index idx directly, bypassing name
// export lookup. It exists for callers (tests, introspection tools) that
// already hold a resolved index from GetFunctionIndex.
func (e *Engine) Invoke(idx int, args ...int32) (int32, error) {
	return e.invoke(idx, args)
}

// invoke recovers any panic raised during execution (a trapped ExecError
// or gas exhaustion) and converts it into a plain error return.
func (e *Engine) invoke(idx int, args []int32) (ret int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				// The trap abandoned whatever the unwound frames had on
				// the operand stack; clear it so a later call starts clean.
				e.stack = e.stack[:0]
				err = rerr
				return
			}
			panic(r)
		}
	}()
	return e.callIndex(idx, args), nil
}

// callIndex dispatches a call index to either a host function or a local
// function activation. Nested WASM calls recurse through Go's own call
// stack via run, rather than threading a manually managed frame array the
// way a flat dispatch loop would; Engine.frames is kept in sync with the
// live call chain, and its length is what MaxFrames bounds.
func (e *Engine) callIndex(idx int, args []int32) int32 {
	ref, ok := e.module.FuncRef(idx)
	if !ok {
		panic(NewExecError("call to invalid function index"))
	}

	if ref.Kind == wasm.FuncRefHost {
		fn := e.hostFuncs[ref.Index]
		if fn == nil {
			panic(ErrImportNotResolved)
		}
		result, err := fn(e, args...)
		if err != nil {
			panic(NewHostError(err))
		}
		return result
	}

	fn, err := e.module.Function(ref.Index)
	if err != nil {
		panic(NewExecError(err.Error()))
	}

	if len(e.frames) >= MaxFrames {
		panic(ErrFrameOverflow)
	}

	numLocals := len(fn.Type.Params)
	for _, l := range fn.Code.Locals {
		numLocals += int(l.Count)
	}
	locals := make([]int32, numLocals)
	copy(locals, args)

	resultCount := len(fn.Type.Results)
	frame := newFrame(idx, fn.Code.Body, locals, resultCount)
	e.frames = append(e.frames, frame)
	defer func() { e.frames = e.frames[:len(e.frames)-1] }()

	// Anything the body leaves on the operand stack beyond its declared
	// result is discarded on exit, so a sloppy callee cannot disturb its
	// caller's stack discipline.
	base := len(e.stack)
	ret := e.run(frame)
	e.stack = e.stack[:base]
	return ret
}
