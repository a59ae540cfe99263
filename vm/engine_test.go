package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addTwoLocals exercises a plain (i32, i32) -> i32 export with no control
// flow: local.get both params and add.
func TestEngineAddTwoLocals(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType([]byte{valI32, valI32}, []byte{valI32})
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6A} // local.get 0; local.get 1; i32.add
	idx := b.addFunc(ft, nil, body)
	b.addExport("add", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	ret, err := e.Call("add", 1, 127)
	require.NoError(t, err)
	assert.EqualValues(t, 128, ret)
}

// constAdd exercises a zero-argument export whose whole body is immediates.
func TestEngineConstAdd(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType(nil, []byte{valI32})
	body := append([]byte{0x41}, sleb(10)...)
	body = append(body, 0x41)
	body = append(body, sleb(32)...)
	body = append(body, 0x6A) // i32.add
	idx := b.addFunc(ft, nil, body)
	b.addExport("main", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	ret, err := e.Call("main")
	require.NoError(t, err)
	assert.EqualValues(t, 42, ret)
}

// conditionalLog exercises an if/else that both branches funnel through the
// same host import, confirming the start function runs the import exactly
// once, with the argument selected by the condition.
func TestEngineConditionalLogViaImport(t *testing.T) {
	b := &moduleBuilder{}
	importType := b.addType([]byte{valI32}, nil)
	b.addImportFunc("console", "log", importType)
	startType := b.addType(nil, nil)

	body := append([]byte{0x41}, sleb(1)...) // i32.const 1  (the condition)
	body = append(body, 0x04, 0x40)          // if (empty block type)
	body = append(body, 0x41)
	body = append(body, sleb(1)...) // i32.const 1
	body = append(body, 0x10, 0x00) // call 0 (console.log)
	body = append(body, 0x05)       // else
	body = append(body, 0x41)
	body = append(body, sleb(0)...) // i32.const 0
	body = append(body, 0x10, 0x00) // call 0
	body = append(body, 0x0B)       // end if

	idx := b.addFunc(startType, nil, body)
	b.setStart(idx)

	rec := &recordingResolver{}
	e, err := NewVM(b.build(), rec, nil, 0)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, []int32{1}, rec.calls)
}

// countingLoop exercises loop/br_if and local.tee driving a counter from 0
// up to 10.
func TestEngineCountingLoop(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType(nil, []byte{valI32})

	locals := localsVec([2]uint32{1, valI32}) // one local: index 0

	var body []byte
	body = append(body, 0x03, 0x40) // loop (empty)
	body = append(body, 0x20, 0x00) // local.get 0
	body = append(body, 0x41)
	body = append(body, sleb(1)...)
	body = append(body, 0x6A)       // i32.add
	body = append(body, 0x22, 0x00) // local.tee 0
	body = append(body, 0x41)
	body = append(body, sleb(10)...)
	body = append(body, 0x48)       // i32.lt_s
	body = append(body, 0x0D, 0x00) // br_if 0
	body = append(body, 0x0B)       // end loop
	body = append(body, 0x20, 0x00) // local.get 0

	idx := b.addFunc(ft, locals, body)
	b.addExport("count", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	ret, err := e.Call("count")
	require.NoError(t, err)
	assert.EqualValues(t, 10, ret)
}

// dataSegmentRead exercises a data segment materialized into linear memory
// at instantiation time, read back with i32.load8_u.
func TestEngineDataSegmentRead(t *testing.T) {
	b := &moduleBuilder{}
	b.setMemory(1)
	b.addData(0, []byte{0x41, 0x42, 0x43})
	ft := b.addType(nil, []byte{valI32})

	body := append([]byte{0x41}, sleb(1)...) // i32.const 1 (address)
	body = append(body, 0x2D, 0x00, 0x00)    // i32.load8_u align=0 offset=0
	idx := b.addFunc(ft, nil, body)
	b.addExport("readByte1", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	ret, err := e.Call("readByte1")
	require.NoError(t, err)
	assert.EqualValues(t, 0x42, ret)
}

// TestEngineIfConditionIntMin confirms the if condition test is "nonzero",
// not "positive": INT32_MIN takes the then-branch.
func TestEngineIfConditionIntMin(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType(nil, []byte{valI32})

	body := append([]byte{0x41}, sleb(-2147483648)...) // i32.const INT32_MIN
	body = append(body, 0x04, 0x40)                    // if (empty)
	body = append(body, 0x41)
	body = append(body, sleb(7)...)
	body = append(body, 0x0F)       // return
	body = append(body, 0x0B)       // end if
	body = append(body, 0x41)
	body = append(body, sleb(3)...) // fallthrough result if not taken

	idx := b.addFunc(ft, nil, body)
	b.addExport("check", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	ret, err := e.Call("check")
	require.NoError(t, err)
	assert.EqualValues(t, 7, ret)
}

// TestEngineBrExitsBlock confirms br 0 inside a non-loop block jumps
// forward past the block's matching end, skipping the rest of its body.
func TestEngineBrExitsBlock(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType(nil, []byte{valI32})

	body := []byte{0x02, 0x40} // block (empty)
	body = append(body, 0x0C, 0x00) // br 0
	body = append(body, 0x00)       // unreachable, skipped by the branch
	body = append(body, 0x0B)       // end block
	body = append(body, 0x41)
	body = append(body, sleb(5)...)

	idx := b.addFunc(ft, nil, body)
	b.addExport("skip", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	ret, err := e.Call("skip")
	require.NoError(t, err)
	assert.EqualValues(t, 5, ret)
}

// TestEngineBrDepthTooDeepTraps confirms a br whose label exceeds the
// number of open blocks traps instead of scanning off the function body.
func TestEngineBrDepthTooDeepTraps(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType(nil, nil)

	body := []byte{0x02, 0x40} // block (empty)
	body = append(body, 0x0C, 0x05) // br 5, deeper than anything open
	body = append(body, 0x0B)       // end block

	idx := b.addFunc(ft, nil, body)
	b.addExport("breaker", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	_, err = e.Call("breaker")
	assert.Equal(t, ErrInvalidBreakDepth, err)
}

// TestEngineElseOutsideIfTraps confirms an else closing a plain block (no
// if opened it) traps rather than silently popping the wrong construct.
func TestEngineElseOutsideIfTraps(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType(nil, nil)

	body := []byte{0x02, 0x40} // block (empty)
	body = append(body, 0x05)  // else, with no if in sight
	body = append(body, 0x0B)  // end block

	idx := b.addFunc(ft, nil, body)
	b.addExport("stray", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	_, err = e.Call("stray")
	assert.Equal(t, ErrNoMatchingIfBlock, err)
}

// TestEngineOverlongImmediateTraps confirms a 6-byte ULEB128 local index
// immediate traps with the LEB overflow sentinel.
func TestEngineOverlongImmediateTraps(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType(nil, nil)

	body := []byte{0x20, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01} // local.get, overlong index

	idx := b.addFunc(ft, nil, body)
	b.addExport("overlong", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	_, err = e.Call("overlong")
	assert.Equal(t, ErrLebOverflow, err)
}

// trapOnUnreachable exercises the unreachable opcode's trap, confirming it
// surfaces through Call as ErrUnreachable rather than panicking the caller.
func TestEngineTrapOnUnreachable(t *testing.T) {
	b := &moduleBuilder{}
	ft := b.addType(nil, nil)
	idx := b.addFunc(ft, nil, []byte{0x00}) // unreachable
	b.addExport("boom", idx)

	e, err := NewVM(b.build(), nil, nil, 0)
	require.NoError(t, err)

	_, err = e.Call("boom")
	assert.Equal(t, ErrUnreachable, err)
}

// recordingResolver records every argument a console.log import was called
// with, letting a test assert on host-call side effects without a real
// console backing it.
type recordingResolver struct {
	calls []int32
}

func (r *recordingResolver) GetFunction(mod, field string) HostFunction {
	if mod == "console" && field == "log" {
		return func(e *Engine, args ...int32) (int32, error) {
			r.calls = append(r.calls, args[0])
			return 0, nil
		}
	}
	return nil
}

// nilResolver resolves nothing, standing in for a host that hasn't bound
// any imports yet.
type nilResolver struct{}

func (nilResolver) GetFunction(mod, field string) HostFunction { return nil }

// failingResolver backs a single import that always reports failure,
// exercising the HostError trap kind.
type failingResolver struct {
	err error
}

func (r failingResolver) GetFunction(mod, field string) HostFunction {
	if mod == "env" && field == "fail" {
		return func(e *Engine, args ...int32) (int32, error) {
			return 0, r.err
		}
	}
	return nil
}

// TestEngineUnusedImportInstantiates confirms a module that declares an
// import no resolver can satisfy still links successfully, as long as
// nothing ever calls it: MissingImport is a deferred trap, not a link error.
func TestEngineUnusedImportInstantiates(t *testing.T) {
	b := &moduleBuilder{}
	importType := b.addType(nil, nil)
	b.addImportFunc("env", "never_called", importType)
	ft := b.addType(nil, []byte{valI32})
	body := append([]byte{0x41}, sleb(5)...) // i32.const 5, never touches the import
	idx := b.addFunc(ft, nil, body)
	b.addExport("five", idx)

	e, err := NewVM(b.build(), nilResolver{}, nil, 0)
	require.NoError(t, err)

	ret, err := e.Call("five")
	require.NoError(t, err)
	assert.EqualValues(t, 5, ret)
}

// TestEngineMissingImportTrapsOnlyWhenCalled confirms that dispatching to an
// unresolved import traps with ErrImportNotResolved instead of failing at
// NewVM time.
func TestEngineMissingImportTrapsOnlyWhenCalled(t *testing.T) {
	b := &moduleBuilder{}
	importType := b.addType(nil, nil)
	b.addImportFunc("env", "never_called", importType)
	ft := b.addType(nil, nil)
	body := []byte{0x10, 0x00} // call 0 (the unresolved import)
	idx := b.addFunc(ft, nil, body)
	b.addExport("callIt", idx)

	e, err := NewVM(b.build(), nilResolver{}, nil, 0)
	require.NoError(t, err)

	_, err = e.Call("callIt")
	assert.Equal(t, ErrImportNotResolved, err)
}

// TestEngineHostErrorWrapsFailure confirms a host function's own returned
// error surfaces as a HostError trap, distinguishable from an internal
// ExecError by unwrapping.
func TestEngineHostErrorWrapsFailure(t *testing.T) {
	hostErr := errors.New("permission denied")

	b := &moduleBuilder{}
	importType := b.addType(nil, nil)
	b.addImportFunc("env", "fail", importType)
	ft := b.addType(nil, nil)
	body := []byte{0x10, 0x00} // call 0
	idx := b.addFunc(ft, nil, body)
	b.addExport("callIt", idx)

	e, err := NewVM(b.build(), failingResolver{err: hostErr}, nil, 0)
	require.NoError(t, err)

	_, err = e.Call("callIt")
	require.Error(t, err)
	var he *HostError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, hostErr, he.Unwrap())
}

// TestEngineDataSegmentOutOfBoundsIsLinkError confirms an oversized data
// segment is reported at instantiation time as ErrDataSegmentOutOfBounds,
// distinct from the runtime memory-access trap sentinel.
func TestEngineDataSegmentOutOfBoundsIsLinkError(t *testing.T) {
	b := &moduleBuilder{}
	b.setMemory(1)
	b.addData(65535, []byte{0x01, 0x02, 0x03}) // spills past one page

	_, err := NewVM(b.build(), nil, nil, 0)
	assert.Equal(t, ErrDataSegmentOutOfBounds, err)
}

// TestEngineRunStartIsSeparateStep confirms RunStart runs the module's start
// function and that a second call runs the start function again.
func TestEngineRunStartIsSeparateStep(t *testing.T) {
	b := &moduleBuilder{}
	importType := b.addType([]byte{valI32}, nil)
	b.addImportFunc("console", "log", importType)
	startType := b.addType(nil, nil)
	body := append([]byte{0x41}, sleb(9)...)
	body = append(body, 0x10, 0x00) // call 0 (console.log)
	idx := b.addFunc(startType, nil, body)
	b.setStart(idx)

	rec := &recordingResolver{}
	e, err := NewVM(b.build(), rec, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []int32{9}, rec.calls)

	require.NoError(t, e.RunStart())
	assert.Equal(t, []int32{9, 9}, rec.calls)
}
