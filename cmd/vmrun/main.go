// Command vmrun is the reference CLI driver for the vm interpreter: it
// loads a WASM binary, instantiates it against a small demo set of host
// imports, and invokes an exported function (or the module's start
// function if none is named), printing the result and mapping any trap or
// decode failure to a nonzero exit code.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"

	"github.com/vertexdlt/vm/util"
	"github.com/vertexdlt/vm/vm"
	"github.com/vertexdlt/vm/wasm"
	"golang.org/x/crypto/sha3"
)

func main() {
	entry := flag.String("entry", "", "exported function to invoke; runs the start function if empty")
	dump := flag.Bool("dump", false, "print the module's globals and exports instead of executing")
	debug := flag.Bool("debug", false, "enable per-instruction trace logging")
	gasLimit := flag.Uint64("gas", 0, "instruction budget; 0 means unlimited")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: vmrun [flags] <module.wasm> [i32 args...]")
		os.Exit(2)
	}

	code, err := ioutil.ReadFile(args[0])
	if err != nil {
		log.Fatalf("vmrun: reading %s: %v", args[0], err)
	}

	if *dump {
		if err := dumpModule(code); err != nil {
			fmt.Fprintln(os.Stderr, "vmrun:", err)
			os.Exit(1)
		}
		return
	}

	policy := vm.GasPolicy(&vm.FreeGasPolicy{})
	if *gasLimit > 0 {
		policy = &vm.SimpleGasPolicy{}
	}

	e, err := vm.NewVM(code, &demoResolver{}, policy, *gasLimit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vmrun: instantiate:", err)
		os.Exit(1)
	}
	if *debug {
		e.EnableDebug(os.Stderr)
	}

	callArgs, err := parseI32Args(args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "vmrun:", err)
		os.Exit(2)
	}

	if *entry == "" {
		// No entry named: the start function, if any, already ran as part
		// of instantiation. Nothing left to do.
		fmt.Println("ok")
		return
	}

	ret, err := e.Call(*entry, callArgs...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vmrun: trap:", err)
		os.Exit(1)
	}
	fmt.Println(ret)
}

func parseI32Args(raw []string) ([]int32, error) {
	out := make([]int32, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %q is not an i32: %w", s, err)
		}
		out[i] = int32(v)
	}
	return out, nil
}

func dumpModule(code []byte) error {
	m, err := wasm.Decode(bytes.NewReader(code))
	if err != nil {
		return err
	}
	fmt.Printf("types: %d, imports: %d, functions: %d, globals: %d, memories: %d\n",
		len(m.Types), len(m.Imports), m.TotalFuncCount(), len(m.Globals), len(m.Mems))
	for i, g := range m.Globals {
		fmt.Printf("  global[%d] %s mutable=%v init=%s\n", i, g.Type.ValueType, g.Type.Mutable, wasm.DescribeConstExpr(g.Init))
	}
	for name, exp := range m.Exports {
		fmt.Printf("  export %q -> kind=%d idx=%d\n", name, exp.Desc.Kind, exp.Desc.Idx)
	}
	return nil
}

// demoResolver supplies the handful of host imports the reference driver
// exercises: a sha3-backed function that hashes a span of module memory,
// and a console logger for modules that import console.log.
type demoResolver struct{}

func (demoResolver) GetFunction(module, field string) vm.HostFunction {
	switch module {
	case "env":
		switch field {
		case "hash_bytes":
			return hostHashBytes
		}
	case "console":
		switch field {
		case "log":
			return hostConsoleLog
		}
	}
	return nil
}

// hostHashBytes reads a (ptr, len) span of linear memory through a
// bounds-checked util.Window and returns the first 4 bytes of its SHA3-256
// digest as an i32. An out-of-range span is reported as an error, which the
// engine surfaces to the caller as a HostError trap.
func hostHashBytes(e *vm.Engine, args ...int32) (int32, error) {
	ptr := uint32(args[0])
	size := uint32(args[1])
	w := util.NewWindow(e.GetMemory())
	if _, err := w.Read(int(ptr)); err != nil {
		return 0, fmt.Errorf("hash_bytes: ptr out of range: %w", err)
	}
	span, err := w.Read(int(size))
	if err != nil {
		return 0, fmt.Errorf("hash_bytes: span out of range: %w", err)
	}
	digest := sha3.Sum256(span)
	return int32(digest[0]) | int32(digest[1])<<8 | int32(digest[2])<<16 | int32(digest[3])<<24, nil
}

func hostConsoleLog(e *vm.Engine, args ...int32) (int32, error) {
	fmt.Println("console.log", args[0])
	return 0, nil
}
