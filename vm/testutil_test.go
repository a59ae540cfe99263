package vm

// GetTestVM builds one of this package's two byte-level module fixtures and
// instantiates it. It panics on decode/link failure rather than returning an
// error, since tests that exercise out-of-gas-during-instantiation rely on
// catching that panic themselves with their own recover.
func GetTestVM(kind string, gasPolicy GasPolicy, gasLimit uint64) *Engine {
	var code []byte
	var resolver Resolver

	switch kind {
	case "i32":
		b := &moduleBuilder{}
		b.setMemory(1)
		code = b.build()
	case "memory_grow":
		b := &moduleBuilder{}
		b.setMemory(2)
		importType := b.addType([]byte{valI32}, []byte{valI32})
		b.addImportFunc("env", "grow_pages", importType)
		fnType := b.addType(nil, nil)
		body := append([]byte{0x41}, sleb(1)...) // i32.const 1
		body = append(body, 0x10, 0x00)           // call 0 (grow_pages import)
		body = append(body, 0x1A)                 // drop
		idx := b.addFunc(fnType, nil, body)
		b.addExport("grow", idx)
		code = b.build()
		resolver = growResolver{}
	default:
		panic("vm: unknown test fixture " + kind)
	}

	e, err := NewVM(code, resolver, gasPolicy, gasLimit)
	if err != nil {
		panic(err)
	}
	return e
}

// growResolver backs the "memory_grow" fixture's single host import: it
// grows linear memory by the requested page count through the same
// ExtendMemory path a real host binding would use.
type growResolver struct{}

func (growResolver) GetFunction(mod, field string) HostFunction {
	if mod == "env" && field == "grow_pages" {
		return func(e *Engine, args ...int32) (int32, error) {
			e.ExtendMemory(int(args[0]))
			return int32(e.MemSize()), nil
		}
	}
	return nil
}
