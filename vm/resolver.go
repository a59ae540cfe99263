package vm

// HostFunction is the signature every imported function must be bridged
// to. It receives the engine so a host can read/write linear memory, and
// operates entirely in i32, matching the engine's execution model. A
// non-nil error surfaces to the caller wrapped in a HostError trap instead
// of the returned int32.
type HostFunction func(e *Engine, args ...int32) (int32, error)

// Resolver bridges a module's (module, field) import pairs to concrete Go
// functions. NewVM calls GetFunction once per function import at
// instantiation time, but a nil return is not itself a link error: a
// module may declare an import it never calls, so resolution failure is
// only a trap (ErrImportNotResolved), raised lazily the first time
// execution actually dispatches to that import.
type Resolver interface {
	GetFunction(module, field string) HostFunction
}
