package vm

import "github.com/vertexdlt/vm/opcode"

// Gas tracks budget consumption over the engine's lifetime: the initial
// memory allocation in NewVM and every later call draw on the same Used
// counter, which is never reset.
type Gas struct {
	Used  uint64
	Limit uint64
}

// GasPolicy prices each executed opcode and each memory growth, letting a
// host bound how much work an engine performs in total. It is an optional
// extension: Engine.Call runs unmetered when no GasPolicy is supplied.
type GasPolicy interface {
	GetCostForOp(op opcode.Opcode) uint64
	GetCostForGrowMemory(pages int) uint64
}

// FreeGasPolicy prices every operation at zero, effectively disabling the
// budget while still exercising the accounting path.
type FreeGasPolicy struct{}

// GetCostForOp returns 0 for every opcode.
func (p *FreeGasPolicy) GetCostForOp(op opcode.Opcode) uint64 {
	return 0
}

// GetCostForGrowMemory returns 0 regardless of page count.
func (p *FreeGasPolicy) GetCostForGrowMemory(pages int) uint64 {
	return 0
}

// SimpleGasPolicy charges a flat 1 gas per instruction and 1024 gas per
// page grown.
type SimpleGasPolicy struct{}

// GetCostForOp returns 1 for every opcode.
func (p *SimpleGasPolicy) GetCostForOp(op opcode.Opcode) uint64 {
	return 1
}

// GetCostForGrowMemory returns 1024 per page.
func (p *SimpleGasPolicy) GetCostForGrowMemory(pages int) uint64 {
	return uint64(pages) * 1024
}
