package opt

import (
	"fmt"

	"github.com/TomLeeLive/google-filament/ir"
)

// Remap strips functions unreachable from the entry point and every type,
// constant and module-scope variable nothing references, then renumbers all
// IDs into a dense range. It always runs after a preset completes.
func Remap(words []uint32) ([]uint32, error) {
	m, err := ir.Decode(words)
	if err != nil {
		return words, fmt.Errorf("opt: %w", err)
	}
	if _, err := eliminateDeadFunctions(m); err != nil {
		return words, err
	}
	stripUnreferenced(m)
	compactIDs(m)
	return m.Words(), nil
}

// stripUnreferenced removes module-level definitions with no remaining
// non-debug uses, iterating because removals release their own operands.
func stripUnreferenced(m *ir.Module) {
	for {
		in := analyze(m)
		changed := false
		dead := make(map[uint32]bool)
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			remove := false
			switch {
			case inst.Opcode.IsType() || inst.Opcode.IsConstant():
				remove = in.uses[inst.ResultID()] == 0
			case inst.Opcode == ir.OpVariable:
				class := ir.StorageClass(inst.Operands[2])
				if class != ir.ClassFunction {
					remove = in.uses[inst.ResultID()] == 0
				}
			case inst.Opcode == ir.OpExtInstImport:
				remove = in.uses[inst.ResultID()] == 0
			}
			if remove {
				dead[inst.ResultID()] = true
				nop(m, i)
				changed = true
			}
		}
		if !changed {
			return
		}
		dropDebug(m, dead)
		sweepNops(m)
	}
}

// compactIDs renumbers every ID in definition order starting at 1.
func compactIDs(m *ir.Module) {
	next := uint32(1)
	remap := make(map[uint32]uint32)
	for i := range m.Instructions {
		if id := m.Instructions[i].ResultID(); id != 0 {
			if _, seen := remap[id]; !seen {
				remap[id] = next
				next++
			}
		}
	}
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		ir.ForEachID(inst, func(idx int) {
			if nv, ok := remap[inst.Operands[idx]]; ok {
				inst.Operands[idx] = nv
			}
		})
	}
	m.Bound = next
}
