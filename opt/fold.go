package opt

import (
	"fmt"
	"math"

	"github.com/TomLeeLive/google-filament/ir"
)

// ccp folds scalar instructions whose operands are all constants, replacing
// their uses with fresh constants until nothing folds.
func ccp(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		folded := false
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			id := inst.ResultID()
			if id == 0 {
				continue
			}
			repl, ok := foldConstant(in, inst)
			if !ok {
				continue
			}
			replaceUses(m, id, repl)
			// The instruction index may have shifted when the constant was
			// inserted ahead of the function section.
			for j := range m.Instructions {
				if m.Instructions[j].ResultID() == id {
					nop(m, j)
					break
				}
			}
			folded = true
			break
		}
		if !folded {
			return changed, nil
		}
		sweepNops(m)
		changed = true
	}
}

// foldConstant evaluates one scalar instruction over constant operands and
// materializes the result as a module-level constant.
func foldConstant(in *info, inst *ir.Instruction) (uint32, bool) {
	m := in.m
	rt := inst.ResultType()
	intBin := func(f func(a, b uint32) (uint32, bool)) (uint32, bool) {
		a, okA := in.constIntValue(inst.Operands[2])
		b, okB := in.constIntValue(inst.Operands[3])
		if !okA || !okB {
			return 0, false
		}
		v, ok := f(a, b)
		if !ok {
			return 0, false
		}
		return addConstant(m, rt, v), true
	}
	floatBin := func(f func(a, b float32) float32) (uint32, bool) {
		a, okA := in.constIntValue(inst.Operands[2])
		b, okB := in.constIntValue(inst.Operands[3])
		if !okA || !okB {
			return 0, false
		}
		v := f(math.Float32frombits(a), math.Float32frombits(b))
		return addConstant(m, rt, math.Float32bits(v)), true
	}
	cmpInt := func(f func(a, b uint32) bool) (uint32, bool) {
		a, okA := in.constIntValue(inst.Operands[2])
		b, okB := in.constIntValue(inst.Operands[3])
		if !okA || !okB {
			return 0, false
		}
		return addBoolConstant(m, rt, f(a, b)), true
	}
	cmpFloat := func(f func(a, b float32) bool) (uint32, bool) {
		a, okA := in.constIntValue(inst.Operands[2])
		b, okB := in.constIntValue(inst.Operands[3])
		if !okA || !okB {
			return 0, false
		}
		return addBoolConstant(m, rt, f(math.Float32frombits(a), math.Float32frombits(b))), true
	}

	switch inst.Opcode {
	case ir.OpIAdd:
		return intBin(func(a, b uint32) (uint32, bool) { return a + b, true })
	case ir.OpISub:
		return intBin(func(a, b uint32) (uint32, bool) { return a - b, true })
	case ir.OpIMul:
		return intBin(func(a, b uint32) (uint32, bool) { return a * b, true })
	case ir.OpSDiv:
		return intBin(func(a, b uint32) (uint32, bool) {
			if b == 0 {
				return 0, false
			}
			return uint32(int32(a) / int32(b)), true
		})
	case ir.OpUDiv:
		return intBin(func(a, b uint32) (uint32, bool) {
			if b == 0 {
				return 0, false
			}
			return a / b, true
		})
	case ir.OpSMod:
		return intBin(func(a, b uint32) (uint32, bool) {
			if b == 0 {
				return 0, false
			}
			return uint32(int32(a) % int32(b)), true
		})
	case ir.OpUMod:
		return intBin(func(a, b uint32) (uint32, bool) {
			if b == 0 {
				return 0, false
			}
			return a % b, true
		})
	case ir.OpSNegate:
		v, ok := in.constIntValue(inst.Operands[2])
		if !ok {
			return 0, false
		}
		return addConstant(m, rt, uint32(-int32(v))), true
	case ir.OpFNegate:
		v, ok := in.constIntValue(inst.Operands[2])
		if !ok {
			return 0, false
		}
		return addConstant(m, rt, math.Float32bits(-math.Float32frombits(v))), true
	case ir.OpFAdd:
		return floatBin(func(a, b float32) float32 { return a + b })
	case ir.OpFSub:
		return floatBin(func(a, b float32) float32 { return a - b })
	case ir.OpFMul:
		return floatBin(func(a, b float32) float32 { return a * b })
	case ir.OpFDiv:
		a, okA := in.constIntValue(inst.Operands[2])
		b, okB := in.constIntValue(inst.Operands[3])
		if !okA || !okB || math.Float32frombits(b) == 0 {
			return 0, false
		}
		v := math.Float32frombits(a) / math.Float32frombits(b)
		return addConstant(m, rt, math.Float32bits(v)), true
	case ir.OpIEqual:
		return cmpInt(func(a, b uint32) bool { return a == b })
	case ir.OpINotEqual:
		return cmpInt(func(a, b uint32) bool { return a != b })
	case ir.OpSLessThan:
		return cmpInt(func(a, b uint32) bool { return int32(a) < int32(b) })
	case ir.OpSLessThanEqual:
		return cmpInt(func(a, b uint32) bool { return int32(a) <= int32(b) })
	case ir.OpSGreaterThan:
		return cmpInt(func(a, b uint32) bool { return int32(a) > int32(b) })
	case ir.OpSGreaterThanEqual:
		return cmpInt(func(a, b uint32) bool { return int32(a) >= int32(b) })
	case ir.OpULessThan:
		return cmpInt(func(a, b uint32) bool { return a < b })
	case ir.OpULessThanEqual:
		return cmpInt(func(a, b uint32) bool { return a <= b })
	case ir.OpUGreaterThan:
		return cmpInt(func(a, b uint32) bool { return a > b })
	case ir.OpUGreaterThanEqual:
		return cmpInt(func(a, b uint32) bool { return a >= b })
	case ir.OpFOrdEqual:
		return cmpFloat(func(a, b float32) bool { return a == b })
	case ir.OpFOrdNotEqual:
		return cmpFloat(func(a, b float32) bool { return a != b })
	case ir.OpFOrdLessThan:
		return cmpFloat(func(a, b float32) bool { return a < b })
	case ir.OpFOrdLessThanEqual:
		return cmpFloat(func(a, b float32) bool { return a <= b })
	case ir.OpFOrdGreaterThan:
		return cmpFloat(func(a, b float32) bool { return a > b })
	case ir.OpFOrdGreaterThanEqual:
		return cmpFloat(func(a, b float32) bool { return a >= b })
	case ir.OpLogicalNot:
		v, ok := in.constBoolValue(inst.Operands[2])
		if !ok {
			return 0, false
		}
		return addBoolConstant(m, rt, !v), true
	case ir.OpLogicalAnd, ir.OpLogicalOr:
		a, okA := in.constBoolValue(inst.Operands[2])
		b, okB := in.constBoolValue(inst.Operands[3])
		if !okA || !okB {
			return 0, false
		}
		v := a && b
		if inst.Opcode == ir.OpLogicalOr {
			v = a || b
		}
		return addBoolConstant(m, rt, v), true
	case ir.OpConvertSToF:
		v, ok := in.constIntValue(inst.Operands[2])
		if !ok {
			return 0, false
		}
		return addConstant(m, rt, math.Float32bits(float32(int32(v)))), true
	case ir.OpConvertUToF:
		v, ok := in.constIntValue(inst.Operands[2])
		if !ok {
			return 0, false
		}
		return addConstant(m, rt, math.Float32bits(float32(v))), true
	case ir.OpConvertFToS:
		v, ok := in.constIntValue(inst.Operands[2])
		if !ok {
			return 0, false
		}
		return addConstant(m, rt, uint32(int32(math.Float32frombits(v)))), true
	case ir.OpConvertFToU:
		v, ok := in.constIntValue(inst.Operands[2])
		if !ok {
			return 0, false
		}
		return addConstant(m, rt, uint32(math.Float32frombits(v))), true
	case ir.OpBitcast:
		v, ok := in.constIntValue(inst.Operands[2])
		if !ok {
			return 0, false
		}
		return addConstant(m, rt, v), true
	}
	return 0, false
}

// simplify rewrites algebraic identities (x*1, x+0, and(x,true), double
// negation, select on a constant) and folds what remains constant.
func simplify(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		round := false
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			id := inst.ResultID()
			if id == 0 {
				continue
			}
			if repl, ok := simplifyInst(in, inst); ok {
				replaceUses(m, id, repl)
				nop(m, i)
				round = true
				break
			}
		}
		if !round {
			folded, err := ccp(m)
			if err != nil {
				return changed, err
			}
			return changed || folded, nil
		}
		sweepNops(m)
		changed = true
	}
}

func simplifyInst(in *info, inst *ir.Instruction) (uint32, bool) {
	isIntConst := func(id uint32, want uint32) bool {
		v, ok := in.constIntValue(id)
		return ok && v == want
	}
	isFloatConst := func(id uint32, want float32) bool {
		v, ok := in.constIntValue(id)
		return ok && math.Float32frombits(v) == want
	}
	boolConst := func(id uint32) (bool, bool) { return in.constBoolValue(id) }

	switch inst.Opcode {
	case ir.OpIMul:
		a, b := inst.Operands[2], inst.Operands[3]
		switch {
		case isIntConst(b, 1):
			return a, true
		case isIntConst(a, 1):
			return b, true
		case isIntConst(b, 0):
			return b, true
		case isIntConst(a, 0):
			return a, true
		}
	case ir.OpFMul:
		a, b := inst.Operands[2], inst.Operands[3]
		switch {
		case isFloatConst(b, 1):
			return a, true
		case isFloatConst(a, 1):
			return b, true
		case isFloatConst(b, 0):
			return b, true
		case isFloatConst(a, 0):
			return a, true
		}
	case ir.OpIAdd:
		a, b := inst.Operands[2], inst.Operands[3]
		switch {
		case isIntConst(b, 0):
			return a, true
		case isIntConst(a, 0):
			return b, true
		}
	case ir.OpFAdd:
		a, b := inst.Operands[2], inst.Operands[3]
		switch {
		case isFloatConst(b, 0):
			return a, true
		case isFloatConst(a, 0):
			return b, true
		}
	case ir.OpISub:
		if isIntConst(inst.Operands[3], 0) {
			return inst.Operands[2], true
		}
	case ir.OpFSub:
		if isFloatConst(inst.Operands[3], 0) {
			return inst.Operands[2], true
		}
	case ir.OpSDiv, ir.OpUDiv:
		if isIntConst(inst.Operands[3], 1) {
			return inst.Operands[2], true
		}
	case ir.OpFDiv:
		if isFloatConst(inst.Operands[3], 1) {
			return inst.Operands[2], true
		}
	case ir.OpVectorTimesScalar:
		if isFloatConst(inst.Operands[3], 1) {
			return inst.Operands[2], true
		}
	case ir.OpLogicalAnd:
		a, b := inst.Operands[2], inst.Operands[3]
		if v, ok := boolConst(b); ok {
			if v {
				return a, true
			}
			return b, true
		}
		if v, ok := boolConst(a); ok {
			if v {
				return b, true
			}
			return a, true
		}
	case ir.OpLogicalOr:
		a, b := inst.Operands[2], inst.Operands[3]
		if v, ok := boolConst(b); ok {
			if v {
				return b, true
			}
			return a, true
		}
		if v, ok := boolConst(a); ok {
			if v {
				return a, true
			}
			return b, true
		}
	case ir.OpLogicalNot:
		if idx, ok := in.def[inst.Operands[2]]; ok {
			inner := &in.m.Instructions[idx]
			if inner.Opcode == ir.OpLogicalNot {
				return inner.Operands[2], true
			}
		}
	case ir.OpSelect:
		if v, ok := boolConst(inst.Operands[2]); ok {
			if v {
				return inst.Operands[3], true
			}
			return inst.Operands[4], true
		}
	case ir.OpCopyObject:
		return inst.Operands[2], true
	}
	return 0, false
}

// redundancyElim deduplicates identical pure computations within a block.
func redundancyElim(m *ir.Module) (bool, error) {
	in := analyze(m)
	changed := false
	for f := range in.fns {
		for b := range in.fns[f].blocks {
			blk := &in.fns[f].blocks[b]
			seen := make(map[string]uint32)
			for i := blk.begin + 1; i < blk.end; i++ {
				inst := &m.Instructions[i]
				id := inst.ResultID()
				if id == 0 || !isPureValue(inst.Opcode) || inst.Opcode == ir.OpLoad {
					continue
				}
				key := cseKey(inst, id)
				if prev, ok := seen[key]; ok {
					replaceUses(m, id, prev)
					nop(m, i)
					changed = true
					continue
				}
				seen[key] = id
			}
		}
	}
	if changed {
		sweepNops(m)
	}
	return changed, nil
}

func cseKey(inst *ir.Instruction, resultID uint32) string {
	key := fmt.Sprintf("%d:", inst.Opcode)
	for _, op := range inst.Operands {
		if op == resultID {
			continue
		}
		key += fmt.Sprintf("%d,", op)
	}
	return key
}

// ifConversion turns a diamond whose arms each store one pre-computed value
// to the same pointer into a select and a single store.
func ifConversion(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		round := false
		for f := range in.fns {
			fn := &in.fns[f]
			for b := range fn.blocks {
				h := &fn.blocks[b]
				term := &m.Instructions[h.end]
				if term.Opcode != ir.OpBranchConditional || h.end == h.begin ||
					m.Instructions[h.end-1].Opcode != ir.OpSelectionMerge {
					continue
				}
				mergeLabel := m.Instructions[h.end-1].Operands[0]
				cond := term.Operands[0]
				t := in.block(term.Operands[1])
				e := in.block(term.Operands[2])
				if t == nil || e == nil {
					continue
				}
				ptr, x, ok1 := singleStoreArm(m, t, mergeLabel)
				ptr2, y, ok2 := singleStoreArm(m, e, mergeLabel)
				if !ok1 || !ok2 || ptr != ptr2 {
					continue
				}
				// Both values must dominate the header.
				if !definedBefore(in, x, t.begin) || !definedBefore(in, y, e.begin) {
					continue
				}
				xType := valueType(in, x)
				if xType == 0 {
					continue
				}
				sel := newID(m)
				insertAt(m, h.end-1,
					ir.Instruction{
						Opcode:   ir.OpSelect,
						Operands: []uint32{xType, sel, cond, x, y},
					},
					ir.Instruction{
						Opcode:   ir.OpStore,
						Operands: []uint32{ptr, sel},
					},
				)
				// The merge and conditional moved down by two.
				nop(m, h.end+1)
				m.Instructions[h.end+2] = ir.Instruction{
					Opcode:   ir.OpBranch,
					Operands: []uint32{mergeLabel},
				}
				for i := t.begin + 2; i <= t.end+2; i++ {
					nop(m, i)
				}
				for i := e.begin + 2; i <= e.end+2; i++ {
					nop(m, i)
				}
				round = true
				break
			}
			if round {
				break
			}
		}
		if !round {
			return changed, nil
		}
		sweepNops(m)
		changed = true
	}
}

// singleStoreArm matches a block of the form {label; store ptr, v; branch
// merge} and returns the pointer and value.
func singleStoreArm(m *ir.Module, blk *blockInfo, mergeLabel uint32) (ptr, val uint32, ok bool) {
	if blk.end != blk.begin+2 {
		return 0, 0, false
	}
	store := &m.Instructions[blk.begin+1]
	branch := &m.Instructions[blk.end]
	if store.Opcode != ir.OpStore || branch.Opcode != ir.OpBranch ||
		branch.Operands[0] != mergeLabel {
		return 0, 0, false
	}
	return store.Operands[0], store.Operands[1], true
}

func definedBefore(in *info, id uint32, idx int) bool {
	d, ok := in.def[id]
	return ok && d < idx
}

func valueType(in *info, id uint32) uint32 {
	idx, ok := in.def[id]
	if !ok {
		return 0
	}
	return in.m.Instructions[idx].ResultType()
}

// combineAccessChains folds a chain whose base is itself a chain into one
// instruction.
func combineAccessChains(m *ir.Module) (bool, error) {
	in := analyze(m)
	changed := false
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode != ir.OpAccessChain {
			continue
		}
		baseIdx, ok := in.def[inst.Operands[2]]
		if !ok {
			continue
		}
		base := &m.Instructions[baseIdx]
		if base.Opcode != ir.OpAccessChain {
			continue
		}
		merged := []uint32{inst.Operands[0], inst.Operands[1], base.Operands[2]}
		merged = append(merged, base.Operands[3:]...)
		merged = append(merged, inst.Operands[3:]...)
		inst.Operands = merged
		changed = true
	}
	return changed, nil
}

// copyPropagateArrays forwards OpCopyObject results to their sources so the
// copies fall to dead-code elimination.
func copyPropagateArrays(m *ir.Module) (bool, error) {
	changed := false
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode != ir.OpCopyObject {
			continue
		}
		replaceUses(m, inst.ResultID(), inst.Operands[2])
		nop(m, i)
		changed = true
	}
	if changed {
		sweepNops(m)
	}
	return changed, nil
}

// reduceLoadSize narrows a full composite load whose only consumer extracts
// a single element into an element load through an access chain.
func reduceLoadSize(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		var loadID, extractID uint32
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			if inst.Opcode != ir.OpLoad {
				continue
			}
			id := inst.ResultID()
			if in.uses[id] != 1 {
				continue
			}
			for j := range m.Instructions {
				ex := &m.Instructions[j]
				if ex.Opcode == ir.OpCompositeExtract && len(ex.Operands) == 4 &&
					ex.Operands[2] == id {
					loadID, extractID = id, ex.ResultID()
				}
			}
			if loadID != 0 {
				break
			}
		}
		if loadID == 0 {
			return changed, nil
		}
		if !narrowLoad(m, loadID, extractID) {
			return changed, nil
		}
		sweepNops(m)
		changed = true
	}
}

func narrowLoad(m *ir.Module, loadID, extractID uint32) bool {
	in := analyze(m)
	loadIdx := in.def[loadID]
	extractIdx := in.def[extractID]
	load := m.Instructions[loadIdx]
	extract := m.Instructions[extractIdx]
	ptr := load.Operands[2]
	index := extract.Operands[3]

	ptrType, ok := in.def[valueType(in, ptr)]
	if !ok {
		return false
	}
	ptrInst := &m.Instructions[ptrType]
	if ptrInst.Opcode != ir.OpTypePointer {
		return false
	}
	class := ir.StorageClass(ptrInst.Operands[1])
	elemType, ok := compositeElementType(in, load.ResultType(), index)
	if !ok {
		return false
	}

	idxConst := addConstant(m, findUintType(m), index)
	elemPtr := findPointerType(m, class, elemType)
	chainID := newID(m)

	// Module-level insertions shifted the function body; locate the load
	// again by its result ID.
	in = analyze(m)
	loadIdx = in.def[loadID]
	m.Instructions[loadIdx] = ir.Instruction{
		Opcode:   ir.OpAccessChain,
		Operands: []uint32{elemPtr, chainID, ptr, idxConst},
	}
	newLoad := newID(m)
	insertAt(m, loadIdx+1, ir.Instruction{
		Opcode:   ir.OpLoad,
		Operands: []uint32{elemType, newLoad, chainID},
	})
	for j := range m.Instructions {
		if m.Instructions[j].ResultID() == extractID {
			nop(m, j)
			break
		}
	}
	replaceUses(m, extractID, newLoad)
	return true
}
