package opt

import "github.com/TomLeeLive/google-filament/ir"

// passFunc rewrites the module in place and reports whether it changed
// anything.
type passFunc func(m *ir.Module) (bool, error)

var passes = map[PassName]passFunc{
	PassWrapOpKill:               wrapOpKill,
	PassDeadBranchElim:           deadBranchElim,
	PassMergeReturn:              mergeReturn,
	PassInlineExhaustive:         inlineExhaustive,
	PassAggressiveDCE:            aggressiveDCE,
	PassEliminateDeadFunctions:   eliminateDeadFunctions,
	PassPrivateToLocal:           privateToLocal,
	PassSingleBlockLoadStoreElim: singleBlockLoadStoreElim,
	PassSingleStoreElim:          singleStoreElim,
	PassMultiStoreElim:           multiStoreElim,
	PassScalarReplacement:        scalarReplacement,
	PassAccessChainConvert:       accessChainConvert,
	PassCombineAccessChains:      combineAccessChains,
	PassCCP:                      ccp,
	PassRedundancyElim:           redundancyElim,
	PassSimplify:                 simplify,
	PassVectorDCE:                vectorDCE,
	PassDeadInsertElim:           deadInsertElim,
	PassIfConversion:             ifConversion,
	PassCopyPropagateArrays:      copyPropagateArrays,
	PassReduceLoadSize:           reduceLoadSize,
	PassBlockMerge:               blockMerge,
	PassLoopUnroll:               loopUnroll,
	PassCFGCleanup:               cfgCleanup,
	PassRelaxedToHalf:            relaxedToHalf,
}

// aggressiveDCE removes pure instructions with unused results and function
// variables that are stored to but never read, iterating to a fixpoint.
func aggressiveDCE(m *ir.Module) (bool, error) {
	changed := false
	for {
		round := false
		in := analyze(m)

		for i := range m.Instructions {
			inst := &m.Instructions[i]
			id := inst.ResultID()
			if id == 0 || !isPureValue(inst.Opcode) {
				continue
			}
			if in.uses[id] == 0 {
				nop(m, i)
				round = true
			}
		}

		// Function-storage variables whose contents never feed a load.
		loaded := make(map[uint32]bool)
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			switch inst.Opcode {
			case ir.OpLoad:
				if root := in.rootVariable(inst.Operands[2]); root != 0 {
					loaded[root] = true
				}
			case ir.OpFunctionCall:
				// Pointer arguments escape.
				for _, arg := range inst.Operands[3:] {
					if root := in.rootVariable(arg); root != 0 {
						loaded[root] = true
					}
				}
			}
		}
		dead := make(map[uint32]bool)
		var deadDefs []int
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			if inst.Opcode != ir.OpVariable {
				continue
			}
			id := inst.ResultID()
			class, _ := in.storageClass(id)
			if class != ir.ClassFunction || loaded[id] {
				continue
			}
			dead[id] = true
			deadDefs = append(deadDefs, i)
			round = true
		}
		if len(dead) > 0 {
			// Rewrite the stores and chains while the variables still
			// define themselves; rootVariable walks through them.
			for i := range m.Instructions {
				inst := &m.Instructions[i]
				switch inst.Opcode {
				case ir.OpStore:
					if dead[in.rootVariable(inst.Operands[0])] {
						nop(m, i)
					}
				case ir.OpAccessChain, ir.OpCopyObject:
					if dead[in.rootVariable(inst.ResultID())] {
						nop(m, i)
					}
				}
			}
			for _, i := range deadDefs {
				nop(m, i)
			}
			dropDebug(m, dead)
		}

		if !round {
			return changed, nil
		}
		sweepNops(m)
		changed = true
	}
}

// deadBranchElim folds conditional branches on constant conditions and
// removes blocks that become unreachable. Blocks still named by a merge
// declaration of a live block are kept to preserve structure.
func deadBranchElim(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		round := false
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			if inst.Opcode != ir.OpBranchConditional {
				continue
			}
			v, ok := in.constBoolValue(inst.Operands[0])
			if !ok {
				continue
			}
			target := inst.Operands[1]
			if !v {
				target = inst.Operands[2]
			}
			m.Instructions[i] = ir.Instruction{
				Opcode:   ir.OpBranch,
				Operands: []uint32{target},
			}
			// Drop a selection merge directly above: the construct has
			// collapsed to straight-line flow.
			if i > 0 && m.Instructions[i-1].Opcode == ir.OpSelectionMerge {
				nop(m, i-1)
			}
			round = true
		}
		if round {
			sweepNops(m)
			changed = true
		}
		if removeUnreachableBlocks(m) {
			changed = true
			continue
		}
		if !round {
			return changed, nil
		}
	}
}

// removeUnreachableBlocks drops blocks with no path from the function entry,
// keeping merge and continue targets of live headers alive.
func removeUnreachableBlocks(m *ir.Module) bool {
	in := analyze(m)
	changed := false
	for f := range in.fns {
		fn := &in.fns[f]
		if len(fn.blocks) == 0 {
			continue
		}
		live := map[uint32]bool{fn.blocks[0].label: true}
		for {
			grew := false
			for b := range fn.blocks {
				blk := &fn.blocks[b]
				if !live[blk.label] {
					continue
				}
				for i := blk.begin; i <= blk.end; i++ {
					inst := &m.Instructions[i]
					var targets []uint32
					switch inst.Opcode {
					case ir.OpBranch:
						targets = inst.Operands[:1]
					case ir.OpBranchConditional:
						targets = inst.Operands[1:3]
					case ir.OpSelectionMerge:
						targets = inst.Operands[:1]
					case ir.OpLoopMerge:
						targets = inst.Operands[:2]
					}
					for _, t := range targets {
						if !live[t] {
							live[t] = true
							grew = true
						}
					}
				}
			}
			if !grew {
				break
			}
		}
		dead := make(map[uint32]bool)
		for b := range fn.blocks {
			blk := &fn.blocks[b]
			if live[blk.label] {
				continue
			}
			for i := blk.begin; i <= blk.end; i++ {
				if id := m.Instructions[i].ResultID(); id != 0 {
					dead[id] = true
				}
				nop(m, i)
			}
			changed = true
		}
		if len(dead) > 0 {
			dropDebug(m, dead)
		}
	}
	if changed {
		sweepNops(m)
	}
	return changed
}

// blockMerge splices a block into its sole predecessor when the two are
// adjacent and the successor is not a merge or continue target.
func blockMerge(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		merged := false
		structural := make(map[uint32]bool)
		preds := make(map[uint32]int)
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			switch inst.Opcode {
			case ir.OpSelectionMerge:
				structural[inst.Operands[0]] = true
			case ir.OpLoopMerge:
				structural[inst.Operands[0]] = true
				structural[inst.Operands[1]] = true
			case ir.OpBranch:
				preds[inst.Operands[0]]++
			case ir.OpBranchConditional:
				preds[inst.Operands[1]]++
				preds[inst.Operands[2]]++
			}
		}
		for f := range in.fns {
			fn := &in.fns[f]
			for b := 0; b+1 < len(fn.blocks); b++ {
				a, next := &fn.blocks[b], &fn.blocks[b+1]
				term := &m.Instructions[a.end]
				if term.Opcode != ir.OpBranch || term.Operands[0] != next.label {
					continue
				}
				if next.begin != a.end+1 {
					continue
				}
				if preds[next.label] != 1 || structural[next.label] {
					continue
				}
				// A loop header keeps its single-branch shape.
				if a.end > a.begin && m.Instructions[a.end-1].Opcode == ir.OpLoopMerge {
					continue
				}
				nop(m, a.end)
				nop(m, next.begin)
				merged = true
			}
			if merged {
				break
			}
		}
		if !merged {
			return changed, nil
		}
		sweepNops(m)
		changed = true
	}
}

// cfgCleanup is unreachable-block removal plus block merging.
func cfgCleanup(m *ir.Module) (bool, error) {
	changed := removeUnreachableBlocks(m)
	merged, err := blockMerge(m)
	return changed || merged, err
}

// eliminateDeadFunctions removes functions unreachable from the entry point.
func eliminateDeadFunctions(m *ir.Module) (bool, error) {
	in := analyze(m)
	if in.entry == 0 {
		return false, nil
	}
	live := map[uint32]bool{in.entry: true}
	for {
		grew := false
		for f := range in.fns {
			fn := &in.fns[f]
			if !live[fn.id] {
				continue
			}
			for i := fn.begin; i <= fn.end; i++ {
				inst := &m.Instructions[i]
				if inst.Opcode == ir.OpFunctionCall && !live[inst.Operands[2]] {
					live[inst.Operands[2]] = true
					grew = true
				}
			}
		}
		if !grew {
			break
		}
	}
	changed := false
	dead := make(map[uint32]bool)
	for f := range in.fns {
		fn := &in.fns[f]
		if live[fn.id] {
			continue
		}
		for i := fn.begin; i <= fn.end; i++ {
			if id := m.Instructions[i].ResultID(); id != 0 {
				dead[id] = true
			}
			nop(m, i)
		}
		changed = true
	}
	if changed {
		dropDebug(m, dead)
		sweepNops(m)
	}
	return changed, nil
}

// vectorDCE drops shuffle, construct and extract results nothing consumes.
func vectorDCE(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		round := false
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			switch inst.Opcode {
			case ir.OpVectorShuffle, ir.OpCompositeConstruct, ir.OpCompositeExtract:
				if in.uses[inst.ResultID()] == 0 {
					nop(m, i)
					round = true
				}
			}
		}
		if !round {
			return changed, nil
		}
		sweepNops(m)
		changed = true
	}
}

// deadInsertElim removes unused composite inserts and forwards inserts whose
// only consumer is another insert overwriting the same component.
func deadInsertElim(m *ir.Module) (bool, error) {
	in := analyze(m)
	changed := false
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode != ir.OpCompositeInsert {
			continue
		}
		id := inst.ResultID()
		if in.uses[id] == 0 {
			nop(m, i)
			changed = true
			continue
		}
		if in.uses[id] != 1 {
			continue
		}
		for j := range m.Instructions {
			outer := &m.Instructions[j]
			if outer.Opcode != ir.OpCompositeInsert || j == i {
				continue
			}
			// outer operands: type, result, object, composite, indices...
			if outer.Operands[3] != id {
				continue
			}
			if len(outer.Operands) == len(inst.Operands) &&
				equalWords(outer.Operands[4:], inst.Operands[4:]) {
				// Same component rewritten: the inner insert is shadowed.
				outer.Operands[3] = inst.Operands[3]
				nop(m, i)
				changed = true
			}
			break
		}
	}
	if changed {
		sweepNops(m)
	}
	return changed, nil
}

func equalWords(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// relaxedToHalf propagates RelaxedPrecision onto float results whose inputs
// all carry the decoration, letting the Metal writer pick half types.
func relaxedToHalf(m *ir.Module) (bool, error) {
	relaxed := make(map[uint32]bool)
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpDecorate && len(inst.Operands) == 2 &&
			ir.Decoration(inst.Operands[1]) == ir.DecorationRelaxedPrecision {
			relaxed[inst.Operands[0]] = true
		}
	}
	in := analyze(m)
	changed := false
	for {
		var added []uint32
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			if !floatArith(inst.Opcode) {
				continue
			}
			id := inst.ResultID()
			if relaxed[id] {
				continue
			}
			all := true
			inst.Uses(func(op uint32) {
				if relaxed[op] {
					return
				}
				if idx, ok := in.def[op]; ok && in.m.Instructions[idx].Opcode.IsConstant() {
					return
				}
				all = false
			})
			if all {
				relaxed[id] = true
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			break
		}
		for _, id := range added {
			insertAt(m, decorationSectionEnd(m), ir.Instruction{
				Opcode:   ir.OpDecorate,
				Operands: []uint32{id, uint32(ir.DecorationRelaxedPrecision)},
			})
		}
		in = analyze(m)
		changed = true
	}
	return changed, nil
}

func floatArith(op ir.Opcode) bool {
	switch op {
	case ir.OpFNegate, ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv,
		ir.OpVectorTimesScalar, ir.OpMatrixTimesScalar, ir.OpMatrixTimesVector,
		ir.OpMatrixTimesMatrix, ir.OpDot, ir.OpExtInst, ir.OpFConvert:
		return true
	}
	return false
}
