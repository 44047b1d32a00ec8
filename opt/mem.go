package opt

import "github.com/TomLeeLive/google-filament/ir"

// privateToLocal demotes module-scope private variables referenced by a
// single function into that function's locals.
func privateToLocal(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		moved := false
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			if inst.Opcode != ir.OpVariable || len(inst.Operands) != 3 ||
				ir.StorageClass(inst.Operands[2]) != ir.ClassPrivate {
				continue
			}
			id := inst.ResultID()
			owner := soleUser(in, id)
			if owner == nil || len(owner.blocks) == 0 {
				continue
			}
			ptrTypeIdx, ok := in.def[inst.ResultType()]
			if !ok {
				continue
			}
			pointee := m.Instructions[ptrTypeIdx].Operands[2]
			localPtr := findPointerType(m, ir.ClassFunction, pointee)

			// Type insertion may have shifted everything; relocate by ID.
			in = analyze(m)
			varIdx := in.def[id]
			nop(m, varIdx)
			owner = in.fn(owner.id)
			entry := owner.blocks[0]
			pos := entry.begin + 1
			for pos <= entry.end && m.Instructions[pos].Opcode == ir.OpVariable {
				pos++
			}
			insertAt(m, pos, ir.Instruction{
				Opcode:   ir.OpVariable,
				Operands: []uint32{localPtr, id, uint32(ir.ClassFunction)},
			})
			sweepNops(m)
			moved = true
			break
		}
		if !moved {
			return changed, nil
		}
		changed = true
	}
}

// soleUser returns the one function referencing id, or nil when it is used
// by none or several.
func soleUser(in *info, id uint32) *fnInfo {
	var owner *fnInfo
	for f := range in.fns {
		fn := &in.fns[f]
		for i := fn.begin; i <= fn.end; i++ {
			used := false
			in.m.Instructions[i].Uses(func(op uint32) {
				if op == id {
					used = true
				}
			})
			if !used {
				continue
			}
			if owner != nil && owner != fn {
				return nil
			}
			owner = fn
		}
	}
	return owner
}

// singleBlockLoadStoreElim forwards stored values to later loads of the same
// pointer within one block and deduplicates repeated loads.
func singleBlockLoadStoreElim(m *ir.Module) (bool, error) {
	in := analyze(m)
	changed := false
	for f := range in.fns {
		for b := range in.fns[f].blocks {
			blk := &in.fns[f].blocks[b]
			stored := make(map[uint32]uint32) // pointer ID -> value ID
			loadedAs := make(map[uint32]uint32)
			invalidateRoot := func(root uint32) {
				for p := range stored {
					if in.rootVariable(p) == root {
						delete(stored, p)
					}
				}
				for p := range loadedAs {
					if in.rootVariable(p) == root {
						delete(loadedAs, p)
					}
				}
			}
			for i := blk.begin + 1; i < blk.end; i++ {
				inst := &m.Instructions[i]
				switch inst.Opcode {
				case ir.OpStore:
					ptr := inst.Operands[0]
					invalidateRoot(in.rootVariable(ptr))
					stored[ptr] = inst.Operands[1]
				case ir.OpLoad:
					ptr := inst.Operands[2]
					if v, ok := stored[ptr]; ok {
						replaceUses(m, inst.ResultID(), v)
						nop(m, i)
						changed = true
						continue
					}
					if prev, ok := loadedAs[ptr]; ok {
						replaceUses(m, inst.ResultID(), prev)
						nop(m, i)
						changed = true
						continue
					}
					loadedAs[ptr] = inst.ResultID()
				case ir.OpFunctionCall:
					stored = make(map[uint32]uint32)
					loadedAs = make(map[uint32]uint32)
				}
			}
		}
	}
	if changed {
		sweepNops(m)
	}
	return changed, nil
}

// singleStoreElim propagates the value of a local written exactly once, in
// the entry block, to every load that follows the store.
func singleStoreElim(m *ir.Module) (bool, error) {
	in := analyze(m)
	changed := false
	for f := range in.fns {
		fn := &in.fns[f]
		if len(fn.blocks) == 0 {
			continue
		}
		entry := fn.blocks[0]
		// Gather direct stores and partial (chain) stores per local.
		direct := make(map[uint32][]int)
		partial := make(map[uint32]bool)
		for i := fn.begin; i <= fn.end; i++ {
			inst := &m.Instructions[i]
			switch inst.Opcode {
			case ir.OpStore:
				ptr := inst.Operands[0]
				if idx, ok := in.def[ptr]; ok &&
					m.Instructions[idx].Opcode == ir.OpVariable {
					direct[ptr] = append(direct[ptr], i)
				} else {
					partial[in.rootVariable(ptr)] = true
				}
			case ir.OpFunctionCall:
				for _, arg := range inst.Operands[3:] {
					if root := in.rootVariable(arg); root != 0 {
						partial[root] = true
					}
				}
			}
		}
		for varID, stores := range direct {
			class, _ := in.storageClass(varID)
			if class != ir.ClassFunction || len(stores) != 1 || partial[varID] {
				continue
			}
			storeIdx := stores[0]
			if storeIdx < entry.begin || storeIdx > entry.end {
				continue
			}
			value := m.Instructions[storeIdx].Operands[1]
			for i := storeIdx + 1; i <= fn.end; i++ {
				inst := &m.Instructions[i]
				if inst.Opcode == ir.OpLoad && inst.Operands[2] == varID {
					replaceUses(m, inst.ResultID(), value)
					nop(m, i)
					changed = true
				}
			}
		}
	}
	if changed {
		sweepNops(m)
	}
	return changed, nil
}

// multiStoreElim removes a store that is overwritten by a later store to the
// same pointer in the same block with no intervening read of the variable.
func multiStoreElim(m *ir.Module) (bool, error) {
	in := analyze(m)
	changed := false
	for f := range in.fns {
		for b := range in.fns[f].blocks {
			blk := &in.fns[f].blocks[b]
			last := make(map[uint32]int)
			for i := blk.begin + 1; i < blk.end; i++ {
				inst := &m.Instructions[i]
				switch inst.Opcode {
				case ir.OpStore:
					ptr := inst.Operands[0]
					if prev, ok := last[ptr]; ok {
						nop(m, prev)
						changed = true
					}
					last[ptr] = i
				case ir.OpLoad:
					root := in.rootVariable(inst.Operands[2])
					for p := range last {
						if in.rootVariable(p) == root {
							delete(last, p)
						}
					}
				case ir.OpFunctionCall:
					last = make(map[uint32]int)
				}
			}
		}
	}
	if changed {
		sweepNops(m)
	}
	return changed, nil
}

// scalarReplacement splits a struct local accessed only through
// single-constant-index chains into one local per member.
func scalarReplacement(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		varID, members := findScalarCandidate(in)
		if varID == 0 {
			return changed, nil
		}
		memberVars := make([]uint32, len(members))
		var memberInsts []ir.Instruction
		for mi, mt := range members {
			ptr := findPointerType(m, ir.ClassFunction, mt)
			memberVars[mi] = newID(m)
			memberInsts = append(memberInsts, ir.Instruction{
				Opcode:   ir.OpVariable,
				Operands: []uint32{ptr, memberVars[mi], uint32(ir.ClassFunction)},
			})
		}
		in = analyze(m)
		varIdx := in.def[varID]
		dead := map[uint32]bool{varID: true}
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			if inst.Opcode != ir.OpAccessChain || len(inst.Operands) != 4 ||
				inst.Operands[2] != varID {
				continue
			}
			k, _ := in.constIntValue(inst.Operands[3])
			replaceUses(m, inst.ResultID(), memberVars[k])
			dead[inst.ResultID()] = true
			nop(m, i)
		}
		nop(m, varIdx)
		insertAt(m, varIdx, memberInsts...)
		dropDebug(m, dead)
		sweepNops(m)
		changed = true
	}
}

// findScalarCandidate picks a function-storage struct variable whose every
// use is a single-constant-index access chain.
func findScalarCandidate(in *info) (uint32, []uint32) {
	m := in.m
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode != ir.OpVariable ||
			ir.StorageClass(inst.Operands[2]) != ir.ClassFunction {
			continue
		}
		id := inst.ResultID()
		ptrIdx, ok := in.def[inst.ResultType()]
		if !ok {
			continue
		}
		pointeeIdx, ok := in.def[m.Instructions[ptrIdx].Operands[2]]
		if !ok || m.Instructions[pointeeIdx].Opcode != ir.OpTypeStruct {
			continue
		}
		members := m.Instructions[pointeeIdx].Operands[1:]
		good := true
		used := false
		for j := range m.Instructions {
			u := &m.Instructions[j]
			if isDebugOp(u.Opcode) {
				continue
			}
			refs := false
			u.Uses(func(op uint32) {
				if op == id {
					refs = true
				}
			})
			if !refs {
				continue
			}
			used = true
			if u.Opcode != ir.OpAccessChain || len(u.Operands) != 4 ||
				u.Operands[2] != id {
				good = false
				break
			}
			k, ok := in.constIntValue(u.Operands[3])
			if !ok || int(k) >= len(members) {
				good = false
				break
			}
		}
		if good && used {
			return id, append([]uint32(nil), members...)
		}
	}
	return 0, nil
}

// accessChainConvert rewrites element loads and stores through
// single-constant-index chains on locals into whole-composite operations,
// which exposes them to store elimination.
func accessChainConvert(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		idx, isStore := findConvertibleChainUse(in)
		if idx < 0 {
			return changed, nil
		}
		inst := m.Instructions[idx]
		var chain ir.Instruction
		var chainIdx int
		if isStore {
			chainIdx = in.def[inst.Operands[0]]
		} else {
			chainIdx = in.def[inst.Operands[2]]
		}
		chain = m.Instructions[chainIdx]
		varID := chain.Operands[2]
		k, _ := in.constIntValue(chain.Operands[3])

		varTypeIdx := in.def[valueType(in, varID)]
		compType := m.Instructions[varTypeIdx].Operands[2]
		elemType, ok := compositeElementType(in, compType, k)
		if !ok {
			return changed, nil
		}
		if isStore {
			tmp := newID(m)
			ins := newID(m)
			m.Instructions[idx] = ir.Instruction{
				Opcode:   ir.OpLoad,
				Operands: []uint32{compType, tmp, varID},
			}
			insertAt(m, idx+1,
				ir.Instruction{
					Opcode:   ir.OpCompositeInsert,
					Operands: []uint32{compType, ins, inst.Operands[1], tmp, k},
				},
				ir.Instruction{
					Opcode:   ir.OpStore,
					Operands: []uint32{varID, ins},
				},
			)
		} else {
			tmp := newID(m)
			result := inst.ResultID()
			m.Instructions[idx] = ir.Instruction{
				Opcode:   ir.OpLoad,
				Operands: []uint32{compType, tmp, varID},
			}
			insertAt(m, idx+1, ir.Instruction{
				Opcode:   ir.OpCompositeExtract,
				Operands: []uint32{elemType, result, tmp, k},
			})
		}
		changed = true
	}
}

// findConvertibleChainUse locates a load or store whose pointer is a
// single-constant-index chain rooted directly at a function-storage local.
func findConvertibleChainUse(in *info) (int, bool) {
	m := in.m
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		var ptr uint32
		isStore := false
		switch inst.Opcode {
		case ir.OpLoad:
			ptr = inst.Operands[2]
		case ir.OpStore:
			ptr = inst.Operands[0]
			isStore = true
		default:
			continue
		}
		cIdx, ok := in.def[ptr]
		if !ok {
			continue
		}
		chain := &m.Instructions[cIdx]
		if chain.Opcode != ir.OpAccessChain || len(chain.Operands) != 4 {
			continue
		}
		root := chain.Operands[2]
		if class, ok := in.storageClass(root); !ok || class != ir.ClassFunction {
			continue
		}
		if _, ok := in.constIntValue(chain.Operands[3]); !ok {
			continue
		}
		return i, isStore
	}
	return -1, false
}
