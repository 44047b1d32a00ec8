package opt

import "github.com/TomLeeLive/google-filament/ir"

// wrapOpKill hoists discards out of helper functions: each OpKill outside
// the entry point becomes a call to a dedicated kill wrapper followed by
// OpUnreachable, which keeps those helpers inlinable.
func wrapOpKill(m *ir.Module) (bool, error) {
	in := analyze(m)
	var targets []int
	for f := range in.fns {
		fn := &in.fns[f]
		if fn.id == in.entry || isKillWrapper(m, fn) {
			continue
		}
		for i := fn.begin; i <= fn.end; i++ {
			if m.Instructions[i].Opcode == ir.OpKill {
				targets = append(targets, i)
			}
		}
	}
	if len(targets) == 0 {
		return false, nil
	}

	voidType := findVoidType(m)
	fnType := findVoidFnType(m, voidType)
	wrapper := newID(m)
	label := newID(m)
	m.Instructions = append(m.Instructions,
		ir.Instruction{Opcode: ir.OpFunction, Operands: []uint32{voidType, wrapper, 0, fnType}},
		ir.Instruction{Opcode: ir.OpLabel, Operands: []uint32{label}},
		ir.Instruction{Opcode: ir.OpKill},
		ir.Instruction{Opcode: ir.OpFunctionEnd},
	)
	// Rewrite back to front so earlier indices stay valid.
	for t := len(targets) - 1; t >= 0; t-- {
		i := targets[t]
		m.Instructions[i] = ir.Instruction{
			Opcode:   ir.OpFunctionCall,
			Operands: []uint32{voidType, newID(m), wrapper},
		}
		insertAt(m, i+1, ir.Instruction{Opcode: ir.OpUnreachable})
	}
	return true, nil
}

func isKillWrapper(m *ir.Module, fn *fnInfo) bool {
	return len(fn.blocks) == 1 && fn.blocks[0].end == fn.blocks[0].begin+1 &&
		m.Instructions[fn.blocks[0].end].Opcode == ir.OpKill
}

func findVoidType(m *ir.Module) uint32 {
	for i := range m.Instructions {
		if m.Instructions[i].Opcode == ir.OpTypeVoid {
			return m.Instructions[i].ResultID()
		}
	}
	id := newID(m)
	insertAt(m, moduleSectionEnd(m), ir.Instruction{
		Opcode:   ir.OpTypeVoid,
		Operands: []uint32{id},
	})
	return id
}

func findVoidFnType(m *ir.Module, voidType uint32) uint32 {
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpTypeFunction && len(inst.Operands) == 2 &&
			inst.Operands[1] == voidType {
			return inst.Operands[0]
		}
	}
	id := newID(m)
	insertAt(m, moduleSectionEnd(m), ir.Instruction{
		Opcode:   ir.OpTypeFunction,
		Operands: []uint32{id, voidType},
	})
	return id
}

// mergeReturn funnels an early return inside a selection construct into the
// construct's merge block when that block does nothing but return. Deeper
// shapes are left alone.
func mergeReturn(m *ir.Module) (bool, error) {
	changed := false
	for {
		in := analyze(m)
		round := false
		for f := range in.fns {
			fn := &in.fns[f]
			for b := range fn.blocks {
				h := &fn.blocks[b]
				if h.end == h.begin ||
					m.Instructions[h.end-1].Opcode != ir.OpSelectionMerge {
					continue
				}
				term := &m.Instructions[h.end]
				if term.Opcode != ir.OpBranchConditional {
					continue
				}
				mergeLabel := m.Instructions[h.end-1].Operands[0]
				mb := in.block(mergeLabel)
				if mb == nil || mb.end != mb.begin+1 ||
					m.Instructions[mb.end].Opcode != ir.OpReturn {
					continue
				}
				// Only the direct arms: a return nested deeper must not
				// skip its own merge.
				for _, armLabel := range term.Operands[1:3] {
					arm := in.block(armLabel)
					if arm == nil || armLabel == mergeLabel {
						continue
					}
					if m.Instructions[arm.end].Opcode == ir.OpReturn {
						m.Instructions[arm.end] = ir.Instruction{
							Opcode:   ir.OpBranch,
							Operands: []uint32{mergeLabel},
						}
						round = true
					}
				}
			}
		}
		if !round {
			return changed, nil
		}
		changed = true
	}
}

// inlineExhaustive substitutes calls to straight-line helpers (one block, no
// locals) into their callers until no such call remains.
func inlineExhaustive(m *ir.Module) (bool, error) {
	changed := false
	for iter := 0; iter < 32; iter++ {
		in := analyze(m)
		site := -1
		var callee *fnInfo
		for i := range m.Instructions {
			inst := &m.Instructions[i]
			if inst.Opcode != ir.OpFunctionCall {
				continue
			}
			c := in.fn(inst.Operands[2])
			if c == nil || c.id == in.entry || len(c.blocks) != 1 {
				continue
			}
			term := m.Instructions[c.blocks[0].end].Opcode
			if term != ir.OpReturn && term != ir.OpReturnValue {
				continue
			}
			site, callee = i, c
			break
		}
		if site < 0 {
			return changed, nil
		}
		inlineCall(m, in, site, callee)
		sweepNops(m)
		changed = true
	}
	return changed, nil
}

// inlineCall clones the callee body at the call site with fresh IDs. Callee
// locals hoist to the caller's entry block, where all variables live.
func inlineCall(m *ir.Module, in *info, site int, callee *fnInfo) {
	call := m.Instructions[site]
	remap := make(map[uint32]uint32)
	for pi, pidx := range callee.params {
		remap[m.Instructions[pidx].ResultID()] = call.Operands[3+pi]
	}
	blk := callee.blocks[0]
	var vars, clones []ir.Instruction
	for i := blk.begin + 1; i < blk.end; i++ {
		src := m.Instructions[i]
		c := ir.Instruction{
			Opcode:   src.Opcode,
			Operands: append([]uint32(nil), src.Operands...),
		}
		if rid := c.ResultID(); rid != 0 {
			remap[rid] = newID(m)
		}
		if c.Opcode == ir.OpVariable {
			vars = append(vars, c)
		} else {
			clones = append(clones, c)
		}
	}
	rewrite := func(insts []ir.Instruction) {
		for k := range insts {
			inst := &insts[k]
			ir.ForEachID(inst, func(idx int) {
				if nv, ok := remap[inst.Operands[idx]]; ok {
					inst.Operands[idx] = nv
				}
			})
		}
	}
	rewrite(vars)
	rewrite(clones)

	term := m.Instructions[blk.end]
	nop(m, site)
	insertAt(m, site, clones...)
	if len(vars) > 0 {
		caller := owningFn(in, site)
		entry := caller.blocks[0]
		pos := entry.begin + 1
		for pos < len(m.Instructions) && m.Instructions[pos].Opcode == ir.OpVariable {
			pos++
		}
		insertAt(m, pos, vars...)
	}
	if term.Opcode == ir.OpReturnValue {
		ret := term.Operands[0]
		if nv, ok := remap[ret]; ok {
			ret = nv
		}
		if result := call.ResultID(); result != 0 {
			replaceUses(m, result, ret)
		}
	}
}

// loopUnroll fully expands the canonical counted loop shape: header with
// merge declaration, a condition block comparing the counter against a
// constant bound, a single body block, and a continue block stepping the
// counter by a constant. Bounded trip counts only.
func loopUnroll(m *ir.Module) (bool, error) {
	changed := false
	for iter := 0; iter < 4; iter++ {
		shape, ok := findCountedLoop(m)
		if !ok {
			return changed, nil
		}
		expandLoop(m, shape)
		sweepNops(m)
		changed = true
	}
	return changed, nil
}

type loopShape struct {
	headerLabel, mergeLabel uint32
	counter                 uint32 // the loop variable
	counterType             uint32
	bodyLabel               uint32
	init, bound, step       int32
	trip                    int
}

func findCountedLoop(m *ir.Module) (loopShape, bool) {
	in := analyze(m)
	for f := range in.fns {
		fn := &in.fns[f]
		for b := range fn.blocks {
			h := &fn.blocks[b]
			if h.end == h.begin ||
				m.Instructions[h.end-1].Opcode != ir.OpLoopMerge ||
				m.Instructions[h.end].Opcode != ir.OpBranch {
				continue
			}
			merge := m.Instructions[h.end-1].Operands[0]
			cont := m.Instructions[h.end-1].Operands[1]
			condLabel := m.Instructions[h.end].Operands[0]

			shape, ok := matchCountedLoop(m, in, fn, h.label, condLabel, merge, cont)
			if ok {
				return shape, true
			}
		}
	}
	return loopShape{}, false
}

func matchCountedLoop(m *ir.Module, in *info, fn *fnInfo, header, condLabel, merge, cont uint32) (loopShape, bool) {
	var s loopShape
	s.headerLabel, s.mergeLabel = header, merge

	// Condition: load counter, signed compare against a constant, branch.
	cb := in.block(condLabel)
	if cb == nil || cb.end != cb.begin+3 {
		return s, false
	}
	load := &m.Instructions[cb.begin+1]
	cmp := &m.Instructions[cb.begin+2]
	br := &m.Instructions[cb.end]
	if load.Opcode != ir.OpLoad || cmp.Opcode != ir.OpSLessThan ||
		br.Opcode != ir.OpBranchConditional {
		return s, false
	}
	if cmp.Operands[2] != load.ResultID() || br.Operands[0] != cmp.ResultID() ||
		br.Operands[2] != merge {
		return s, false
	}
	s.counter = load.Operands[2]
	s.counterType = load.ResultType()
	s.bodyLabel = br.Operands[1]
	bound, ok := in.constIntValue(cmp.Operands[3])
	if !ok {
		return s, false
	}
	s.bound = int32(bound)

	// Continue: load, add constant step, store, branch to header.
	nb := in.block(cont)
	if nb == nil || nb.end != nb.begin+4 {
		return s, false
	}
	cl := &m.Instructions[nb.begin+1]
	add := &m.Instructions[nb.begin+2]
	st := &m.Instructions[nb.begin+3]
	cbr := &m.Instructions[nb.end]
	if cl.Opcode != ir.OpLoad || cl.Operands[2] != s.counter ||
		add.Opcode != ir.OpIAdd || add.Operands[2] != cl.ResultID() ||
		st.Opcode != ir.OpStore || st.Operands[0] != s.counter ||
		st.Operands[1] != add.ResultID() ||
		cbr.Opcode != ir.OpBranch || cbr.Operands[0] != header {
		return s, false
	}
	step, ok := in.constIntValue(add.Operands[3])
	if !ok || int32(step) <= 0 {
		return s, false
	}
	s.step = int32(step)

	// Body: single block branching to the continue block, not touching the
	// counter, with no inner control flow and no values escaping the loop.
	bb := in.block(s.bodyLabel)
	if bb == nil || m.Instructions[bb.end].Opcode != ir.OpBranch ||
		m.Instructions[bb.end].Operands[0] != cont {
		return s, false
	}
	// Skip the label: the condition block names it, which is not an escape.
	for i := bb.begin + 1; i <= bb.end; i++ {
		inst := &m.Instructions[i]
		switch inst.Opcode {
		case ir.OpLoopMerge, ir.OpSelectionMerge, ir.OpKill, ir.OpReturn,
			ir.OpReturnValue, ir.OpFunctionCall:
			return s, false
		case ir.OpStore:
			if in.rootVariable(inst.Operands[0]) == s.counter {
				return s, false
			}
		}
		if id := inst.ResultID(); id != 0 {
			escaped := false
			for j := fn.begin; j <= fn.end; j++ {
				if j >= bb.begin && j <= bb.end {
					continue
				}
				m.Instructions[j].Uses(func(op uint32) {
					if op == id {
						escaped = true
					}
				})
			}
			if escaped {
				return s, false
			}
		}
	}

	// Preheader: the block branching to the header must initialize the
	// counter with a constant as its final counter store.
	ph := preheader(m, in, fn, header, cont)
	if ph == nil {
		return s, false
	}
	initVal, ok := lastCounterStore(m, in, ph, s.counter)
	if !ok {
		return s, false
	}
	s.init = initVal

	if s.init >= s.bound {
		s.trip = 0
	} else {
		s.trip = int((s.bound - s.init + s.step - 1) / s.step)
	}
	if s.trip > 8 {
		return s, false
	}
	return s, true
}

func preheader(m *ir.Module, in *info, fn *fnInfo, header, cont uint32) *blockInfo {
	for b := range fn.blocks {
		blk := &fn.blocks[b]
		if blk.label == cont {
			continue
		}
		term := &m.Instructions[blk.end]
		if term.Opcode == ir.OpBranch && term.Operands[0] == header {
			return blk
		}
	}
	return nil
}

func lastCounterStore(m *ir.Module, in *info, blk *blockInfo, counter uint32) (int32, bool) {
	val := int32(0)
	found := false
	for i := blk.begin; i <= blk.end; i++ {
		inst := &m.Instructions[i]
		if inst.Opcode != ir.OpStore {
			continue
		}
		if inst.Operands[0] == counter {
			v, ok := in.constIntValue(inst.Operands[1])
			if !ok {
				return 0, false
			}
			val, found = int32(v), true
		} else if in.rootVariable(inst.Operands[0]) == counter {
			return 0, false
		}
	}
	return val, found
}

func expandLoop(m *ir.Module, s loopShape) {
	// Materialize the counter value for every iteration plus the exit value.
	consts := make([]uint32, s.trip+1)
	for k := 0; k <= s.trip; k++ {
		consts[k] = addConstant(m, s.counterType, uint32(s.init+int32(k)*s.step))
	}

	in := analyze(m)
	hb := in.block(s.headerLabel)
	bb := in.block(s.bodyLabel)
	cont := m.Instructions[hb.end-1].Operands[1]
	nb := in.block(cont)
	condLabel := m.Instructions[hb.end].Operands[0]
	cb := in.block(condLabel)

	var unrolled []ir.Instruction
	for k := 0; k < s.trip; k++ {
		unrolled = append(unrolled, ir.Instruction{
			Opcode:   ir.OpStore,
			Operands: []uint32{s.counter, consts[k]},
		})
		remap := make(map[uint32]uint32)
		for i := bb.begin + 1; i < bb.end; i++ {
			src := m.Instructions[i]
			c := ir.Instruction{
				Opcode:   src.Opcode,
				Operands: append([]uint32(nil), src.Operands...),
			}
			if rid := c.ResultID(); rid != 0 {
				remap[rid] = newID(m)
			}
			unrolled = append(unrolled, c)
		}
		base := len(unrolled) - (bb.end - bb.begin - 1)
		for i := base; i < len(unrolled); i++ {
			inst := &unrolled[i]
			ir.ForEachID(inst, func(idx int) {
				if nv, ok := remap[inst.Operands[idx]]; ok {
					inst.Operands[idx] = nv
				}
			})
		}
	}
	unrolled = append(unrolled, ir.Instruction{
		Opcode:   ir.OpStore,
		Operands: []uint32{s.counter, consts[s.trip]},
	})

	fn := owningFn(in, hb.begin)
	ph := preheader(m, in, fn, s.headerLabel, cont)

	for _, blk := range []*blockInfo{hb, cb, bb, nb} {
		for i := blk.begin; i <= blk.end; i++ {
			nop(m, i)
		}
	}
	m.Instructions[ph.end] = ir.Instruction{
		Opcode:   ir.OpBranch,
		Operands: []uint32{s.mergeLabel},
	}
	insertAt(m, ph.end, unrolled...)
}

func owningFn(in *info, idx int) *fnInfo {
	for f := range in.fns {
		if idx >= in.fns[f].begin && idx <= in.fns[f].end {
			return &in.fns[f]
		}
	}
	return nil
}
