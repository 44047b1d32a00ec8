package opt

import "github.com/TomLeeLive/google-filament/ir"

// blockInfo spans one basic block inside the instruction slice. begin is the
// OpLabel index, end the terminator index.
type blockInfo struct {
	label      uint32
	begin, end int
}

// fnInfo spans one function. begin is the OpFunction index, end the
// OpFunctionEnd index.
type fnInfo struct {
	id         uint32
	returnType uint32
	begin, end int
	params     []int
	blocks     []blockInfo
}

// info is the per-pass view of a decoded module: function and block ranges,
// the definition index and use counts of every ID. Passes rebuild it after
// structural edits by calling analyze again.
type info struct {
	m     *ir.Module
	fns   []fnInfo
	entry uint32
	def   map[uint32]int
	uses  map[uint32]int
}

func analyze(m *ir.Module) *info {
	in := &info{
		m:    m,
		def:  make(map[uint32]int),
		uses: make(map[uint32]int),
	}
	var cur *fnInfo
	var curBlock int // OpLabel index, -1 when outside a block
	curBlock = -1
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if id := inst.ResultID(); id != 0 {
			in.def[id] = i
		}
		switch inst.Opcode {
		case ir.OpEntryPoint:
			if len(inst.Operands) >= 2 {
				in.entry = inst.Operands[1]
			}
		case ir.OpFunction:
			in.fns = append(in.fns, fnInfo{
				id:         inst.ResultID(),
				returnType: inst.ResultType(),
				begin:      i,
			})
			cur = &in.fns[len(in.fns)-1]
		case ir.OpFunctionParameter:
			if cur != nil {
				cur.params = append(cur.params, i)
			}
		case ir.OpLabel:
			curBlock = i
		case ir.OpFunctionEnd:
			if cur != nil {
				cur.end = i
				cur = nil
			}
		default:
			if inst.Opcode.IsTerminator() && cur != nil && curBlock >= 0 {
				cur.blocks = append(cur.blocks, blockInfo{
					label: m.Instructions[curBlock].ResultID(),
					begin: curBlock,
					end:   i,
				})
				curBlock = -1
			}
		}
		if !isDebugOp(inst.Opcode) {
			inst.Uses(func(id uint32) { in.uses[id]++ })
		}
	}
	return in
}

func (in *info) fn(id uint32) *fnInfo {
	for i := range in.fns {
		if in.fns[i].id == id {
			return &in.fns[i]
		}
	}
	return nil
}

// block returns the block whose label is id, searching all functions.
func (in *info) block(id uint32) *blockInfo {
	for f := range in.fns {
		for b := range in.fns[f].blocks {
			if in.fns[f].blocks[b].label == id {
				return &in.fns[f].blocks[b]
			}
		}
	}
	return nil
}

// isDebugOp reports whether the opcode is a name or decoration: these do not
// keep their targets alive.
func isDebugOp(op ir.Opcode) bool {
	switch op {
	case ir.OpName, ir.OpMemberName, ir.OpDecorate, ir.OpMemberDecorate:
		return true
	}
	return false
}

// isPureValue reports whether an instruction producing an unused result can
// be dropped without observable effect.
func isPureValue(op ir.Opcode) bool {
	if op.IsType() || op.IsConstant() {
		return false // module-level, handled by the remap
	}
	switch op {
	case ir.OpLoad, ir.OpAccessChain, ir.OpExtInst, ir.OpVectorShuffle,
		ir.OpCompositeConstruct, ir.OpCompositeExtract, ir.OpCompositeInsert,
		ir.OpCopyObject, ir.OpSampledImage, ir.OpImageSampleImplicitLod,
		ir.OpImageSampleExplicitLod, ir.OpImageRead, ir.OpSelect:
		return true
	}
	switch op {
	case ir.OpConvertFToS, ir.OpConvertFToU, ir.OpConvertSToF,
		ir.OpConvertUToF, ir.OpFConvert, ir.OpBitcast:
		return true
	}
	if op >= ir.OpSNegate && op <= ir.OpFOrdGreaterThanEqual {
		return true
	}
	return false
}

// nop blanks the instruction at index i; sweepNops removes the blanks.
func nop(m *ir.Module, i int) {
	m.Instructions[i] = ir.Instruction{Opcode: ir.OpNop}
}

func sweepNops(m *ir.Module) {
	out := m.Instructions[:0]
	for _, inst := range m.Instructions {
		if inst.Opcode != ir.OpNop {
			out = append(out, inst)
		}
	}
	m.Instructions = out
}

// replaceUses rewrites every reference to from as to, leaving the defining
// instruction alone.
func replaceUses(m *ir.Module, from, to uint32) {
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		hasType, hasResult := inst.Opcode.HasResult()
		resultIdx := -1
		if hasResult {
			resultIdx = 0
			if hasType {
				resultIdx = 1
			}
		}
		ir.ForEachID(inst, func(idx int) {
			if idx != resultIdx && inst.Operands[idx] == from {
				inst.Operands[idx] = to
			}
		})
	}
}

// dropDebug nops names and decorations targeting any ID in dead.
func dropDebug(m *ir.Module, dead map[uint32]bool) {
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if isDebugOp(inst.Opcode) && len(inst.Operands) > 0 && dead[inst.Operands[0]] {
			nop(m, i)
		}
	}
}

// constIntValue returns the literal word of a 32-bit OpConstant.
func (in *info) constIntValue(id uint32) (uint32, bool) {
	idx, ok := in.def[id]
	if !ok {
		return 0, false
	}
	inst := &in.m.Instructions[idx]
	if inst.Opcode != ir.OpConstant || len(inst.Operands) != 3 {
		return 0, false
	}
	return inst.Operands[2], true
}

// constBoolValue resolves OpConstantTrue/False.
func (in *info) constBoolValue(id uint32) (bool, bool) {
	idx, ok := in.def[id]
	if !ok {
		return false, false
	}
	switch in.m.Instructions[idx].Opcode {
	case ir.OpConstantTrue:
		return true, true
	case ir.OpConstantFalse:
		return false, true
	}
	return false, false
}

// newID bumps the module bound and returns a fresh ID.
func newID(m *ir.Module) uint32 {
	id := m.Bound
	m.Bound++
	return id
}

// storageClass returns the class literal of an OpVariable definition.
func (in *info) storageClass(varID uint32) (ir.StorageClass, bool) {
	idx, ok := in.def[varID]
	if !ok {
		return 0, false
	}
	inst := &in.m.Instructions[idx]
	if inst.Opcode != ir.OpVariable || len(inst.Operands) < 3 {
		return 0, false
	}
	return ir.StorageClass(inst.Operands[2]), true
}

// insertAt splices instructions into the module at index idx.
func insertAt(m *ir.Module, idx int, insts ...ir.Instruction) {
	m.Instructions = append(m.Instructions[:idx],
		append(insts, m.Instructions[idx:]...)...)
}

// moduleSectionEnd returns the index of the first OpFunction, which is where
// new types and constants get inserted.
func moduleSectionEnd(m *ir.Module) int {
	for i := range m.Instructions {
		if m.Instructions[i].Opcode == ir.OpFunction {
			return i
		}
	}
	return len(m.Instructions)
}

// decorationSectionEnd returns the index just past the last decoration, or
// the start of the type section when there are none.
func decorationSectionEnd(m *ir.Module) int {
	end := -1
	for i := range m.Instructions {
		switch m.Instructions[i].Opcode {
		case ir.OpDecorate, ir.OpMemberDecorate:
			end = i
		}
	}
	if end >= 0 {
		return end + 1
	}
	return moduleSectionEnd(m)
}

// addConstant inserts a 32-bit OpConstant of the given type into the
// module-level section and returns its ID.
func addConstant(m *ir.Module, typeID, value uint32) uint32 {
	id := newID(m)
	insertAt(m, moduleSectionEnd(m), ir.Instruction{
		Opcode:   ir.OpConstant,
		Operands: []uint32{typeID, id, value},
	})
	return id
}

// addBoolConstant inserts OpConstantTrue or OpConstantFalse.
func addBoolConstant(m *ir.Module, typeID uint32, v bool) uint32 {
	id := newID(m)
	op := ir.OpConstantFalse
	if v {
		op = ir.OpConstantTrue
	}
	insertAt(m, moduleSectionEnd(m), ir.Instruction{
		Opcode:   op,
		Operands: []uint32{typeID, id},
	})
	return id
}

// findPointerType returns an existing OpTypePointer for the class and
// pointee, creating one when absent.
func findPointerType(m *ir.Module, class ir.StorageClass, pointee uint32) uint32 {
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpTypePointer && len(inst.Operands) == 3 &&
			ir.StorageClass(inst.Operands[1]) == class && inst.Operands[2] == pointee {
			return inst.Operands[0]
		}
	}
	id := newID(m)
	// The pointee is already declared at module level, so inserting at the
	// section end keeps definitions before uses.
	insertAt(m, moduleSectionEnd(m), ir.Instruction{
		Opcode:   ir.OpTypePointer,
		Operands: []uint32{id, uint32(class), pointee},
	})
	return id
}

// findUintType returns a 32-bit unsigned OpTypeInt, creating one if needed.
func findUintType(m *ir.Module) uint32 {
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpTypeInt && len(inst.Operands) == 3 &&
			inst.Operands[1] == 32 && inst.Operands[2] == 0 {
			return inst.Operands[0]
		}
	}
	id := newID(m)
	insertAt(m, moduleSectionEnd(m), ir.Instruction{
		Opcode:   ir.OpTypeInt,
		Operands: []uint32{id, 32, 0},
	})
	return id
}

// compositeElementType resolves the type of element index of a composite
// type (struct member, vector component, array element, matrix column).
func compositeElementType(in *info, typeID uint32, index uint32) (uint32, bool) {
	idx, ok := in.def[typeID]
	if !ok {
		return 0, false
	}
	inst := &in.m.Instructions[idx]
	switch inst.Opcode {
	case ir.OpTypeStruct:
		members := inst.Operands[1:]
		if int(index) >= len(members) {
			return 0, false
		}
		return members[index], true
	case ir.OpTypeVector, ir.OpTypeMatrix, ir.OpTypeArray:
		if len(inst.Operands) < 2 {
			return 0, false
		}
		return inst.Operands[1], true
	}
	return 0, false
}

// rootVariable chases access chains back to the underlying variable ID.
func (in *info) rootVariable(ptr uint32) uint32 {
	for {
		idx, ok := in.def[ptr]
		if !ok {
			return 0
		}
		inst := &in.m.Instructions[idx]
		switch inst.Opcode {
		case ir.OpVariable:
			return ptr
		case ir.OpAccessChain, ir.OpCopyObject:
			if len(inst.Operands) < 3 {
				return 0
			}
			ptr = inst.Operands[2]
		default:
			return 0
		}
	}
}
