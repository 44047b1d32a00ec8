package glsl

import (
	"math"
	"strconv"
	"strings"

	"github.com/TomLeeLive/google-filament/ir"
)

// WriterOptions controls the IR-to-source transpiler.
type WriterOptions struct {
	// Version and ES select the #version line.
	Version int
	ES      bool

	// DefaultPrecision becomes the default precision statements on ES
	// targets; desktop targets ignore it.
	DefaultPrecision Precision

	// HeaderLines are emitted verbatim after the version line, one per
	// line. Used for extension directives.
	HeaderLines []string

	// SubpassToColor maps an input attachment index to a color attachment
	// location. When a subpass input variable's attachment index has an
	// entry, the variable becomes an inout color output and reads of it
	// become plain reads of that output.
	SubpassToColor map[uint32]uint32
}

// DefaultWriterOptions targets the mobile profile.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Version:          300,
		ES:               true,
		DefaultPrecision: PrecisionMedium,
	}
}

// Write transpiles a binary IR module back to source text.
func Write(words []uint32, opts WriterOptions) (string, error) {
	m, err := ir.Decode(words)
	if err != nil {
		return "", lowerError("transpile: " + err.Error())
	}
	w := &writer{
		opts:        opts,
		names:       make(map[uint32]string),
		memberNames: make(map[uint32]map[uint32]string),
		relaxed:     make(map[uint32]bool),
		locations:   make(map[uint32]uint32),
		builtins:    make(map[uint32]uint32),
		blockTypes:  make(map[uint32]bool),
		attachments: make(map[uint32]uint32),
		types:       make(map[uint32]*ir.Instruction),
		consts:      make(map[uint32]*ir.Instruction),
		typeOf:      make(map[uint32]uint32),
		varClass:    make(map[uint32]ir.StorageClass),
		exprs:       make(map[uint32]string),
		loadVar:     make(map[uint32]uint32),
		extSets:     make(map[uint32]bool),
		remapped:    make(map[uint32]uint32),
		fnNames:     make(map[uint32]string),
	}
	if err := w.index(m); err != nil {
		return "", err
	}
	if err := w.emit(); err != nil {
		return "", err
	}
	return w.buf.String(), nil
}

type wblock struct {
	label uint32
	insts []ir.Instruction
}

type wfunc struct {
	id      uint32
	retType uint32
	params  []ir.Instruction
	blocks  []wblock
	index   map[uint32]int // label -> block position
}

type loopCtx struct {
	merge uint32
	cont  uint32
}

type writer struct {
	opts WriterOptions
	buf  strings.Builder

	names       map[uint32]string
	memberNames map[uint32]map[uint32]string
	relaxed     map[uint32]bool
	locations   map[uint32]uint32
	builtins    map[uint32]uint32
	blockTypes  map[uint32]bool
	attachments map[uint32]uint32
	types       map[uint32]*ir.Instruction
	consts      map[uint32]*ir.Instruction
	typeOf      map[uint32]uint32
	varClass    map[uint32]ir.StorageClass
	exprs       map[uint32]string
	loadVar     map[uint32]uint32 // load result -> source variable
	extSets     map[uint32]bool   // GLSL.std.450 import IDs
	remapped    map[uint32]uint32 // subpass var -> color location
	fnNames     map[uint32]string

	structOrder []uint32
	globalOrder []uint32
	fns         []*wfunc

	indent int
}

func (w *writer) index(m *ir.Module) error {
	var cur *wfunc
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if ht, _ := inst.Opcode.HasResult(); ht && len(inst.Operands) >= 2 {
			w.typeOf[inst.Operands[1]] = inst.Operands[0]
		}
		switch inst.Opcode {
		case ir.OpName:
			name, _ := ir.DecodeString(inst.Operands, 1)
			w.names[inst.Operands[0]] = name
		case ir.OpMemberName:
			name, _ := ir.DecodeString(inst.Operands, 2)
			mm := w.memberNames[inst.Operands[0]]
			if mm == nil {
				mm = make(map[uint32]string)
				w.memberNames[inst.Operands[0]] = mm
			}
			mm[inst.Operands[1]] = name
		case ir.OpExtInstImport:
			name, _ := ir.DecodeString(inst.Operands, 1)
			if name == "GLSL.std.450" {
				w.extSets[inst.Operands[0]] = true
			}
		case ir.OpDecorate:
			id := inst.Operands[0]
			switch ir.Decoration(inst.Operands[1]) {
			case ir.DecorationRelaxedPrecision:
				w.relaxed[id] = true
			case ir.DecorationLocation:
				w.locations[id] = inst.Operands[2]
			case ir.DecorationBuiltIn:
				w.builtins[id] = inst.Operands[2]
			case ir.DecorationBlock:
				w.blockTypes[id] = true
			case ir.DecorationInputAttachmentIndex:
				w.attachments[id] = inst.Operands[2]
			}
		case ir.OpTypeVoid, ir.OpTypeBool, ir.OpTypeInt, ir.OpTypeFloat,
			ir.OpTypeVector, ir.OpTypeMatrix, ir.OpTypeImage, ir.OpTypeSampler,
			ir.OpTypeSampledImage, ir.OpTypeArray, ir.OpTypePointer,
			ir.OpTypeFunction:
			w.types[inst.Operands[0]] = inst
		case ir.OpTypeStruct:
			w.types[inst.Operands[0]] = inst
			w.structOrder = append(w.structOrder, inst.Operands[0])
		case ir.OpConstant, ir.OpConstantTrue, ir.OpConstantFalse,
			ir.OpConstantComposite:
			w.consts[inst.Operands[1]] = inst
		case ir.OpVariable:
			if cur == nil {
				id := inst.Operands[1]
				w.varClass[id] = ir.StorageClass(inst.Operands[2])
				w.globalOrder = append(w.globalOrder, id)
			} else {
				last := &cur.blocks[len(cur.blocks)-1]
				last.insts = append(last.insts, *inst)
			}
		case ir.OpFunction:
			cur = &wfunc{
				id:      inst.Operands[1],
				retType: inst.Operands[0],
				index:   make(map[uint32]int),
			}
			w.fns = append(w.fns, cur)
		case ir.OpFunctionParameter:
			cur.params = append(cur.params, *inst)
		case ir.OpLabel:
			cur.index[inst.Operands[0]] = len(cur.blocks)
			cur.blocks = append(cur.blocks, wblock{label: inst.Operands[0]})
		case ir.OpFunctionEnd:
			cur = nil
		default:
			if cur != nil && len(cur.blocks) > 0 {
				last := &cur.blocks[len(cur.blocks)-1]
				last.insts = append(last.insts, *inst)
			}
		}
	}
	for _, f := range w.fns {
		w.fnNames[f.id] = w.name(f.id)
	}
	return nil
}

func (w *writer) name(id uint32) string {
	if n, ok := w.names[id]; ok && n != "" {
		return n
	}
	return "_" + strconv.FormatUint(uint64(id), 10)
}

// pointee resolves a pointer type to its target type ID.
func (w *writer) pointee(typeID uint32) uint32 {
	t := w.types[typeID]
	if t != nil && t.Opcode == ir.OpTypePointer {
		return t.Operands[2]
	}
	return typeID
}

func (w *writer) typeText(typeID uint32) string {
	t := w.types[typeID]
	if t == nil {
		return "void"
	}
	switch t.Opcode {
	case ir.OpTypeVoid:
		return "void"
	case ir.OpTypeBool:
		return "bool"
	case ir.OpTypeInt:
		if t.Operands[2] == 1 {
			return "int"
		}
		return "uint"
	case ir.OpTypeFloat:
		return "float"
	case ir.OpTypeVector:
		comp := w.types[t.Operands[1]]
		n := strconv.FormatUint(uint64(t.Operands[2]), 10)
		if comp != nil && comp.Opcode == ir.OpTypeInt {
			if comp.Operands[2] == 1 {
				return "ivec" + n
			}
			return "uvec" + n
		}
		return "vec" + n
	case ir.OpTypeMatrix:
		return "mat" + strconv.FormatUint(uint64(t.Operands[2]), 10)
	case ir.OpTypeStruct:
		return w.name(t.Operands[0])
	case ir.OpTypeSampledImage:
		return "sampler2D"
	case ir.OpTypeImage:
		if t.Operands[2] == ir.DimSubpassData {
			return "subpassInput"
		}
		return "sampler2D"
	case ir.OpTypeArray:
		return w.typeText(t.Operands[1])
	case ir.OpTypePointer:
		return w.typeText(t.Operands[2])
	}
	return "void"
}

// declText renders a declaration, handling the trailing array suffix.
func (w *writer) declText(typeID uint32, name string) string {
	t := w.types[typeID]
	if t != nil && t.Opcode == ir.OpTypeArray {
		length := w.constIntValue(t.Operands[2])
		return sprintf("%s %s[%d]", w.typeText(t.Operands[1]), name, length)
	}
	return w.typeText(typeID) + " " + name
}

func (w *writer) constIntValue(id uint32) int64 {
	c := w.consts[id]
	if c == nil || c.Opcode != ir.OpConstant {
		return 0
	}
	return int64(int32(c.Operands[2]))
}

func (w *writer) constText(id uint32) string {
	c := w.consts[id]
	switch c.Opcode {
	case ir.OpConstantTrue:
		return "true"
	case ir.OpConstantFalse:
		return "false"
	case ir.OpConstant:
		t := w.types[c.Operands[0]]
		if t.Opcode == ir.OpTypeFloat {
			return formatFloat(math.Float32frombits(c.Operands[2]))
		}
		if t.Operands[2] == 1 {
			return strconv.FormatInt(int64(int32(c.Operands[2])), 10)
		}
		return strconv.FormatUint(uint64(c.Operands[2]), 10) + "u"
	case ir.OpConstantComposite:
		parts := make([]string, 0, len(c.Operands)-2)
		for _, comp := range c.Operands[2:] {
			parts = append(parts, w.constText(comp))
		}
		return w.typeText(c.Operands[0]) + "(" + strings.Join(parts, ", ") + ")"
	}
	return "0"
}

func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ref renders a use of an ID.
func (w *writer) ref(id uint32) string {
	if _, ok := w.consts[id]; ok {
		return w.constText(id)
	}
	if s, ok := w.exprs[id]; ok {
		return s
	}
	if _, ok := w.varClass[id]; ok {
		return w.name(id)
	}
	return w.name(id)
}

// ---- emission ----

func (w *writer) line(format string, args ...interface{}) {
	for i := 0; i < w.indent; i++ {
		w.buf.WriteString("    ")
	}
	w.buf.WriteString(sprintf(format, args...))
	w.buf.WriteByte('\n')
}

func (w *writer) emit() error {
	if w.opts.ES {
		w.line("#version %d es", w.opts.Version)
	} else {
		w.line("#version %d", w.opts.Version)
	}
	for _, h := range w.opts.HeaderLines {
		w.line("%s", h)
	}
	if w.opts.ES {
		q := precisionText(w.opts.DefaultPrecision)
		w.line("precision %s float;", q)
		w.line("precision %s int;", q)
	}
	w.buf.WriteByte('\n')

	for _, sid := range w.structOrder {
		if w.blockTypes[sid] {
			continue
		}
		w.emitStruct(sid)
	}
	for _, vid := range w.globalOrder {
		if err := w.emitGlobal(vid); err != nil {
			return err
		}
	}
	w.buf.WriteByte('\n')
	for _, f := range w.fns {
		if err := w.emitFunction(f); err != nil {
			return err
		}
	}
	return nil
}

func precisionText(p Precision) string {
	switch p {
	case PrecisionLow:
		return "lowp"
	case PrecisionHigh:
		return "highp"
	default:
		return "mediump"
	}
}

func (w *writer) emitStruct(sid uint32) {
	t := w.types[sid]
	w.line("struct %s {", w.name(sid))
	w.indent++
	for i, member := range t.Operands[1:] {
		name := w.memberName(sid, uint32(i))
		w.line("%s;", w.declText(member, name))
	}
	w.indent--
	w.line("};")
}

func (w *writer) memberName(structID, i uint32) string {
	if mm := w.memberNames[structID]; mm != nil {
		if n, ok := mm[i]; ok && n != "" {
			return n
		}
	}
	return "m" + strconv.FormatUint(uint64(i), 10)
}

func (w *writer) emitGlobal(vid uint32) error {
	class := w.varClass[vid]
	pointee := w.pointee(w.typeOf[vid])
	name := w.name(vid)

	if _, isBuiltin := w.builtins[vid]; isBuiltin {
		return nil
	}

	relaxedQ := ""
	if w.relaxed[vid] && w.opts.ES {
		relaxedQ = "mediump "
	}

	switch class {
	case ir.ClassInput, ir.ClassOutput:
		dir := "in"
		if class == ir.ClassOutput {
			dir = "out"
		}
		if loc, ok := w.locations[vid]; ok {
			w.line("layout(location = %d) %s %s%s;", loc, dir, relaxedQ, w.declText(pointee, name))
		} else {
			w.line("%s %s%s;", dir, relaxedQ, w.declText(pointee, name))
		}
	case ir.ClassUniformConstant:
		t := w.types[pointee]
		if t != nil && t.Opcode == ir.OpTypeImage && t.Operands[2] == ir.DimSubpassData {
			attachment := w.attachments[vid]
			if loc, ok := w.opts.SubpassToColor[attachment]; ok {
				w.remapped[vid] = loc
				w.line("layout(location = %d) inout %svec4 %s;", loc, relaxedQ, name)
				return nil
			}
			w.line("layout(input_attachment_index = %d) uniform %s %s;", attachment, w.typeText(pointee), name)
			return nil
		}
		w.line("uniform %s %s;", w.typeText(pointee), name)
	case ir.ClassUniform:
		w.emitBlock(vid, pointee)
	case ir.ClassPrivate:
		w.line("%s%s;", relaxedQ, w.declText(pointee, name))
	default:
		return lowerError(sprintf("unsupported storage class %d on %q", class, name))
	}
	return nil
}

func (w *writer) emitBlock(vid, structID uint32) {
	w.line("layout(std140) uniform %s {", w.name(structID))
	w.indent++
	t := w.types[structID]
	for i, member := range t.Operands[1:] {
		w.line("%s;", w.declText(member, w.memberName(structID, uint32(i))))
	}
	w.indent--
	w.line("} %s;", w.name(vid))
}

func (w *writer) emitFunction(f *wfunc) error {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		pname := w.name(p.Operands[1])
		w.exprs[p.Operands[1]] = pname
		params[i] = w.declText(p.Operands[0], pname)
	}
	w.line("%s %s(%s) {", w.typeText(f.retType), w.fnNames[f.id], strings.Join(params, ", "))
	w.indent++
	if len(f.blocks) > 0 {
		if err := w.emitRegion(f, f.blocks[0].label, 0, nil); err != nil {
			return err
		}
	}
	w.indent--
	w.line("}")
	w.buf.WriteByte('\n')
	return nil
}

// emitRegion emits blocks sequentially from start until the end label (or,
// when end is 0, until the function returns).
func (w *writer) emitRegion(f *wfunc, start, end uint32, loop *loopCtx) error {
	label := start
	for label != 0 && label != end {
		idx, ok := f.index[label]
		if !ok {
			return lowerError(sprintf("transpile: unknown block %%%d", label))
		}
		next, err := w.emitBlockStmts(f, &f.blocks[idx], end, loop)
		if err != nil {
			return err
		}
		label = next
	}
	return nil
}

// emitBlockStmts emits one basic block's statements and returns the label to
// continue with (0 when the region is done).
func (w *writer) emitBlockStmts(f *wfunc, blk *wblock, end uint32, loop *loopCtx) (uint32, error) {
	insts := blk.insts
	for i := 0; i < len(insts); i++ {
		inst := &insts[i]
		switch inst.Opcode {
		case ir.OpSelectionMerge:
			if i+1 >= len(insts) || insts[i+1].Opcode != ir.OpBranchConditional {
				return 0, lowerError("transpile: selection merge without conditional branch")
			}
			br := &insts[i+1]
			merge := inst.Operands[0]
			cond, tgtTrue, tgtFalse := br.Operands[0], br.Operands[1], br.Operands[2]
			if tgtTrue == merge {
				w.line("if (!(%s)) {", w.ref(cond))
				w.indent++
				if err := w.emitRegion(f, tgtFalse, merge, loop); err != nil {
					return 0, err
				}
				w.indent--
				w.line("}")
				return merge, nil
			}
			w.line("if (%s) {", w.ref(cond))
			w.indent++
			if err := w.emitRegion(f, tgtTrue, merge, loop); err != nil {
				return 0, err
			}
			w.indent--
			if tgtFalse != merge {
				w.line("} else {")
				w.indent++
				if err := w.emitRegion(f, tgtFalse, merge, loop); err != nil {
					return 0, err
				}
				w.indent--
			}
			w.line("}")
			return merge, nil

		case ir.OpLoopMerge:
			if i+1 >= len(insts) || insts[i+1].Opcode != ir.OpBranch {
				return 0, lowerError("transpile: loop merge without branch")
			}
			merge, cont := inst.Operands[0], inst.Operands[1]
			condLabel := insts[i+1].Operands[0]
			inner := &loopCtx{merge: merge, cont: cont}

			w.line("while (true) {")
			w.indent++
			condIdx, ok := f.index[condLabel]
			if !ok {
				return 0, lowerError("transpile: missing loop condition block")
			}
			condBlk := &f.blocks[condIdx]
			bodyLabel, err := w.emitLoopCond(f, condBlk, merge)
			if err != nil {
				return 0, err
			}
			if err := w.emitRegion(f, bodyLabel, cont, inner); err != nil {
				return 0, err
			}
			contIdx, ok := f.index[cont]
			if ok {
				if _, err := w.emitBlockStmts(f, &f.blocks[contIdx], 0, nil); err != nil {
					return 0, err
				}
			}
			w.indent--
			w.line("}")
			return merge, nil

		case ir.OpBranch:
			target := inst.Operands[0]
			if loop != nil {
				if target == loop.cont {
					if target != end {
						w.line("continue;")
					}
					return 0, nil
				}
				if target == loop.merge {
					w.line("break;")
					return 0, nil
				}
			}
			return target, nil

		case ir.OpBranchConditional:
			return 0, lowerError("transpile: conditional branch without merge")

		case ir.OpReturn:
			w.line("return;")
			return 0, nil
		case ir.OpReturnValue:
			w.line("return %s;", w.ref(inst.Operands[0]))
			return 0, nil
		case ir.OpKill:
			w.line("discard;")
			return 0, nil
		case ir.OpUnreachable:
			return 0, nil

		default:
			if err := w.emitInst(inst); err != nil {
				return 0, err
			}
		}
	}
	return 0, lowerError("transpile: block missing terminator")
}

// emitLoopCond emits the loop condition block as an inverted break test and
// returns the body's label. The header of a loop always branches to a block
// whose conditional jumps to the body or the merge.
func (w *writer) emitLoopCond(f *wfunc, blk *wblock, merge uint32) (uint32, error) {
	for i := 0; i < len(blk.insts); i++ {
		inst := &blk.insts[i]
		if inst.Opcode == ir.OpBranchConditional {
			cond, tgtTrue, tgtFalse := inst.Operands[0], inst.Operands[1], inst.Operands[2]
			if tgtFalse == merge {
				w.line("if (!(%s)) {", w.ref(cond))
			} else if tgtTrue == merge {
				w.line("if (%s) {", w.ref(cond))
				tgtTrue = tgtFalse
			} else {
				return 0, lowerError("transpile: loop condition does not exit to merge")
			}
			w.indent++
			w.line("break;")
			w.indent--
			w.line("}")
			return tgtTrue, nil
		}
		if err := w.emitInst(inst); err != nil {
			return 0, err
		}
	}
	return 0, lowerError("transpile: loop condition block has no conditional branch")
}

var binaryOps = map[ir.Opcode]string{
	ir.OpIAdd: "+", ir.OpFAdd: "+",
	ir.OpISub: "-", ir.OpFSub: "-",
	ir.OpIMul: "*", ir.OpFMul: "*",
	ir.OpUDiv: "/", ir.OpSDiv: "/", ir.OpFDiv: "/",
	ir.OpUMod: "%", ir.OpSMod: "%",
	ir.OpVectorTimesScalar: "*", ir.OpMatrixTimesScalar: "*",
	ir.OpMatrixTimesVector: "*", ir.OpMatrixTimesMatrix: "*",
	ir.OpLogicalAnd: "&&", ir.OpLogicalOr: "||",
	ir.OpIEqual: "==", ir.OpFOrdEqual: "==",
	ir.OpINotEqual: "!=", ir.OpFOrdNotEqual: "!=",
	ir.OpULessThan: "<", ir.OpSLessThan: "<", ir.OpFOrdLessThan: "<",
	ir.OpULessThanEqual: "<=", ir.OpSLessThanEqual: "<=", ir.OpFOrdLessThanEqual: "<=",
	ir.OpUGreaterThan: ">", ir.OpSGreaterThan: ">", ir.OpFOrdGreaterThan: ">",
	ir.OpUGreaterThanEqual: ">=", ir.OpSGreaterThanEqual: ">=", ir.OpFOrdGreaterThanEqual: ">=",
}

var extNames = map[uint32]string{
	ir.GLSLFAbs: "abs", ir.GLSLFloor: "floor", ir.GLSLFract: "fract",
	ir.GLSLSin: "sin", ir.GLSLCos: "cos", ir.GLSLPow: "pow",
	ir.GLSLSqrt: "sqrt", ir.GLSLFMin: "min", ir.GLSLFMax: "max",
	ir.GLSLFClamp: "clamp", ir.GLSLFMix: "mix", ir.GLSLLength: "length",
	ir.GLSLDistance: "distance", ir.GLSLCross: "cross",
	ir.GLSLNormalize: "normalize", ir.GLSLReflect: "reflect",
}

var swizzleLetters = "xyzw"

// emitInst handles value-producing and store instructions inside a block.
func (w *writer) emitInst(inst *ir.Instruction) error {
	switch inst.Opcode {
	case ir.OpVariable:
		id := inst.Operands[1]
		pointee := w.pointee(inst.Operands[0])
		w.varClass[id] = ir.StorageClass(inst.Operands[2])
		w.typeOf[id] = inst.Operands[0]
		w.line("%s;", w.declText(pointee, w.name(id)))
		return nil

	case ir.OpStore:
		w.line("%s = %s;", w.lvalue(inst.Operands[0]), w.ref(inst.Operands[1]))
		return nil

	case ir.OpLoad:
		id := inst.Operands[1]
		src := inst.Operands[2]
		w.loadVar[id] = src
		pointee := w.pointee(inst.Operands[0])
		t := w.types[pointee]
		if t != nil && (t.Opcode == ir.OpTypeSampledImage || t.Opcode == ir.OpTypeImage) {
			// Opaque handles read straight through, never via a temp.
			w.exprs[id] = w.lvalue(src)
			return nil
		}
		return w.temp(inst, w.lvalue(src))

	case ir.OpAccessChain:
		w.exprs[inst.Operands[1]] = w.chainText(inst)
		return nil

	case ir.OpExtInst:
		set, number := inst.Operands[2], inst.Operands[3]
		if !w.extSets[set] {
			return lowerError("transpile: unknown extended instruction set")
		}
		name, ok := extNames[number]
		if !ok {
			return lowerError(sprintf("transpile: unknown extended instruction %d", number))
		}
		args := make([]string, 0, len(inst.Operands)-4)
		for _, a := range inst.Operands[4:] {
			args = append(args, w.ref(a))
		}
		return w.temp(inst, name+"("+strings.Join(args, ", ")+")")

	case ir.OpFunctionCall:
		args := make([]string, 0, len(inst.Operands)-3)
		for _, a := range inst.Operands[3:] {
			args = append(args, w.ref(a))
		}
		callee := w.fnNames[inst.Operands[2]]
		text := callee + "(" + strings.Join(args, ", ") + ")"
		if w.voidType(inst.Operands[0]) {
			w.line("%s;", text)
			return nil
		}
		return w.temp(inst, text)

	case ir.OpFNegate, ir.OpSNegate:
		return w.temp(inst, "(-"+w.ref(inst.Operands[2])+")")
	case ir.OpLogicalNot:
		return w.temp(inst, "(!"+w.ref(inst.Operands[2])+")")

	case ir.OpSelect:
		return w.temp(inst, sprintf("(%s ? %s : %s)",
			w.ref(inst.Operands[2]), w.ref(inst.Operands[3]), w.ref(inst.Operands[4])))

	case ir.OpConvertSToF, ir.OpConvertUToF, ir.OpFConvert:
		return w.temp(inst, w.typeText(inst.Operands[0])+"("+w.ref(inst.Operands[2])+")")
	case ir.OpConvertFToS, ir.OpConvertFToU, ir.OpBitcast:
		return w.temp(inst, w.typeText(inst.Operands[0])+"("+w.ref(inst.Operands[2])+")")

	case ir.OpDot:
		return w.temp(inst, sprintf("dot(%s, %s)",
			w.ref(inst.Operands[2]), w.ref(inst.Operands[3])))

	case ir.OpCompositeConstruct:
		args := make([]string, 0, len(inst.Operands)-2)
		for _, a := range inst.Operands[2:] {
			args = append(args, w.ref(a))
		}
		return w.temp(inst, w.typeText(inst.Operands[0])+"("+strings.Join(args, ", ")+")")

	case ir.OpCompositeExtract:
		base := inst.Operands[2]
		text := w.ref(base)
		t := w.typeOf[base]
		for _, idx := range inst.Operands[3:] {
			text, t = w.extractStep(text, t, idx)
		}
		return w.temp(inst, text)

	case ir.OpCompositeInsert:
		// Copy the composite, then overwrite the one element.
		id := inst.Operands[1]
		name := w.name(id)
		w.exprs[id] = name
		w.line("%s = %s;", w.declText(inst.Operands[0], name), w.ref(inst.Operands[3]))
		text, t := name, inst.Operands[0]
		for _, idx := range inst.Operands[4:] {
			text, t = w.extractStep(text, t, idx)
		}
		w.line("%s = %s;", text, w.ref(inst.Operands[2]))
		return nil

	case ir.OpVectorShuffle:
		return w.emitShuffle(inst)

	case ir.OpCopyObject:
		w.exprs[inst.Operands[1]] = w.ref(inst.Operands[2])
		return nil

	case ir.OpSampledImage:
		w.exprs[inst.Operands[1]] = w.ref(inst.Operands[2])
		return nil

	case ir.OpImageSampleImplicitLod:
		img, coord := w.ref(inst.Operands[2]), w.ref(inst.Operands[3])
		if len(inst.Operands) >= 6 && inst.Operands[4]&ir.ImageOperandsBias != 0 {
			return w.temp(inst, sprintf("texture(%s, %s, %s)", img, coord, w.ref(inst.Operands[5])))
		}
		return w.temp(inst, sprintf("texture(%s, %s)", img, coord))

	case ir.OpImageSampleExplicitLod:
		img, coord := w.ref(inst.Operands[2]), w.ref(inst.Operands[3])
		if len(inst.Operands) >= 6 && inst.Operands[4]&ir.ImageOperandsLod != 0 {
			return w.temp(inst, sprintf("textureLod(%s, %s, %s)", img, coord, w.ref(inst.Operands[5])))
		}
		return w.temp(inst, sprintf("textureLod(%s, %s, 0.0)", img, coord))

	case ir.OpImageRead:
		src := w.loadVar[inst.Operands[2]]
		if _, ok := w.remapped[src]; ok {
			return w.temp(inst, w.name(src))
		}
		return w.temp(inst, sprintf("subpassLoad(%s)", w.ref(inst.Operands[2])))

	case ir.OpNop:
		return nil
	}

	if op, ok := binaryOps[inst.Opcode]; ok {
		return w.temp(inst, sprintf("(%s %s %s)",
			w.ref(inst.Operands[2]), op, w.ref(inst.Operands[3])))
	}
	return lowerError(sprintf("transpile: unsupported instruction %s", inst.Opcode))
}

func (w *writer) voidType(typeID uint32) bool {
	t := w.types[typeID]
	return t == nil || t.Opcode == ir.OpTypeVoid
}

// temp declares a named temporary holding the expression.
func (w *writer) temp(inst *ir.Instruction, expr string) error {
	id := inst.Operands[1]
	name := w.name(id)
	w.exprs[id] = name
	w.line("%s = %s;", w.declText(inst.Operands[0], name), expr)
	return nil
}

func (w *writer) lvalue(ptr uint32) string {
	if s, ok := w.exprs[ptr]; ok {
		return s
	}
	return w.name(ptr)
}

// chainText renders an access chain as nested member/index accesses.
func (w *writer) chainText(inst *ir.Instruction) string {
	base := inst.Operands[2]
	text := w.lvalue(base)
	t := w.pointee(w.typeOf[base])
	for _, idx := range inst.Operands[3:] {
		ti := w.types[t]
		if ti == nil {
			return text
		}
		switch ti.Opcode {
		case ir.OpTypeStruct:
			member := uint32(w.constIntValue(idx))
			text += "." + w.memberName(ti.Operands[0], member)
			t = ti.Operands[1+member]
		case ir.OpTypeArray:
			text += "[" + w.ref(idx) + "]"
			t = ti.Operands[1]
		case ir.OpTypeMatrix:
			text += "[" + w.ref(idx) + "]"
			t = ti.Operands[1]
		case ir.OpTypeVector:
			if c, ok := w.consts[idx]; ok && c.Opcode == ir.OpConstant {
				comp := w.constIntValue(idx)
				if comp >= 0 && comp < 4 {
					text += "." + string(swizzleLetters[comp])
					t = ti.Operands[1]
					continue
				}
			}
			text += "[" + w.ref(idx) + "]"
			t = ti.Operands[1]
		default:
			text += "[" + w.ref(idx) + "]"
		}
	}
	return text
}

func (w *writer) extractStep(text string, typeID, idx uint32) (string, uint32) {
	ti := w.types[typeID]
	if ti == nil {
		return text + "[" + strconv.FormatUint(uint64(idx), 10) + "]", 0
	}
	switch ti.Opcode {
	case ir.OpTypeVector:
		if idx < 4 {
			return text + "." + string(swizzleLetters[idx]), ti.Operands[1]
		}
	case ir.OpTypeStruct:
		return text + "." + w.memberName(ti.Operands[0], idx), ti.Operands[1+idx]
	case ir.OpTypeArray:
		return text + "[" + strconv.FormatUint(uint64(idx), 10) + "]", ti.Operands[1]
	case ir.OpTypeMatrix:
		return text + "[" + strconv.FormatUint(uint64(idx), 10) + "]", ti.Operands[1]
	}
	return text + "[" + strconv.FormatUint(uint64(idx), 10) + "]", 0
}

func (w *writer) emitShuffle(inst *ir.Instruction) error {
	v1, v2 := inst.Operands[2], inst.Operands[3]
	comps := inst.Operands[4:]
	size1 := w.vectorSize(w.typeOf[v1])

	allFirst := true
	for _, c := range comps {
		if c >= size1 {
			allFirst = false
			break
		}
	}
	if v1 == v2 || allFirst {
		sw := make([]byte, 0, len(comps))
		for _, c := range comps {
			if c >= 4 {
				allFirst = false
				break
			}
			sw = append(sw, swizzleLetters[c])
		}
		if allFirst {
			return w.temp(inst, w.ref(v1)+"."+string(sw))
		}
	}
	parts := make([]string, 0, len(comps))
	for _, c := range comps {
		if c < size1 {
			parts = append(parts, w.ref(v1)+"."+string(swizzleLetters[c]))
		} else {
			parts = append(parts, w.ref(v2)+"."+string(swizzleLetters[c-size1]))
		}
	}
	return w.temp(inst, w.typeText(inst.Operands[0])+"("+strings.Join(parts, ", ")+")")
}

func (w *writer) vectorSize(typeID uint32) uint32 {
	t := w.types[typeID]
	if t != nil && t.Opcode == ir.OpTypeVector {
		return t.Operands[2]
	}
	return 4
}
