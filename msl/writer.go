package msl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/TomLeeLive/google-filament/ir"
	"github.com/TomLeeLive/google-filament/minify"
	"github.com/TomLeeLive/google-filament/sib"
)

// ResourceBinding records where a shader resource landed after the
// remap: the stage it serves, the descriptor set it was compiled with,
// and the Metal index it was assigned.
type ResourceBinding struct {
	Name  string
	Stage sib.ShaderStage
	Set   uint32
	Index uint16
}

// Output is a cross-compiled shader.
type Output struct {
	// Text is the MSL source, whitespace-stripped. Struct field names
	// survive untouched so host code can keep addressing members.
	Text string

	// Resources lists the remapped textures and buffers in declaration
	// order.
	Resources []ResourceBinding
}

// CrossCompile translates a binary IR module to MSL. Sampled images
// take their texture/sampler index from opts.Bindings; a sampler name
// absent from the map panics with a *BindingError. Uniform buffers keep
// the binding index they were compiled with.
func CrossCompile(words []uint32, opts Options) (Output, error) {
	m, err := ir.Decode(words)
	if err != nil {
		return Output{}, fmt.Errorf("msl: %w", err)
	}
	w := &mslWriter{
		opts:        opts,
		names:       make(map[uint32]string),
		memberNames: make(map[uint32]map[uint32]string),
		locations:   make(map[uint32]uint32),
		builtins:    make(map[uint32]uint32),
		blockTypes:  make(map[uint32]bool),
		attachments: make(map[uint32]uint32),
		sets:        make(map[uint32]uint32),
		bindings:    make(map[uint32]uint32),
		types:       make(map[uint32]*ir.Instruction),
		consts:      make(map[uint32]*ir.Instruction),
		typeOf:      make(map[uint32]uint32),
		varClass:    make(map[uint32]ir.StorageClass),
		exprs:       make(map[uint32]string),
		extSets:     make(map[uint32]bool),
		fnNames:     make(map[uint32]string),
		extras:      make(map[uint32][]uint32),
	}
	if err := w.index(m); err != nil {
		return Output{}, err
	}
	if err := w.emit(); err != nil {
		return Output{}, err
	}
	return Output{
		Text:      minify.RemoveWhitespace(w.buf.String()),
		Resources: w.resources,
	}, nil
}

type mblock struct {
	label uint32
	insts []ir.Instruction
}

type mfunc struct {
	id      uint32
	retType uint32
	params  []ir.Instruction
	blocks  []mblock
	index   map[uint32]int
}

type mloopCtx struct {
	merge uint32
	cont  uint32
}

type mslWriter struct {
	opts Options
	buf  strings.Builder

	names       map[uint32]string
	memberNames map[uint32]map[uint32]string
	locations   map[uint32]uint32
	builtins    map[uint32]uint32
	blockTypes  map[uint32]bool
	attachments map[uint32]uint32
	sets        map[uint32]uint32
	bindings    map[uint32]uint32
	types       map[uint32]*ir.Instruction
	consts      map[uint32]*ir.Instruction
	typeOf      map[uint32]uint32
	varClass    map[uint32]ir.StorageClass
	exprs       map[uint32]string
	extSets     map[uint32]bool
	fnNames     map[uint32]string
	extras      map[uint32][]uint32 // helper fn -> globals it needs as params

	structOrder []uint32
	globalOrder []uint32
	fns         []*mfunc

	entryID uint32
	model   ir.ExecutionModel

	// Entry interface, split by role, in declaration order.
	ins      []uint32
	outs     []uint32
	ubos     []uint32
	textures []uint32
	subpass  []uint32
	privates []uint32

	resources []ResourceBinding

	inEntry bool
	hasOut  bool
	indent  int
}

func (w *mslWriter) index(m *ir.Module) error {
	var cur *mfunc
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if ht, _ := inst.Opcode.HasResult(); ht && len(inst.Operands) >= 2 {
			w.typeOf[inst.Operands[1]] = inst.Operands[0]
		}
		switch inst.Opcode {
		case ir.OpEntryPoint:
			w.model = ir.ExecutionModel(inst.Operands[0])
			w.entryID = inst.Operands[1]
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
			case ir.DecorationLocation:
				w.locations[id] = inst.Operands[2]
			case ir.DecorationBuiltIn:
				w.builtins[id] = inst.Operands[2]
			case ir.DecorationBlock:
				w.blockTypes[id] = true
			case ir.DecorationInputAttachmentIndex:
				w.attachments[id] = inst.Operands[2]
			case ir.DecorationDescriptorSet:
				w.sets[id] = inst.Operands[2]
			case ir.DecorationBinding:
				w.bindings[id] = inst.Operands[2]
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
			cur = &mfunc{
				id:      inst.Operands[1],
				retType: inst.Operands[0],
				index:   make(map[uint32]int),
			}
			w.fns = append(w.fns, cur)
		case ir.OpFunctionParameter:
			cur.params = append(cur.params, *inst)
		case ir.OpLabel:
			cur.index[inst.Operands[0]] = len(cur.blocks)
			cur.blocks = append(cur.blocks, mblock{label: inst.Operands[0]})
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
		if f.id == w.entryID {
			w.fnNames[f.id] = "main0"
		} else {
			w.fnNames[f.id] = w.name(f.id)
		}
	}
	w.splitGlobals()
	w.computeExtras()
	return nil
}

// splitGlobals sorts the module's interface variables into the roles
// the Metal signature needs.
func (w *mslWriter) splitGlobals() {
	for _, vid := range w.globalOrder {
		pointee := w.pointee(w.typeOf[vid])
		switch w.varClass[vid] {
		case ir.ClassInput:
			w.ins = append(w.ins, vid)
		case ir.ClassOutput:
			w.outs = append(w.outs, vid)
		case ir.ClassUniform:
			w.ubos = append(w.ubos, vid)
		case ir.ClassUniformConstant:
			t := w.types[pointee]
			if t != nil && t.Opcode == ir.OpTypeImage && t.Operands[2] == ir.DimSubpassData {
				w.subpass = append(w.subpass, vid)
			} else {
				w.textures = append(w.textures, vid)
			}
		case ir.ClassPrivate:
			w.privates = append(w.privates, vid)
		}
	}
	w.hasOut = len(w.outs) > 0
}

// computeExtras decides which globals each helper function needs as
// parameters. Metal functions cannot reach module scope, so a helper
// that touches a uniform, sampler or interface variable receives it as
// an argument, and callers thread the value through. Calls propagate
// transitively.
func (w *mslWriter) computeExtras() {
	direct := make(map[uint32][]uint32)
	callees := make(map[uint32][]uint32)
	for _, f := range w.fns {
		if f.id == w.entryID {
			continue
		}
		seen := make(map[uint32]bool)
		for bi := range f.blocks {
			for ii := range f.blocks[bi].insts {
				inst := &f.blocks[bi].insts[ii]
				if inst.Opcode == ir.OpFunctionCall {
					callees[f.id] = append(callees[f.id], inst.Operands[2])
				}
				inst.Uses(func(id uint32) {
					if _, ok := w.varClass[id]; ok && !seen[id] {
						seen[id] = true
						direct[f.id] = append(direct[f.id], id)
					}
				})
			}
		}
	}
	for f, d := range direct {
		w.extras[f] = append([]uint32(nil), d...)
	}
	// Propagate callee requirements until stable.
	for changed := true; changed; {
		changed = false
		for f, cs := range callees {
			have := make(map[uint32]bool, len(w.extras[f]))
			for _, id := range w.extras[f] {
				have[id] = true
			}
			for _, c := range cs {
				for _, id := range w.extras[c] {
					if !have[id] {
						have[id] = true
						w.extras[f] = append(w.extras[f], id)
						changed = true
					}
				}
			}
		}
	}
}

func (w *mslWriter) name(id uint32) string {
	if n, ok := w.names[id]; ok && n != "" {
		return n
	}
	return "_" + strconv.FormatUint(uint64(id), 10)
}

func (w *mslWriter) pointee(typeID uint32) uint32 {
	t := w.types[typeID]
	if t != nil && t.Opcode == ir.OpTypePointer {
		return t.Operands[2]
	}
	return typeID
}

func (w *mslWriter) typeText(typeID uint32) string {
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
		if comp != nil {
			switch comp.Opcode {
			case ir.OpTypeInt:
				if comp.Operands[2] == 1 {
					return "int" + n
				}
				return "uint" + n
			case ir.OpTypeBool:
				return "bool" + n
			}
		}
		return "float" + n
	case ir.OpTypeMatrix:
		n := strconv.FormatUint(uint64(t.Operands[2]), 10)
		return "float" + n + "x" + n
	case ir.OpTypeStruct:
		return w.name(t.Operands[0])
	case ir.OpTypeSampledImage, ir.OpTypeImage:
		return "texture2d<float>"
	case ir.OpTypeArray:
		return w.typeText(t.Operands[1])
	case ir.OpTypePointer:
		return w.typeText(t.Operands[2])
	}
	return "void"
}

func (w *mslWriter) declText(typeID uint32, name string) string {
	t := w.types[typeID]
	if t != nil && t.Opcode == ir.OpTypeArray {
		length := w.constIntValue(t.Operands[2])
		return fmt.Sprintf("%s %s[%d]", w.typeText(t.Operands[1]), name, length)
	}
	return w.typeText(typeID) + " " + name
}

func (w *mslWriter) constIntValue(id uint32) int64 {
	c := w.consts[id]
	if c == nil || c.Opcode != ir.OpConstant {
		return 0
	}
	return int64(int32(c.Operands[2]))
}

func (w *mslWriter) constText(id uint32) string {
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

func (w *mslWriter) ref(id uint32) string {
	if _, ok := w.consts[id]; ok {
		return w.constText(id)
	}
	if s, ok := w.exprs[id]; ok {
		return s
	}
	return w.name(id)
}

// ---- emission ----

func (w *mslWriter) line(format string, args ...interface{}) {
	for i := 0; i < w.indent; i++ {
		w.buf.WriteString("    ")
	}
	w.buf.WriteString(fmt.Sprintf(format, args...))
	w.buf.WriteByte('\n')
}

func (w *mslWriter) emit() error {
	if len(w.subpass) > 0 && w.opts.Platform == PlatformMacOS && !w.opts.Version.AtLeast(2, 3) {
		return fmt.Errorf("msl: framebuffer fetch requires MSL 2.3 on macOS, have %s", w.opts.Version)
	}
	w.line("#include <metal_stdlib>")
	w.line("#include <simd/simd.h>")
	w.buf.WriteByte('\n')
	w.line("using namespace metal;")
	w.buf.WriteByte('\n')

	for _, sid := range w.structOrder {
		w.emitStruct(sid)
	}
	w.emitStageIn()
	w.emitStageOut()

	for _, f := range w.fns {
		if f.id == w.entryID {
			if err := w.emitEntry(f); err != nil {
				return err
			}
		} else {
			if err := w.emitHelper(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *mslWriter) emitStruct(sid uint32) {
	t := w.types[sid]
	w.line("struct %s {", w.name(sid))
	w.indent++
	for i, member := range t.Operands[1:] {
		w.line("%s;", w.declText(member, w.memberName(sid, uint32(i))))
	}
	w.indent--
	w.line("};")
	w.buf.WriteByte('\n')
}

func (w *mslWriter) memberName(structID, i uint32) string {
	if mm := w.memberNames[structID]; mm != nil {
		if n, ok := mm[i]; ok && n != "" {
			return n
		}
	}
	return "m" + strconv.FormatUint(uint64(i), 10)
}

func (w *mslWriter) emitStageIn() {
	if len(w.ins) == 0 {
		return
	}
	w.line("struct main0_in {")
	w.indent++
	loc := uint32(0)
	for _, vid := range w.ins {
		pointee := w.pointee(w.typeOf[vid])
		decl := w.declText(pointee, w.name(vid))
		if _, isBuiltin := w.builtins[vid]; isBuiltin {
			w.line("%s [[position]];", decl)
			continue
		}
		l := loc
		if v, ok := w.locations[vid]; ok {
			l = v
		}
		if w.model == ir.ModelVertex {
			w.line("%s [[attribute(%d)]];", decl, l)
		} else {
			w.line("%s [[user(locn%d)]];", decl, l)
		}
		loc = l + 1
	}
	w.indent--
	w.line("};")
	w.buf.WriteByte('\n')
}

func (w *mslWriter) emitStageOut() {
	if !w.hasOut {
		return
	}
	w.line("struct main0_out {")
	w.indent++
	loc := uint32(0)
	for _, vid := range w.outs {
		pointee := w.pointee(w.typeOf[vid])
		decl := w.declText(pointee, w.name(vid))
		if _, isBuiltin := w.builtins[vid]; isBuiltin {
			w.line("%s [[position]];", decl)
			continue
		}
		l := loc
		if v, ok := w.locations[vid]; ok {
			l = v
		}
		if w.model == ir.ModelVertex {
			w.line("%s [[user(locn%d)]];", decl, l)
		} else {
			w.line("%s [[color(%d)]];", decl, l)
		}
		loc = l + 1
	}
	w.indent--
	w.line("};")
	w.buf.WriteByte('\n')
}

// textureIndex resolves a sampled image through the binding map.
func (w *mslWriter) textureIndex(name string) uint16 {
	idx, ok := w.opts.Bindings[name]
	if !ok {
		panic(&BindingError{Name: name})
	}
	return idx
}

func (w *mslWriter) emitEntry(f *mfunc) error {
	var params []string
	if len(w.ins) > 0 {
		params = append(params, "main0_in in [[stage_in]]")
	}
	for _, vid := range w.ubos {
		name := w.name(vid)
		binding := w.bindings[vid]
		params = append(params, fmt.Sprintf("constant %s& %s [[buffer(%d)]]",
			w.typeText(w.pointee(w.typeOf[vid])), name, binding))
		w.resources = append(w.resources, ResourceBinding{
			Name:  name,
			Stage: w.opts.Stage,
			Set:   w.sets[vid],
			Index: uint16(binding),
		})
	}
	for _, vid := range w.textures {
		name := w.name(vid)
		idx := w.textureIndex(name)
		params = append(params,
			fmt.Sprintf("texture2d<float> %s [[texture(%d)]]", name, idx),
			fmt.Sprintf("sampler %sSmplr [[sampler(%d)]]", name, idx))
		w.resources = append(w.resources, ResourceBinding{
			Name:  name,
			Stage: w.opts.Stage,
			Set:   w.sets[vid],
			Index: idx,
		})
	}
	for _, vid := range w.subpass {
		params = append(params, fmt.Sprintf("float4 %s [[color(%d)]]",
			w.name(vid), w.attachments[vid]))
	}

	qualifier := "fragment"
	if w.model == ir.ModelVertex {
		qualifier = "vertex"
	}
	ret := "void"
	if w.hasOut {
		ret = "main0_out"
	}
	w.line("%s %s main0(%s) {", qualifier, ret, strings.Join(params, ", "))
	w.indent++
	if w.hasOut {
		w.line("main0_out out = {};")
	}
	for _, vid := range w.ins {
		w.exprs[vid] = "in." + w.name(vid)
	}
	for _, vid := range w.outs {
		w.exprs[vid] = "out." + w.name(vid)
	}
	for _, vid := range w.privates {
		w.exprs[vid] = w.name(vid)
		w.line("%s;", w.declText(w.pointee(w.typeOf[vid]), w.name(vid)))
	}

	w.inEntry = true
	defer func() { w.inEntry = false }()
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

func (w *mslWriter) emitHelper(f *mfunc) error {
	params := make([]string, 0, len(f.params)+len(w.extras[f.id]))
	for _, p := range f.params {
		pname := w.name(p.Operands[1])
		w.exprs[p.Operands[1]] = pname
		params = append(params, w.declText(p.Operands[0], pname))
	}
	for _, gid := range w.extras[f.id] {
		name := w.name(gid)
		w.exprs[gid] = name
		params = append(params, w.extraParam(gid, name))
	}
	w.line("static %s %s(%s) {", w.typeText(f.retType), w.fnNames[f.id], strings.Join(params, ", "))
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

// extraParam renders a module-scope variable as a helper parameter.
func (w *mslWriter) extraParam(gid uint32, name string) string {
	pointee := w.pointee(w.typeOf[gid])
	switch w.varClass[gid] {
	case ir.ClassUniform:
		return fmt.Sprintf("constant %s& %s", w.typeText(pointee), name)
	case ir.ClassUniformConstant:
		t := w.types[pointee]
		if t != nil && t.Opcode == ir.OpTypeImage && t.Operands[2] == ir.DimSubpassData {
			return "float4 " + name
		}
		return fmt.Sprintf("texture2d<float> %s, sampler %sSmplr", name, name)
	case ir.ClassInput:
		return w.declText(pointee, name)
	default:
		// Output and Private travel by reference.
		return fmt.Sprintf("thread %s& %s", w.typeText(pointee), name)
	}
}

// extraArgs renders the threaded-through globals at a call site.
func (w *mslWriter) extraArgs(callee uint32) []string {
	var args []string
	for _, gid := range w.extras[callee] {
		pointee := w.pointee(w.typeOf[gid])
		t := w.types[pointee]
		isTexture := t != nil &&
			(t.Opcode == ir.OpTypeSampledImage ||
				(t.Opcode == ir.OpTypeImage && t.Operands[2] != ir.DimSubpassData))
		if w.varClass[gid] == ir.ClassUniformConstant && isTexture {
			args = append(args, w.ref(gid), w.ref(gid)+"Smplr")
			continue
		}
		args = append(args, w.ref(gid))
	}
	return args
}

func (w *mslWriter) emitRegion(f *mfunc, start, end uint32, loop *mloopCtx) error {
	label := start
	for label != 0 && label != end {
		idx, ok := f.index[label]
		if !ok {
			return fmt.Errorf("msl: unknown block %%%d", label)
		}
		next, err := w.emitBlockStmts(f, &f.blocks[idx], end, loop)
		if err != nil {
			return err
		}
		label = next
	}
	return nil
}

func (w *mslWriter) emitBlockStmts(f *mfunc, blk *mblock, end uint32, loop *mloopCtx) (uint32, error) {
	insts := blk.insts
	for i := 0; i < len(insts); i++ {
		inst := &insts[i]
		switch inst.Opcode {
		case ir.OpSelectionMerge:
			if i+1 >= len(insts) || insts[i+1].Opcode != ir.OpBranchConditional {
				return 0, fmt.Errorf("msl: selection merge without conditional branch")
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
				return 0, fmt.Errorf("msl: loop merge without branch")
			}
			merge, cont := inst.Operands[0], inst.Operands[1]
			condLabel := insts[i+1].Operands[0]
			inner := &mloopCtx{merge: merge, cont: cont}

			w.line("while (true) {")
			w.indent++
			condIdx, ok := f.index[condLabel]
			if !ok {
				return 0, fmt.Errorf("msl: missing loop condition block")
			}
			bodyLabel, err := w.emitLoopCond(f, &f.blocks[condIdx], merge)
			if err != nil {
				return 0, err
			}
			if err := w.emitRegion(f, bodyLabel, cont, inner); err != nil {
				return 0, err
			}
			if contIdx, ok := f.index[cont]; ok {
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
			return 0, fmt.Errorf("msl: conditional branch without merge")

		case ir.OpReturn:
			if w.inEntry && w.hasOut {
				w.line("return out;")
			} else {
				w.line("return;")
			}
			return 0, nil
		case ir.OpReturnValue:
			w.line("return %s;", w.ref(inst.Operands[0]))
			return 0, nil
		case ir.OpKill:
			w.line("discard_fragment();")
			if w.inEntry && w.hasOut {
				w.line("return out;")
			}
			return 0, nil
		case ir.OpUnreachable:
			return 0, nil

		default:
			if err := w.emitInst(inst); err != nil {
				return 0, err
			}
		}
	}
	return 0, fmt.Errorf("msl: block missing terminator")
}

func (w *mslWriter) emitLoopCond(f *mfunc, blk *mblock, merge uint32) (uint32, error) {
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
				return 0, fmt.Errorf("msl: loop condition does not exit to merge")
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
	return 0, fmt.Errorf("msl: loop condition block has no conditional branch")
}

var mslBinaryOps = map[ir.Opcode]string{
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

var mslExtNames = map[uint32]string{
	ir.GLSLFAbs: "abs", ir.GLSLFloor: "floor", ir.GLSLFract: "fract",
	ir.GLSLSin: "sin", ir.GLSLCos: "cos", ir.GLSLPow: "pow",
	ir.GLSLSqrt: "sqrt", ir.GLSLFMin: "min", ir.GLSLFMax: "max",
	ir.GLSLFClamp: "clamp", ir.GLSLFMix: "mix", ir.GLSLLength: "length",
	ir.GLSLDistance: "distance", ir.GLSLCross: "cross",
	ir.GLSLNormalize: "normalize", ir.GLSLReflect: "reflect",
}

var mslSwizzle = "xyzw"

func (w *mslWriter) emitInst(inst *ir.Instruction) error {
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
		pointee := w.pointee(inst.Operands[0])
		t := w.types[pointee]
		if t != nil && (t.Opcode == ir.OpTypeSampledImage || t.Opcode == ir.OpTypeImage) {
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
			return fmt.Errorf("msl: unknown extended instruction set")
		}
		name, ok := mslExtNames[number]
		if !ok {
			return fmt.Errorf("msl: unknown extended instruction %d", number)
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
		callee := inst.Operands[2]
		args = append(args, w.extraArgs(callee)...)
		text := w.fnNames[callee] + "(" + strings.Join(args, ", ") + ")"
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
		return w.temp(inst, fmt.Sprintf("(%s ? %s : %s)",
			w.ref(inst.Operands[2]), w.ref(inst.Operands[3]), w.ref(inst.Operands[4])))

	case ir.OpConvertSToF, ir.OpConvertUToF, ir.OpFConvert,
		ir.OpConvertFToS, ir.OpConvertFToU:
		return w.temp(inst, w.typeText(inst.Operands[0])+"("+w.ref(inst.Operands[2])+")")
	case ir.OpBitcast:
		return w.temp(inst, fmt.Sprintf("as_type<%s>(%s)",
			w.typeText(inst.Operands[0]), w.ref(inst.Operands[2])))

	case ir.OpDot:
		return w.temp(inst, fmt.Sprintf("dot(%s, %s)",
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

	case ir.OpCopyObject, ir.OpSampledImage:
		w.exprs[inst.Operands[1]] = w.ref(inst.Operands[2])
		return nil

	case ir.OpImageSampleImplicitLod:
		img, coord := w.ref(inst.Operands[2]), w.ref(inst.Operands[3])
		if len(inst.Operands) >= 6 && inst.Operands[4]&ir.ImageOperandsBias != 0 {
			return w.temp(inst, fmt.Sprintf("%s.sample(%sSmplr, %s, bias(%s))",
				img, img, coord, w.ref(inst.Operands[5])))
		}
		return w.temp(inst, fmt.Sprintf("%s.sample(%sSmplr, %s)", img, img, coord))

	case ir.OpImageSampleExplicitLod:
		img, coord := w.ref(inst.Operands[2]), w.ref(inst.Operands[3])
		lod := "0.0"
		if len(inst.Operands) >= 6 && inst.Operands[4]&ir.ImageOperandsLod != 0 {
			lod = w.ref(inst.Operands[5])
		}
		return w.temp(inst, fmt.Sprintf("%s.sample(%sSmplr, %s, level(%s))",
			img, img, coord, lod))

	case ir.OpImageRead:
		// Framebuffer fetch: the subpass variable is already the
		// fetched color value.
		return w.temp(inst, w.ref(inst.Operands[2]))

	case ir.OpNop:
		return nil
	}

	if op, ok := mslBinaryOps[inst.Opcode]; ok {
		return w.temp(inst, fmt.Sprintf("(%s %s %s)",
			w.ref(inst.Operands[2]), op, w.ref(inst.Operands[3])))
	}
	return fmt.Errorf("msl: unsupported instruction %s", inst.Opcode)
}

func (w *mslWriter) voidType(typeID uint32) bool {
	t := w.types[typeID]
	return t == nil || t.Opcode == ir.OpTypeVoid
}

func (w *mslWriter) temp(inst *ir.Instruction, expr string) error {
	id := inst.Operands[1]
	name := w.name(id)
	w.exprs[id] = name
	w.line("%s = %s;", w.declText(inst.Operands[0], name), expr)
	return nil
}

func (w *mslWriter) lvalue(ptr uint32) string {
	if s, ok := w.exprs[ptr]; ok {
		return s
	}
	return w.name(ptr)
}

func (w *mslWriter) chainText(inst *ir.Instruction) string {
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
		case ir.OpTypeArray, ir.OpTypeMatrix:
			text += "[" + w.ref(idx) + "]"
			t = ti.Operands[1]
		case ir.OpTypeVector:
			if c, ok := w.consts[idx]; ok && c.Opcode == ir.OpConstant {
				comp := w.constIntValue(idx)
				if comp >= 0 && comp < 4 {
					text += "." + string(mslSwizzle[comp])
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

func (w *mslWriter) extractStep(text string, typeID, idx uint32) (string, uint32) {
	ti := w.types[typeID]
	if ti == nil {
		return text + "[" + strconv.FormatUint(uint64(idx), 10) + "]", 0
	}
	switch ti.Opcode {
	case ir.OpTypeVector:
		if idx < 4 {
			return text + "." + string(mslSwizzle[idx]), ti.Operands[1]
		}
	case ir.OpTypeStruct:
		return text + "." + w.memberName(ti.Operands[0], idx), ti.Operands[1+idx]
	case ir.OpTypeArray, ir.OpTypeMatrix:
		return text + "[" + strconv.FormatUint(uint64(idx), 10) + "]", ti.Operands[1]
	}
	return text + "[" + strconv.FormatUint(uint64(idx), 10) + "]", 0
}

func (w *mslWriter) emitShuffle(inst *ir.Instruction) error {
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
			sw = append(sw, mslSwizzle[c])
		}
		if allFirst {
			return w.temp(inst, w.ref(v1)+"."+string(sw))
		}
	}
	parts := make([]string, 0, len(comps))
	for _, c := range comps {
		if c < size1 {
			parts = append(parts, w.ref(v1)+"."+string(mslSwizzle[c]))
		} else {
			parts = append(parts, w.ref(v2)+"."+string(mslSwizzle[c-size1]))
		}
	}
	return w.temp(inst, w.typeText(inst.Operands[0])+"("+strings.Join(parts, ", ")+")")
}

func (w *mslWriter) vectorSize(typeID uint32) uint32 {
	t := w.types[typeID]
	if t != nil && t.Opcode == ir.OpTypeVector {
		return t.Operands[2]
	}
	return 4
}
