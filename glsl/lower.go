package glsl

import (
	"math"

	"github.com/TomLeeLive/google-filament/ir"
)

// Stage selects the pipeline stage being lowered.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
)

// LowerOptions controls IR generation.
type LowerOptions struct {
	Stage Stage

	// LocalNames emits debug names for function-local variables. Names for
	// globals, resources and functions are always emitted because later
	// stages resolve bindings by name.
	LocalNames bool
}

// Lower generates the binary IR for a linked program. The emitted module
// keeps structured control flow: every divergence carries a merge
// instruction so downstream consumers can rebuild source-level ifs and
// loops without a structurizer.
func Lower(program *Program, opts LowerOptions) ([]uint32, error) {
	lw := &lowerer{
		program:      program,
		opts:         opts,
		b:            ir.NewBuilder(),
		globals:      make(map[string]*varRef),
		constGlobals: make(map[string]value),
		blockVars:    make(map[string]*blockVar),
		structTypes:  make(map[*StructDecl]uint32),
		fns:          make(map[string]*fnInfo),
	}
	if err := lw.run(); err != nil {
		return nil, err
	}
	return lw.b.Words(), nil
}

type value struct {
	id      uint32
	t       Type
	relaxed bool
}

type varRef struct {
	ptr     uint32
	class   ir.StorageClass
	t       Type
	relaxed bool
}

type blockVar struct {
	decl     *BlockDecl
	ptr      uint32
	structID uint32
}

type fnInfo struct {
	decl    *FunctionDecl
	id      uint32
	typeID  uint32
	ret     Type
	params  []Type
	relaxed bool
}

type localVar struct {
	ptr     uint32
	t       Type
	relaxed bool
}

type lowerer struct {
	program *Program
	opts    LowerOptions
	b       *ir.Builder

	globals      map[string]*varRef
	constGlobals map[string]value
	blockVars    map[string]*blockVar
	structTypes  map[*StructDecl]uint32
	fns          map[string]*fnInfo

	interfaces []uint32 // input/output variable IDs for the entry point

	extSet uint32 // GLSL.std.450 import, 0 until first use

	// Per-function state.
	scopes     []map[string]*localVar
	locals     map[*DeclStmt]*localVar
	loops      []loopLabels
	terminated bool
}

type loopLabels struct {
	merge uint32
	cont  uint32
}

func lowerError(message string) error {
	return &Error{Kind: ErrLower, Message: message}
}

func (lw *lowerer) run() error {
	lw.b.AddCapability(ir.CapabilityShader)
	for _, g := range lw.program.Shader.Globals {
		if g.Type.Name == "subpassInput" {
			lw.b.AddCapability(ir.CapabilityInputAttachment)
			break
		}
	}
	lw.b.SetMemoryModel(ir.AddressingLogical, ir.MemoryGLSL450)

	if err := lw.emitGlobals(); err != nil {
		return err
	}
	if err := lw.emitBlocks(); err != nil {
		return err
	}
	lw.declareFunctions()
	for _, f := range lw.program.Shader.Functions {
		if err := lw.lowerFunction(f); err != nil {
			return err
		}
	}

	main := lw.fns["main"]
	model := ir.ModelVertex
	if lw.opts.Stage == StageFragment {
		model = ir.ModelFragment
	}
	lw.b.AddEntryPoint(model, main.id, "main", lw.interfaces)
	if lw.opts.Stage == StageFragment {
		lw.b.AddExecutionMode(main.id, ir.ExecModeOriginUpperLeft)
	}
	return nil
}

func (lw *lowerer) ext() uint32 {
	if lw.extSet == 0 {
		lw.extSet = lw.b.AddExtInstImport("GLSL.std.450")
	}
	return lw.extSet
}

// ---- types ----

func (lw *lowerer) typeID(t Type) uint32 {
	b := lw.b
	switch t.Kind {
	case TVoid:
		return b.Type(ir.OpTypeVoid)
	case TBool:
		return b.Type(ir.OpTypeBool)
	case TInt:
		return b.Type(ir.OpTypeInt, 32, 1)
	case TUInt:
		return b.Type(ir.OpTypeInt, 32, 0)
	case TFloat:
		return b.Type(ir.OpTypeFloat, 32)
	case TVec:
		return b.Type(ir.OpTypeVector, lw.typeID(Type{Kind: TFloat}), uint32(t.Size))
	case TMat:
		col := Type{Kind: TVec, Size: t.Size}
		return b.Type(ir.OpTypeMatrix, lw.typeID(col), uint32(t.Size))
	case TArray:
		length := lw.constInt(t.Len)
		return b.Type(ir.OpTypeArray, lw.typeID(*t.Elem), length)
	case TStruct:
		return lw.structTypeID(t.Struct)
	case TSampler2D:
		img := b.Type(ir.OpTypeImage, lw.typeID(Type{Kind: TFloat}),
			ir.Dim2D, 0, 0, 0, 1, 0)
		return b.Type(ir.OpTypeSampledImage, img)
	case TSubpassInput:
		return b.Type(ir.OpTypeImage, lw.typeID(Type{Kind: TFloat}),
			ir.DimSubpassData, 0, 0, 0, 2, 0)
	}
	panic("glsl: typeID on invalid type")
}

func (lw *lowerer) structTypeID(decl *StructDecl) uint32 {
	if id, ok := lw.structTypes[decl]; ok {
		return id
	}
	members := make([]uint32, len(decl.Members))
	for i, m := range decl.Members {
		t, _ := (&linker{program: lw.program}).resolveTypeSpec(m.Type, decl.Line)
		members[i] = lw.typeID(t)
	}
	id := lw.b.StructType(members)
	lw.b.AddName(id, decl.Name)
	for i, m := range decl.Members {
		lw.b.AddMemberName(id, uint32(i), m.Name)
	}
	lw.structTypes[decl] = id
	return id
}

func (lw *lowerer) ptrType(class ir.StorageClass, t Type) uint32 {
	return lw.b.Type(ir.OpTypePointer, uint32(class), lw.typeID(t))
}

// ---- constants ----

func (lw *lowerer) constInt(v int) uint32 {
	return lw.b.Constant(lw.typeID(Type{Kind: TInt}), uint32(int32(v)))
}

func (lw *lowerer) constUInt(v uint32) uint32 {
	return lw.b.Constant(lw.typeID(Type{Kind: TUInt}), v)
}

func (lw *lowerer) constFloat(v float64) uint32 {
	return lw.b.Constant(lw.typeID(Type{Kind: TFloat}), math.Float32bits(float32(v)))
}

// ---- module scope ----

func (lw *lowerer) emitGlobals() error {
	for _, g := range lw.program.Shader.Globals {
		t, err := (&linker{program: lw.program}).resolveTypeSpec(g.Type, g.Line)
		if err != nil {
			return err
		}
		relaxed := lw.program.EffectivePrecision(g.Type).Relaxed() && t.FloatBased()
		switch g.Storage {
		case StorageConst:
			if g.Init == nil {
				return lowerError(sprintf("const %q has no initializer", g.Name))
			}
			v, err := lw.evalConst(g.Init, t)
			if err != nil {
				return err
			}
			v.relaxed = relaxed
			lw.constGlobals[g.Name] = v

		case StorageIn, StorageOut:
			class := ir.ClassInput
			if g.Storage == StorageOut {
				class = ir.ClassOutput
			}
			id := lw.b.GlobalVariable(lw.ptrType(class, t), class)
			lw.b.AddName(id, g.Name)
			if g.Layout.Location >= 0 {
				lw.b.Decorate(id, ir.DecorationLocation, uint32(g.Layout.Location))
			}
			if relaxed {
				lw.b.Decorate(id, ir.DecorationRelaxedPrecision)
			}
			lw.globals[g.Name] = &varRef{ptr: id, class: class, t: t, relaxed: relaxed}
			lw.interfaces = append(lw.interfaces, id)

		case StorageUniform:
			if t.Kind != TSampler2D && t.Kind != TSubpassInput {
				return lowerError(sprintf(
					"uniform %q must be an opaque type or live in a uniform block", g.Name))
			}
			id := lw.b.GlobalVariable(lw.ptrType(ir.ClassUniformConstant, t), ir.ClassUniformConstant)
			lw.b.AddName(id, g.Name)
			if g.Layout.Set >= 0 {
				lw.b.Decorate(id, ir.DecorationDescriptorSet, uint32(g.Layout.Set))
			}
			if g.Layout.Binding >= 0 {
				lw.b.Decorate(id, ir.DecorationBinding, uint32(g.Layout.Binding))
			}
			if t.Kind == TSubpassInput {
				index := g.Layout.InputAttachmentIndex
				if index < 0 {
					index = 0
				}
				lw.b.Decorate(id, ir.DecorationInputAttachmentIndex, uint32(index))
			}
			lw.globals[g.Name] = &varRef{ptr: id, class: ir.ClassUniformConstant, t: t}

		default:
			// Plain module-scope variable.
			ptr := lw.ptrType(ir.ClassPrivate, t)
			var id uint32
			if g.Init != nil {
				v, err := lw.evalConst(g.Init, t)
				if err != nil {
					return err
				}
				id = lw.b.GlobalVariableInit(ptr, ir.ClassPrivate, v.id)
			} else {
				id = lw.b.GlobalVariable(ptr, ir.ClassPrivate)
			}
			lw.b.AddName(id, g.Name)
			if relaxed {
				lw.b.Decorate(id, ir.DecorationRelaxedPrecision)
			}
			lw.globals[g.Name] = &varRef{ptr: id, class: ir.ClassPrivate, t: t, relaxed: relaxed}
		}
	}
	return nil
}

type blockMemberLayout struct {
	offset uint32
	t      Type
}

func std140Align(t Type) uint32 {
	switch t.Kind {
	case TFloat, TInt, TUInt, TBool:
		return 4
	case TVec:
		if t.Size == 2 {
			return 8
		}
		return 16
	case TMat, TArray, TStruct:
		return 16
	}
	return 16
}

func std140Size(t Type) uint32 {
	switch t.Kind {
	case TFloat, TInt, TUInt, TBool:
		return 4
	case TVec:
		return uint32(t.Size) * 4
	case TMat:
		return uint32(t.Size) * 16
	case TArray:
		stride := (std140Size(*t.Elem) + 15) &^ 15
		return uint32(t.Len) * stride
	}
	return 16
}

func (lw *lowerer) emitBlocks() error {
	lk := &linker{program: lw.program}
	for _, blk := range lw.program.Shader.Blocks {
		memberIDs := make([]uint32, len(blk.Members))
		layouts := make([]blockMemberLayout, len(blk.Members))
		offset := uint32(0)
		for i, m := range blk.Members {
			t, err := lk.resolveTypeSpec(m.Type, blk.Line)
			if err != nil {
				return err
			}
			align := std140Align(t)
			offset = (offset + align - 1) &^ (align - 1)
			layouts[i] = blockMemberLayout{offset: offset, t: t}
			offset += std140Size(t)
			memberIDs[i] = lw.typeID(t)
			if t.Kind == TArray {
				stride := (std140Size(*t.Elem) + 15) &^ 15
				lw.b.Decorate(memberIDs[i], ir.DecorationArrayStride, stride)
			}
		}
		structID := lw.b.StructType(memberIDs)
		lw.b.AddName(structID, blk.Name)
		lw.b.Decorate(structID, ir.DecorationBlock)
		for i, m := range blk.Members {
			lw.b.AddMemberName(structID, uint32(i), m.Name)
			lw.b.DecorateMember(structID, uint32(i), ir.DecorationOffset, layouts[i].offset)
			if layouts[i].t.Kind == TMat {
				lw.b.DecorateMember(structID, uint32(i), ir.DecorationColMajor)
				lw.b.DecorateMember(structID, uint32(i), ir.DecorationMatrixStride, 16)
			}
		}
		ptr := lw.b.Type(ir.OpTypePointer, uint32(ir.ClassUniform), structID)
		id := lw.b.GlobalVariable(ptr, ir.ClassUniform)
		lw.b.AddName(id, blk.Instance)
		set, binding := 0, 0
		if blk.Layout.Set >= 0 {
			set = blk.Layout.Set
		}
		if blk.Layout.Binding >= 0 {
			binding = blk.Layout.Binding
		}
		lw.b.Decorate(id, ir.DecorationDescriptorSet, uint32(set))
		lw.b.Decorate(id, ir.DecorationBinding, uint32(binding))
		lw.blockVars[blk.Instance] = &blockVar{decl: blk, ptr: id, structID: structID}
	}
	return nil
}

func (lw *lowerer) evalConst(e Expr, want Type) (value, error) {
	switch x := e.(type) {
	case *IntLit:
		if want.Kind == TFloat {
			return value{id: lw.constFloat(float64(x.Value)), t: want}, nil
		}
		if x.Unsigned || want.Kind == TUInt {
			return value{id: lw.constUInt(uint32(x.Value)), t: Type{Kind: TUInt}}, nil
		}
		return value{id: lw.constInt(int(x.Value)), t: Type{Kind: TInt}}, nil
	case *FloatLit:
		return value{id: lw.constFloat(x.Value), t: Type{Kind: TFloat}}, nil
	case *BoolLit:
		id := lw.b.ConstantBool(lw.typeID(Type{Kind: TBool}), x.Value)
		return value{id: id, t: Type{Kind: TBool}}, nil
	case *UnaryExpr:
		if x.Op == "-" {
			switch lit := x.X.(type) {
			case *IntLit:
				return lw.evalConst(&IntLit{Value: -lit.Value}, want)
			case *FloatLit:
				return lw.evalConst(&FloatLit{Value: -lit.Value}, want)
			}
		}
	case *CallExpr:
		t, ok := builtinTypes[x.Callee]
		if ok && t.Kind == TVec {
			components := make([]uint32, 0, t.Size)
			for _, arg := range x.Args {
				v, err := lw.evalConst(arg, Type{Kind: TFloat})
				if err != nil {
					return value{}, err
				}
				components = append(components, v.id)
			}
			if len(components) == 1 {
				for len(components) < t.Size {
					components = append(components, components[0])
				}
			}
			if len(components) != t.Size {
				return value{}, lowerError(sprintf("constant %s needs %d components", x.Callee, t.Size))
			}
			id := lw.b.ConstantComposite(lw.typeID(t), components...)
			return value{id: id, t: t}, nil
		}
	}
	return value{}, lowerError("initializer is not a constant expression")
}

// ---- functions ----

func (lw *lowerer) declareFunctions() {
	lk := &linker{program: lw.program}
	for _, f := range lw.program.Shader.Functions {
		ret, _ := lk.resolveTypeSpec(f.ReturnType, f.Line)
		params := make([]Type, len(f.Params))
		operands := []uint32{lw.typeID(ret)}
		for i, p := range f.Params {
			params[i], _ = lk.resolveTypeSpec(p.Type, f.Line)
			operands = append(operands, lw.typeID(params[i]))
		}
		info := &fnInfo{
			decl:    f,
			id:      lw.b.AllocID(),
			typeID:  lw.b.Type(ir.OpTypeFunction, operands...),
			ret:     ret,
			params:  params,
			relaxed: lw.program.EffectivePrecision(f.ReturnType).Relaxed() && ret.FloatBased(),
		}
		lw.b.AddName(info.id, f.Name)
		lw.fns[f.Name] = info
	}
}

func collectDecls(stmt Stmt, out *[]*DeclStmt) {
	switch s := stmt.(type) {
	case *BlockStmt:
		for _, st := range s.Stmts {
			collectDecls(st, out)
		}
	case *DeclStmt:
		*out = append(*out, s)
	case *IfStmt:
		collectDecls(s.Then, out)
		if s.Else != nil {
			collectDecls(s.Else, out)
		}
	case *WhileStmt:
		collectDecls(s.Body, out)
	case *ForStmt:
		if s.Init != nil {
			collectDecls(s.Init, out)
		}
		collectDecls(s.Body, out)
	}
}

func (lw *lowerer) lowerFunction(f *FunctionDecl) error {
	info := lw.fns[f.Name]
	lw.b.Emit(ir.OpFunction, lw.typeID(info.ret), info.id, 0, info.typeID)

	paramIDs := make([]uint32, len(f.Params))
	for i := range f.Params {
		paramIDs[i] = lw.b.AllocID()
		lw.b.Emit(ir.OpFunctionParameter, lw.typeID(info.params[i]), paramIDs[i])
	}

	entry := lw.b.AllocID()
	lw.b.Emit(ir.OpLabel, entry)

	lw.scopes = []map[string]*localVar{make(map[string]*localVar)}
	lw.locals = make(map[*DeclStmt]*localVar)
	lw.loops = nil
	lw.terminated = false

	// All function-storage variables live at the top of the entry block.
	paramVars := make([]*localVar, len(f.Params))
	for i, p := range f.Params {
		relaxed := lw.program.EffectivePrecision(p.Type).Relaxed() && info.params[i].FloatBased()
		ptr := lw.b.EmitResult(ir.OpVariable,
			lw.ptrType(ir.ClassFunction, info.params[i]), uint32(ir.ClassFunction))
		v := &localVar{ptr: ptr, t: info.params[i], relaxed: relaxed}
		paramVars[i] = v
		lw.scopes[0][p.Name] = v
		if lw.opts.LocalNames {
			lw.b.AddName(ptr, p.Name)
		}
		if relaxed {
			lw.b.Decorate(ptr, ir.DecorationRelaxedPrecision)
		}
	}
	var decls []*DeclStmt
	collectDecls(f.Body, &decls)
	lk := &linker{program: lw.program}
	for _, d := range decls {
		t, err := lk.resolveTypeSpec(d.Type, f.Line)
		if err != nil {
			return err
		}
		relaxed := lw.program.EffectivePrecision(d.Type).Relaxed() && t.FloatBased()
		ptr := lw.b.EmitResult(ir.OpVariable,
			lw.ptrType(ir.ClassFunction, t), uint32(ir.ClassFunction))
		lw.locals[d] = &localVar{ptr: ptr, t: t, relaxed: relaxed}
		if lw.opts.LocalNames {
			lw.b.AddName(ptr, d.Name)
		}
		if relaxed {
			lw.b.Decorate(ptr, ir.DecorationRelaxedPrecision)
		}
	}

	for i := range f.Params {
		lw.b.Emit(ir.OpStore, paramVars[i].ptr, paramIDs[i])
	}

	if err := lw.lowerBlock(f.Body, info); err != nil {
		return err
	}
	if !lw.terminated {
		if info.ret.Kind == TVoid {
			lw.b.Emit(ir.OpReturn)
		} else {
			lw.b.Emit(ir.OpUnreachable)
		}
	}
	lw.b.Emit(ir.OpFunctionEnd)
	return nil
}

func (lw *lowerer) pushScope() {
	lw.scopes = append(lw.scopes, make(map[string]*localVar))
}

func (lw *lowerer) popScope() {
	lw.scopes = lw.scopes[:len(lw.scopes)-1]
}

func (lw *lowerer) lookupLocal(name string) (*localVar, bool) {
	for i := len(lw.scopes) - 1; i >= 0; i-- {
		if v, ok := lw.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// beginBlock starts a new basic block with the given label.
func (lw *lowerer) beginBlock(label uint32) {
	lw.b.Emit(ir.OpLabel, label)
	lw.terminated = false
}

func (lw *lowerer) branch(target uint32) {
	if !lw.terminated {
		lw.b.Emit(ir.OpBranch, target)
		lw.terminated = true
	}
}

func (lw *lowerer) lowerBlock(b *BlockStmt, fn *fnInfo) error {
	lw.pushScope()
	defer lw.popScope()
	for _, stmt := range b.Stmts {
		if lw.terminated {
			break // unreachable source after return/discard
		}
		if err := lw.lowerStmt(stmt, fn); err != nil {
			return err
		}
	}
	return nil
}

func (lw *lowerer) lowerStmt(stmt Stmt, fn *fnInfo) error {
	switch s := stmt.(type) {
	case *BlockStmt:
		return lw.lowerBlock(s, fn)

	case *DeclStmt:
		v := lw.locals[s]
		lw.scopes[len(lw.scopes)-1][s.Name] = v
		if s.Init != nil {
			init, err := lw.lowerExpr(s.Init)
			if err != nil {
				return err
			}
			init, err = lw.convert(init, v.t)
			if err != nil {
				return err
			}
			lw.b.Emit(ir.OpStore, v.ptr, init.id)
		}
		return nil

	case *AssignStmt:
		ptr, pt, relaxed, err := lw.lowerPointer(s.LHS)
		if err != nil {
			return err
		}
		rhs, err := lw.lowerExpr(s.RHS)
		if err != nil {
			return err
		}
		if s.Op != "=" {
			cur := lw.emit(ir.OpLoad, pt, relaxed, ptr)
			combined, err := lw.binaryOp(s.Op[:1], cur, rhs)
			if err != nil {
				return err
			}
			lw.b.Emit(ir.OpStore, ptr, combined.id)
			return nil
		}
		rhs, err = lw.convert(rhs, pt)
		if err != nil {
			return err
		}
		lw.b.Emit(ir.OpStore, ptr, rhs.id)
		return nil

	case *ExprStmt:
		_, err := lw.lowerExpr(s.X)
		return err

	case *IfStmt:
		cond, err := lw.lowerExpr(s.Cond)
		if err != nil {
			return err
		}
		thenL := lw.b.AllocID()
		mergeL := lw.b.AllocID()
		elseL := mergeL
		if s.Else != nil {
			elseL = lw.b.AllocID()
		}
		lw.b.Emit(ir.OpSelectionMerge, mergeL, 0)
		lw.b.Emit(ir.OpBranchConditional, cond.id, thenL, elseL)
		lw.terminated = true

		lw.beginBlock(thenL)
		if err := lw.lowerBlock(s.Then, fn); err != nil {
			return err
		}
		lw.branch(mergeL)

		if s.Else != nil {
			lw.beginBlock(elseL)
			if err := lw.lowerStmt(s.Else, fn); err != nil {
				return err
			}
			lw.branch(mergeL)
		}
		lw.beginBlock(mergeL)
		return nil

	case *WhileStmt:
		return lw.lowerLoop(s.Cond, nil, s.Body, fn)

	case *ForStmt:
		lw.pushScope()
		defer lw.popScope()
		if s.Init != nil {
			if err := lw.lowerStmt(s.Init, fn); err != nil {
				return err
			}
		}
		return lw.lowerLoop(s.Cond, s.Post, s.Body, fn)

	case *ReturnStmt:
		if s.Value == nil {
			lw.b.Emit(ir.OpReturn)
			lw.terminated = true
			return nil
		}
		v, err := lw.lowerExpr(s.Value)
		if err != nil {
			return err
		}
		v, err = lw.convert(v, fn.ret)
		if err != nil {
			return err
		}
		lw.b.Emit(ir.OpReturnValue, v.id)
		lw.terminated = true
		return nil

	case *DiscardStmt:
		lw.b.Emit(ir.OpKill)
		lw.terminated = true
		return nil

	case *BreakStmt:
		top := lw.loops[len(lw.loops)-1]
		lw.b.Emit(ir.OpBranch, top.merge)
		lw.terminated = true
		return nil

	case *ContinueStmt:
		top := lw.loops[len(lw.loops)-1]
		lw.b.Emit(ir.OpBranch, top.cont)
		lw.terminated = true
		return nil
	}
	return lowerError("unsupported statement")
}

// lowerLoop emits the canonical loop shape: header carries the merge, a
// separate condition block feeds the conditional branch, and the continue
// block holds the post statement.
func (lw *lowerer) lowerLoop(cond Expr, post Stmt, body *BlockStmt, fn *fnInfo) error {
	header := lw.b.AllocID()
	condL := lw.b.AllocID()
	bodyL := lw.b.AllocID()
	contL := lw.b.AllocID()
	mergeL := lw.b.AllocID()

	lw.branch(header)
	lw.beginBlock(header)
	lw.b.Emit(ir.OpLoopMerge, mergeL, contL, 0)
	lw.b.Emit(ir.OpBranch, condL)
	lw.terminated = true

	lw.beginBlock(condL)
	var condID uint32
	if cond != nil {
		v, err := lw.lowerExpr(cond)
		if err != nil {
			return err
		}
		condID = v.id
	} else {
		condID = lw.b.ConstantBool(lw.typeID(Type{Kind: TBool}), true)
	}
	lw.b.Emit(ir.OpBranchConditional, condID, bodyL, mergeL)
	lw.terminated = true

	lw.beginBlock(bodyL)
	lw.loops = append(lw.loops, loopLabels{merge: mergeL, cont: contL})
	if err := lw.lowerBlock(body, fn); err != nil {
		return err
	}
	lw.loops = lw.loops[:len(lw.loops)-1]
	lw.branch(contL)

	lw.beginBlock(contL)
	if post != nil {
		if err := lw.lowerStmt(post, fn); err != nil {
			return err
		}
	}
	lw.branch(header)

	lw.beginBlock(mergeL)
	return nil
}

// ---- expressions ----

func (lw *lowerer) emit(op ir.Opcode, t Type, relaxed bool, operands ...uint32) value {
	id := lw.b.EmitResult(op, lw.typeID(t), operands...)
	if relaxed && t.FloatBased() {
		lw.b.Decorate(id, ir.DecorationRelaxedPrecision)
	}
	return value{id: id, t: t, relaxed: relaxed}
}

func (lw *lowerer) exprType(e Expr) Type {
	return lw.program.ExprTypes[e]
}

func (lw *lowerer) builtinVar(name string) *varRef {
	if ref, ok := lw.globals[name]; ok {
		return ref
	}
	t := builtinVariables[name]
	var ref *varRef
	switch name {
	case "gl_Position":
		id := lw.b.GlobalVariable(lw.ptrType(ir.ClassOutput, t), ir.ClassOutput)
		lw.b.AddName(id, name)
		lw.b.Decorate(id, ir.DecorationBuiltIn, ir.BuiltInPosition)
		lw.interfaces = append(lw.interfaces, id)
		ref = &varRef{ptr: id, class: ir.ClassOutput, t: t}
	case "gl_FragCoord":
		id := lw.b.GlobalVariable(lw.ptrType(ir.ClassInput, t), ir.ClassInput)
		lw.b.AddName(id, name)
		lw.b.Decorate(id, ir.DecorationBuiltIn, ir.BuiltInFragCoord)
		lw.interfaces = append(lw.interfaces, id)
		ref = &varRef{ptr: id, class: ir.ClassInput, t: t}
	}
	lw.globals[name] = ref
	return ref
}

// lowerPointer resolves an lvalue to a pointer. Chained member and index
// accesses collapse into a single access chain.
func (lw *lowerer) lowerPointer(e Expr) (ptr uint32, t Type, relaxed bool, err error) {
	base, indices, t, relaxed, class, err := lw.pointerChain(e)
	if err != nil {
		return 0, Type{}, false, err
	}
	if len(indices) == 0 {
		return base, t, relaxed, nil
	}
	ptrType := lw.b.Type(ir.OpTypePointer, uint32(class), lw.typeID(t))
	id := lw.b.EmitResult(ir.OpAccessChain, ptrType, append([]uint32{base}, indices...)...)
	return id, t, relaxed, nil
}

func (lw *lowerer) pointerChain(e Expr) (base uint32, indices []uint32, t Type, relaxed bool, class ir.StorageClass, err error) {
	switch x := e.(type) {
	case *Ident:
		if v, ok := lw.lookupLocal(x.Name); ok {
			return v.ptr, nil, v.t, v.relaxed, ir.ClassFunction, nil
		}
		if g, ok := lw.globals[x.Name]; ok {
			return g.ptr, nil, g.t, g.relaxed, g.class, nil
		}
		if _, ok := builtinVariables[x.Name]; ok {
			ref := lw.builtinVar(x.Name)
			return ref.ptr, nil, ref.t, ref.relaxed, ref.class, nil
		}
		if _, ok := lw.program.globals[x.Name]; ok {
			// Declared later in the source than first use never happens:
			// globals are emitted before function bodies.
			return 0, nil, Type{}, false, 0, lowerError(sprintf("global %q not lowered", x.Name))
		}
		return 0, nil, Type{}, false, 0, lowerError(sprintf("%q is not addressable", x.Name))

	case *MemberExpr:
		// Uniform block member access roots the chain at the block variable.
		if ident, ok := x.X.(*Ident); ok {
			if _, isLocal := lw.lookupLocal(ident.Name); !isLocal {
				if bv, isBlock := lw.blockVars[ident.Name]; isBlock {
					idx, mt, merr := lw.blockMember(bv.decl, x.Name)
					if merr != nil {
						return 0, nil, Type{}, false, 0, merr
					}
					rel := lw.program.DefaultFloatRelaxed() && mt.FloatBased()
					return bv.ptr, []uint32{lw.constInt(idx)}, mt, rel, ir.ClassUniform, nil
				}
			}
		}
		base, indices, bt, rel, class, err := lw.pointerChain(x.X)
		if err != nil {
			return 0, nil, Type{}, false, 0, err
		}
		switch bt.Kind {
		case TStruct:
			for i, m := range bt.Struct.Members {
				if m.Name == x.Name {
					mt, _ := (&linker{program: lw.program}).resolveTypeSpec(m.Type, bt.Struct.Line)
					mrel := rel || lw.program.EffectivePrecision(m.Type).Relaxed() && mt.FloatBased()
					return base, append(indices, lw.constInt(i)), mt, mrel, class, nil
				}
			}
			return 0, nil, Type{}, false, 0, lowerError(sprintf("no member %q", x.Name))
		case TVec:
			comps, ok := swizzleIndices(x.Name, bt.Size)
			if !ok || len(comps) != 1 {
				return 0, nil, Type{}, false, 0, lowerError(
					sprintf("cannot store through swizzle %q", x.Name))
			}
			return base, append(indices, lw.constUInt(uint32(comps[0]))),
				Type{Kind: TFloat}, rel, class, nil
		}
		return 0, nil, Type{}, false, 0, lowerError("member access on non-composite")

	case *IndexExpr:
		base, indices, bt, rel, class, err := lw.pointerChain(x.X)
		if err != nil {
			return 0, nil, Type{}, false, 0, err
		}
		idx, err := lw.lowerExpr(x.Index)
		if err != nil {
			return 0, nil, Type{}, false, 0, err
		}
		var et Type
		switch bt.Kind {
		case TArray:
			et = *bt.Elem
		case TVec:
			et = Type{Kind: TFloat}
		case TMat:
			et = Type{Kind: TVec, Size: bt.Size}
		default:
			return 0, nil, Type{}, false, 0, lowerError("cannot index this type")
		}
		return base, append(indices, idx.id), et, rel, class, nil
	}
	return 0, nil, Type{}, false, 0, lowerError("expression is not addressable")
}

func (lw *lowerer) blockMember(blk *BlockDecl, name string) (int, Type, error) {
	for i, m := range blk.Members {
		if m.Name == name {
			t, err := (&linker{program: lw.program}).resolveTypeSpec(m.Type, blk.Line)
			return i, t, err
		}
	}
	return 0, Type{}, lowerError(sprintf("block %q has no member %q", blk.Name, name))
}

func (lw *lowerer) lowerExpr(e Expr) (value, error) {
	switch x := e.(type) {
	case *Ident:
		if v, ok := lw.constGlobals[x.Name]; ok {
			return v, nil
		}
		ptr, t, relaxed, err := lw.lowerPointer(x)
		if err != nil {
			return value{}, err
		}
		return lw.emit(ir.OpLoad, t, relaxed, ptr), nil

	case *IntLit:
		if x.Unsigned {
			return value{id: lw.constUInt(uint32(x.Value)), t: Type{Kind: TUInt}}, nil
		}
		return value{id: lw.constInt(int(x.Value)), t: Type{Kind: TInt}}, nil

	case *FloatLit:
		return value{id: lw.constFloat(x.Value), t: Type{Kind: TFloat}}, nil

	case *BoolLit:
		id := lw.b.ConstantBool(lw.typeID(Type{Kind: TBool}), x.Value)
		return value{id: id, t: Type{Kind: TBool}}, nil

	case *UnaryExpr:
		v, err := lw.lowerExpr(x.X)
		if err != nil {
			return value{}, err
		}
		switch {
		case x.Op == "!":
			return lw.emit(ir.OpLogicalNot, v.t, v.relaxed, v.id), nil
		case v.t.Kind == TInt || v.t.Kind == TUInt:
			return lw.emit(ir.OpSNegate, v.t, v.relaxed, v.id), nil
		default:
			return lw.emit(ir.OpFNegate, v.t, v.relaxed, v.id), nil
		}

	case *BinaryExpr:
		l, err := lw.lowerExpr(x.L)
		if err != nil {
			return value{}, err
		}
		r, err := lw.lowerExpr(x.R)
		if err != nil {
			return value{}, err
		}
		return lw.binaryOp(x.Op, l, r)

	case *CondExpr:
		cond, err := lw.lowerExpr(x.Cond)
		if err != nil {
			return value{}, err
		}
		tv, err := lw.lowerExpr(x.Then)
		if err != nil {
			return value{}, err
		}
		ev, err := lw.lowerExpr(x.Else)
		if err != nil {
			return value{}, err
		}
		return lw.emit(ir.OpSelect, tv.t, tv.relaxed || ev.relaxed,
			cond.id, tv.id, ev.id), nil

	case *MemberExpr:
		baseType := lw.exprType(x.X)
		if baseType.Kind == TVec {
			base, err := lw.lowerExpr(x.X)
			if err != nil {
				return value{}, err
			}
			comps, _ := swizzleIndices(x.Name, baseType.Size)
			if len(comps) == 1 {
				return lw.emit(ir.OpCompositeExtract, Type{Kind: TFloat},
					base.relaxed, base.id, uint32(comps[0])), nil
			}
			operands := []uint32{base.id, base.id}
			for _, c := range comps {
				operands = append(operands, uint32(c))
			}
			return lw.emit(ir.OpVectorShuffle, Type{Kind: TVec, Size: len(comps)},
				base.relaxed, operands...), nil
		}
		ptr, t, relaxed, err := lw.lowerPointer(x)
		if err != nil {
			return value{}, err
		}
		return lw.emit(ir.OpLoad, t, relaxed, ptr), nil

	case *IndexExpr:
		ptr, t, relaxed, err := lw.lowerPointer(x)
		if err != nil {
			return value{}, err
		}
		return lw.emit(ir.OpLoad, t, relaxed, ptr), nil

	case *CallExpr:
		return lw.lowerCall(x)
	}
	return value{}, lowerError("unsupported expression")
}

// convert inserts the implicit scalar conversions the dialect allows.
func (lw *lowerer) convert(v value, want Type) (value, error) {
	if v.t.equal(want) {
		return v, nil
	}
	switch {
	case want.Kind == TUInt && v.t.Kind == TInt:
		return lw.emit(ir.OpBitcast, want, v.relaxed, v.id), nil
	case want.Kind == TFloat && v.t.Kind == TInt:
		return lw.emit(ir.OpConvertSToF, want, v.relaxed, v.id), nil
	case want.Kind == TFloat && v.t.Kind == TUInt:
		return lw.emit(ir.OpConvertUToF, want, v.relaxed, v.id), nil
	}
	return value{}, lowerError(sprintf("cannot convert %s to %s", v.t, want))
}

// splat broadcasts a float scalar to a vector.
func (lw *lowerer) splat(v value, size int) value {
	operands := make([]uint32, size)
	for i := range operands {
		operands[i] = v.id
	}
	return lw.emit(ir.OpCompositeConstruct, Type{Kind: TVec, Size: size},
		v.relaxed, operands...)
}

func (lw *lowerer) binaryOp(op string, l, r value) (value, error) {
	relaxed := l.relaxed || r.relaxed

	switch op {
	case "&&":
		return lw.emit(ir.OpLogicalAnd, Type{Kind: TBool}, false, l.id, r.id), nil
	case "||":
		return lw.emit(ir.OpLogicalOr, Type{Kind: TBool}, false, l.id, r.id), nil
	case "==", "!=", "<", "<=", ">", ">=":
		return lw.compare(op, l, r)
	case "%":
		o := ir.OpSMod
		if l.t.Kind == TUInt {
			o = ir.OpUMod
		}
		return lw.emit(o, l.t, relaxed, l.id, r.id), nil
	}

	// Mixed vector/scalar and matrix shapes.
	switch {
	case l.t.Kind == TMat && r.t.Kind == TVec:
		if op != "*" {
			return value{}, lowerError("matrix-vector operands require *")
		}
		return lw.emit(ir.OpMatrixTimesVector, r.t, relaxed, l.id, r.id), nil
	case l.t.Kind == TMat && r.t.Kind == TMat:
		if op != "*" {
			return value{}, lowerError("matrix-matrix operands require *")
		}
		return lw.emit(ir.OpMatrixTimesMatrix, l.t, relaxed, l.id, r.id), nil
	case l.t.Kind == TMat && r.t.Kind == TFloat:
		if op != "*" {
			return value{}, lowerError("matrix-scalar operands require *")
		}
		return lw.emit(ir.OpMatrixTimesScalar, l.t, relaxed, l.id, r.id), nil
	case l.t.Kind == TVec && r.t.Kind == TFloat:
		if op == "*" {
			return lw.emit(ir.OpVectorTimesScalar, l.t, relaxed, l.id, r.id), nil
		}
		r = lw.splat(r, l.t.Size)
	case l.t.Kind == TFloat && r.t.Kind == TVec:
		if op == "*" {
			return lw.emit(ir.OpVectorTimesScalar, r.t, relaxed, r.id, l.id), nil
		}
		l = lw.splat(l, r.t.Size)
	}

	var o ir.Opcode
	if l.t.FloatBased() {
		switch op {
		case "+":
			o = ir.OpFAdd
		case "-":
			o = ir.OpFSub
		case "*":
			o = ir.OpFMul
		case "/":
			o = ir.OpFDiv
		}
	} else {
		switch op {
		case "+":
			o = ir.OpIAdd
		case "-":
			o = ir.OpISub
		case "*":
			o = ir.OpIMul
		case "/":
			o = ir.OpSDiv
			if l.t.Kind == TUInt {
				o = ir.OpUDiv
			}
		}
	}
	if o == ir.OpNop {
		return value{}, lowerError(sprintf("unsupported operator %q", op))
	}
	return lw.emit(o, l.t, relaxed, l.id, r.id), nil
}

func (lw *lowerer) compare(op string, l, r value) (value, error) {
	boolT := Type{Kind: TBool}
	type pair struct{ f, s, u ir.Opcode }
	table := map[string]pair{
		"==": {ir.OpFOrdEqual, ir.OpIEqual, ir.OpIEqual},
		"!=": {ir.OpFOrdNotEqual, ir.OpINotEqual, ir.OpINotEqual},
		"<":  {ir.OpFOrdLessThan, ir.OpSLessThan, ir.OpULessThan},
		"<=": {ir.OpFOrdLessThanEqual, ir.OpSLessThanEqual, ir.OpULessThanEqual},
		">":  {ir.OpFOrdGreaterThan, ir.OpSGreaterThan, ir.OpUGreaterThan},
		">=": {ir.OpFOrdGreaterThanEqual, ir.OpSGreaterThanEqual, ir.OpUGreaterThanEqual},
	}
	p := table[op]
	var o ir.Opcode
	switch l.t.Kind {
	case TFloat:
		o = p.f
	case TInt, TBool:
		o = p.s
	case TUInt:
		o = p.u
	default:
		return value{}, lowerError(sprintf("cannot compare %s", l.t))
	}
	return lw.emit(o, boolT, false, l.id, r.id), nil
}

func (lw *lowerer) lowerCall(call *CallExpr) (value, error) {
	args := make([]value, len(call.Args))
	for i, a := range call.Args {
		v, err := lw.lowerExpr(a)
		if err != nil {
			return value{}, err
		}
		args[i] = v
	}

	if t, ok := builtinTypes[call.Callee]; ok {
		return lw.lowerConstructor(t, args)
	}
	if v, ok, err := lw.lowerBuiltin(call.Callee, args); ok || err != nil {
		return v, err
	}

	info, ok := lw.fns[call.Callee]
	if !ok {
		return value{}, lowerError(sprintf("call to unknown function %q", call.Callee))
	}
	operands := []uint32{info.id}
	for i, a := range args {
		conv, err := lw.convert(a, info.params[i])
		if err != nil {
			return value{}, err
		}
		operands = append(operands, conv.id)
	}
	return lw.emit(ir.OpFunctionCall, info.ret, info.relaxed, operands...), nil
}

func (lw *lowerer) lowerConstructor(t Type, args []value) (value, error) {
	switch t.Kind {
	case TFloat:
		switch args[0].t.Kind {
		case TFloat:
			return args[0], nil
		case TInt:
			return lw.emit(ir.OpConvertSToF, t, args[0].relaxed, args[0].id), nil
		case TUInt:
			return lw.emit(ir.OpConvertUToF, t, args[0].relaxed, args[0].id), nil
		}
		return value{}, lowerError("unsupported float conversion")
	case TInt:
		switch args[0].t.Kind {
		case TInt:
			return args[0], nil
		case TUInt:
			return lw.emit(ir.OpBitcast, t, false, args[0].id), nil
		case TFloat:
			return lw.emit(ir.OpConvertFToS, t, false, args[0].id), nil
		}
		return value{}, lowerError("unsupported int conversion")
	case TUInt:
		switch args[0].t.Kind {
		case TUInt:
			return args[0], nil
		case TInt:
			return lw.emit(ir.OpBitcast, t, false, args[0].id), nil
		case TFloat:
			return lw.emit(ir.OpConvertFToU, t, false, args[0].id), nil
		}
		return value{}, lowerError("unsupported uint conversion")
	case TVec:
		relaxed := false
		var components []uint32
		for _, a := range args {
			relaxed = relaxed || a.relaxed
			switch a.t.Kind {
			case TFloat:
				components = append(components, a.id)
			case TInt, TUInt:
				conv, err := lw.convert(a, Type{Kind: TFloat})
				if err != nil {
					return value{}, err
				}
				components = append(components, conv.id)
			case TVec:
				for i := 0; i < a.t.Size; i++ {
					ex := lw.emit(ir.OpCompositeExtract, Type{Kind: TFloat},
						a.relaxed, a.id, uint32(i))
					components = append(components, ex.id)
				}
			default:
				return value{}, lowerError("unsupported vector constructor argument")
			}
		}
		if len(components) == 1 {
			for len(components) < t.Size {
				components = append(components, components[0])
			}
		}
		return lw.emit(ir.OpCompositeConstruct, t, relaxed, components...), nil
	}
	return value{}, lowerError(sprintf("cannot construct %s", t))
}

func (lw *lowerer) lowerBuiltin(name string, args []value) (value, bool, error) {
	vec4 := Type{Kind: TVec, Size: 4}
	relaxed := false
	for _, a := range args {
		relaxed = relaxed || a.relaxed
	}
	sampleRelaxed := lw.program.DefaultFloatRelaxed()

	extCall := func(number uint32, t Type) (value, bool, error) {
		operands := []uint32{lw.ext(), number}
		for _, a := range args {
			operands = append(operands, a.id)
		}
		return lw.emit(ir.OpExtInst, t, relaxed, operands...), true, nil
	}

	switch name {
	case "texture":
		operands := []uint32{args[0].id, args[1].id}
		if len(args) == 3 {
			operands = append(operands, ir.ImageOperandsBias, args[2].id)
		}
		return lw.emit(ir.OpImageSampleImplicitLod, vec4, sampleRelaxed, operands...), true, nil
	case "textureLod":
		operands := []uint32{args[0].id, args[1].id, ir.ImageOperandsLod, args[2].id}
		return lw.emit(ir.OpImageSampleExplicitLod, vec4, sampleRelaxed, operands...), true, nil
	case "subpassLoad":
		zero := lw.constInt(0)
		ivec2 := lw.b.Type(ir.OpTypeVector, lw.typeID(Type{Kind: TInt}), 2)
		coord := lw.b.ConstantComposite(ivec2, zero, zero)
		return lw.emit(ir.OpImageRead, vec4, sampleRelaxed, args[0].id, coord), true, nil
	case "dot":
		return lw.emit(ir.OpDot, Type{Kind: TFloat}, relaxed, args[0].id, args[1].id), true, nil
	case "length":
		return extCall(ir.GLSLLength, Type{Kind: TFloat})
	case "distance":
		return extCall(ir.GLSLDistance, Type{Kind: TFloat})
	case "cross":
		return extCall(ir.GLSLCross, Type{Kind: TVec, Size: 3})
	case "normalize":
		return extCall(ir.GLSLNormalize, args[0].t)
	case "sqrt":
		return extCall(ir.GLSLSqrt, args[0].t)
	case "abs":
		return extCall(ir.GLSLFAbs, args[0].t)
	case "floor":
		return extCall(ir.GLSLFloor, args[0].t)
	case "fract":
		return extCall(ir.GLSLFract, args[0].t)
	case "sin":
		return extCall(ir.GLSLSin, args[0].t)
	case "cos":
		return extCall(ir.GLSLCos, args[0].t)
	case "pow":
		return extCall(ir.GLSLPow, args[0].t)
	case "min":
		return lw.extMixed(ir.GLSLFMin, args, relaxed)
	case "max":
		return lw.extMixed(ir.GLSLFMax, args, relaxed)
	case "clamp":
		return lw.extMixed(ir.GLSLFClamp, args, relaxed)
	case "mix":
		return lw.extMixed(ir.GLSLFMix, args, relaxed)
	case "reflect":
		return extCall(ir.GLSLReflect, args[0].t)
	}
	return value{}, false, nil
}

// extMixed handles genType builtins whose trailing scalar arguments splat to
// the leading argument's vector size.
func (lw *lowerer) extMixed(number uint32, args []value, relaxed bool) (value, bool, error) {
	t := args[0].t
	operands := []uint32{lw.ext(), number}
	for _, a := range args {
		if t.Kind == TVec && a.t.Kind == TFloat {
			a = lw.splat(a, t.Size)
		}
		operands = append(operands, a.id)
	}
	return lw.emit(ir.OpExtInst, t, relaxed, operands...), true, nil
}
