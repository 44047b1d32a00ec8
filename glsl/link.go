package glsl

// TypeKind classifies a resolved type.
type TypeKind uint8

const (
	TInvalid TypeKind = iota
	TVoid
	TBool
	TInt
	TUInt
	TFloat
	TVec // float vector, Size 2..4
	TMat // square float matrix, Size 2..4
	TStruct
	TArray
	TSampler2D
	TSubpassInput
	TBlock // uniform block instance
)

// Type is a resolved type. Types are small values; composite kinds carry
// references to their declarations.
type Type struct {
	Kind   TypeKind
	Size   int // vector size or matrix dimension
	Elem   *Type
	Len    int // array length
	Struct *StructDecl
	Block  *BlockDecl
}

// Scalar reports whether the type is a numeric or boolean scalar.
func (t Type) Scalar() bool {
	switch t.Kind {
	case TBool, TInt, TUInt, TFloat:
		return true
	}
	return false
}

// FloatBased reports whether the type is float, vecN or matN.
func (t Type) FloatBased() bool {
	return t.Kind == TFloat || t.Kind == TVec || t.Kind == TMat
}

func (t Type) equal(o Type) bool {
	if t.Kind != o.Kind || t.Size != o.Size || t.Len != o.Len ||
		t.Struct != o.Struct || t.Block != o.Block {
		return false
	}
	if (t.Elem == nil) != (o.Elem == nil) {
		return false
	}
	if t.Elem != nil {
		return t.Elem.equal(*o.Elem)
	}
	return true
}

// String renders the type as GLSL syntax where possible.
func (t Type) String() string {
	switch t.Kind {
	case TVoid:
		return "void"
	case TBool:
		return "bool"
	case TInt:
		return "int"
	case TUInt:
		return "uint"
	case TFloat:
		return "float"
	case TVec:
		return sprintf("vec%d", t.Size)
	case TMat:
		return sprintf("mat%d", t.Size)
	case TStruct:
		return t.Struct.Name
	case TArray:
		return sprintf("%s[%d]", t.Elem.String(), t.Len)
	case TSampler2D:
		return "sampler2D"
	case TSubpassInput:
		return "subpassInput"
	case TBlock:
		return t.Block.Name
	}
	return "invalid"
}

var builtinTypes = map[string]Type{
	"void":         {Kind: TVoid},
	"bool":         {Kind: TBool},
	"int":          {Kind: TInt},
	"uint":         {Kind: TUInt},
	"float":        {Kind: TFloat},
	"vec2":         {Kind: TVec, Size: 2},
	"vec3":         {Kind: TVec, Size: 3},
	"vec4":         {Kind: TVec, Size: 4},
	"mat2":         {Kind: TMat, Size: 2},
	"mat3":         {Kind: TMat, Size: 3},
	"mat4":         {Kind: TMat, Size: 4},
	"sampler2D":    {Kind: TSampler2D},
	"subpassInput": {Kind: TSubpassInput},
}

// Program is the linked form of one translation unit: all cross-references
// resolved, every expression typed, entry point identified.
type Program struct {
	Shader     *Shader
	Structs    map[string]*StructDecl
	Functions  map[string]*FunctionDecl
	EntryPoint *FunctionDecl

	// ExprTypes records the resolved type of every expression node.
	ExprTypes map[Expr]Type

	globals map[string]*GlobalDecl
	blocks  map[string]*BlockDecl // keyed by instance name
}

// GlobalByName returns the global declaration with the given name, or nil.
func (p *Program) GlobalByName(name string) *GlobalDecl {
	return p.globals[name]
}

// BlockByInstance returns the uniform block with the given instance name.
func (p *Program) BlockByInstance(name string) *BlockDecl {
	return p.blocks[name]
}

// DefaultFloatRelaxed reports whether the shader's default float precision
// maps to relaxed precision.
func (p *Program) DefaultFloatRelaxed() bool {
	return p.Shader.DefaultPrecisions["float"].Relaxed()
}

// EffectivePrecision resolves a declaration's precision against the
// shader-level default for its base type.
func (p *Program) EffectivePrecision(spec TypeSpec) Precision {
	if spec.Precision != PrecisionDefault {
		return spec.Precision
	}
	base := spec.Name
	switch base {
	case "vec2", "vec3", "vec4", "mat2", "mat3", "mat4":
		base = "float"
	}
	return p.Shader.DefaultPrecisions[base]
}

type linker struct {
	program   *Program
	scopes    []map[string]Type
	current   *FunctionDecl
	loopDepth int
}

// Link resolves every cross-reference in the shader: struct and type names,
// globals, block members, function calls and the entry point. A shader must
// be linked before IR can be generated from it, even though only a single
// stage is involved.
func Link(shader *Shader) (*Program, error) {
	p := &Program{
		Shader:    shader,
		Structs:   make(map[string]*StructDecl),
		Functions: make(map[string]*FunctionDecl),
		ExprTypes: make(map[Expr]Type),
		globals:   make(map[string]*GlobalDecl),
		blocks:    make(map[string]*BlockDecl),
	}
	lk := &linker{program: p}

	for _, s := range shader.Structs {
		if _, dup := p.Structs[s.Name]; dup {
			return nil, linkError(sprintf("struct %q redeclared", s.Name), s.Line)
		}
		p.Structs[s.Name] = s
		for _, m := range s.Members {
			if _, err := lk.resolveTypeSpec(m.Type, s.Line); err != nil {
				return nil, err
			}
		}
	}
	for _, b := range shader.Blocks {
		if _, dup := p.blocks[b.Instance]; dup {
			return nil, linkError(sprintf("uniform block instance %q redeclared", b.Instance), b.Line)
		}
		p.blocks[b.Instance] = b
		for _, m := range b.Members {
			if _, err := lk.resolveTypeSpec(m.Type, b.Line); err != nil {
				return nil, err
			}
		}
	}
	for _, g := range shader.Globals {
		if _, dup := p.globals[g.Name]; dup {
			return nil, linkError(sprintf("global %q redeclared", g.Name), g.Line)
		}
		if _, err := lk.resolveTypeSpec(g.Type, g.Line); err != nil {
			return nil, err
		}
		p.globals[g.Name] = g
	}
	for _, f := range shader.Functions {
		if _, dup := p.Functions[f.Name]; dup {
			return nil, linkError(sprintf("function %q redefined", f.Name), f.Line)
		}
		p.Functions[f.Name] = f
	}

	entry, ok := p.Functions["main"]
	if !ok {
		return nil, linkError("entry point \"main\" not found", 0)
	}
	if t, err := lk.resolveTypeSpec(entry.ReturnType, entry.Line); err != nil {
		return nil, err
	} else if t.Kind != TVoid {
		return nil, linkError("entry point \"main\" must return void", entry.Line)
	}
	p.EntryPoint = entry

	for _, f := range shader.Functions {
		if err := lk.checkFunction(f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func linkError(message string, line int) error {
	return &Error{Kind: ErrLink, Message: message, Line: line}
}

func (lk *linker) resolveTypeSpec(spec TypeSpec, line int) (Type, error) {
	var base Type
	if t, ok := builtinTypes[spec.Name]; ok {
		base = t
	} else if s, ok := lk.program.Structs[spec.Name]; ok {
		base = Type{Kind: TStruct, Struct: s}
	} else {
		return Type{}, linkError(sprintf("unknown type %q", spec.Name), line)
	}
	if spec.ArrayLen > 0 {
		elem := base
		return Type{Kind: TArray, Elem: &elem, Len: spec.ArrayLen}, nil
	}
	return base, nil
}

func (lk *linker) pushScope() {
	lk.scopes = append(lk.scopes, make(map[string]Type))
}

func (lk *linker) popScope() {
	lk.scopes = lk.scopes[:len(lk.scopes)-1]
}

func (lk *linker) declare(name string, t Type) {
	lk.scopes[len(lk.scopes)-1][name] = t
}

func (lk *linker) lookup(name string) (Type, bool) {
	for i := len(lk.scopes) - 1; i >= 0; i-- {
		if t, ok := lk.scopes[i][name]; ok {
			return t, true
		}
	}
	if g, ok := lk.program.globals[name]; ok {
		t, err := lk.resolveTypeSpec(g.Type, g.Line)
		if err != nil {
			return Type{}, false
		}
		return t, true
	}
	if b, ok := lk.program.blocks[name]; ok {
		return Type{Kind: TBlock, Block: b}, true
	}
	if t, ok := builtinVariables[name]; ok {
		return t, true
	}
	return Type{}, false
}

var builtinVariables = map[string]Type{
	"gl_Position":  {Kind: TVec, Size: 4},
	"gl_FragCoord": {Kind: TVec, Size: 4},
}

func (lk *linker) checkFunction(f *FunctionDecl) error {
	lk.current = f
	lk.pushScope()
	defer lk.popScope()
	for _, param := range f.Params {
		t, err := lk.resolveTypeSpec(param.Type, f.Line)
		if err != nil {
			return err
		}
		lk.declare(param.Name, t)
	}
	return lk.checkBlock(f.Body)
}

func (lk *linker) checkBlock(b *BlockStmt) error {
	lk.pushScope()
	defer lk.popScope()
	for _, stmt := range b.Stmts {
		if err := lk.checkStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (lk *linker) checkStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *BlockStmt:
		return lk.checkBlock(s)
	case *DeclStmt:
		t, err := lk.resolveTypeSpec(s.Type, 0)
		if err != nil {
			return err
		}
		if s.Init != nil {
			it, err := lk.checkExpr(s.Init)
			if err != nil {
				return err
			}
			if !assignable(t, it) {
				return linkError(sprintf("cannot initialize %s %q with %s", t, s.Name, it), 0)
			}
		}
		lk.declare(s.Name, t)
		return nil
	case *AssignStmt:
		lt, err := lk.checkExpr(s.LHS)
		if err != nil {
			return err
		}
		if !isLValue(s.LHS) {
			return linkError("left side of assignment is not assignable", 0)
		}
		rt, err := lk.checkExpr(s.RHS)
		if err != nil {
			return err
		}
		if s.Op != "=" {
			// Compound assignment: same operand rules as the binary op.
			if _, ok := arithmeticResult(lt, rt); !ok {
				return linkError(sprintf("invalid operands %s and %s for %q", lt, rt, s.Op), 0)
			}
			return nil
		}
		if !assignable(lt, rt) {
			return linkError(sprintf("cannot assign %s to %s", rt, lt), 0)
		}
		return nil
	case *ExprStmt:
		_, err := lk.checkExpr(s.X)
		return err
	case *IfStmt:
		t, err := lk.checkExpr(s.Cond)
		if err != nil {
			return err
		}
		if t.Kind != TBool {
			return linkError(sprintf("if condition must be bool, got %s", t), 0)
		}
		if err := lk.checkBlock(s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			return lk.checkStmt(s.Else)
		}
		return nil
	case *WhileStmt:
		t, err := lk.checkExpr(s.Cond)
		if err != nil {
			return err
		}
		if t.Kind != TBool {
			return linkError(sprintf("while condition must be bool, got %s", t), 0)
		}
		lk.loopDepth++
		defer func() { lk.loopDepth-- }()
		return lk.checkBlock(s.Body)
	case *ForStmt:
		lk.pushScope()
		defer lk.popScope()
		if s.Init != nil {
			if err := lk.checkStmt(s.Init); err != nil {
				return err
			}
		}
		if s.Cond != nil {
			t, err := lk.checkExpr(s.Cond)
			if err != nil {
				return err
			}
			if t.Kind != TBool {
				return linkError(sprintf("for condition must be bool, got %s", t), 0)
			}
		}
		if s.Post != nil {
			if err := lk.checkStmt(s.Post); err != nil {
				return err
			}
		}
		lk.loopDepth++
		defer func() { lk.loopDepth-- }()
		return lk.checkBlock(s.Body)
	case *ReturnStmt:
		want, err := lk.resolveTypeSpec(lk.current.ReturnType, lk.current.Line)
		if err != nil {
			return err
		}
		if s.Value == nil {
			if want.Kind != TVoid {
				return linkError(sprintf("function %q must return %s", lk.current.Name, want), 0)
			}
			return nil
		}
		got, err := lk.checkExpr(s.Value)
		if err != nil {
			return err
		}
		if !assignable(want, got) {
			return linkError(sprintf("function %q returns %s, got %s", lk.current.Name, want, got), 0)
		}
		return nil
	case *DiscardStmt:
		return nil
	case *BreakStmt:
		if lk.loopDepth == 0 {
			return linkError("break outside of loop", 0)
		}
		return nil
	case *ContinueStmt:
		if lk.loopDepth == 0 {
			return linkError("continue outside of loop", 0)
		}
		return nil
	}
	return linkError("unsupported statement", 0)
}

func isLValue(e Expr) bool {
	switch x := e.(type) {
	case *Ident:
		return true
	case *MemberExpr:
		return isLValue(x.X)
	case *IndexExpr:
		return isLValue(x.X)
	}
	return false
}

func assignable(dst, src Type) bool {
	if dst.equal(src) {
		return true
	}
	// Int literals flow into uint and float contexts implicitly in this
	// dialect subset.
	if dst.Kind == TUInt && src.Kind == TInt {
		return true
	}
	return false
}

func arithmeticResult(l, r Type) (Type, bool) {
	switch {
	case l.equal(r) && (l.FloatBased() || l.Kind == TInt || l.Kind == TUInt):
		return l, true
	case l.Kind == TVec && r.Kind == TFloat:
		return l, true
	case l.Kind == TFloat && r.Kind == TVec:
		return r, true
	case l.Kind == TMat && r.Kind == TVec && l.Size == r.Size:
		return r, true
	case l.Kind == TMat && r.Kind == TFloat:
		return l, true
	}
	return Type{}, false
}

func (lk *linker) checkExpr(e Expr) (Type, error) {
	t, err := lk.typeOf(e)
	if err != nil {
		return Type{}, err
	}
	lk.program.ExprTypes[e] = t
	return t, nil
}

func (lk *linker) typeOf(e Expr) (Type, error) {
	switch x := e.(type) {
	case *Ident:
		t, ok := lk.lookup(x.Name)
		if !ok {
			return Type{}, linkError(sprintf("undeclared identifier %q", x.Name), x.Line)
		}
		return t, nil
	case *IntLit:
		if x.Unsigned {
			return Type{Kind: TUInt}, nil
		}
		return Type{Kind: TInt}, nil
	case *FloatLit:
		return Type{Kind: TFloat}, nil
	case *BoolLit:
		return Type{Kind: TBool}, nil
	case *UnaryExpr:
		t, err := lk.checkExpr(x.X)
		if err != nil {
			return Type{}, err
		}
		if x.Op == "!" {
			if t.Kind != TBool {
				return Type{}, linkError(sprintf("operand of ! must be bool, got %s", t), 0)
			}
			return t, nil
		}
		if !t.FloatBased() && t.Kind != TInt && t.Kind != TUInt {
			return Type{}, linkError(sprintf("cannot negate %s", t), 0)
		}
		return t, nil
	case *BinaryExpr:
		lt, err := lk.checkExpr(x.L)
		if err != nil {
			return Type{}, err
		}
		rt, err := lk.checkExpr(x.R)
		if err != nil {
			return Type{}, err
		}
		switch x.Op {
		case "&&", "||":
			if lt.Kind != TBool || rt.Kind != TBool {
				return Type{}, linkError(sprintf("invalid operands %s and %s for %q", lt, rt, x.Op), 0)
			}
			return Type{Kind: TBool}, nil
		case "==", "!=", "<", "<=", ">", ">=":
			if !lt.Scalar() || !lt.equal(rt) {
				return Type{}, linkError(sprintf("invalid comparison of %s and %s", lt, rt), 0)
			}
			return Type{Kind: TBool}, nil
		case "%":
			if lt.Kind != rt.Kind || lt.Kind != TInt && lt.Kind != TUInt {
				return Type{}, linkError(sprintf("invalid operands %s and %s for %%", lt, rt), 0)
			}
			return lt, nil
		default:
			t, ok := arithmeticResult(lt, rt)
			if !ok {
				return Type{}, linkError(sprintf("invalid operands %s and %s for %q", lt, rt, x.Op), 0)
			}
			return t, nil
		}
	case *CondExpr:
		ct, err := lk.checkExpr(x.Cond)
		if err != nil {
			return Type{}, err
		}
		if ct.Kind != TBool {
			return Type{}, linkError("ternary condition must be bool", 0)
		}
		tt, err := lk.checkExpr(x.Then)
		if err != nil {
			return Type{}, err
		}
		et, err := lk.checkExpr(x.Else)
		if err != nil {
			return Type{}, err
		}
		if !tt.equal(et) {
			return Type{}, linkError(sprintf("ternary branches have mismatched types %s and %s", tt, et), 0)
		}
		return tt, nil
	case *MemberExpr:
		base, err := lk.checkExpr(x.X)
		if err != nil {
			return Type{}, err
		}
		return lk.memberType(base, x.Name)
	case *IndexExpr:
		base, err := lk.checkExpr(x.X)
		if err != nil {
			return Type{}, err
		}
		it, err := lk.checkExpr(x.Index)
		if err != nil {
			return Type{}, err
		}
		if it.Kind != TInt && it.Kind != TUInt {
			return Type{}, linkError(sprintf("index must be integer, got %s", it), 0)
		}
		switch base.Kind {
		case TArray:
			return *base.Elem, nil
		case TVec:
			return Type{Kind: TFloat}, nil
		case TMat:
			return Type{Kind: TVec, Size: base.Size}, nil
		}
		return Type{}, linkError(sprintf("cannot index %s", base), 0)
	case *CallExpr:
		return lk.callType(x)
	}
	return Type{}, linkError("unsupported expression", 0)
}

var swizzleSets = [...]string{"xyzw", "rgba", "stpq"}

func swizzleIndices(name string, size int) ([]int, bool) {
	if len(name) == 0 || len(name) > 4 {
		return nil, false
	}
	for _, set := range swizzleSets {
		indices := make([]int, 0, len(name))
		ok := true
		for i := 0; i < len(name); i++ {
			idx := indexByte(set, name[i])
			if idx < 0 || idx >= size {
				ok = false
				break
			}
			indices = append(indices, idx)
		}
		if ok {
			return indices, true
		}
	}
	return nil, false
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (lk *linker) memberType(base Type, name string) (Type, error) {
	switch base.Kind {
	case TVec:
		indices, ok := swizzleIndices(name, base.Size)
		if !ok {
			return Type{}, linkError(sprintf("invalid swizzle %q on %s", name, base), 0)
		}
		if len(indices) == 1 {
			return Type{Kind: TFloat}, nil
		}
		return Type{Kind: TVec, Size: len(indices)}, nil
	case TStruct:
		for _, m := range base.Struct.Members {
			if m.Name == name {
				return lk.resolveTypeSpec(m.Type, base.Struct.Line)
			}
		}
		return Type{}, linkError(sprintf("struct %q has no member %q", base.Struct.Name, name), 0)
	case TBlock:
		for _, m := range base.Block.Members {
			if m.Name == name {
				return lk.resolveTypeSpec(m.Type, base.Block.Line)
			}
		}
		return Type{}, linkError(sprintf("block %q has no member %q", base.Block.Name, name), 0)
	}
	return Type{}, linkError(sprintf("%s has no members", base), 0)
}

func (lk *linker) callType(call *CallExpr) (Type, error) {
	var argTypes []Type
	for _, arg := range call.Args {
		t, err := lk.checkExpr(arg)
		if err != nil {
			return Type{}, err
		}
		argTypes = append(argTypes, t)
	}

	// Constructors.
	if t, ok := builtinTypes[call.Callee]; ok {
		switch t.Kind {
		case TFloat, TInt, TUInt, TBool:
			if len(argTypes) != 1 || !argTypes[0].Scalar() {
				return Type{}, linkError(sprintf("%s constructor takes one scalar argument", call.Callee), call.Line)
			}
			return t, nil
		case TVec:
			total := 0
			for _, at := range argTypes {
				switch at.Kind {
				case TFloat, TInt, TUInt:
					total++
				case TVec:
					total += at.Size
				default:
					return Type{}, linkError(sprintf("invalid %s constructor argument %s", call.Callee, at), call.Line)
				}
			}
			if total != t.Size && total != 1 {
				return Type{}, linkError(sprintf("%s constructor needs %d components, got %d", call.Callee, t.Size, total), call.Line)
			}
			return t, nil
		default:
			return Type{}, linkError(sprintf("cannot construct %s", call.Callee), call.Line)
		}
	}

	if result, ok := lk.builtinCall(call, argTypes); ok {
		return result, nil
	}

	f, ok := lk.program.Functions[call.Callee]
	if !ok {
		return Type{}, linkError(sprintf("call to undeclared function %q", call.Callee), call.Line)
	}
	if len(call.Args) != len(f.Params) {
		return Type{}, linkError(sprintf("function %q takes %d arguments, got %d",
			call.Callee, len(f.Params), len(call.Args)), call.Line)
	}
	for i, param := range f.Params {
		want, err := lk.resolveTypeSpec(param.Type, f.Line)
		if err != nil {
			return Type{}, err
		}
		if !assignable(want, argTypes[i]) {
			return Type{}, linkError(sprintf("argument %d of %q: cannot pass %s as %s",
				i+1, call.Callee, argTypes[i], want), call.Line)
		}
	}
	return lk.resolveTypeSpec(f.ReturnType, f.Line)
}

// builtinCall types the builtin function set. The second result is false
// when the callee is not a builtin.
func (lk *linker) builtinCall(call *CallExpr, args []Type) (Type, bool) {
	vec4 := Type{Kind: TVec, Size: 4}
	float := Type{Kind: TFloat}
	switch call.Callee {
	case "texture", "textureLod":
		if len(args) >= 2 && args[0].Kind == TSampler2D {
			return vec4, true
		}
		return Type{}, false
	case "subpassLoad":
		if len(args) == 1 && args[0].Kind == TSubpassInput {
			return vec4, true
		}
		return Type{}, false
	case "dot", "length", "distance":
		return float, true
	case "cross":
		return Type{Kind: TVec, Size: 3}, true
	case "normalize", "sqrt", "abs", "floor", "fract", "sin", "cos",
		"pow", "min", "max", "clamp", "mix", "reflect":
		if len(args) == 0 {
			return Type{}, false
		}
		return args[0], true
	}
	return Type{}, false
}
