package glsl

// Shader is the parsed form of one translation unit.
type Shader struct {
	// Version is the #version number (0 when absent).
	Version int
	ES      bool

	// Extensions lists #extension directive lines, verbatim.
	Extensions []string

	// DefaultPrecisions maps a type name to its declared default precision
	// ("precision mediump float;").
	DefaultPrecisions map[string]Precision

	Structs   []*StructDecl
	Globals   []*GlobalDecl
	Blocks    []*BlockDecl
	Functions []*FunctionDecl
}

// Precision is a GLSL precision qualifier.
type Precision uint8

const (
	PrecisionDefault Precision = iota
	PrecisionLow
	PrecisionMedium
	PrecisionHigh
)

// Relaxed reports whether the precision maps to a relaxed-precision IR
// decoration.
func (p Precision) Relaxed() bool {
	return p == PrecisionLow || p == PrecisionMedium
}

// Storage is the storage qualifier of a global declaration.
type Storage uint8

const (
	StorageNone Storage = iota // plain global
	StorageConst
	StorageIn
	StorageOut
	StorageUniform
)

// Layout holds layout(...) qualifier values; absent keys use -1.
type Layout struct {
	Location             int
	Set                  int
	Binding              int
	InputAttachmentIndex int
	Std140               bool
}

func newLayout() Layout {
	return Layout{Location: -1, Set: -1, Binding: -1, InputAttachmentIndex: -1}
}

// TypeSpec is a syntactic type reference.
type TypeSpec struct {
	Name      string
	Precision Precision
	ArrayLen  int // 0 when not an array
}

// StructDecl declares a struct type.
type StructDecl struct {
	Name    string
	Members []Field
	Line    int
}

// Field is a struct or block member.
type Field struct {
	Type TypeSpec
	Name string
}

// GlobalDecl declares a module-scope variable.
type GlobalDecl struct {
	Layout  Layout
	Storage Storage
	Type    TypeSpec
	Name    string
	Init    Expr // const initializer, nil otherwise
	Line    int
}

// BlockDecl declares a named uniform block with an instance name.
type BlockDecl struct {
	Layout   Layout
	Name     string // block type name
	Instance string // instance name used in member accesses
	Members  []Field
	Line     int
}

// FunctionDecl declares a function definition.
type FunctionDecl struct {
	ReturnType TypeSpec
	Name       string
	Params     []Param
	Body       *BlockStmt
	Line       int
}

// Param is a function parameter.
type Param struct {
	Type TypeSpec
	Name string
}

// Stmt is a statement node.
type Stmt interface{ stmt() }

// BlockStmt is a brace-delimited statement list.
type BlockStmt struct {
	Stmts []Stmt
}

// DeclStmt declares a local variable.
type DeclStmt struct {
	Type TypeSpec
	Name string
	Init Expr // nil when uninitialized
}

// AssignStmt assigns to an lvalue; Op is "=", "+=", "-=", "*=" or "/=".
type AssignStmt struct {
	LHS Expr
	Op  string
	RHS Expr
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	X Expr
}

// IfStmt is a conditional.
type IfStmt struct {
	Cond Expr
	Then *BlockStmt
	Else Stmt // *BlockStmt, *IfStmt, or nil
}

// WhileStmt is a while loop.
type WhileStmt struct {
	Cond Expr
	Body *BlockStmt
}

// ForStmt is a for loop.
type ForStmt struct {
	Init Stmt // *DeclStmt or *AssignStmt, may be nil
	Cond Expr // may be nil (treated as true)
	Post Stmt // *AssignStmt or *ExprStmt, may be nil
	Body *BlockStmt
}

// ReturnStmt returns from the enclosing function.
type ReturnStmt struct {
	Value Expr // nil for "return;"
}

// DiscardStmt kills the current fragment.
type DiscardStmt struct{}

// BreakStmt exits the innermost loop.
type BreakStmt struct{}

// ContinueStmt jumps to the innermost loop's continue point.
type ContinueStmt struct{}

func (*BlockStmt) stmt()    {}
func (*DeclStmt) stmt()     {}
func (*AssignStmt) stmt()   {}
func (*ExprStmt) stmt()     {}
func (*IfStmt) stmt()       {}
func (*WhileStmt) stmt()    {}
func (*ForStmt) stmt()      {}
func (*ReturnStmt) stmt()   {}
func (*DiscardStmt) stmt()  {}
func (*BreakStmt) stmt()    {}
func (*ContinueStmt) stmt() {}

// Expr is an expression node.
type Expr interface{ expr() }

// Ident references a variable, block instance or builtin.
type Ident struct {
	Name string
	Line int
}

// IntLit is an integer literal.
type IntLit struct {
	Value    int64
	Unsigned bool
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Value float64
}

// BoolLit is true or false.
type BoolLit struct {
	Value bool
}

// BinaryExpr applies a binary operator.
type BinaryExpr struct {
	Op   string
	L, R Expr
}

// UnaryExpr applies prefix '-' or '!'.
type UnaryExpr struct {
	Op string
	X  Expr
}

// CondExpr is the ternary ?: operator.
type CondExpr struct {
	Cond, Then, Else Expr
}

// CallExpr calls a function, constructor or builtin.
type CallExpr struct {
	Callee string
	Args   []Expr
	Line   int
}

// MemberExpr accesses a struct/block member or vector swizzle.
type MemberExpr struct {
	X    Expr
	Name string
}

// IndexExpr indexes an array or vector.
type IndexExpr struct {
	X     Expr
	Index Expr
}

func (*Ident) expr()      {}
func (*IntLit) expr()     {}
func (*FloatLit) expr()   {}
func (*BoolLit) expr()    {}
func (*BinaryExpr) expr() {}
func (*UnaryExpr) expr()  {}
func (*CondExpr) expr()   {}
func (*CallExpr) expr()   {}
func (*MemberExpr) expr() {}
func (*IndexExpr) expr()  {}
