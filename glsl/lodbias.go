package glsl

// ApplyLodBias rewrites every two-argument texture() call in the shader to
// carry an explicit bias argument. When the shader declares a frameUniforms
// block with a lodBias member the bias reads from it, otherwise a literal
// zero keeps the call shape uniform. Returns the number of calls rewritten.
func ApplyLodBias(shader *Shader) int {
	bias := biasExpr(shader)
	count := 0
	for _, f := range shader.Functions {
		walkStmt(f.Body, func(e Expr) {
			call, ok := e.(*CallExpr)
			if !ok || call.Callee != "texture" || len(call.Args) != 2 {
				return
			}
			call.Args = append(call.Args, bias())
			count++
		})
	}
	return count
}

func biasExpr(shader *Shader) func() Expr {
	for _, b := range shader.Blocks {
		if b.Instance != "frameUniforms" {
			continue
		}
		for _, m := range b.Members {
			if m.Name == "lodBias" && m.Type.Name == "float" && m.Type.ArrayLen == 0 {
				return func() Expr {
					return &MemberExpr{X: &Ident{Name: "frameUniforms"}, Name: "lodBias"}
				}
			}
		}
	}
	return func() Expr { return &FloatLit{Value: 0} }
}

func walkStmt(stmt Stmt, fn func(Expr)) {
	switch s := stmt.(type) {
	case *BlockStmt:
		for _, st := range s.Stmts {
			walkStmt(st, fn)
		}
	case *DeclStmt:
		if s.Init != nil {
			walkExpr(s.Init, fn)
		}
	case *AssignStmt:
		walkExpr(s.LHS, fn)
		walkExpr(s.RHS, fn)
	case *ExprStmt:
		walkExpr(s.X, fn)
	case *IfStmt:
		walkExpr(s.Cond, fn)
		walkStmt(s.Then, fn)
		if s.Else != nil {
			walkStmt(s.Else, fn)
		}
	case *WhileStmt:
		walkExpr(s.Cond, fn)
		walkStmt(s.Body, fn)
	case *ForStmt:
		if s.Init != nil {
			walkStmt(s.Init, fn)
		}
		if s.Cond != nil {
			walkExpr(s.Cond, fn)
		}
		if s.Post != nil {
			walkStmt(s.Post, fn)
		}
		walkStmt(s.Body, fn)
	case *ReturnStmt:
		if s.Value != nil {
			walkExpr(s.Value, fn)
		}
	}
}

func walkExpr(e Expr, fn func(Expr)) {
	switch x := e.(type) {
	case *UnaryExpr:
		walkExpr(x.X, fn)
	case *BinaryExpr:
		walkExpr(x.L, fn)
		walkExpr(x.R, fn)
	case *CondExpr:
		walkExpr(x.Cond, fn)
		walkExpr(x.Then, fn)
		walkExpr(x.Else, fn)
	case *MemberExpr:
		walkExpr(x.X, fn)
	case *IndexExpr:
		walkExpr(x.X, fn)
		walkExpr(x.Index, fn)
	case *CallExpr:
		for _, arg := range x.Args {
			walkExpr(arg, fn)
		}
	}
	fn(e)
}
