package glsl

import "strconv"

// Parser builds a Shader from a token stream.
type Parser struct {
	tokens []Token
	pos    int
	shader *Shader
}

// NewParser creates a parser over the given tokens.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse runs the preprocessor and parser over raw source text.
func Parse(source string) (*Shader, error) {
	src, err := Preprocess(source)
	if err != nil {
		return nil, err
	}
	return ParseSource(src)
}

// ParseSource parses preprocessed source.
func ParseSource(src *Source) (*Shader, error) {
	lexer := NewLexer(src.Body)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, err
	}
	parser := NewParser(tokens)
	shader, err := parser.ParseShader()
	if err != nil {
		return nil, err
	}
	shader.Version = src.Version
	shader.ES = src.ES
	shader.Extensions = src.Extensions
	return shader, nil
}

// ParseShader parses a whole translation unit.
func (p *Parser) ParseShader() (*Shader, error) {
	p.shader = &Shader{DefaultPrecisions: make(map[string]Precision)}
	for !p.check(TokenEOF) {
		if err := p.parseTopLevel(); err != nil {
			return nil, err
		}
	}
	return p.shader, nil
}

func (p *Parser) parseTopLevel() error {
	switch {
	case p.check(TokenPrecision):
		return p.parsePrecisionDecl()
	case p.check(TokenStruct):
		return p.parseStructDecl()
	default:
		return p.parseDeclaration()
	}
}

// parsePrecisionDecl parses "precision mediump float;".
func (p *Parser) parsePrecisionDecl() error {
	p.advance()
	prec, ok := p.parsePrecision()
	if !ok {
		return p.errorf("expected precision qualifier")
	}
	typeName := p.advance()
	if typeName.Kind != TokenIdent {
		return p.errorf("expected type name in precision declaration")
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return err
	}
	p.shader.DefaultPrecisions[typeName.Text] = prec
	return nil
}

func (p *Parser) parseStructDecl() error {
	line := p.peek().Line
	p.advance()
	name, err := p.expect(TokenIdent)
	if err != nil {
		return err
	}
	members, err := p.parseFieldList()
	if err != nil {
		return err
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return err
	}
	p.shader.Structs = append(p.shader.Structs, &StructDecl{
		Name:    name.Text,
		Members: members,
		Line:    line,
	})
	return nil
}

func (p *Parser) parseFieldList() ([]Field, error) {
	if _, err := p.expect(TokenLeftBrace); err != nil {
		return nil, err
	}
	var members []Field
	for !p.check(TokenRightBrace) {
		spec, err := p.parseTypeSpec()
		if err != nil {
			return nil, err
		}
		name, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		if p.match(TokenLeftBracket) {
			size, err := p.expect(TokenIntLiteral)
			if err != nil {
				return nil, err
			}
			n, _ := strconv.Atoi(size.Text)
			spec.ArrayLen = n
			if _, err := p.expect(TokenRightBracket); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(TokenSemicolon); err != nil {
			return nil, err
		}
		members = append(members, Field{Type: spec, Name: name.Text})
	}
	p.advance() // '}'
	return members, nil
}

// parseDeclaration parses a global variable, uniform block, or function.
func (p *Parser) parseDeclaration() error {
	line := p.peek().Line
	layout := newLayout()
	if p.check(TokenLayout) {
		var err error
		layout, err = p.parseLayout()
		if err != nil {
			return err
		}
	}

	storage := StorageNone
	switch {
	case p.match(TokenConst):
		storage = StorageConst
	case p.match(TokenIn):
		storage = StorageIn
	case p.match(TokenOut):
		storage = StorageOut
	case p.match(TokenUniform):
		storage = StorageUniform
	}

	// Uniform block: "uniform Name { ... } instance;"
	if storage == StorageUniform && p.check(TokenIdent) && p.peekAt(1).Kind == TokenLeftBrace {
		name := p.advance()
		members, err := p.parseFieldList()
		if err != nil {
			return err
		}
		instance, err := p.expect(TokenIdent)
		if err != nil {
			return err
		}
		if _, err := p.expect(TokenSemicolon); err != nil {
			return err
		}
		p.shader.Blocks = append(p.shader.Blocks, &BlockDecl{
			Layout:   layout,
			Name:     name.Text,
			Instance: instance.Text,
			Members:  members,
			Line:     line,
		})
		return nil
	}

	spec, err := p.parseTypeSpec()
	if err != nil {
		return err
	}
	name, err := p.expect(TokenIdent)
	if err != nil {
		return err
	}

	// Function definition.
	if p.check(TokenLeftParen) {
		if storage != StorageNone {
			return p.errorf("storage qualifier on function %q", name.Text)
		}
		return p.parseFunctionRest(spec, name.Text, line)
	}

	decl := &GlobalDecl{
		Layout:  layout,
		Storage: storage,
		Type:    spec,
		Name:    name.Text,
		Line:    line,
	}
	if p.match(TokenLeftBracket) {
		size, err := p.expect(TokenIntLiteral)
		if err != nil {
			return err
		}
		n, _ := strconv.Atoi(size.Text)
		decl.Type.ArrayLen = n
		if _, err := p.expect(TokenRightBracket); err != nil {
			return err
		}
	}
	if p.match(TokenEqual) {
		init, err := p.parseExpr()
		if err != nil {
			return err
		}
		decl.Init = init
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return err
	}
	p.shader.Globals = append(p.shader.Globals, decl)
	return nil
}

func (p *Parser) parseLayout() (Layout, error) {
	layout := newLayout()
	p.advance() // 'layout'
	if _, err := p.expect(TokenLeftParen); err != nil {
		return layout, err
	}
	for {
		key, err := p.expect(TokenIdent)
		if err != nil {
			return layout, err
		}
		value := -1
		if p.match(TokenEqual) {
			lit, err := p.expect(TokenIntLiteral)
			if err != nil {
				return layout, err
			}
			value, _ = strconv.Atoi(lit.Text)
		}
		switch key.Text {
		case "location":
			layout.Location = value
		case "set":
			layout.Set = value
		case "binding":
			layout.Binding = value
		case "input_attachment_index":
			layout.InputAttachmentIndex = value
		case "std140":
			layout.Std140 = true
		default:
			return layout, p.errorf("unknown layout qualifier %q", key.Text)
		}
		if !p.match(TokenComma) {
			break
		}
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return layout, err
	}
	return layout, nil
}

func (p *Parser) parseTypeSpec() (TypeSpec, error) {
	var spec TypeSpec
	if prec, ok := p.parsePrecision(); ok {
		spec.Precision = prec
	}
	name := p.advance()
	if name.Kind != TokenIdent {
		return spec, p.errorAt(name, "expected type name, got %s", name.Kind)
	}
	spec.Name = name.Text
	return spec, nil
}

func (p *Parser) parsePrecision() (Precision, bool) {
	switch {
	case p.match(TokenLowp):
		return PrecisionLow, true
	case p.match(TokenMediump):
		return PrecisionMedium, true
	case p.match(TokenHighp):
		return PrecisionHigh, true
	}
	return PrecisionDefault, false
}

func (p *Parser) parseFunctionRest(ret TypeSpec, name string, line int) error {
	p.advance() // '('
	var params []Param
	if !p.check(TokenRightParen) {
		for {
			p.match(TokenIn) // 'in' qualifier is the default; accept and drop
			spec, err := p.parseTypeSpec()
			if err != nil {
				return err
			}
			pname, err := p.expect(TokenIdent)
			if err != nil {
				return err
			}
			params = append(params, Param{Type: spec, Name: pname.Text})
			if !p.match(TokenComma) {
				break
			}
		}
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return err
	}
	body, err := p.parseBlock()
	if err != nil {
		return err
	}
	p.shader.Functions = append(p.shader.Functions, &FunctionDecl{
		ReturnType: ret,
		Name:       name,
		Params:     params,
		Body:       body,
		Line:       line,
	})
	return nil
}

func (p *Parser) parseBlock() (*BlockStmt, error) {
	if _, err := p.expect(TokenLeftBrace); err != nil {
		return nil, err
	}
	block := &BlockStmt{}
	for !p.check(TokenRightBrace) {
		if p.check(TokenEOF) {
			return nil, p.errorf("unterminated block")
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	p.advance() // '}'
	return block, nil
}

func (p *Parser) parseStmt() (Stmt, error) {
	switch {
	case p.check(TokenLeftBrace):
		return p.parseBlock()
	case p.match(TokenReturn):
		if p.match(TokenSemicolon) {
			return &ReturnStmt{}, nil
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenSemicolon); err != nil {
			return nil, err
		}
		return &ReturnStmt{Value: value}, nil
	case p.match(TokenDiscard):
		if _, err := p.expect(TokenSemicolon); err != nil {
			return nil, err
		}
		return &DiscardStmt{}, nil
	case p.match(TokenBreak):
		if _, err := p.expect(TokenSemicolon); err != nil {
			return nil, err
		}
		return &BreakStmt{}, nil
	case p.match(TokenContinue):
		if _, err := p.expect(TokenSemicolon); err != nil {
			return nil, err
		}
		return &ContinueStmt{}, nil
	case p.match(TokenIf):
		return p.parseIf()
	case p.match(TokenWhile):
		return p.parseWhile()
	case p.match(TokenFor):
		return p.parseFor()
	}

	// Local declaration: [precision] type ident [= expr] ;
	if p.isDeclStart() {
		return p.parseDeclStmt()
	}
	return p.parseSimpleStmt(TokenSemicolon)
}

// isDeclStart distinguishes "vec3 x = ..." from "x = ..." by peeking for an
// identifier pair (optionally after a precision qualifier).
func (p *Parser) isDeclStart() bool {
	i := 0
	switch p.peekAt(i).Kind {
	case TokenLowp, TokenMediump, TokenHighp:
		i++
	}
	return p.peekAt(i).Kind == TokenIdent && p.peekAt(i+1).Kind == TokenIdent
}

func (p *Parser) parseDeclStmt() (Stmt, error) {
	spec, err := p.parseTypeSpec()
	if err != nil {
		return nil, err
	}
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	decl := &DeclStmt{Type: spec, Name: name.Text}
	if p.match(TokenLeftBracket) {
		size, err := p.expect(TokenIntLiteral)
		if err != nil {
			return nil, err
		}
		n, _ := strconv.Atoi(size.Text)
		decl.Type.ArrayLen = n
		if _, err := p.expect(TokenRightBracket); err != nil {
			return nil, err
		}
	}
	if p.match(TokenEqual) {
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		decl.Init = init
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return decl, nil
}

// parseSimpleStmt parses an assignment or expression statement terminated by
// the given token, which is consumed.
func (p *Parser) parseSimpleStmt(terminator TokenKind) (Stmt, error) {
	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var stmt Stmt
	switch {
	case p.check(TokenEqual), p.check(TokenPlusEqual), p.check(TokenMinusEqual),
		p.check(TokenStarEqual), p.check(TokenSlashEqual):
		op := p.advance().Text
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt = &AssignStmt{LHS: lhs, Op: op, RHS: rhs}
	case p.match(TokenPlusPlus):
		stmt = &AssignStmt{LHS: lhs, Op: "+=", RHS: &IntLit{Value: 1}}
	case p.match(TokenMinusMinus):
		stmt = &AssignStmt{LHS: lhs, Op: "-=", RHS: &IntLit{Value: 1}}
	default:
		stmt = &ExprStmt{X: lhs}
	}
	if _, err := p.expect(terminator); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return nil, err
	}
	then, err := p.parseStmtAsBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Cond: cond, Then: then}
	if p.match(TokenElse) {
		if p.match(TokenIf) {
			elseIf, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseIf
		} else {
			elseBlock, err := p.parseStmtAsBlock()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseBlock
		}
	}
	return stmt, nil
}

// parseStmtAsBlock wraps a single statement body in a block.
func (p *Parser) parseStmtAsBlock() (*BlockStmt, error) {
	if p.check(TokenLeftBrace) {
		return p.parseBlock()
	}
	stmt, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &BlockStmt{Stmts: []Stmt{stmt}}, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return nil, err
	}
	body, err := p.parseStmtAsBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, err
	}
	stmt := &ForStmt{}
	if !p.match(TokenSemicolon) {
		var err error
		if p.isDeclStart() {
			stmt.Init, err = p.parseDeclStmt()
		} else {
			stmt.Init, err = p.parseSimpleStmt(TokenSemicolon)
		}
		if err != nil {
			return nil, err
		}
	}
	if !p.check(TokenSemicolon) {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Cond = cond
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	if !p.check(TokenRightParen) {
		post, err := p.parseSimpleStmt(TokenRightParen)
		if err != nil {
			return nil, err
		}
		stmt.Post = post
	} else {
		p.advance() // ')'
	}
	body, err := p.parseStmtAsBlock()
	if err != nil {
		return nil, err
	}
	stmt.Body = body
	return stmt, nil
}

// Expression parsing, precedence climbing.

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseTernary()
}

func (p *Parser) parseTernary() (Expr, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if !p.match(TokenQuestion) {
		return cond, nil
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &CondExpr{Cond: cond, Then: then, Else: els}, nil
}

type binaryOp struct {
	text string
	prec int
}

func (p *Parser) peekBinaryOp() (binaryOp, bool) {
	switch p.peek().Kind {
	case TokenPipePipe:
		return binaryOp{"||", 1}, true
	case TokenAmpAmp:
		return binaryOp{"&&", 2}, true
	case TokenEqualEqual:
		return binaryOp{"==", 3}, true
	case TokenBangEqual:
		return binaryOp{"!=", 3}, true
	case TokenLess:
		return binaryOp{"<", 4}, true
	case TokenLessEqual:
		return binaryOp{"<=", 4}, true
	case TokenGreater:
		return binaryOp{">", 4}, true
	case TokenGreaterEqual:
		return binaryOp{">=", 4}, true
	case TokenPlus:
		return binaryOp{"+", 5}, true
	case TokenMinus:
		return binaryOp{"-", 5}, true
	case TokenStar:
		return binaryOp{"*", 6}, true
	case TokenSlash:
		return binaryOp{"/", 6}, true
	case TokenPercent:
		return binaryOp{"%", 6}, true
	}
	return binaryOp{}, false
}

func (p *Parser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekBinaryOp()
		if !ok || op.prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(op.prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op.text, L: left, R: right}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	switch {
	case p.match(TokenMinus):
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", X: x}, nil
	case p.match(TokenBang):
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "!", X: x}, nil
	case p.match(TokenPlus):
		return p.parseUnary()
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.match(TokenDot):
			name, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			x = &MemberExpr{X: x, Name: name.Text}
		case p.match(TokenLeftBracket):
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRightBracket); err != nil {
				return nil, err
			}
			x = &IndexExpr{X: x, Index: index}
		default:
			return x, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.advance()
	switch tok.Kind {
	case TokenIntLiteral:
		text := tok.Text
		unsigned := false
		if last := text[len(text)-1]; last == 'u' || last == 'U' {
			unsigned = true
			text = text[:len(text)-1]
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, p.errorAt(tok, "malformed integer literal %q", tok.Text)
		}
		return &IntLit{Value: v, Unsigned: unsigned}, nil
	case TokenFloatLiteral:
		text := tok.Text
		if last := text[len(text)-1]; last == 'f' || last == 'F' {
			text = text[:len(text)-1]
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorAt(tok, "malformed float literal %q", tok.Text)
		}
		return &FloatLit{Value: v}, nil
	case TokenTrue:
		return &BoolLit{Value: true}, nil
	case TokenFalse:
		return &BoolLit{Value: false}, nil
	case TokenLeftParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen); err != nil {
			return nil, err
		}
		return x, nil
	case TokenLowp, TokenMediump, TokenHighp:
		// Precision on a constructor: "mediump float(x)". The qualifier has
		// no effect on the value; drop it.
		return p.parsePrimary()
	case TokenIdent:
		if p.check(TokenLeftParen) {
			p.advance()
			call := &CallExpr{Callee: tok.Text, Line: tok.Line}
			if !p.check(TokenRightParen) {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					call.Args = append(call.Args, arg)
					if !p.match(TokenComma) {
						break
					}
				}
			}
			if _, err := p.expect(TokenRightParen); err != nil {
				return nil, err
			}
			return call, nil
		}
		return &Ident{Name: tok.Text, Line: tok.Line}, nil
	}
	return nil, p.errorAt(tok, "unexpected %s", tok.Kind)
}

// Token stream helpers.

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Kind != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) check(kind TokenKind) bool {
	return p.peek().Kind == kind
}

func (p *Parser) match(kind TokenKind) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(kind TokenKind) (Token, error) {
	if !p.check(kind) {
		tok := p.peek()
		return tok, p.errorAt(tok, "expected %s, got %s %q", kind, tok.Kind, tok.Text)
	}
	return p.advance(), nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return p.errorAt(p.peek(), format, args...)
}

func (p *Parser) errorAt(tok Token, format string, args ...any) error {
	return &Error{
		Kind:    ErrParse,
		Message: sprintf(format, args...),
		Line:    tok.Line,
		Column:  tok.Column,
	}
}
