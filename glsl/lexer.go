package glsl

// Lexer tokenizes preprocessed GLSL source. Preprocessor directives must be
// resolved before lexing; a stray '#' is a lexical error.
type Lexer struct {
	source string
	pos    int
	line   int
	column int
	start  int
	tokens []Token
}

// NewLexer creates a new lexer for the given source.
func NewLexer(source string) *Lexer {
	estTokens := len(source) / 6
	if estTokens < 16 {
		estTokens = 16
	}
	return &Lexer{
		source: source,
		line:   1,
		column: 1,
		tokens: make([]Token, 0, estTokens),
	}
}

// Tokenize returns all tokens from the source.
func (l *Lexer) Tokenize() ([]Token, error) {
	for !l.isAtEnd() {
		l.start = l.pos
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
	l.tokens = append(l.tokens, Token{Kind: TokenEOF, Line: l.line, Column: l.column})
	return l.tokens, nil
}

func (l *Lexer) scanToken() error {
	c := l.advance()

	switch c {
	case ' ', '\t', '\r':
		return nil
	case '\n':
		l.line++
		l.column = 1
		return nil
	case '(':
		l.addToken(TokenLeftParen)
	case ')':
		l.addToken(TokenRightParen)
	case '{':
		l.addToken(TokenLeftBrace)
	case '}':
		l.addToken(TokenRightBrace)
	case '[':
		l.addToken(TokenLeftBracket)
	case ']':
		l.addToken(TokenRightBracket)
	case ',':
		l.addToken(TokenComma)
	case ';':
		l.addToken(TokenSemicolon)
	case '?':
		l.addToken(TokenQuestion)
	case ':':
		l.addToken(TokenColon)
	case '%':
		l.addToken(TokenPercent)
	case '.':
		if isDigit(l.peek()) {
			return l.scanNumber(true)
		}
		l.addToken(TokenDot)
	case '+':
		if l.match('+') {
			l.addToken(TokenPlusPlus)
		} else if l.match('=') {
			l.addToken(TokenPlusEqual)
		} else {
			l.addToken(TokenPlus)
		}
	case '-':
		if l.match('-') {
			l.addToken(TokenMinusMinus)
		} else if l.match('=') {
			l.addToken(TokenMinusEqual)
		} else {
			l.addToken(TokenMinus)
		}
	case '*':
		if l.match('=') {
			l.addToken(TokenStarEqual)
		} else {
			l.addToken(TokenStar)
		}
	case '/':
		if l.match('/') {
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		} else if l.match('*') {
			for !l.isAtEnd() {
				if l.peek() == '\n' {
					l.line++
					l.column = 0
				}
				if l.advance() == '*' && l.match('/') {
					break
				}
			}
		} else if l.match('=') {
			l.addToken(TokenSlashEqual)
		} else {
			l.addToken(TokenSlash)
		}
	case '!':
		if l.match('=') {
			l.addToken(TokenBangEqual)
		} else {
			l.addToken(TokenBang)
		}
	case '=':
		if l.match('=') {
			l.addToken(TokenEqualEqual)
		} else {
			l.addToken(TokenEqual)
		}
	case '<':
		if l.match('=') {
			l.addToken(TokenLessEqual)
		} else {
			l.addToken(TokenLess)
		}
	case '>':
		if l.match('=') {
			l.addToken(TokenGreaterEqual)
		} else {
			l.addToken(TokenGreater)
		}
	case '&':
		if l.match('&') {
			l.addToken(TokenAmpAmp)
		} else {
			return l.errorf("unexpected character '&'")
		}
	case '|':
		if l.match('|') {
			l.addToken(TokenPipePipe)
		} else {
			return l.errorf("unexpected character '|'")
		}
	default:
		if isDigit(c) {
			return l.scanNumber(false)
		}
		if isIdentStart(c) {
			return l.scanIdent()
		}
		return l.errorf("unexpected character %q", c)
	}
	return nil
}

func (l *Lexer) scanNumber(seenDot bool) error {
	isFloat := seenDot
	for isDigit(l.peek()) {
		l.advance()
	}
	if !seenDot && l.peek() == '.' {
		isFloat = true
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		isFloat = true
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	// Literal suffixes.
	switch l.peek() {
	case 'f', 'F':
		isFloat = true
		l.advance()
	case 'u', 'U':
		if isFloat {
			return l.errorf("invalid suffix 'u' on float literal")
		}
		l.advance()
	}
	if isFloat {
		l.addToken(TokenFloatLiteral)
	} else {
		l.addToken(TokenIntLiteral)
	}
	return nil
}

func (l *Lexer) scanIdent() error {
	for isIdentChar(l.peek()) {
		l.advance()
	}
	text := l.source[l.start:l.pos]
	if kind, ok := keywords[text]; ok {
		l.addToken(kind)
	} else {
		l.addToken(TokenIdent)
	}
	return nil
}

func (l *Lexer) addToken(kind TokenKind) {
	text := l.source[l.start:l.pos]
	l.tokens = append(l.tokens, Token{
		Kind:   kind,
		Text:   text,
		Line:   l.line,
		Column: l.column - len(text),
	})
}

func (l *Lexer) errorf(format string, args ...any) error {
	return &Error{
		Kind:    ErrParse,
		Message: sprintf(format, args...),
		Line:    l.line,
		Column:  l.column,
	}
}

func (l *Lexer) advance() byte {
	c := l.source[l.pos]
	l.pos++
	l.column++
	return c
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.pos++
	l.column++
	return true
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
