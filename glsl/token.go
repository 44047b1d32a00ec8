// Package glsl implements the source-dialect front end: preprocessing,
// parsing, linking and lowering of GLSL shaders to the binary IR, plus the
// writer that transpiles optimized IR back to GLSL text.
package glsl

// TokenKind represents the type of token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenError

	// Literals
	TokenIdent
	TokenIntLiteral
	TokenFloatLiteral

	// Operators
	TokenPlus         // +
	TokenMinus        // -
	TokenStar         // *
	TokenSlash        // /
	TokenPercent      // %
	TokenBang         // !
	TokenEqual        // =
	TokenLess         // <
	TokenGreater      // >
	TokenDot          // .
	TokenComma        // ,
	TokenSemicolon    // ;
	TokenQuestion     // ?
	TokenColon        // :
	TokenPlusPlus     // ++
	TokenMinusMinus   // --
	TokenEqualEqual   // ==
	TokenBangEqual    // !=
	TokenLessEqual    // <=
	TokenGreaterEqual // >=
	TokenAmpAmp       // &&
	TokenPipePipe     // ||
	TokenPlusEqual    // +=
	TokenMinusEqual   // -=
	TokenStarEqual    // *=
	TokenSlashEqual   // /=

	// Delimiters
	TokenLeftParen    // (
	TokenRightParen   // )
	TokenLeftBrace    // {
	TokenRightBrace   // }
	TokenLeftBracket  // [
	TokenRightBracket // ]

	// Keywords
	TokenBreak
	TokenConst
	TokenContinue
	TokenDiscard
	TokenElse
	TokenFalse
	TokenFor
	TokenHighp
	TokenIf
	TokenIn
	TokenLayout
	TokenLowp
	TokenMediump
	TokenOut
	TokenPrecision
	TokenReturn
	TokenStruct
	TokenTrue
	TokenUniform
	TokenWhile
)

// Token represents a single lexical token.
type Token struct {
	Kind   TokenKind
	Text   string
	Line   int
	Column int
}

var keywords = map[string]TokenKind{
	"break":     TokenBreak,
	"const":     TokenConst,
	"continue":  TokenContinue,
	"discard":   TokenDiscard,
	"else":      TokenElse,
	"false":     TokenFalse,
	"for":       TokenFor,
	"highp":     TokenHighp,
	"if":        TokenIf,
	"in":        TokenIn,
	"layout":    TokenLayout,
	"lowp":      TokenLowp,
	"mediump":   TokenMediump,
	"out":       TokenOut,
	"precision": TokenPrecision,
	"return":    TokenReturn,
	"struct":    TokenStruct,
	"true":      TokenTrue,
	"uniform":   TokenUniform,
	"while":     TokenWhile,
}

// String returns a printable description of the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "EOF"
	case TokenIdent:
		return "identifier"
	case TokenIntLiteral:
		return "integer literal"
	case TokenFloatLiteral:
		return "float literal"
	case TokenSemicolon:
		return "';'"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenLeftBrace:
		return "'{'"
	case TokenRightBrace:
		return "'}'"
	case TokenLeftBracket:
		return "'['"
	case TokenRightBracket:
		return "']'"
	case TokenComma:
		return "','"
	case TokenEqual:
		return "'='"
	}
	return "token"
}
