package glsl

import (
	"strconv"
	"strings"
)

// Source is the result of preprocessing: the expanded body with all
// directives resolved, plus the version and extension lines carried
// through for re-emission.
type Source struct {
	Version    int
	ES         bool
	Extensions []string
	Body       string
}

// String reassembles the full expanded source text, the form handed back as
// the primary output in preprocess-only mode.
func (s *Source) String() string {
	var sb strings.Builder
	if s.Version != 0 {
		sb.WriteString("#version ")
		sb.WriteString(strconv.Itoa(s.Version))
		if s.ES {
			sb.WriteString(" es")
		}
		sb.WriteByte('\n')
	}
	for _, ext := range s.Extensions {
		sb.WriteString(ext)
		sb.WriteByte('\n')
	}
	sb.WriteString(s.Body)
	return sb.String()
}

type macro struct {
	params []string // nil for object-like macros
	body   string
}

// Preprocess expands macros and conditionals in the source. Includes are
// disallowed and fail with ErrPreprocess, mirroring the forbid-includer
// contract of the embedding build system.
func Preprocess(source string) (*Source, error) {
	out := &Source{}
	macros := make(map[string]macro)

	// Conditional inclusion stack; each entry records whether the branch is
	// live and whether any branch of the group was taken.
	type cond struct{ live, taken bool }
	var conds []cond
	live := func() bool {
		for _, c := range conds {
			if !c.live {
				return false
			}
		}
		return true
	}

	var body strings.Builder
	lines := strings.Split(source, "\n")
	for lineNo, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if live() {
				expanded, err := expandMacros(line, macros, 0)
				if err != nil {
					return nil, ppError(err.Error(), lineNo+1)
				}
				body.WriteString(expanded)
				body.WriteByte('\n')
			}
			continue
		}

		fields := strings.Fields(strings.TrimPrefix(trimmed, "#"))
		directive := ""
		if len(fields) > 0 {
			directive = fields[0]
		}
		switch directive {
		case "version":
			if !live() || len(fields) < 2 {
				continue
			}
			v, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, ppError("malformed #version directive", lineNo+1)
			}
			out.Version = v
			out.ES = len(fields) > 2 && fields[2] == "es"
		case "extension":
			if live() {
				out.Extensions = append(out.Extensions, trimmed)
			}
		case "define":
			if live() {
				if err := parseDefine(trimmed, macros); err != nil {
					return nil, ppError(err.Error(), lineNo+1)
				}
			}
		case "undef":
			if live() && len(fields) > 1 {
				delete(macros, fields[1])
			}
		case "ifdef", "ifndef":
			if len(fields) < 2 {
				return nil, ppError("missing macro name in #"+directive, lineNo+1)
			}
			_, defined := macros[fields[1]]
			take := defined == (directive == "ifdef")
			conds = append(conds, cond{live: take, taken: take})
		case "else":
			if len(conds) == 0 {
				return nil, ppError("#else without matching #ifdef", lineNo+1)
			}
			top := &conds[len(conds)-1]
			top.live = !top.taken
			top.taken = true
		case "endif":
			if len(conds) == 0 {
				return nil, ppError("#endif without matching #ifdef", lineNo+1)
			}
			conds = conds[:len(conds)-1]
		case "include":
			return nil, ppError("#include directives are not allowed", lineNo+1)
		case "":
			// A lone '#' is a null directive.
		default:
			return nil, ppError("unsupported directive #"+directive, lineNo+1)
		}
	}
	if len(conds) != 0 {
		return nil, ppError("unterminated #ifdef", len(lines))
	}

	out.Body = body.String()
	return out, nil
}

func ppError(message string, line int) error {
	return &Error{Kind: ErrPreprocess, Message: message, Line: line, Column: 1}
}

func parseDefine(line string, macros map[string]macro) error {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#"))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "define"))
	if rest == "" {
		return &Error{Kind: ErrPreprocess, Message: "missing macro name in #define"}
	}

	// Name runs to the first non-identifier character.
	end := 0
	for end < len(rest) && isIdentChar(rest[end]) {
		end++
	}
	if end == 0 {
		return &Error{Kind: ErrPreprocess, Message: "malformed #define"}
	}
	name := rest[:end]
	rest = rest[end:]

	// Function-like only when '(' immediately follows the name.
	if strings.HasPrefix(rest, "(") {
		closeParen := strings.IndexByte(rest, ')')
		if closeParen < 0 {
			return &Error{Kind: ErrPreprocess, Message: "unterminated macro parameter list"}
		}
		var params []string
		for _, p := range strings.Split(rest[1:closeParen], ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				params = append(params, p)
			}
		}
		if params == nil {
			params = []string{}
		}
		macros[name] = macro{params: params, body: strings.TrimSpace(rest[closeParen+1:])}
		return nil
	}

	macros[name] = macro{body: strings.TrimSpace(rest)}
	return nil
}

const maxExpansionDepth = 32

func expandMacros(line string, macros map[string]macro, depth int) (string, error) {
	if depth > maxExpansionDepth {
		return "", &Error{Kind: ErrPreprocess, Message: "macro expansion too deep (recursive macro?)"}
	}
	if len(macros) == 0 {
		return line, nil
	}

	var out strings.Builder
	i := 0
	changed := false
	for i < len(line) {
		c := line[i]
		if !isIdentStart(c) {
			out.WriteByte(c)
			i++
			continue
		}
		j := i
		for j < len(line) && isIdentChar(line[j]) {
			j++
		}
		word := line[i:j]
		m, ok := macros[word]
		if !ok {
			out.WriteString(word)
			i = j
			continue
		}

		if m.params == nil {
			out.WriteString(m.body)
			changed = true
			i = j
			continue
		}

		// Function-like: require an argument list.
		k := j
		for k < len(line) && (line[k] == ' ' || line[k] == '\t') {
			k++
		}
		if k >= len(line) || line[k] != '(' {
			out.WriteString(word)
			i = j
			continue
		}
		args, next, err := scanMacroArgs(line, k)
		if err != nil {
			return "", err
		}
		if len(args) != len(m.params) {
			return "", &Error{Kind: ErrPreprocess,
				Message: sprintf("macro %s expects %d arguments, got %d", word, len(m.params), len(args))}
		}
		expansion := m.body
		for pi, param := range m.params {
			expansion = replaceWord(expansion, param, args[pi])
		}
		out.WriteString(expansion)
		changed = true
		i = next
	}

	if !changed {
		return out.String(), nil
	}
	return expandMacros(out.String(), macros, depth+1)
}

// scanMacroArgs scans a parenthesized argument list starting at the '(' and
// returns the arguments and the index just past the closing ')'.
func scanMacroArgs(line string, open int) ([]string, int, error) {
	depth := 0
	start := open + 1
	var args []string
	for i := open; i < len(line); i++ {
		switch line[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				arg := strings.TrimSpace(line[start:i])
				if arg != "" || len(args) > 0 {
					args = append(args, arg)
				}
				return args, i + 1, nil
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(line[start:i]))
				start = i + 1
			}
		}
	}
	return nil, 0, &Error{Kind: ErrPreprocess, Message: "unterminated macro argument list"}
}

// replaceWord substitutes whole-identifier occurrences of name in body.
func replaceWord(body, name, replacement string) string {
	var out strings.Builder
	i := 0
	for i < len(body) {
		if !isIdentStart(body[i]) {
			out.WriteByte(body[i])
			i++
			continue
		}
		j := i
		for j < len(body) && isIdentChar(body[j]) {
			j++
		}
		word := body[i:j]
		if word == name {
			out.WriteString(replacement)
		} else {
			out.WriteString(word)
		}
		i = j
	}
	return out.String()
}
