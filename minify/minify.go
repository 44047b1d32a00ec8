// Package minify post-processes generated shader text.
//
// Two operations are exposed. RemoveWhitespace is always safe: it strips
// comments and non-semantic whitespace without touching any identifier.
// RenameStructFields shortens struct member names; it is safe only for
// identifiers that are not externally visible, so callers must not apply it
// to text whose field names another compiler or the host engine resolves by
// name.
package minify

import (
	"fmt"
	"strings"
)

func isIdentChar(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// RemoveWhitespace strips comments and collapses whitespace. Preprocessor
// directives keep their own lines; everywhere else a space survives only
// between two identifier characters.
func RemoveWhitespace(text string) string {
	var out strings.Builder
	out.Grow(len(text))

	i := 0
	n := len(text)
	atLineStart := true
	for i < n {
		c := text[i]

		// Comments.
		if c == '/' && i+1 < n {
			if text[i+1] == '/' {
				for i < n && text[i] != '\n' {
					i++
				}
				continue
			}
			if text[i+1] == '*' {
				i += 2
				for i+1 < n && !(text[i] == '*' && text[i+1] == '/') {
					i++
				}
				i += 2
				if i > n {
					i = n
				}
				continue
			}
		}

		// Preprocessor directives stay line-oriented.
		if c == '#' && atLineStart {
			start := i
			for i < n && text[i] != '\n' {
				i++
			}
			line := strings.TrimRight(text[start:i], " \t")
			if out.Len() > 0 {
				ensureNewline(&out)
			}
			out.WriteString(line)
			out.WriteByte('\n')
			if i < n {
				i++ // consume the newline
			}
			continue
		}

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			// Collapse the run; keep one space only if both neighbors are
			// identifier characters.
			j := i
			sawNewline := false
			for j < n && (text[j] == ' ' || text[j] == '\t' || text[j] == '\n' || text[j] == '\r') {
				if text[j] == '\n' || text[j] == '\r' {
					sawNewline = true
				}
				j++
			}
			prev := lastByte(&out)
			if j < n && prev != 0 && isIdentChar(prev) && isIdentChar(text[j]) {
				out.WriteByte(' ')
			}
			atLineStart = sawNewline || prev == '\n' || prev == 0
			i = j
			continue
		}

		out.WriteByte(c)
		atLineStart = false
		i++
	}
	return out.String()
}

func lastByte(sb *strings.Builder) byte {
	s := sb.String()
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func ensureNewline(sb *strings.Builder) {
	if lastByte(sb) != '\n' {
		sb.WriteByte('\n')
	}
}

// RenameStructFields shortens the member names of every struct declared in
// the text and rewrites the corresponding member accesses. Generated names
// never collide with swizzle selectors.
func RenameStructFields(text string) string {
	fields := collectStructFields(text)
	if len(fields) == 0 {
		return text
	}

	renames := make(map[string]string, len(fields))
	next := 0
	for _, name := range fields {
		if _, done := renames[name]; done {
			continue
		}
		// A field that reads like a swizzle selector cannot be renamed by a
		// textual pass: its accesses are indistinguishable from vector
		// swizzles.
		if looksLikeSwizzle(name) {
			continue
		}
		renames[name] = fmt.Sprintf("m%d", next)
		next++
	}

	var out strings.Builder
	out.Grow(len(text))
	i := 0
	n := len(text)
	for i < n {
		c := text[i]
		if isIdentStart(c) {
			j := i
			for j < n && isIdentChar(text[j]) {
				j++
			}
			word := text[i:j]
			if short, ok := renames[word]; ok && renameSite(text, i) {
				out.WriteString(short)
			} else {
				out.WriteString(word)
			}
			i = j
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

func looksLikeSwizzle(name string) bool {
	if len(name) == 0 || len(name) > 4 {
		return false
	}
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case 'x', 'y', 'z', 'w', 'r', 'g', 'b', 'a', 's', 't', 'p', 'q':
		default:
			return false
		}
	}
	return true
}

func isIdentStart(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// renameSite reports whether the identifier at offset is a member access or
// a member declaration, the only positions where a field name may change.
func renameSite(text string, offset int) bool {
	for k := offset - 1; k >= 0; k-- {
		switch text[k] {
		case ' ', '\t', '\n', '\r':
			continue
		case '.':
			// Member access, unless it is a float literal like "1.x" cannot
			// occur with an identifier start; accesses always rename.
			return true
		default:
			// A declaration site inside a struct body is handled by the
			// collector marking; outside of it, leave the identifier alone
			// unless it is one of the declared members in a struct body.
			return insideStructBody(text, offset)
		}
	}
	return false
}

// collectStructFields returns the declared member names of every struct in
// the text, in declaration order.
func collectStructFields(text string) []string {
	var fields []string
	for _, body := range structBodies(text) {
		for _, decl := range strings.Split(body, ";") {
			words := splitIdentifiers(decl)
			// "type name" or "qualifier type name"; the member name is the
			// last identifier before any array suffix.
			if len(words) >= 2 {
				fields = append(fields, words[len(words)-1])
			}
		}
	}
	return fields
}

// structBodies returns the text between braces of each struct declaration.
func structBodies(text string) []string {
	var bodies []string
	i := 0
	for {
		idx := strings.Index(text[i:], "struct")
		if idx < 0 {
			return bodies
		}
		start := i + idx
		// Must be a standalone keyword.
		if start > 0 && isIdentChar(text[start-1]) ||
			start+6 < len(text) && isIdentChar(text[start+6]) {
			i = start + 6
			continue
		}
		open := strings.IndexByte(text[start:], '{')
		if open < 0 {
			return bodies
		}
		open += start
		depth := 0
		for j := open; j < len(text); j++ {
			if text[j] == '{' {
				depth++
			} else if text[j] == '}' {
				depth--
				if depth == 0 {
					bodies = append(bodies, text[open+1:j])
					i = j
					break
				}
			}
		}
		if depth != 0 {
			return bodies
		}
	}
}

// insideStructBody reports whether offset lies within a struct body.
func insideStructBody(text string, offset int) bool {
	i := 0
	for {
		idx := strings.Index(text[i:], "struct")
		if idx < 0 {
			return false
		}
		start := i + idx
		if start > 0 && isIdentChar(text[start-1]) ||
			start+6 < len(text) && isIdentChar(text[start+6]) {
			i = start + 6
			continue
		}
		open := strings.IndexByte(text[start:], '{')
		if open < 0 {
			return false
		}
		open += start
		depth := 0
		for j := open; j < len(text); j++ {
			if text[j] == '{' {
				depth++
			} else if text[j] == '}' {
				depth--
				if depth == 0 {
					if offset > open && offset < j {
						return true
					}
					i = j
					break
				}
			}
		}
		if depth != 0 {
			return false
		}
		if i <= start {
			return false
		}
	}
}

func splitIdentifiers(s string) []string {
	var words []string
	i := 0
	for i < len(s) {
		if isIdentStart(s[i]) {
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			words = append(words, s[i:j])
			i = j
			continue
		}
		// Array suffixes end the declarator; drop anything after '['.
		if s[i] == '[' {
			break
		}
		i++
	}
	return words
}
