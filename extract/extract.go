// Package extract slices snippets out of raw file text: single lines,
// inclusive line ranges, and whole function bodies located by balanced
// delimiter matching. It performs structural text slicing only, no
// language-aware parsing.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Snippet is the result of a line or range extraction.
type Snippet struct {
	// Content holds the extracted lines joined by "\n" with no trailing
	// newline.
	Content string
	// LineNumbers lists the absolute 1-indexed lines returned, in order.
	LineNumbers []int
	// TotalLines is the line count of the whole file.
	TotalLines int
}

// FunctionSnippet is the result of a function extraction: declaration
// through matching closing delimiter.
type FunctionSnippet struct {
	Content   string
	StartLine int
	EndLine   int
	// BlobSHA is the content identity of the file the snippet came from,
	// as supplied by the content provider.
	BlobSHA string
}

// Line extracts the single 1-indexed line n.
func Line(text string, n int) (Snippet, error) {
	return Range(text, n, n)
}

// Range extracts the inclusive 1-indexed span [start, end].
func Range(text string, start, end int) (Snippet, error) {
	lines := SplitLines(text)
	total := len(lines)

	if start <= 0 {
		return Snippet{}, &LineOutOfRangeError{Requested: start, TotalLines: total}
	}
	if start > total {
		return Snippet{}, &LineOutOfRangeError{Requested: start, TotalLines: total}
	}
	if end > total {
		return Snippet{}, &LineOutOfRangeError{Requested: end, TotalLines: total}
	}

	numbers := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		numbers = append(numbers, i)
	}

	return Snippet{
		Content:     strings.Join(lines[start-1:end], "\n"),
		LineNumbers: numbers,
		TotalLines:  total,
	}, nil
}

// Function extracts the declaration of the (possibly class-scoped)
// function name and its body, delimited by the first opening brace after
// the declaration and its balanced match. path is used for error context
// only; blobSHA is carried through to the result.
func Function(path, text, blobSHA, className, name string) (FunctionSnippet, error) {
	lines := SplitLines(text)

	declLine := findDeclaration(lines, className, name)
	if declLine < 0 {
		display := name
		if className != "" {
			display = className + "." + name
		}
		return FunctionSnippet{}, &FunctionNotFoundError{File: path, Function: display}
	}

	endLine := matchBody(lines, declLine, name)
	if endLine < 0 {
		display := name
		if className != "" {
			display = className + "." + name
		}
		return FunctionSnippet{}, &FunctionNotFoundError{File: path, Function: display}
	}

	return FunctionSnippet{
		Content:   strings.Join(lines[declLine:endLine+1], "\n"),
		StartLine: declLine + 1,
		EndLine:   endLine + 1,
		BlobSHA:   blobSHA,
	}, nil
}

// Hash computes the stable content identity of a snippet: SHA-256 over
// the snippet with trailing whitespace stripped per line, hex encoded.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(normalizeTrailing(content)))
	return hex.EncodeToString(sum[:])
}

// SplitLines splits file text into lines without the final empty element
// produced by a trailing newline, so a file ending in "\n" still counts
// its real lines.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func normalizeTrailing(content string) string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.Join(lines, "\n")
}

// findDeclaration returns the 0-indexed line of the declaration for name,
// or -1. When className is set the search is scoped: the declaration must
// appear at or after a line mentioning the class, or carry the class on
// the declaration line itself (receiver-style methods).
func findDeclaration(lines []string, className, name string) int {
	scopeStart := 0
	if className != "" {
		scopeStart = -1
		for i, line := range lines {
			if !containsToken(line, className) {
				continue
			}
			if declaresFunction(line, name) {
				// Receiver-style: class and method share the line.
				return i
			}
			if scopeStart < 0 {
				scopeStart = i
			}
		}
		if scopeStart < 0 {
			return -1
		}
	}

	for i := scopeStart; i < len(lines); i++ {
		if declaresFunction(lines[i], name) {
			return i
		}
	}
	return -1
}

// declarationKeywords are the tokens that mark a line as a declaration
// rather than a call site.
var declarationKeywords = []string{
	"func", "function", "def", "fn", "fun", "sub",
	"public", "private", "protected", "static", "async", "override",
}

// declaresFunction reports whether the line declares a function with the
// given name: the name appears as a whole token immediately followed by
// an argument list, on a line that looks like a declaration.
func declaresFunction(line, name string) bool {
	idx := tokenIndex(line, name)
	if idx < 0 {
		return false
	}

	// The name must be followed by "(" (ignoring spaces).
	rest := strings.TrimLeft(line[idx+len(name):], " \t")
	if !strings.HasPrefix(rest, "(") {
		return false
	}

	// A declaration keyword anywhere before the name marks a declaration.
	head := line[:idx]
	for _, kw := range declarationKeywords {
		if containsToken(head, kw) {
			return true
		}
	}

	// Method shorthand (class bodies without modifiers): the name opens
	// the trimmed line and the line opens a body, distinguishing it from
	// a bare call-site expression.
	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, name) && opensBody(line, idx+len(name)) {
		return true
	}

	return false
}

// opensBody reports whether the text following the parameter list at col
// starts a body on this line, or the parameter list is left open for a
// following line. A call-site expression closes its parentheses and ends.
func opensBody(line string, col int) bool {
	depth := 0
	for i := col; i < len(line); i++ {
		switch line[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				rest := strings.TrimSpace(line[i+1:])
				return strings.HasSuffix(rest, "{")
			}
		}
	}
	// Parameter list continues on the next line.
	return depth > 0
}

// matchBody finds the 0-indexed line containing the brace matching the
// first opening brace after the declaration: the parameter list is walked
// past first so braces inside it (destructured or object-typed parameters)
// are not mistaken for the body. Nested braces of the same kind balance.
func matchBody(lines []string, declLine int, name string) int {
	startCol := 0
	if idx := tokenIndex(lines[declLine], name); idx >= 0 {
		startCol = idx
	}

	parenDepth := 0
	inParams := false
	paramsDone := false
	braceDepth := 0

	for i := declLine; i < len(lines); i++ {
		line := lines[i]
		col := 0
		if i == declLine {
			col = startCol
		}
		for ; col < len(line); col++ {
			c := line[col]

			if !paramsDone {
				switch c {
				case '(':
					parenDepth++
					inParams = true
				case ')':
					parenDepth--
					if inParams && parenDepth == 0 {
						paramsDone = true
					}
				case '{':
					if !inParams {
						// Body opens before any parameter list.
						paramsDone = true
						braceDepth = 1
					}
				}
				continue
			}

			switch c {
			case '{':
				braceDepth++
			case '}':
				braceDepth--
				if braceDepth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// containsToken reports whether name appears in line as a whole
// identifier token.
func containsToken(line, name string) bool {
	return tokenIndex(line, name) >= 0
}

// tokenIndex returns the index of name in line when it appears as a whole
// identifier token, else -1.
func tokenIndex(line, name string) int {
	from := 0
	for {
		idx := strings.Index(line[from:], name)
		if idx < 0 {
			return -1
		}
		idx += from

		beforeOK := idx == 0 || !isIdentChar(line[idx-1])
		afterIdx := idx + len(name)
		afterOK := afterIdx >= len(line) || !isIdentChar(line[afterIdx])
		if beforeOK && afterOK {
			return idx
		}
		from = idx + len(name)
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
