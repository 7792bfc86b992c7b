package extract

import "strings"

// SignatureInfo describes a located function declaration. Found is false
// when no declaration matches; callers interpret that as the function
// having been removed or renamed, not as an error.
type SignatureInfo struct {
	Found bool
	// Parameters holds the raw token text of each formal parameter,
	// exactly as written.
	Parameters []string
	StartLine  int
	EndLine    int
	// Hash is a stable digest over the normalized signature and body.
	Hash string
}

// Signature locates the declaration of the (possibly class-scoped)
// function name and reports its formal parameters, line span, and a
// stable hash over the signature+body region.
func Signature(text, className, name string) SignatureInfo {
	lines := SplitLines(text)

	declLine := findDeclaration(lines, className, name)
	if declLine < 0 {
		return SignatureInfo{}
	}

	endLine := matchBody(lines, declLine, name)
	if endLine < 0 {
		// Declaration without a brace body (interface or abstract
		// method): the span is the declaration line itself.
		endLine = declLine
	}

	region := strings.Join(lines[declLine:endLine+1], "\n")

	return SignatureInfo{
		Found:      true,
		Parameters: parseParameters(lines, declLine, name),
		StartLine:  declLine + 1,
		EndLine:    endLine + 1,
		Hash:       Hash(region),
	}
}

// parseParameters extracts the raw text of each formal parameter from the
// balanced parenthesis group following the name token. The group may span
// lines; nested parentheses stay inside their parameter token.
func parseParameters(lines []string, declLine int, name string) []string {
	col := tokenIndex(lines[declLine], name)
	if col < 0 {
		return nil
	}
	col += len(name)

	var (
		params  []string
		current strings.Builder
		depth   int
		started bool
	)

	flush := func() {
		token := strings.TrimSpace(current.String())
		if token != "" {
			params = append(params, token)
		}
		current.Reset()
	}

	for i := declLine; i < len(lines); i++ {
		line := lines[i]
		start := 0
		if i == declLine {
			start = col
		}
		for j := start; j < len(line); j++ {
			c := line[j]
			switch {
			case c == '(':
				depth++
				if depth == 1 {
					started = true
					continue
				}
			case c == ')':
				depth--
				if started && depth == 0 {
					flush()
					return params
				}
			case c == ',' && depth == 1:
				flush()
				continue
			}
			if started && depth >= 1 {
				current.WriteByte(c)
			}
		}
		if started && depth >= 1 {
			current.WriteByte(' ')
		}
	}

	return params
}
