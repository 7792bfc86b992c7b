// Package link parses the tether link syntax embedded in documents:
//
//	[label](github://{owner}/{repo}/{path}[:{start}[-{end}] | #{function}])
//
// Parsing is a single forward pass over the document text rather than a
// regular expression, so the grammar can be hardened without changing the
// external contract: an ordered list of link records.
package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360studio/tether/reference"
)

// Scheme is the URI scheme that marks a tracked code link. Markdown links
// with any other scheme pass through untouched.
const Scheme = "github://"

// Link is one parsed code link, in document order.
type Link struct {
	Type         reference.Type
	Owner        string
	Repo         string
	FilePath     string
	StartLine    int
	EndLine      int
	FunctionName string
	ClassName    string

	// Label is the bracketed link text.
	Label string
	// OriginalText is the exact matched span, bracket through closing paren.
	OriginalText string
	// Context is the non-blank line containing the match, or the nearest
	// preceding non-blank line, for human review.
	Context string
}

// MalformedLinkError reports input that does not match the link grammar.
type MalformedLinkError struct {
	Input  string
	Reason string
}

func (e *MalformedLinkError) Error() string {
	return fmt.Sprintf("malformed code link %q: %s", e.Input, e.Reason)
}

// ScanDocument locates every code link in the given text, in order.
// Ordinary markdown links and unparseable candidates are skipped; the
// scheme does not have to be the only content inside the parentheses.
func ScanDocument(text string) []Link {
	var links []Link

	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}

		labelEnd := scanTo(text, i+1, ']')
		if labelEnd < 0 || labelEnd+1 >= len(text) || text[labelEnd+1] != '(' {
			continue
		}

		parenEnd := scanTo(text, labelEnd+2, ')')
		if parenEnd < 0 {
			continue
		}

		inside := text[labelEnd+2 : parenEnd]
		schemeIdx := strings.Index(inside, Scheme)
		if schemeIdx < 0 {
			continue
		}

		l, err := parseTarget(inside[schemeIdx:])
		if err != nil {
			continue
		}

		l.Label = text[i+1 : labelEnd]
		l.OriginalText = text[i : parenEnd+1]
		l.Context = contextLine(text, i)
		links = append(links, l)

		i = parenEnd
	}

	return links
}

// ExtractRepoInfo parses a single link target outside a full document.
// Unlike ScanDocument it is strict: a missing scheme prefix or an invalid
// shape is a MalformedLinkError.
func ExtractRepoInfo(url string) (Link, error) {
	if !strings.HasPrefix(url, Scheme) {
		return Link{}, &MalformedLinkError{Input: url, Reason: "missing " + Scheme + " scheme"}
	}
	return parseTarget(url)
}

// parseTarget parses "github://owner/repo/path{suffix}". The suffix is one
// of ":n", ":a-b", or "#function"; when forms collide the function suffix
// wins, then range, then single line.
func parseTarget(target string) (Link, error) {
	rest := strings.TrimPrefix(target, Scheme)

	// Anything after the target proper (titles, trailing prose) ends it.
	if cut := strings.IndexAny(rest, " \t\r\n\"'"); cut >= 0 {
		rest = rest[:cut]
	}

	slash := strings.IndexByte(rest, '/')
	if slash <= 0 {
		return Link{}, &MalformedLinkError{Input: target, Reason: "missing repository owner"}
	}
	owner := rest[:slash]
	rest = rest[slash+1:]

	slash = strings.IndexByte(rest, '/')
	if slash <= 0 {
		return Link{}, &MalformedLinkError{Input: target, Reason: "missing repository name"}
	}
	repo := rest[:slash]
	rest = rest[slash+1:]

	pathEnd := len(rest)
	colonIdx := strings.IndexByte(rest, ':')
	hashIdx := strings.IndexByte(rest, '#')
	if colonIdx >= 0 && colonIdx < pathEnd {
		pathEnd = colonIdx
	}
	if hashIdx >= 0 && hashIdx < pathEnd {
		pathEnd = hashIdx
	}

	path := rest[:pathEnd]
	if path == "" {
		return Link{}, &MalformedLinkError{Input: target, Reason: "missing file path"}
	}

	l := Link{Owner: owner, Repo: repo, FilePath: path}

	switch {
	case hashIdx >= 0:
		// Function suffix takes precedence over any line suffix.
		name := rest[hashIdx+1:]
		if name == "" {
			return Link{}, &MalformedLinkError{Input: target, Reason: "empty function name"}
		}
		l.Type = reference.TypeFunction
		if dot := strings.IndexByte(name, '.'); dot > 0 && dot < len(name)-1 {
			l.ClassName = name[:dot]
			l.FunctionName = name[dot+1:]
		} else {
			l.FunctionName = name
		}

	case colonIdx >= 0:
		spec := rest[colonIdx+1:]
		start, end, isRange, err := parseLineSpec(spec)
		if err != nil {
			return Link{}, &MalformedLinkError{Input: target, Reason: err.Error()}
		}
		l.StartLine = start
		if isRange {
			l.Type = reference.TypeRange
			l.EndLine = end
		} else {
			l.Type = reference.TypeLine
		}

	default:
		// A bare file link defaults to its first line.
		l.Type = reference.TypeLine
		l.StartLine = 1
	}

	if err := reference.Validate(l.Type, l.StartLine, l.EndLine, l.FunctionName); err != nil {
		return Link{}, &MalformedLinkError{Input: target, Reason: err.Error()}
	}

	return l, nil
}

// parseLineSpec parses "n" or "a-b" after the colon.
func parseLineSpec(spec string) (start, end int, isRange bool, err error) {
	if spec == "" {
		return 0, 0, false, fmt.Errorf("empty line number")
	}

	if dash := strings.IndexByte(spec, '-'); dash >= 0 {
		start, err = strconv.Atoi(spec[:dash])
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid start line %q", spec[:dash])
		}
		end, err = strconv.Atoi(spec[dash+1:])
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid end line %q", spec[dash+1:])
		}
		return start, end, true, nil
	}

	start, err = strconv.Atoi(spec)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid line number %q", spec)
	}
	return start, 0, false, nil
}

// scanTo returns the index of the next occurrence of c at or after start,
// or -1 when a newline or end of input intervenes. Links do not span lines.
func scanTo(text string, start int, c byte) int {
	for i := start; i < len(text); i++ {
		switch text[i] {
		case c:
			return i
		case '\n':
			return -1
		}
	}
	return -1
}

// contextLine returns the non-blank line containing offset, falling back
// to the nearest preceding non-blank line.
func contextLine(text string, offset int) string {
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	lineEnd := strings.IndexByte(text[offset:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text)
	} else {
		lineEnd += offset
	}

	line := strings.TrimSpace(text[lineStart:lineEnd])
	if line != "" {
		return line
	}

	// Walk backwards through preceding lines.
	for lineStart > 0 {
		prevEnd := lineStart - 1
		prevStart := strings.LastIndexByte(text[:prevEnd], '\n') + 1
		line = strings.TrimSpace(text[prevStart:prevEnd])
		if line != "" {
			return line
		}
		lineStart = prevStart
	}
	return ""
}
