// Package resolve computes a definition location for a reference on a cache
// miss: it validates the reference, queries the analysis session, and parses
// the session's textual reply.
package resolve

import (
	"regexp"
	"strconv"
)

// ParsedKind tags the outcome of parsing one response line.
type ParsedKind int

const (
	// ParsedNone means the line matched neither grammar. This is a
	// definitive non-location, never a parse error.
	ParsedNone ParsedKind = iota

	// ParsedLocal is a "path:(line,col)-(line,col)" in-workspace target.
	ParsedLocal

	// ParsedPackage is a "pkg:Dotted.Module" external-module target.
	ParsedPackage
)

// ParsedLine is the decoded form of one response line. For ParsedLocal the
// span fields are 1-based, matching the session's convention.
type ParsedLine struct {
	Kind      ParsedKind
	Path      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	Module    string
}

var (
	// e.g. /proj/src/Foo.hs:(10,5)-(10,12)
	localLinePattern = regexp.MustCompile(`^(.+):\((\d+),(\d+)\)-\((\d+),(\d+)\)$`)

	// e.g. base-4.14.0.0:Data.List
	packageLinePattern = regexp.MustCompile(`^(.+):([A-Z][A-Za-z0-9_']*(?:\.[A-Za-z0-9_']+)*)$`)
)

// ParseResponseLine decodes one line of the session's standard output
// against the two mutually exclusive location grammars. Unmatched input
// yields ParsedNone.
func ParseResponseLine(line string) ParsedLine {
	if m := localLinePattern.FindStringSubmatch(line); m != nil {
		startLine, err1 := strconv.Atoi(m[2])
		startCol, err2 := strconv.Atoi(m[3])
		endLine, err3 := strconv.Atoi(m[4])
		endCol, err4 := strconv.Atoi(m[5])
		if err1 == nil && err2 == nil && err3 == nil && err4 == nil {
			return ParsedLine{
				Kind:      ParsedLocal,
				Path:      m[1],
				StartLine: startLine,
				StartCol:  startCol,
				EndLine:   endLine,
				EndCol:    endCol,
			}
		}
	}

	if m := packageLinePattern.FindStringSubmatch(line); m != nil {
		return ParsedLine{
			Kind:   ParsedPackage,
			Module: m[2],
		}
	}

	return ParsedLine{Kind: ParsedNone}
}
