package yasl

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes.
const (
	// Schema loading
	CodeSchema        = "schema"
	CodeUnknownType   = "unknown_type"
	CodeCircularType  = "circular_type"
	CodeAmbiguousType = "ambiguous_type"

	// Structural validation
	CodeInvalidType  = "invalid_type"
	CodeRequired     = "required"
	CodePreferred    = "preferred"
	CodeUnknownKey   = "unknown_key"
	CodeDuplicateKey = "duplicate_key"
	CodeInvalidEnum  = "invalid_enum"

	// Constraint validators
	CodeTooSmall    = "too_small"
	CodeTooBig      = "too_big"
	CodeNotMultiple = "not_multiple"
	CodeExcluded    = "excluded"
	CodePattern     = "pattern"
	CodePath        = "path"
	CodeURL         = "url"

	// Dataset-wide checks
	CodeUniqueness  = "uniqueness"
	CodeDanglingRef = "dangling_ref"

	// Type-level rules
	CodeRule = "rule"

	// Quantities
	CodeUnit = "unit"
)

// Issue is a single located diagnostic. Path is a slash pointer inside the
// document (for example /address/street or /items/2); File, Line and Col
// locate the offending node in its source. Warnings are reported but never
// fail a load.
type Issue struct {
	Path    string
	Code    string
	Message string
	Hint    string // optional remediation hint, e.g. candidate namespaces
	File    string
	Line    int
	Col     int
	Warning bool
	Cause   error // optional underlying error
	// Rule optionally records the type-level rule that produced this issue.
	Rule string
}

// Issues is an ordered collection of diagnostics that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		if it.Path != "" {
			fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
		} else {
			b.WriteString(it.Code)
		}
		if it.Line > 0 {
			fmt.Fprintf(b, " (%s)", it.Where())
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// HasErrors reports whether any non-warning issue is present.
func (iss Issues) HasErrors() bool {
	for _, it := range iss {
		if !it.Warning {
			return true
		}
	}
	return false
}

// Warnings returns only the warning issues.
func (iss Issues) Warnings() Issues {
	var out Issues
	for _, it := range iss {
		if it.Warning {
			out = append(out, it)
		}
	}
	return out
}

// Where renders the issue's source position as "file:line:col" with empty
// parts omitted.
func (it Issue) Where() string {
	switch {
	case it.File != "" && it.Line > 0:
		return fmt.Sprintf("%s:%d:%d", it.File, it.Line, it.Col)
	case it.Line > 0:
		return fmt.Sprintf("%d:%d", it.Line, it.Col)
	default:
		return it.File
	}
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	return append(dst, more...)
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// rebase prefixes every issue path with base so errors from a nested value
// surface under the enclosing field.
func rebase(iss Issues, base string) Issues {
	if base == "/" {
		base = ""
	}
	for i := range iss {
		p := iss[i].Path
		switch {
		case p == "" || p == "/":
			if base == "" {
				iss[i].Path = "/"
			} else {
				iss[i].Path = base
			}
		case strings.HasPrefix(p, "/"):
			iss[i].Path = base + p
		default:
			iss[i].Path = base + "/" + p
		}
	}
	return iss
}
