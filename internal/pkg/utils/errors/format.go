package errors

import (
	"strings"
)

const (
	Indent = "  "
	Bullet = "- "
)

type nestedErrorGetter interface {
	MainError() error
	WrappedErrors() []error
}

// Format converts the error to a string.
//
// A MultiError is formatted as a bullet list, a NestedError as a prefix followed by an indented bullet list:
//
//	prefix:
//	- sub error 1
//	- sub error 2
func Format(err error) string {
	var out strings.Builder
	writeError(&out, 0, err)
	return out.String()
}

func writeError(out *strings.Builder, level int, err error) {
	switch v := err.(type) { // nolint: errorlint
	case nestedErrorGetter:
		out.WriteString(strings.TrimRight(v.MainError().Error(), ".,:") + ":")
		writeList(out, level, v.WrappedErrors())
	case MultiError:
		errs := v.WrappedErrors()
		if len(errs) == 1 {
			writeError(out, level, errs[0])
			return
		}
		for i, item := range errs {
			if i > 0 {
				out.WriteString("\n")
				out.WriteString(strings.Repeat(Indent, level))
			}
			out.WriteString(Bullet)
			writeError(out, level+1, item)
		}
	default:
		out.WriteString(err.Error())
	}
}

func writeList(out *strings.Builder, level int, errs []error) {
	for _, item := range errs {
		out.WriteString("\n")
		out.WriteString(strings.Repeat(Indent, level))
		out.WriteString(Bullet)
		writeError(out, level+1, item)
	}
}
