package coordination

import (
	"strings"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const (
	Separator = "/"
	Root      = "/"
)

// JoinPath joins the parts into an absolute path, empty parts and duplicate separators are removed.
func JoinPath(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		for _, s := range strings.Split(part, Separator) {
			if s != "" {
				segments = append(segments, s)
			}
		}
	}
	return Root + strings.Join(segments, Separator)
}

// BaseName returns the last segment of the path.
func BaseName(path string) string {
	path = strings.TrimRight(path, Separator)
	return path[strings.LastIndex(path, Separator)+1:]
}

// ParentPath returns the parent of the path, the parent of the root is the root.
func ParentPath(path string) string {
	path = strings.TrimRight(path, Separator)
	i := strings.LastIndex(path, Separator)
	if i <= 0 {
		return Root
	}
	return path[:i]
}

// Ancestors returns all ancestors of the path excluding the root, from the top.
func Ancestors(path string) []string {
	var out []string
	for p := ParentPath(path); p != Root; p = ParentPath(p) {
		out = append([]string{p}, out...)
	}
	return out
}

// ValidatePath checks that the path is absolute, normalized and not the root.
// Relative segments "." and ".." are not allowed.
func ValidatePath(path string) error {
	switch {
	case path == Root:
		return errors.New(`path "/" cannot be modified`)
	case !strings.HasPrefix(path, Root):
		return errors.Errorf(`path "%s" must be absolute`, path)
	case JoinPath(path) != path:
		return errors.Errorf(`path "%s" is not normalized`, path)
	}
	for _, segment := range strings.Split(path[1:], Separator) {
		if segment == "." || segment == ".." {
			return errors.Errorf(`path "%s" contains relative segment "%s"`, path, segment)
		}
	}
	return nil
}
