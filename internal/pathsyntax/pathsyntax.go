// Package pathsyntax implements the pure path-normalization rules used by
// dsrbuild to reason about script-relative and theoretical absolute paths
// without ever touching the filesystem. Two syntaxes are supported, Posix
// and Windows, matching the two families of generated build script (Bash
// and Batch).
package pathsyntax

import "strings"

// Syntax selects which separator and root conventions apply.
type Syntax int

const (
	Posix Syntax = iota
	Windows
)

func (s Syntax) separator() byte {
	if s == Windows {
		return '\\'
	}
	return '/'
}

// Undefined is the sentinel value returned by operations that cannot
// produce a meaningful path, e.g. ".." past the root. Callers must check
// for it and treat it as fatal wherever a real path is required.
const Undefined = "?"

// IsSeparator reports whether c is a path separator on either syntax: both
// '/' and '\' always count, so mixed-separator input from copy/pasted
// project files is tolerated uniformly.
func IsSeparator(c byte) bool {
	return c == '/' || c == '\\'
}

// FindFirstSeparator returns the index of the first separator in path, or
// -1 if there is none.
func FindFirstSeparator(path string) int {
	for i := 0; i < len(path); i++ {
		if IsSeparator(path[i]) {
			return i
		}
	}
	return -1
}

// FindLastSeparator returns the index of the last separator in path, or -1
// if there is none.
func FindLastSeparator(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if IsSeparator(path[i]) {
			return i
		}
	}
	return -1
}

func isDriveLetter(segment string) bool {
	return len(segment) == 2 && segment[1] == ':' &&
		((segment[0] >= 'a' && segment[0] <= 'z') || (segment[0] >= 'A' && segment[0] <= 'Z'))
}

// IsRoot reports whether path, taken alone, denotes a root marker: a single
// separator or "~" (when treatHomeAsRoot) on Posix, a single separator or a
// drive letter like "C:" on Windows.
func IsRoot(path string, treatHomeAsRoot bool, syntax Syntax) bool {
	if len(path) == 1 && IsSeparator(path[0]) {
		return true
	}
	if syntax == Posix {
		return treatHomeAsRoot && path == "~"
	}
	return isDriveLetter(path)
}

// HasRoot reports whether path begins with a separator, or whether its
// first segment is itself a root marker.
func HasRoot(path string, treatHomeAsRoot bool, syntax Syntax) bool {
	if path == "" {
		return false
	}
	if IsSeparator(path[0]) {
		return true
	}
	end := FindFirstSeparator(path)
	var first string
	if end == -1 {
		first = path
	} else {
		first = path[:end]
	}
	return IsRoot(first, treatHomeAsRoot, syntax)
}

func splitSegments(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || IsSeparator(path[i]) {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	return segments
}

// OptimizePath canonicalizes path for syntax: it collapses repeated
// separators, drops "." entries, resolves ".." against the accumulated
// parent (returning Undefined if ".." would escape a known root), and
// rejoins using syntax's separator with no trailing separator (unless path
// is a bare root).
func OptimizePath(path string, syntax Syntax) string {
	if path == "" {
		return ""
	}
	treatHomeAsRoot := true
	isAbs := HasRoot(path, treatHomeAsRoot, syntax)

	var rootPrefix string
	rest := path
	if isAbs {
		if IsSeparator(path[0]) {
			rootPrefix = string(syntax.separator())
			rest = path[1:]
		} else {
			end := FindFirstSeparator(path)
			if end == -1 {
				rootPrefix = path
				rest = ""
			} else {
				rootPrefix = path[:end]
				rest = path[end+1:]
			}
			if syntax == Windows {
				rootPrefix += string(syntax.separator())
			} else {
				// "~" root: keep a trailing separator for joining purposes,
				// normalized away again below if no segments follow.
				rootPrefix += string(syntax.separator())
			}
		}
	}

	var stack []string
	for _, seg := range splitSegments(rest) {
		switch seg {
		case ".":
			continue
		case "..":
			if len(stack) > 0 && stack[len(stack)-1] != ".." {
				stack = stack[:len(stack)-1]
			} else if isAbs {
				return Undefined
			} else {
				stack = append(stack, "..")
			}
		default:
			stack = append(stack, seg)
		}
	}

	joined := strings.Join(stack, string(syntax.separator()))
	if isAbs {
		if joined == "" {
			if len(rootPrefix) > 1 {
				return rootPrefix[:len(rootPrefix)-1]
			}
			return rootPrefix
		}
		return rootPrefix + joined
	}
	return joined
}

// GetPathlessName returns the final path segment (file or folder name).
func GetPathlessName(path string) string {
	idx := FindLastSeparator(path)
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}

// HasExtension reports whether the final segment of path contains a dot
// that is not its first character (dots in parent folders are not
// extensions).
func HasExtension(path string) bool {
	name := GetPathlessName(path)
	idx := strings.LastIndexByte(name, '.')
	return idx > 0
}

// GetExtension returns the final segment's extension without the leading
// dot, or "" if it has none.
func GetExtension(path string) string {
	name := GetPathlessName(path)
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return ""
	}
	return name[idx+1:]
}

// GetExtensionless returns path with its final extension (if any) removed.
func GetExtensionless(path string) string {
	if !HasExtension(path) {
		return path
	}
	name := GetPathlessName(path)
	idx := strings.LastIndexByte(name, '.')
	return path[:len(path)-len(name)+idx]
}

// GetRelativeParentFolder returns the parent folder of an already
// canonicalized path. A relative path (or one already ending in "..") gets
// an extra ".." appended. Undefined is returned for the parent of an
// absolute root, since that has no representable parent.
func GetRelativeParentFolder(path string, syntax Syntax) string {
	canon := OptimizePath(path, syntax)
	if canon == Undefined {
		return Undefined
	}
	if canon == "" {
		return ".."
	}
	if IsRoot(canon, false, syntax) {
		// The known true root has no parent.
		return Undefined
	}
	if IsRoot(canon, true, syntax) {
		// An alias for an arbitrary folder: use ".." to leave it.
		return CombinePaths(canon, "..", syntax)
	}
	isAbs := HasRoot(canon, true, syntax)
	idx := FindLastSeparator(canon)
	var last string
	if idx == -1 {
		last = canon
	} else {
		last = canon[idx+1:]
	}
	if last == ".." {
		if isAbs {
			return Undefined
		}
		return canon + string(syntax.separator()) + ".."
	}
	if idx == -1 {
		if isAbs {
			return Undefined
		}
		return ".."
	}
	parent := canon[:idx]
	if parent == "" {
		// canon was "/name": parent is the root.
		return string(syntax.separator())
	}
	if isAbs && IsRoot(parent, true, syntax) {
		return parent
	}
	return parent
}

// CombinePaths joins a and b with exactly one separator, unless b already
// has a root, in which case b is returned unchanged (it replaces a
// entirely, matching how an absolute include path overrides any base
// directory).
func CombinePaths(a, b string, syntax Syntax) string {
	if HasRoot(b, true, syntax) {
		return b
	}
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if IsSeparator(a[len(a)-1]) {
		return a + b
	}
	return a + string(syntax.separator()) + b
}

// GetTheoreticalAbsolutePath resolves path against currentPath without
// touching the filesystem. If path already has a root it is merely
// normalized; otherwise it is combined with currentPath first. On Windows,
// a drive-relative path (leading separator with no drive letter) inherits
// its drive letter from currentPath.
func GetTheoreticalAbsolutePath(path, currentPath string, syntax Syntax) string {
	if path == "" {
		return OptimizePath(currentPath, syntax)
	}
	if HasRoot(path, true, syntax) {
		if syntax == Windows && IsSeparator(path[0]) && !isDriveLetter(path[:minInt(2, len(path))]) {
			drive := driveOf(currentPath)
			if drive != "" {
				return OptimizePath(drive+path, syntax)
			}
		}
		return OptimizePath(path, syntax)
	}
	return OptimizePath(CombinePaths(currentPath, path, syntax), syntax)
}

func driveOf(path string) string {
	end := FindFirstSeparator(path)
	var first string
	if end == -1 {
		first = path
	} else {
		first = path[:end]
	}
	if isDriveLetter(first) {
		return first
	}
	return ""
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
