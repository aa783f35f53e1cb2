// Package depgraph crawls the #include graph reachable from a C/C++
// source file, deriving a per-file content checksum and linking headers
// to their sibling .c/.cpp implementation when one exists, so a build
// plan can later tell exactly which files must be recompiled.
package depgraph

import (
	"os"
	"strings"

	"golang.org/x/xerrors"

	"github.com/Dawoodoz/dsrbuild/internal/pathsyntax"
)

// Extension classifies a dependency by its file extension, since headers
// and implementation files are crawled and linked differently.
type Extension int

const (
	Unknown Extension = iota
	H
	Hpp
	C
	Cpp
)

func extensionFromString(name string) Extension {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "H":
		return H
	case "HPP":
		return Hpp
	case "C":
		return C
	case "CPP":
		return Cpp
	default:
		return Unknown
	}
}

// Connection is a reference from one dependency to another, either an
// #include or a sibling implementation to link with. LineNumber is -1 for
// connections that were not discovered from a specific source line (e.g.
// a header's sibling implementation).
type Connection struct {
	Path            string
	LineNumber      int64
	DependencyIndex int
}

// Dependency is one file discovered while crawling: its own content
// checksum, the headers it includes, and the implementation files it must
// be linked with.
type Dependency struct {
	Path            string
	Extension       Extension
	ContentChecksum uint64
	Visited         bool
	Links           []Connection
	Includes        []Connection
}

// ProjectContext accumulates every dependency discovered while crawling a
// single project's crawl origins.
type ProjectContext struct {
	Dependencies []Dependency
	byPath       map[string]int
}

// NewProjectContext returns an empty ProjectContext.
func NewProjectContext() *ProjectContext {
	return &ProjectContext{byPath: make(map[string]int)}
}

func (ctx *ProjectContext) findDependency(path string) int {
	if i, ok := ctx.byPath[path]; ok {
		return i
	}
	return -1
}

// Analyzer crawls source files into ProjectContexts, caching per-file
// analysis results across every project built during a session so a
// header shared between many projects is only read and hashed once.
type Analyzer struct {
	Syntax pathsyntax.Syntax
	cache  map[string]Dependency
}

// NewAnalyzer returns an Analyzer using syntax to resolve relative
// #include paths.
func NewAnalyzer(syntax pathsyntax.Syntax) *Analyzer {
	return &Analyzer{Syntax: syntax, cache: make(map[string]Dependency)}
}

func findSourceFile(headerPath string, acceptC, acceptCpp bool) string {
	if !pathsyntax.HasExtension(headerPath) {
		return ""
	}
	extensionless := pathsyntax.GetExtensionless(headerPath)
	if acceptC {
		cPath := extensionless + ".c"
		if info, err := os.Stat(cPath); err == nil && !info.IsDir() {
			return cPath
		}
	}
	if acceptCpp {
		cppPath := extensionless + ".cpp"
		if info, err := os.Stat(cppPath); err == nil && !info.IsDir() {
			return cppPath
		}
	}
	return ""
}

func flushToken(tokens []string, current *strings.Builder) []string {
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
		current.Reset()
	}
	return tokens
}

// tokenizeDirective splits one preprocessor line into atomic tokens: the
// characters #()[]{} are always their own token, "##" concatenates the
// tokens on either side of it without flushing, whitespace separates, and
// quote characters are ordinary content (a quoted #include path like
// "foo.h" is captured whole as long as it has no embedded whitespace).
func tokenizeDirective(line string) []string {
	var tokens []string
	var current strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '#' && i+1 < len(line) && line[i+1] == '#':
			i++
		case c == '#' || c == '(' || c == ')' || c == '[' || c == ']' || c == '{' || c == '}':
			tokens = flushToken(tokens, &current)
			tokens = append(tokens, string(c))
		case c == ' ' || c == '\t':
			tokens = flushToken(tokens, &current)
		default:
			current.WriteByte(c)
		}
	}
	return flushToken(tokens, &current)
}

func unmangleQuote(token string) string {
	if len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"' {
		return token[1 : len(token)-1]
	}
	return token
}

// cloneConnections returns a copy of connections with its own backing array.
func cloneConnections(connections []Connection) []Connection {
	if connections == nil {
		return nil
	}
	cloned := make([]Connection, len(connections))
	copy(cloned, connections)
	return cloned
}

// analyzeFile fills in result's content checksum, sibling-implementation
// link, and #include connections by reading absolutePath from disk.
func (an *Analyzer) analyzeFile(result *Dependency, absolutePath string, extension Extension) error {
	if cached, ok := an.cache[absolutePath]; ok {
		*result = cached
		// Connections carry a DependencyIndex resolved against one
		// project's own dependency list; each project using a cached
		// analysis needs its own copy to resolve independently.
		result.Links = cloneConnections(cached.Links)
		result.Includes = cloneConnections(cached.Includes)
		return nil
	}

	data, err := os.ReadFile(absolutePath)
	if err != nil {
		return xerrors.Errorf("reading %s: %w", absolutePath, err)
	}
	result.ContentChecksum = ChecksumBytes(data)

	if extension == H || extension == Hpp {
		sourcePath := findSourceFile(absolutePath, extension == H, true)
		if sourcePath != "" {
			result.Links = append(result.Links, Connection{Path: sourcePath, LineNumber: -1})
		}
	}

	parentFolder := pathsyntax.GetRelativeParentFolder(absolutePath, an.Syntax)
	if parentFolder == pathsyntax.Undefined {
		return xerrors.Errorf("the parent folder of %s is an undefined path", absolutePath)
	}
	lines := strings.Split(string(data), "\n")
	var tokens []string
	continuingLine := false
	for lineNumber, line := range lines {
		if (len(line) > 0 && line[0] == '#') || continuingLine {
			tokens = append(tokens, tokenizeDirective(line)...)
			continuingLine = len(line) > 0 && line[len(line)-1] == '\\'
		} else {
			continuingLine = false
		}
		if !continuingLine && len(tokens) > 0 {
			if len(tokens) >= 3 && tokens[1] == "include" && len(tokens[2]) > 0 && tokens[2][0] == '"' {
				relativePath := unmangleQuote(tokens[2])
				absoluteHeaderPath := pathsyntax.GetTheoreticalAbsolutePath(relativePath, parentFolder, an.Syntax)
				if absoluteHeaderPath == pathsyntax.Undefined {
					return xerrors.Errorf("include %q from line %d in %s resolved to an undefined path", relativePath, lineNumber+1, absolutePath)
				}
				if info, statErr := os.Stat(absoluteHeaderPath); statErr != nil || info.IsDir() {
					return xerrors.Errorf("failed to find %s from line %d in %s", absoluteHeaderPath, lineNumber+1, absolutePath)
				}
				result.Includes = append(result.Includes, Connection{Path: absoluteHeaderPath, LineNumber: int64(lineNumber + 1)})
			}
			tokens = nil
		}
	}

	an.cache[absolutePath] = *result
	return nil
}

// AnalyzeFromFile adds absolutePath and everything it transitively
// includes or links with to ctx, skipping any path already present so
// cycles (including a file that includes itself indirectly) terminate.
func (an *Analyzer) AnalyzeFromFile(ctx *ProjectContext, absolutePath string) error {
	if ctx.findDependency(absolutePath) != -1 {
		return nil
	}
	extension := extensionFromString(pathsyntax.GetExtension(absolutePath))
	if extension == Unknown {
		return nil
	}
	parentIndex := len(ctx.Dependencies)
	ctx.Dependencies = append(ctx.Dependencies, Dependency{Path: absolutePath, Extension: extension})
	ctx.byPath[absolutePath] = parentIndex

	if err := an.analyzeFile(&ctx.Dependencies[parentIndex], absolutePath, extension); err != nil {
		return err
	}

	for _, include := range ctx.Dependencies[parentIndex].Includes {
		if err := an.AnalyzeFromFile(ctx, include.Path); err != nil {
			return err
		}
	}
	for _, link := range ctx.Dependencies[parentIndex].Links {
		if err := an.AnalyzeFromFile(ctx, link.Path); err != nil {
			return err
		}
	}
	return nil
}

func resolveConnection(ctx *ProjectContext, connection *Connection) {
	connection.DependencyIndex = ctx.findDependency(connection.Path)
}

// ResolveDependencies fills in DependencyIndex on every connection now
// that every dependency in ctx has a stable index, so later traversal can
// follow indices instead of repeating path lookups.
func ResolveDependencies(ctx *ProjectContext) {
	for d := range ctx.Dependencies {
		dep := &ctx.Dependencies[d]
		for i := range dep.Links {
			resolveConnection(ctx, &dep.Links[i])
		}
		for i := range dep.Includes {
			resolveConnection(ctx, &dep.Includes[i])
		}
	}
}

func traverseHeaderChecksums(ctx *ProjectContext, target *uint64, dependencyIndex int) {
	for _, include := range ctx.Dependencies[dependencyIndex].Includes {
		includedIndex := include.DependencyIndex
		if includedIndex < 0 || ctx.Dependencies[includedIndex].Visited {
			continue
		}
		*target ^= ctx.Dependencies[includedIndex].ContentChecksum
		ctx.Dependencies[includedIndex].Visited = true
		traverseHeaderChecksums(ctx, target, includedIndex)
	}
}

// CombinedChecksum XORs dependencyIndex's own content checksum with the
// content checksum of every header it transitively includes, each counted
// exactly once regardless of how many paths reach it.
func CombinedChecksum(ctx *ProjectContext, dependencyIndex int) uint64 {
	for d := range ctx.Dependencies {
		ctx.Dependencies[d].Visited = false
	}
	ctx.Dependencies[dependencyIndex].Visited = true
	result := ctx.Dependencies[dependencyIndex].ContentChecksum
	traverseHeaderChecksums(ctx, &result, dependencyIndex)
	return result
}
