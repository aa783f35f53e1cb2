// Package interp runs a .DsrProj script against a machine.Machine,
// dispatching each logical line (a run of tokens up to a newline) to the
// command it names and mutating the machine's flags, crawl origins, and
// queued child projects accordingly.
package interp

import (
	"os"
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/Dawoodoz/dsrbuild/internal/buildlog"
	"github.com/Dawoodoz/dsrbuild/internal/machine"
	"github.com/Dawoodoz/dsrbuild/internal/pathsyntax"
	"github.com/Dawoodoz/dsrbuild/internal/script"
)

// ErrUndefinedPath is returned wherever a pathsyntax operation yields the
// undefined-path sentinel while evaluating a script.
var ErrUndefinedPath = xerrors.New("expression evaluated to an undefined path")

// ErrScriptNotFound is returned by EvaluateScript when scriptPath does not
// exist on disk. The "import" command treats it as a warning and skips the
// command instead of aborting the build.
var ErrScriptNotFound = xerrors.New("script not found")

// Interpreter runs scripts against machines, using syntax to resolve
// relative paths and logger to print message commands and diagnostics.
type Interpreter struct {
	Syntax pathsyntax.Syntax
	Logger *buildlog.Logger
}

// New returns an Interpreter for the given path syntax. A nil logger
// falls back to buildlog.Default().
func New(syntax pathsyntax.Syntax, logger *buildlog.Logger) *Interpreter {
	if logger == nil {
		logger = buildlog.Default()
	}
	return &Interpreter{Syntax: syntax, Logger: logger}
}

// EvaluateScript reads scriptPath, tokenizes it, and interprets it one
// logical line at a time against target. Relative paths used inside the
// script (import, crawl, build, projects) are resolved against the
// script's own parent folder.
func (ip *Interpreter) EvaluateScript(target *machine.Machine, scriptPath string) error {
	content, err := os.ReadFile(scriptPath)
	if err != nil {
		if os.IsNotExist(err) {
			return xerrors.Errorf("%s: %w", scriptPath, ErrScriptNotFound)
		}
		return xerrors.Errorf("reading script %s: %w", scriptPath, err)
	}
	absScriptPath := pathsyntax.GetTheoreticalAbsolutePath(scriptPath, mustGetwd(), ip.Syntax)
	if absScriptPath == pathsyntax.Undefined {
		return xerrors.Errorf("script path %q: %w", scriptPath, ErrUndefinedPath)
	}
	projectFolderPath := pathsyntax.GetRelativeParentFolder(absScriptPath, ip.Syntax)
	if projectFolderPath == pathsyntax.Undefined {
		return xerrors.Errorf("parent folder of %q: %w", scriptPath, ErrUndefinedPath)
	}

	tokens := script.Tokenize(string(content))
	startTokenIndex := 0
	for t, tok := range tokens {
		if tok == "\n" {
			if err := ip.interpretLine(target, tokens, startTokenIndex, t-1, projectFolderPath); err != nil {
				return err
			}
			startTokenIndex = t + 1
		}
	}
	return nil
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

func validIdentifier(identifier string) bool {
	if identifier == "" {
		return false
	}
	first := identifier[0]
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return false
	}
	for i := 1; i < len(identifier); i++ {
		c := identifier[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func (ip *Interpreter) lookup(target *machine.Machine) script.Lookup {
	return func(identifier string) string {
		return target.GetFlag(identifier, "")
	}
}

func (ip *Interpreter) evaluateStringExpr(target *machine.Machine, tokens []string, start, end int) (string, error) {
	return script.EvaluateAsString(tokens, start, end, ip.lookup(target))
}

func (ip *Interpreter) evaluateIntegerExpr(target *machine.Machine, tokens []string, start, end int) (int64, error) {
	return script.EvaluateAsInteger(tokens, start, end, ip.lookup(target))
}

func (ip *Interpreter) evaluatePathExpr(target *machine.Machine, tokens []string, start, end int, fromPath string) (string, error) {
	value, err := ip.evaluateStringExpr(target, tokens, start, end)
	if err != nil {
		return "", err
	}
	resolved := pathsyntax.GetTheoreticalAbsolutePath(value, fromPath, ip.Syntax)
	if resolved == pathsyntax.Undefined {
		return "", xerrors.Errorf("%q from %q: %w", value, fromPath, ErrUndefinedPath)
	}
	return resolved, nil
}

// interpretLine dispatches a single logical line (tokens[startTokenIndex..endTokenIndex])
// against target. Lines inside a currently-false if-branch only update the
// scope counters; everything else is ignored until the matching "end if".
func (ip *Interpreter) interpretLine(target *machine.Machine, tokens []string, startTokenIndex, endTokenIndex int, fromPath string) error {
	if startTokenIndex < 0 {
		startTokenIndex = 0
	}
	if endTokenIndex >= len(tokens) {
		endTokenIndex = len(tokens) - 1
	}
	tokenCount := endTokenIndex - startTokenIndex + 1
	if tokenCount <= 0 {
		return nil
	}

	activeLine := target.ActiveStackDepth >= target.CurrentStackDepth
	first := script.GetToken(tokens, startTokenIndex, "")
	second := script.GetToken(tokens, startTokenIndex+1, "")

	if !activeLine {
		switch {
		case strings.EqualFold(first, "if"):
			target.CurrentStackDepth++
		case strings.EqualFold(first, "end") && strings.EqualFold(second, "if"):
			target.CurrentStackDepth--
		}
		return nil
	}

	switch {
	case strings.EqualFold(first, "import"):
		importPath, err := ip.evaluatePathExpr(target, tokens, startTokenIndex+1, endTokenIndex, fromPath)
		if err != nil {
			return err
		}
		if err := ip.EvaluateScript(target, importPath); err != nil {
			if xerrors.Is(err, ErrScriptNotFound) {
				ip.Logger.Printf("warning: could not import %q, the script does not exist; skipping.", importPath)
				return nil
			}
			return err
		}
		return target.Validate("in target after importing a project head")

	case strings.EqualFold(first, "if"):
		active, err := ip.evaluateIntegerExpr(target, tokens, startTokenIndex+1, endTokenIndex)
		if err != nil {
			return err
		}
		if active != 0 {
			target.ActiveStackDepth++
		}
		target.CurrentStackDepth++
		return nil

	case strings.EqualFold(first, "end") && strings.EqualFold(second, "if"):
		target.CurrentStackDepth--
		target.ActiveStackDepth = target.CurrentStackDepth
		return nil

	case strings.EqualFold(first, "crawl"):
		origin, err := ip.evaluatePathExpr(target, tokens, startTokenIndex+1, endTokenIndex, fromPath)
		if err != nil {
			return err
		}
		target.CrawlOrigins = append(target.CrawlOrigins, origin)
		return target.Validate("in target after listing a crawl origin")

	case strings.EqualFold(first, "projects"):
		return ip.interpretProjects(target, tokens, startTokenIndex, endTokenIndex, fromPath)

	case strings.EqualFold(first, "build"):
		return ip.interpretBuild(target, tokens, startTokenIndex, endTokenIndex, second, fromPath)

	case strings.EqualFold(first, "link"):
		libraryName, err := ip.evaluateStringExpr(target, tokens, startTokenIndex+1, endTokenIndex)
		if err != nil {
			return err
		}
		if strings.HasPrefix(libraryName, "-l") || strings.HasPrefix(libraryName, "-L") {
			target.LinkerFlags = append(target.LinkerFlags, libraryName)
		} else {
			target.LinkerFlags = append(target.LinkerFlags, "-l"+libraryName)
		}
		return target.Validate("in target after adding a library")

	case strings.EqualFold(first, "linkerflag"):
		flag, err := ip.evaluateStringExpr(target, tokens, startTokenIndex+1, endTokenIndex)
		if err != nil {
			return err
		}
		target.LinkerFlags = append(target.LinkerFlags, flag)
		return target.Validate("in target after adding a linker flag")

	case strings.EqualFold(first, "framework"):
		name, err := ip.evaluateStringExpr(target, tokens, startTokenIndex+1, endTokenIndex)
		if err != nil {
			return err
		}
		target.Frameworks = append(target.Frameworks, name)
		return target.Validate("in target after adding a framework")

	case strings.EqualFold(first, "compilerflag"):
		flag, err := ip.evaluateStringExpr(target, tokens, startTokenIndex+1, endTokenIndex)
		if err != nil {
			return err
		}
		target.CompilerFlags = append(target.CompilerFlags, flag)
		return target.Validate("in target after adding a compiler flag")

	case strings.EqualFold(first, "message"):
		text, err := ip.evaluateStringExpr(target, tokens, startTokenIndex+1, endTokenIndex)
		if err != nil {
			return err
		}
		ip.Logger.Message(text)
		return nil

	default:
		if tokenCount == 1 {
			if !validIdentifier(first) {
				return xerrors.Errorf("the token %q is not a valid identifier for implicit assignment to one", first)
			}
			target.AssignValue(first, "1", false)
			return target.Validate("in target after implicitly assigning a value to a variable")
		}
		if second == "=" {
			if !validIdentifier(first) {
				return xerrors.Errorf("the token %q is not a valid identifier for assignments", first)
			}
			value, err := ip.evaluateStringExpr(target, tokens, startTokenIndex+2, endTokenIndex)
			if err != nil {
				return err
			}
			target.AssignValue(first, script.UnwrapIfNeeded(value), false)
			return target.Validate("in target after explicitly assigning a value to a variable")
		}
		var parts []string
		for t := startTokenIndex; t <= endTokenIndex; t++ {
			parts = append(parts, tokens[t])
		}
		return xerrors.Errorf("failed to parse statement: %s", strings.Join(parts, " "))
	}
}

func (ip *Interpreter) interpretProjects(target *machine.Machine, tokens []string, startTokenIndex, endTokenIndex int, fromPath string) error {
	currentTokenIndex := startTokenIndex + 1
	var argFrom, argIn string
	for currentTokenIndex < endTokenIndex {
		key := script.GetToken(tokens, currentTokenIndex, "")
		value := script.GetToken(tokens, currentTokenIndex+1, "")
		switch {
		case strings.EqualFold(key, "from"):
			if value == "" {
				return xerrors.New("missing file name pattern after 'from' keyword in 'projects' command")
			}
			argFrom = script.UnwrapIfNeeded(value)
			currentTokenIndex += 2
		case strings.EqualFold(key, "in"):
			if value == "" {
				return xerrors.New("missing folder path after 'in' keyword in 'projects' command")
			}
			argIn = script.UnwrapIfNeeded(value)
			currentTokenIndex += 2
		default:
			return xerrors.Errorf("unexpected key %q in 'projects' command", key)
		}
	}
	if argFrom == "" && argIn == "" {
		return xerrors.New("need 'from' and 'in' keywords in 'projects' command")
	} else if argFrom == "" {
		return xerrors.New("missing 'from' keyword in 'projects' command")
	} else if argIn == "" {
		return xerrors.New("missing 'in' keywords in 'projects' command")
	}
	return ip.findFilesAsProjects(target, pathsyntax.CombinePaths(fromPath, argIn, ip.Syntax), argFrom)
}

func (ip *Interpreter) interpretBuild(target *machine.Machine, tokens []string, startTokenIndex, endTokenIndex int, second, fromPath string) error {
	projectPath, err := ip.evaluatePathExpr(target, tokens, startTokenIndex+1, startTokenIndex+1, fromPath)
	if err != nil {
		return err
	}
	sharedInputFlags := machine.New(pathsyntax.GetPathlessName(projectPath))
	if err := target.Validate("in the parent about to build a child project"); err != nil {
		return err
	}
	machine.Inherit(sharedInputFlags, target)
	if err := sharedInputFlags.Validate("in the child after inheriting settings for a build"); err != nil {
		return err
	}
	var arguments []string
	for t := startTokenIndex + 2; t <= endTokenIndex; t++ {
		arguments = append(arguments, tokens[t])
	}
	machine.ArgumentsToSettings(sharedInputFlags, arguments)
	if err := sharedInputFlags.Validate("in the child after parsing arguments"); err != nil {
		return err
	}
	ip.Logger.Printf("Building %s from %s which is %s", second, fromPath, projectPath)
	target.ChildProjects = append(target.ChildProjects, machine.ChildProject{Path: projectPath, Settings: sharedInputFlags})
	return target.Validate("in target after listing a child project")
}

// generateFilterFromPattern compiles a name-matching predicate from a
// pattern that may contain at most one '*' wildcard.
func generateFilterFromPattern(pattern string) (func(name string) bool, error) {
	firstStar := strings.IndexByte(pattern, '*')
	lastStar := strings.LastIndexByte(pattern, '*')
	if firstStar == -1 {
		return func(name string) bool { return strings.EqualFold(name, pattern) }, nil
	}
	if firstStar != lastStar {
		return nil, xerrors.Errorf("can not use %q as a name pattern, because the matching expression may not use more than one '*' character", pattern)
	}
	prefix := pattern[:firstStar]
	postfix := pattern[lastStar+1:]
	minimumLength := len(prefix) + len(postfix)
	return func(name string) bool {
		if len(name) < minimumLength {
			return false
		}
		return strings.EqualFold(name[:len(prefix)], prefix) && strings.EqualFold(name[len(name)-len(postfix):], postfix)
	}, nil
}

// findFiles walks inPath recursively, invoking action for every regular
// file whose name satisfies filter. Entries within a folder are visited in
// sorted order so results are deterministic across platforms.
func findFiles(inPath string, filter func(string) bool, action func(path string) error) error {
	entries, err := os.ReadDir(inPath)
	if err != nil {
		return xerrors.Errorf("failed to look for files in %q: %w", inPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		entryPath := inPath + "/" + entry.Name()
		if entry.IsDir() {
			if err := findFiles(entryPath, filter, action); err != nil {
				return err
			}
			continue
		}
		if filter(entry.Name()) {
			if err := action(entryPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ip *Interpreter) findFilesAsProjects(target *machine.Machine, inPath, fromPattern string) error {
	ip.Logger.Printf("findFilesAsProjects: Looking for %s in %s.", fromPattern, inPath)
	if err := target.Validate("in the parent about to create projects from files"); err != nil {
		return err
	}
	filter, err := generateFilterFromPattern(fromPattern)
	if err != nil {
		return err
	}
	return findFiles(inPath, filter, func(path string) error {
		ip.Logger.Printf("Creating a temporary project for %s", path)
		allInputFlags := machine.New(pathsyntax.GetPathlessName(path))
		machine.Clone(allInputFlags, target)
		target.SourceFileProjects = append(target.SourceFileProjects, machine.SourceFileProject{Path: path, Settings: allInputFlags})
		return nil
	})
}
