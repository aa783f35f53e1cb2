// Package session drives a whole build session: it walks a project or
// project-folder argument, evaluates each .DsrProj script it finds, and
// accumulates every project's planned objects and linking steps into one
// shared planner.SessionContext so source files reused by several
// programs are only ever compiled once.
package session

import (
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/Dawoodoz/dsrbuild/internal/buildlog"
	"github.com/Dawoodoz/dsrbuild/internal/depgraph"
	"github.com/Dawoodoz/dsrbuild/internal/interp"
	"github.com/Dawoodoz/dsrbuild/internal/machine"
	"github.com/Dawoodoz/dsrbuild/internal/pathsyntax"
	"github.com/Dawoodoz/dsrbuild/internal/planner"
)

// Driver runs a build session: every BuildProject/BuildFromFolder/
// BuildFromFile call it makes contributes to the same Output.
type Driver struct {
	Syntax   pathsyntax.Syntax
	Logger   *buildlog.Logger
	Analyzer *depgraph.Analyzer
	Output   *planner.SessionContext

	mu                  sync.Mutex
	initializedProjects map[string]bool
}

// NewDriver returns a Driver that writes compiled objects under tempPath
// and names binaries with executableExtension appended.
func NewDriver(tempPath, executableExtension string, syntax pathsyntax.Syntax, logger *buildlog.Logger) *Driver {
	if logger == nil {
		logger = buildlog.Default()
	}
	return &Driver{
		Syntax:              syntax,
		Logger:              logger,
		Analyzer:            depgraph.NewAnalyzer(syntax),
		Output:              planner.NewSessionContext(tempPath, executableExtension),
		initializedProjects: make(map[string]bool),
	}
}

// BuildProject inherits sharedSettings, evaluates projectFilePath's
// script against the inherited settings, and builds the result.
func (d *Driver) BuildProject(projectFilePath string, sharedSettings *machine.Machine) error {
	settings := machine.New(pathsyntax.GetPathlessName(projectFilePath))
	machine.Inherit(settings, sharedSettings)
	if err := settings.Validate("after inheriting settings from caller"); err != nil {
		return err
	}

	d.Logger.Printf("Executing project file from %s.", projectFilePath)
	ip := interp.New(d.Syntax, d.Logger)
	if err := ip.EvaluateScript(settings, projectFilePath); err != nil {
		return err
	}
	if err := settings.Validate("after evaluating the project script"); err != nil {
		return err
	}
	return d.buildProjectFromSettings(projectFilePath, settings)
}

// BuildFromFile builds a single .c/.cpp file as a one-file project,
// cloning (not inheriting) sharedSettings since there is no project
// script of its own to read configuration from.
func (d *Driver) BuildFromFile(mainPath string, sharedSettings *machine.Machine) error {
	settings := machine.New(pathsyntax.GetPathlessName(mainPath))
	machine.Clone(settings, sharedSettings)

	extension := strings.ToLower(pathsyntax.GetExtension(mainPath))
	if extension != "c" && extension != "cpp" {
		return xerrors.Errorf("creating projects from source files is currently only supported for *.c and *.cpp, but the extension was %q", extension)
	}
	settings.CrawlOrigins = append(settings.CrawlOrigins, mainPath)
	if err := settings.Validate("after cloning settings from caller for a one-file project"); err != nil {
		return err
	}
	return d.buildProjectFromSettings(mainPath, settings)
}

// BuildFromFolder builds whatever projectPath refers to: a .DsrProj file,
// a bare .c/.cpp file, or a folder of projects searched recursively.
func (d *Driver) BuildFromFolder(projectPath string, sharedSettings *machine.Machine) error {
	info, err := os.Stat(projectPath)
	if err != nil {
		return xerrors.Errorf("building %s: %w", projectPath, err)
	}
	d.Logger.Printf("Building anything at %s.", projectPath)
	if info.IsDir() {
		return d.BuildProjects(projectPath, sharedSettings)
	}
	extension := strings.ToUpper(pathsyntax.GetExtension(projectPath))
	switch extension {
	case "DSRPROJ":
		return d.BuildProject(projectPath, sharedSettings)
	case "C", "CPP":
		return d.BuildFromFile(projectPath, sharedSettings)
	default:
		d.Logger.Printf("Can't use the Build keyword with a file that is neither a project nor a source file!")
		return nil
	}
}

// BuildProjects recursively searches folderPath for *.DsrProj files,
// building every one of them. Independent subtrees are built concurrently
// with an errgroup.Group; they share the session-wide duplicate-build
// guard, the analyzer's cache, and the output SessionContext, all of which
// buildProjectFromSettings only touches while holding d.mu.
func (d *Driver) BuildProjects(folderPath string, sharedSettings *machine.Machine) error {
	d.Logger.Printf("Building all projects in %s", folderPath)
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return xerrors.Errorf("reading folder %s: %w", folderPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var g errgroup.Group
	for _, entry := range entries {
		entryPath := folderPath + "/" + entry.Name()
		if entry.IsDir() {
			g.Go(func() error { return d.BuildProjects(entryPath, sharedSettings) })
			continue
		}
		if strings.EqualFold(pathsyntax.GetExtension(entry.Name()), "DSRPROJ") {
			g.Go(func() error { return d.BuildProject(entryPath, sharedSettings) })
		}
	}
	return g.Wait()
}

func (d *Driver) markInitialized(absolutePath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initializedProjects[absolutePath] {
		return xerrors.Errorf("found duplicate requests to build from the same initial script %s, which could cause non-determinism if different arguments are given to each", absolutePath)
	}
	d.initializedProjects[absolutePath] = true
	return nil
}

func (d *Driver) buildProjectFromSettings(path string, settings *machine.Machine) error {
	d.Logger.Printf("Building project at %s", path)
	wd, _ := os.Getwd()
	absolutePath := pathsyntax.GetTheoreticalAbsolutePath(path, wd, d.Syntax)
	if absolutePath == pathsyntax.Undefined {
		return xerrors.Errorf("project path %q: %w", path, interp.ErrUndefinedPath)
	}
	if err := d.markInitialized(absolutePath); err != nil {
		return err
	}

	ctx := depgraph.NewProjectContext()
	projectPath := pathsyntax.GetRelativeParentFolder(absolutePath, d.Syntax)
	if projectPath == pathsyntax.Undefined {
		return xerrors.Errorf("parent folder of %q: %w", path, interp.ErrUndefinedPath)
	}
	projectName := pathsyntax.GetPathlessName(pathsyntax.GetExtensionless(path))

	fullProgramPath := settings.GetFlag("ProgramPath", projectName)
	if d.Output.ExecutableExtension != "" {
		fullProgramPath += d.Output.ExecutableExtension
	}
	fullProgramPath = pathsyntax.GetTheoreticalAbsolutePath(fullProgramPath, projectPath, d.Syntax)
	if fullProgramPath == pathsyntax.Undefined {
		return xerrors.Errorf("program path for %q: %w", path, interp.ErrUndefinedPath)
	}

	for _, sourceFileProject := range settings.SourceFileProjects {
		if err := d.BuildFromFile(sourceFileProject.Path, sourceFileProject.Settings); err != nil {
			return err
		}
	}
	for _, child := range settings.ChildProjects {
		if err := d.BuildFromFolder(child.Path, child.Settings); err != nil {
			return err
		}
	}
	if err := settings.Validate("after building child projects"); err != nil {
		return err
	}

	if settings.GetFlagAsInteger("SkipIfBinaryExists", 0) != 0 {
		if _, err := os.Stat(fullProgramPath); err == nil {
			d.Logger.Printf("Skipping build of %s because SkipIfBinaryExists was given and %s was found.", path, fullProgramPath)
			return nil
		}
	}

	// The analyzer cache and the shared Output are not safe for concurrent
	// use, so projects built concurrently by BuildProjects take turns here.
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, origin := range settings.CrawlOrigins {
		if err := d.Analyzer.CrawlSource(ctx, origin, d.Logger); err != nil {
			return err
		}
	}
	if err := settings.Validate("after crawling source"); err != nil {
		return err
	}

	depgraph.ResolveDependencies(ctx)
	if settings.GetFlagAsInteger("ListDependencies", 0) != 0 {
		d.printDependencies(ctx)
	}

	planner.ApplyCompilerDerivedFlags(settings, d.Logger)
	if err := settings.Validate("after adding compiler-derived flags"); err != nil {
		return err
	}
	if err := planner.GatherBuildInstructions(d.Output, ctx, settings, fullProgramPath, d.Syntax, d.Logger); err != nil {
		return err
	}
	return settings.Validate("after gathering build instructions")
}

func (d *Driver) printDependencies(ctx *depgraph.ProjectContext) {
	for i := range ctx.Dependencies {
		dep := &ctx.Dependencies[i]
		d.Logger.Printf("* %s", pathsyntax.GetPathlessName(dep.Path))
		for _, include := range dep.Includes {
			d.Logger.Printf("  @%d including %s", include.LineNumber, pathsyntax.GetPathlessName(include.Path))
		}
		for _, link := range dep.Links {
			d.Logger.Printf("    linking %s", pathsyntax.GetPathlessName(link.Path))
		}
	}
}
