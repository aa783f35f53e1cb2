// Package planner turns a resolved dependency graph and a machine's
// settings into the concrete list of objects to compile and binaries to
// link: computing each compilation unit's identity and combined
// checksums, deduplicating objects already planned earlier in the
// session, and queuing one LinkingStep per program.
package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Dawoodoz/dsrbuild/internal/buildlog"
	"github.com/Dawoodoz/dsrbuild/internal/depgraph"
	"github.com/Dawoodoz/dsrbuild/internal/machine"
	"github.com/Dawoodoz/dsrbuild/internal/pathsyntax"
)

// SourceObject is one compilation unit to build into an object file.
type SourceObject struct {
	IdentityChecksum  uint64
	CombinedChecksum  uint64
	SourcePath        string
	ObjectPath        string
	CompilerFlags     []string
	CompilerName      string
	CompileFrom       string
}

// LinkingStep links a set of previously planned SourceObjects (by their
// index into SessionContext.SourceObjects) into one binary.
type LinkingStep struct {
	CompilerName        string
	CompileFrom         string
	BinaryName          string
	LinkerFlags         []string
	SourceObjectIndices []int
	ExecuteResult       bool
}

// SessionContext accumulates every SourceObject and LinkingStep planned
// across every project built during one session, so the same compiled
// object is never planned twice even when several programs share source
// files.
type SessionContext struct {
	TempPath           string
	ExecutableExtension string
	SourceObjects      []SourceObject
	LinkerSteps        []LinkingStep
}

// NewSessionContext returns an empty SessionContext writing objects under
// tempPath and naming binaries with executableExtension appended (".exe"
// on Windows, "" elsewhere).
func NewSessionContext(tempPath, executableExtension string) *SessionContext {
	return &SessionContext{TempPath: tempPath, ExecutableExtension: executableExtension}
}

func (sc *SessionContext) findObject(identityChecksum uint64) int {
	for i := range sc.SourceObjects {
		if sc.SourceObjects[i].IdentityChecksum == identityChecksum {
			return i
		}
	}
	return -1
}

// ApplyCompilerDerivedFlags appends the Debug/StaticRuntime/Optimization
// derived compiler and linker flags to settings, based on its variables.
// It must run once per project before GatherBuildInstructions, matching
// the variables documented in spec: Debug, StaticRuntime, Optimization,
// Windows.
func ApplyCompilerDerivedFlags(settings *machine.Machine, logger *buildlog.Logger) {
	if settings.GetFlagAsInteger("Debug", 0) != 0 {
		logger.Printf("Building with debug mode.")
		settings.CompilerFlags = append(settings.CompilerFlags, "-DDEBUG")
	} else {
		logger.Printf("Building with release mode.")
		settings.CompilerFlags = append(settings.CompilerFlags, "-DNDEBUG")
	}
	if settings.GetFlagAsInteger("StaticRuntime", 0) != 0 {
		if settings.GetFlagAsInteger("Windows", 0) != 0 {
			logger.Printf("Building with static runtime.")
			settings.CompilerFlags = append(settings.CompilerFlags, "-static", "-static-libgcc", "-static-libstdc++")
			settings.LinkerFlags = append(settings.LinkerFlags, "-static", "-static-libgcc", "-static-libstdc++")
		} else {
			logger.Printf("The target platform does not support static linking of the runtime.")
		}
	} else {
		logger.Printf("Building with dynamic runtime.")
	}
	optimizationLevel := settings.GetFlag("Optimization", "2")
	logger.Printf("Building with optimization level %s.", optimizationLevel)
	settings.CompilerFlags = append(settings.CompilerFlags, "-O"+optimizationLevel)
}

// GatherBuildInstructions plans every .c/.cpp dependency in ctx into a
// SourceObject (reusing one already planned earlier in the session when
// its identity checksum matches) and, if any source code was found,
// queues a LinkingStep producing programPath.
func GatherBuildInstructions(output *SessionContext, ctx *depgraph.ProjectContext, settings *machine.Machine, programPath string, syntax pathsyntax.Syntax, logger *buildlog.Logger) error {
	if err := settings.Validate(fmt.Sprintf("at the beginning of gathering build instructions for %s", programPath)); err != nil {
		return err
	}
	compilerName := settings.GetFlag("Compiler", "g++")
	compileFrom := settings.GetFlag("CompileFrom", "")

	var generatedCompilerFlags strings.Builder
	for _, f := range settings.CompilerFlags {
		generatedCompilerFlags.WriteString(" ")
		generatedCompilerFlags.WriteString(f)
	}

	logger.Printf("Listing source files to compile in the current session.")
	var sourceObjectIndices []int
	hasSourceCode := false
	for d := range ctx.Dependencies {
		extension := ctx.Dependencies[d].Extension
		if extension != depgraph.C && extension != depgraph.Cpp {
			continue
		}
		sourcePath := ctx.Dependencies[d].Path
		identity := sourcePath + generatedCompilerFlags.String()
		identityChecksum := depgraph.ChecksumText(identity)
		if previousIndex := output.findObject(identityChecksum); previousIndex != -1 {
			sourceObjectIndices = append(sourceObjectIndices, previousIndex)
			hasSourceCode = true
			continue
		}
		combinedChecksum := depgraph.CombinedChecksum(ctx, d)
		objectName := fmt.Sprintf("dsrbuild_%d_%d.o", identityChecksum, combinedChecksum)
		objectPath := pathsyntax.CombinePaths(output.TempPath, objectName, syntax)
		sourceObjectIndices = append(sourceObjectIndices, len(output.SourceObjects))
		flagsCopy := append([]string(nil), settings.CompilerFlags...)
		output.SourceObjects = append(output.SourceObjects, SourceObject{
			IdentityChecksum: identityChecksum,
			CombinedChecksum: combinedChecksum,
			SourcePath:       sourcePath,
			ObjectPath:       objectPath,
			CompilerFlags:    flagsCopy,
			CompilerName:     compilerName,
			CompileFrom:      compileFrom,
		})
		hasSourceCode = true
	}

	if !hasSourceCode {
		logger.Printf("Failed to find any source code to compile when building %s.", programPath)
		return settings.Validate(fmt.Sprintf("at the end of gathering build instructions for %s", programPath))
	}

	logger.Printf("Listing target executable %s in the current session.", programPath)
	executeResult := settings.GetFlagAsInteger("Supressed", 0) == 0
	linkerFlags := append([]string(nil), settings.LinkerFlags...)
	for _, fw := range settings.Frameworks {
		linkerFlags = append(linkerFlags, "-framework", fw)
	}
	output.LinkerSteps = append(output.LinkerSteps, LinkingStep{
		CompilerName:        compilerName,
		CompileFrom:         compileFrom,
		BinaryName:          programPath,
		LinkerFlags:         linkerFlags,
		SourceObjectIndices: sourceObjectIndices,
		ExecuteResult:       executeResult,
	})
	return settings.Validate(fmt.Sprintf("at the end of gathering build instructions for %s", programPath))
}

// FormatChecksum renders a checksum the same way object filenames embed
// it, kept separate so tests can assert on the exact textual form.
func FormatChecksum(checksum uint64) string {
	return strconv.FormatUint(checksum, 10)
}
