// Package emit turns a planner.SessionContext into action: either it runs
// the compiler and linker directly, polling each spawned process to
// completion, or it serializes the same sequence of calls as an
// equivalent Bash or Batch script for later inspection or execution on a
// machine without this tool installed.
package emit

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/Dawoodoz/dsrbuild/internal/buildlog"
	"github.com/Dawoodoz/dsrbuild/internal/planner"
)

// Language selects which script dialect Serialize emits.
type Language int

const (
	Unknown Language = iota
	Bash
	Batch
)

// IdentifyLanguage maps an output path's extension to the script dialect
// it implies, or Unknown if the extension names neither.
func IdentifyLanguage(outputPath string) Language {
	switch strings.ToLower(extensionOf(outputPath)) {
	case "sh":
		return Bash
	case "bat":
		return Batch
	default:
		return Unknown
	}
}

func extensionOf(path string) string {
	slash := strings.LastIndexAny(path, "/\\")
	name := path
	if slash != -1 {
		name = path[slash+1:]
	}
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return ""
	}
	return name[dot+1:]
}

// scriptWriter accumulates generated script text and tracks the last
// directory a pushd/subshell was opened for, so consecutive steps
// sharing a CompileFrom folder don't reopen it.
type scriptWriter struct {
	language     Language
	builder      strings.Builder
	previousPath string
}

func newScriptWriter(language Language) *scriptWriter {
	w := &scriptWriter{language: language}
	if language == Bash {
		w.builder.WriteString("#!/bin/bash\n\n")
	} else if language == Batch {
		w.builder.WriteString("@echo off\r\n\r\n")
	}
	return w
}

func (w *scriptWriter) newline() string {
	if w.language == Batch {
		return "\r\n"
	}
	return "\n"
}

func (w *scriptWriter) printMessage(message string) {
	w.builder.WriteString("echo " + message + w.newline())
}

func (w *scriptWriter) setCompilationFolder(newPath string) {
	if w.previousPath == newPath {
		return
	}
	if w.previousPath != "" {
		if w.language == Batch {
			w.builder.WriteString("popd" + w.newline())
		} else {
			w.builder.WriteString(")" + w.newline())
		}
	}
	if newPath != "" {
		if w.language == Batch {
			w.builder.WriteString("pushd " + newPath + w.newline())
		} else {
			w.builder.WriteString("(cd " + newPath + ";" + w.newline())
		}
	}
	w.previousPath = newPath
}

func (w *scriptWriter) resetCompilationFolder() {
	w.setCompilationFolder("")
}

func (w *scriptWriter) callProgram(programPath string, arguments []string) {
	w.builder.WriteString(programPath)
	for _, a := range arguments {
		w.builder.WriteString(" " + a)
	}
	w.builder.WriteString(w.newline())
}

// Serialize writes ctx's compile-then-link plan as a Bash or Batch script
// to scriptPath, using renameio so a reader never observes a partially
// written script if the process is interrupted mid-write.
func Serialize(ctx *planner.SessionContext, scriptPath string, language Language, logger *buildlog.Logger) error {
	w := newScriptWriter(language)
	logger.Printf("Generating build script")
	logger.Printf("Compiling %d objects.", len(ctx.SourceObjects))
	for _, obj := range ctx.SourceObjects {
		w.setCompilationFolder(obj.CompileFrom)
		compilationArguments := append(append([]string(nil), obj.CompilerFlags...), "-c", obj.SourcePath, "-o", obj.ObjectPath)
		reuseMessage := fmt.Sprintf("Reusing %s ID:%d.", obj.SourcePath, obj.IdentityChecksum)
		compileMessage := fmt.Sprintf("Compiling %s ID:%d.", obj.SourcePath, obj.IdentityChecksum)
		if language == Batch {
			w.builder.WriteString("if exist " + obj.ObjectPath + " (" + w.newline())
			w.printMessage(reuseMessage)
			w.builder.WriteString(") else (" + w.newline())
			w.printMessage(compileMessage)
			w.callProgram(obj.CompilerName, compilationArguments)
			w.builder.WriteString(")" + w.newline())
		} else {
			w.builder.WriteString("if [ -e \"" + obj.ObjectPath + "\" ]; then" + w.newline())
			w.printMessage(reuseMessage)
			w.builder.WriteString("else" + w.newline())
			w.printMessage(compileMessage)
			w.callProgram(obj.CompilerName, compilationArguments)
			w.builder.WriteString("fi" + w.newline())
		}
	}

	logger.Printf("Linking %d executables.", len(ctx.LinkerSteps))
	for _, step := range ctx.LinkerSteps {
		w.setCompilationFolder(step.CompileFrom)
		var linkerArguments []string
		for _, objectIndex := range step.SourceObjectIndices {
			if objectIndex < 0 || objectIndex >= len(ctx.SourceObjects) {
				return xerrors.Errorf("object index %d is out of bounds 0..%d", objectIndex, len(ctx.SourceObjects)-1)
			}
			linkerArguments = append(linkerArguments, ctx.SourceObjects[objectIndex].ObjectPath)
		}
		linkerArguments = append(linkerArguments, step.LinkerFlags...)
		linkerArguments = append(linkerArguments, "-o", step.BinaryName)
		if len(step.LinkerFlags) > 0 {
			w.printMessage(fmt.Sprintf("Linking %s with %s.", step.BinaryName, strings.Join(step.LinkerFlags, " ")))
		} else {
			w.printMessage(fmt.Sprintf("Linking %s.", step.BinaryName))
		}
		w.callProgram(step.CompilerName, linkerArguments)
		if step.ExecuteResult {
			w.printMessage("Starting " + step.BinaryName)
			w.callProgram(step.BinaryName, nil)
			w.printMessage("The program terminated.")
		}
	}
	w.resetCompilationFolder()
	w.printMessage("Done building.")

	logger.Printf("Saving script to %s", scriptPath)
	return renameio.WriteFile(scriptPath, []byte(w.builder.String()), 0o755)
}

// waitForProcess polls cmd roughly once a millisecond until it exits,
// matching the emitter's direct-execution mode where each compiler or
// linker invocation must finish before the next step reads its output.
func waitForProcess(cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	for {
		select {
		case err := <-done:
			return err
		case <-time.After(time.Millisecond):
		}
	}
}

func callProgramDirect(programPath string, arguments []string, logger *buildlog.Logger) error {
	if len(arguments) > 0 {
		logger.Printf("Calling %s with %s", programPath, strings.Join(arguments, " "))
	} else {
		logger.Printf("Calling %s", programPath)
	}
	if _, err := os.Stat(programPath); err != nil {
		return xerrors.Errorf("failed to execute %s, because the executable file was not found: %w", programPath, err)
	}
	cmd := exec.Command(programPath, arguments...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return xerrors.Errorf("failed to execute %s: %w", programPath, err)
	}
	if err := waitForProcess(cmd); err != nil {
		return xerrors.Errorf("failed to execute %s: %w", programPath, err)
	}
	return nil
}

// Execute runs ctx's compile-then-link plan directly, skipping any object
// whose file already exists on disk (an object's path already encodes its
// identity and combined checksum, so existence alone proves it is current).
func Execute(ctx *planner.SessionContext, logger *buildlog.Logger) error {
	logger.Printf("Compiling %d objects.", len(ctx.SourceObjects))
	previousPath := ""
	changeFolder := func(newPath string) error {
		if newPath == previousPath {
			return nil
		}
		if newPath != "" {
			if err := os.Chdir(newPath); err != nil {
				return xerrors.Errorf("changing to compile-from folder %s: %w", newPath, err)
			}
		}
		previousPath = newPath
		return nil
	}

	for _, obj := range ctx.SourceObjects {
		if err := changeFolder(obj.CompileFrom); err != nil {
			return err
		}
		if _, err := os.Stat(obj.ObjectPath); err == nil {
			logger.Printf("Reusing %s ID:%d.", obj.SourcePath, obj.IdentityChecksum)
			continue
		}
		logger.Printf("Compiling %s ID:%d.", obj.SourcePath, obj.IdentityChecksum)
		arguments := append(append([]string(nil), obj.CompilerFlags...), "-c", obj.SourcePath, "-o", obj.ObjectPath)
		if err := callProgramDirect(obj.CompilerName, arguments, logger); err != nil {
			return err
		}
	}

	logger.Printf("Linking %d executables.", len(ctx.LinkerSteps))
	for _, step := range ctx.LinkerSteps {
		if err := changeFolder(step.CompileFrom); err != nil {
			return err
		}
		var linkerArguments []string
		for _, objectIndex := range step.SourceObjectIndices {
			if objectIndex < 0 || objectIndex >= len(ctx.SourceObjects) {
				return xerrors.Errorf("object index %d is out of bounds 0..%d", objectIndex, len(ctx.SourceObjects)-1)
			}
			linkerArguments = append(linkerArguments, ctx.SourceObjects[objectIndex].ObjectPath)
		}
		linkerArguments = append(linkerArguments, step.LinkerFlags...)
		linkerArguments = append(linkerArguments, "-o", step.BinaryName)
		logger.Printf("Linking %s.", step.BinaryName)
		if err := callProgramDirect(step.CompilerName, linkerArguments, logger); err != nil {
			return err
		}
		if step.ExecuteResult {
			logger.Printf("Starting %s", step.BinaryName)
			if err := callProgramDirect(step.BinaryName, nil, logger); err != nil {
				return err
			}
			logger.Printf("The program terminated.")
		}
	}
	return nil
}
