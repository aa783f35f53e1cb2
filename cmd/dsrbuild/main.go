// Command dsrbuild builds a C/C++ project (or a folder of them) described
// by a .DsrProj script, either calling the compiler and linker directly or
// generating an equivalent Bash/Batch script for later use.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/xerrors"

	"github.com/Dawoodoz/dsrbuild/internal/buildlog"
	"github.com/Dawoodoz/dsrbuild/internal/emit"
	"github.com/Dawoodoz/dsrbuild/internal/machine"
	"github.com/Dawoodoz/dsrbuild/internal/pathsyntax"
	"github.com/Dawoodoz/dsrbuild/internal/session"
)

const usageHelp = `To use dsrbuild, pass a path to a script to generate (or a folder to ` +
	`compile into directly), a project file or a folder containing multiple ` +
	`projects, and the flags you want assigned before building.
Example:
  dsrbuild /tmp/compile.sh ./Wizard.DsrProj Compiler=g++ Linux
  dsrbuild /tmp ./Wizard.DsrProj Compiler=g++ Linux
To run self-tests, pass -selftest and nothing else.`

var (
	debug    = flag.Bool("debug", false, "format error messages with additional detail")
	selftest = flag.Bool("selftest", false, "run a fixed battery of tokenizer and expression checks and exit")
	report   = flag.String("report", "", "path to write a textproto session report to after building")
)

func main() {
	flag.Parse()
	logger := buildlog.Default()

	if *selftest {
		if session.RunSelfTests(os.Stdout) != 0 {
			os.Exit(1)
		}
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("No arguments given to dsrbuild. Starting regression test.")
		if session.RunSelfTests(os.Stdout) != 0 {
			os.Exit(1)
		}
		return
	}
	if len(args) == 1 {
		fmt.Println(usageHelp)
		return
	}

	if err := run(args, logger); err != nil {
		if *debug {
			logger.Printf("Build failed: %+v", err)
		} else {
			logger.Printf("Build failed: %v", err)
		}
		os.Exit(1)
	}
}

func run(args []string, logger *buildlog.Logger) error {
	logger.Printf("Build command: dsrbuild %v", args)

	outputPath := args[0]
	projectPath := args[1]
	extraArguments := args[2:]

	syntax := pathsyntax.Posix

	var scriptPath, tempFolder string
	language := emit.Unknown
	info, statErr := os.Stat(outputPath)
	if statErr == nil && info.IsDir() {
		logger.Printf("The output path is a folder.")
		tempFolder = outputPath
	} else {
		language = emit.IdentifyLanguage(outputPath)
		if language == emit.Unknown {
			return xerrors.Errorf("could not identify the scripting language of %q; use *.bat, *.sh, or just a temporary folder path to call the compiler directly", outputPath)
		}
		logger.Printf("The output path is a script file.")
		scriptPath = outputPath
		tempFolder = pathsyntax.GetRelativeParentFolder(outputPath, syntax)
		if tempFolder == pathsyntax.Undefined {
			return xerrors.Errorf("could not find a parent folder for %q", outputPath)
		}
	}
	logger.Printf("Using %s as the temporary folder for compiled objects.", tempFolder)
	if scriptPath != "" {
		logger.Printf("Using %s as the generated script for calling the compiler.", scriptPath)
	} else {
		logger.Printf("No script path was given. The compiler will be called directly instead.")
	}

	projectExtension := pathsyntax.GetExtension(projectPath)
	switch {
	case equalFoldExtension(projectExtension, "DSRHEAD"):
		return xerrors.Errorf("the path %q does not refer to a project file; *.DsrHead is imported into projects, not built directly", projectPath)
	case equalFoldExtension(projectExtension, "DSRPROJ"):
		// fall through to build
	default:
		if !isSourceExtension(projectExtension) {
			return xerrors.Errorf("the path %q does not refer to a project, a source file, or a folder of projects", projectPath)
		}
	}

	settings := machine.New(pathsyntax.GetPathlessName(projectPath))
	machine.ArgumentsToSettings(settings, extraArguments)
	if err := settings.Validate("in settings after getting application arguments"); err != nil {
		return err
	}

	executableExtension := ""
	if settings.GetFlagAsInteger("Windows", 0) != 0 {
		executableExtension = ".exe"
		syntax = pathsyntax.Windows
	}

	driver := session.NewDriver(tempFolder, executableExtension, syntax, logger)
	if err := driver.BuildFromFolder(projectPath, settings); err != nil {
		return err
	}
	if err := settings.Validate("in settings after executing the root build script"); err != nil {
		return err
	}

	if language == emit.Unknown {
		if err := emit.Execute(driver.Output, logger); err != nil {
			return err
		}
	} else {
		if err := emit.Serialize(driver.Output, scriptPath, language, logger); err != nil {
			return err
		}
	}

	if *report != "" {
		summary, err := session.BuildSessionReport(driver.Output)
		if err != nil {
			return xerrors.Errorf("building session report: %w", err)
		}
		if err := session.WriteSessionReport(*report, summary); err != nil {
			return xerrors.Errorf("writing session report to %s: %w", *report, err)
		}
	}
	return nil
}

func equalFoldExtension(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func isSourceExtension(extension string) bool {
	return equalFoldExtension(extension, "C") || equalFoldExtension(extension, "CPP")
}
