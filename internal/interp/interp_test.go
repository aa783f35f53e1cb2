package interp

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dawoodoz/dsrbuild/internal/buildlog"
	"github.com/Dawoodoz/dsrbuild/internal/machine"
	"github.com/Dawoodoz/dsrbuild/internal/pathsyntax"
)

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	return path
}

func newInterpreter(out *bytes.Buffer) *Interpreter {
	return New(pathsyntax.Posix, buildlog.New(out))
}

func TestAssignmentAndImplicitFlag(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", "x = 10\nLinux\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	if got := m.GetFlag("X", ""); got != "10" {
		t.Fatalf("X = %q, want 10", got)
	}
	if got := m.GetFlag("LINUX", ""); got != "1" {
		t.Fatalf("LINUX = %q, want 1", got)
	}
}

func TestIfFalseSkipsBodyUntilEndIf(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", "if (0)\n\tx = 10\nend if\ny = 1\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	if got := m.GetFlag("X", "unset"); got != "unset" {
		t.Fatalf("X = %q, want untouched", got)
	}
	if got := m.GetFlag("Y", ""); got != "1" {
		t.Fatalf("Y = %q, want 1", got)
	}
}

func TestIfTrueRunsBody(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", "if (1)\n\tx = 10\nend if\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	if got := m.GetFlag("X", ""); got != "10" {
		t.Fatalf("X = %q, want 10", got)
	}
}

func TestLinkAddsDashLPrefixUnlessAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", "link \"GL\"\nlink \"-lm\"\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	want := []string{"-lGL", "-lm"}
	if len(m.LinkerFlags) != 2 || m.LinkerFlags[0] != want[0] || m.LinkerFlags[1] != want[1] {
		t.Fatalf("LinkerFlags = %v, want %v", m.LinkerFlags, want)
	}
}

func TestFrameworkAndCompilerFlagAndLinkerFlag(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", "framework \"Cocoa\"\ncompilerflag \"-DMACRO\"\nlinkerflag \"-pthread\"\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	if len(m.Frameworks) != 1 || m.Frameworks[0] != "Cocoa" {
		t.Fatalf("Frameworks = %v", m.Frameworks)
	}
	if len(m.CompilerFlags) != 1 || m.CompilerFlags[0] != "-DMACRO" {
		t.Fatalf("CompilerFlags = %v", m.CompilerFlags)
	}
	if len(m.LinkerFlags) != 1 || m.LinkerFlags[0] != "-pthread" {
		t.Fatalf("LinkerFlags = %v", m.LinkerFlags)
	}
}

func TestMessagePrintsEvaluatedText(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", `message "hello " & "world"`+"\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	if !strings.Contains(out.String(), "hello world") {
		t.Fatalf("log output = %q, want it to contain %q", out.String(), "hello world")
	}
}

func TestCrawlResolvesRelativeToScriptFolder(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", `crawl "main.cpp"`+"\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	if len(m.CrawlOrigins) != 1 {
		t.Fatalf("CrawlOrigins = %v, want one entry", m.CrawlOrigins)
	}
	if !strings.HasSuffix(m.CrawlOrigins[0], "/main.cpp") {
		t.Fatalf("CrawlOrigins[0] = %q, want it to resolve to an absolute path ending in /main.cpp", m.CrawlOrigins[0])
	}
}

func TestBuildQueuesChildProjectWithInheritedSettings(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", `build "child.DsrProj" Verbose`+"\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	m.AssignValue("PLATFORM", "linux", true)
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	if len(m.ChildProjects) != 1 {
		t.Fatalf("ChildProjects = %v, want one entry", m.ChildProjects)
	}
	child := m.ChildProjects[0]
	if got := child.Settings.GetFlag("PLATFORM", ""); got != "linux" {
		t.Fatalf("child PLATFORM = %q, want linux (inherited)", got)
	}
	if got := child.Settings.GetFlag("VERBOSE", ""); got != "1" {
		t.Fatalf("child VERBOSE = %q, want 1 (from build-line argument)", got)
	}
}

func TestInvalidIdentifierAssignmentIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", "1x = 5\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err == nil {
		t.Fatalf("expected an error for an invalid identifier")
	}
}

func TestImportOfMissingScriptWarnsAndSkipsCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "a.DsrProj", `import "missing.DsrProj"`+"\n"+"y = 1\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v, want the missing import to only warn", err)
	}
	if !strings.Contains(out.String(), "missing.DsrProj") {
		t.Fatalf("log output = %q, want a warning naming the missing script", out.String())
	}
	if got := m.GetFlag("Y", ""); got != "1" {
		t.Fatalf("Y = %q, want 1; the rest of the script should still run", got)
	}
}

func TestProjectsCommandCreatesSourceFileProjects(t *testing.T) {
	dir := t.TempDir()
	testsDir := filepath.Join(dir, "tests")
	if err := os.Mkdir(testsDir, 0o755); err != nil {
		t.Fatalf("Mkdir() = %v", err)
	}
	if err := os.WriteFile(filepath.Join(testsDir, "fooTest.cpp"), []byte("int main(){}"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if err := os.WriteFile(filepath.Join(testsDir, "unrelated.cpp"), []byte("int main(){}"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	path := writeScript(t, dir, "a.DsrProj", `projects from "*Test.cpp" in "tests"`+"\n")
	var out bytes.Buffer
	ip := newInterpreter(&out)
	m := machine.New("a")
	if err := ip.EvaluateScript(m, path); err != nil {
		t.Fatalf("EvaluateScript() = %v", err)
	}
	if len(m.SourceFileProjects) != 1 {
		t.Fatalf("SourceFileProjects = %v, want exactly fooTest.cpp", m.SourceFileProjects)
	}
	if !strings.HasSuffix(m.SourceFileProjects[0].Path, "fooTest.cpp") {
		t.Fatalf("SourceFileProjects[0].Path = %q, want it to end in fooTest.cpp", m.SourceFileProjects[0].Path)
	}
}
