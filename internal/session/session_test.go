package session

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Dawoodoz/dsrbuild/internal/buildlog"
	"github.com/Dawoodoz/dsrbuild/internal/machine"
	"github.com/Dawoodoz/dsrbuild/internal/pathsyntax"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) = %v", name, err)
	}
	return path
}

func TestBuildFromFileCompilesSingleSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.cpp", "int main(){return 0;}\n")

	var out bytes.Buffer
	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&out))
	if err := driver.BuildFromFile(filepath.Join(dir, "main.cpp"), machine.New("shared")); err != nil {
		t.Fatalf("BuildFromFile() = %v", err)
	}
	if len(driver.Output.SourceObjects) != 1 {
		t.Fatalf("SourceObjects = %v, want exactly one", driver.Output.SourceObjects)
	}
	if len(driver.Output.LinkerSteps) != 1 {
		t.Fatalf("LinkerSteps = %v, want exactly one", driver.Output.LinkerSteps)
	}
}

func TestBuildFromFileRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "hello\n")

	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&bytes.Buffer{}))
	if err := driver.BuildFromFile(path, machine.New("shared")); err == nil {
		t.Fatalf("BuildFromFile() = nil, want an error for a non-source extension")
	}
}

func TestBuildProjectEvaluatesScriptAndBuilds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.cpp", "int main(){return 0;}\n")
	projectPath := writeFile(t, dir, "app.DsrProj", "Crawl \"main.cpp\"\n")

	var out bytes.Buffer
	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&out))
	if err := driver.BuildProject(projectPath, machine.New("shared")); err != nil {
		t.Fatalf("BuildProject() = %v", err)
	}
	if len(driver.Output.SourceObjects) != 1 {
		t.Fatalf("SourceObjects = %v, want exactly one", driver.Output.SourceObjects)
	}
	if len(driver.Output.LinkerSteps) != 1 {
		t.Fatalf("LinkerSteps = %v, want exactly one", driver.Output.LinkerSteps)
	}
}

func TestBuildProjectRejectsDuplicateInitialScript(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.cpp", "int main(){return 0;}\n")
	projectPath := writeFile(t, dir, "app.DsrProj", "Crawl \"main.cpp\"\n")

	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&bytes.Buffer{}))
	if err := driver.BuildProject(projectPath, machine.New("shared")); err != nil {
		t.Fatalf("BuildProject() first call = %v", err)
	}
	if err := driver.BuildProject(projectPath, machine.New("shared")); err == nil {
		t.Fatalf("BuildProject() second call = nil, want a duplicate-build error")
	}
}

func TestBuildProjectsSharesObjectAcrossTwoPrograms(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.cpp", "int shared(){return 1;}\n")
	writeFile(t, dir, "a.DsrProj", "Crawl \"shared.cpp\"\nProgramPath = \"progA\"\n")
	writeFile(t, dir, "b.DsrProj", "Crawl \"shared.cpp\"\nProgramPath = \"progB\"\n")

	var out bytes.Buffer
	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&out))
	if err := driver.BuildProjects(dir, machine.New("shared")); err != nil {
		t.Fatalf("BuildProjects() = %v", err)
	}
	if len(driver.Output.SourceObjects) != 1 {
		t.Fatalf("SourceObjects = %v, want the shared source compiled exactly once", driver.Output.SourceObjects)
	}
	if len(driver.Output.LinkerSteps) != 2 {
		t.Fatalf("LinkerSteps = %v, want two programs linked", driver.Output.LinkerSteps)
	}
}

func TestBuildFromFolderDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	sourcePath := writeFile(t, dir, "only.cpp", "int main(){return 0;}\n")

	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&bytes.Buffer{}))
	if err := driver.BuildFromFolder(sourcePath, machine.New("shared")); err != nil {
		t.Fatalf("BuildFromFolder() = %v", err)
	}
	if len(driver.Output.SourceObjects) != 1 {
		t.Fatalf("SourceObjects = %v, want exactly one", driver.Output.SourceObjects)
	}
}

func TestBuildFromFolderSkipsUnrelatedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "readme.md", "hello\n")

	var out bytes.Buffer
	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&out))
	if err := driver.BuildFromFolder(path, machine.New("shared")); err != nil {
		t.Fatalf("BuildFromFolder() = %v, want no error for an unrelated file, just a warning", err)
	}
	if len(driver.Output.SourceObjects) != 0 {
		t.Fatalf("SourceObjects = %v, want none", driver.Output.SourceObjects)
	}
}

func TestBuildProjectSkipsWhenBinaryExistsAndSkipIfBinaryExistsIsSet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.cpp", "int main(){return 0;}\n")
	writeFile(t, dir, "app", "already built")
	projectPath := writeFile(t, dir, "app.DsrProj", "Crawl \"main.cpp\"\nSkipIfBinaryExists\n")

	var out bytes.Buffer
	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&out))
	if err := driver.BuildProject(projectPath, machine.New("shared")); err != nil {
		t.Fatalf("BuildProject() = %v", err)
	}
	if len(driver.Output.SourceObjects) != 0 {
		t.Fatalf("SourceObjects = %v, want none when SkipIfBinaryExists finds an existing binary", driver.Output.SourceObjects)
	}
}

func TestBuildSessionReportContainsCounts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.cpp", "int main(){return 0;}\n")

	driver := NewDriver(dir, "", pathsyntax.Posix, buildlog.New(&bytes.Buffer{}))
	if err := driver.BuildFromFile(filepath.Join(dir, "main.cpp"), machine.New("shared")); err != nil {
		t.Fatalf("BuildFromFile() = %v", err)
	}
	report, err := BuildSessionReport(driver.Output)
	if err != nil {
		t.Fatalf("BuildSessionReport() = %v", err)
	}
	if report.Fields["object_count"].GetNumberValue() != 1 {
		t.Fatalf("object_count = %v, want 1", report.Fields["object_count"])
	}
	reportPath := filepath.Join(dir, "report.txtpb")
	if err := WriteSessionReport(reportPath, report); err != nil {
		t.Fatalf("WriteSessionReport() = %v", err)
	}
	if data, err := os.ReadFile(reportPath); err != nil || len(data) == 0 {
		t.Fatalf("report file = (%q, %v), want non-empty content", data, err)
	}
}
