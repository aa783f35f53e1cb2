package pathsyntax

import "testing"

func TestOptimizePathIdempotent(t *testing.T) {
	cases := []string{
		"/a/b/c",
		"a/../b",
		"./a/b/",
		"a//b///c",
		"~/projects/foo",
	}
	for _, c := range cases {
		once := OptimizePath(c, Posix)
		twice := OptimizePath(once, Posix)
		if once != twice {
			t.Errorf("OptimizePath(%q) = %q, but OptimizePath(%q) = %q; not idempotent", c, once, once, twice)
		}
	}
}

func TestOptimizePathDotDotPastRoot(t *testing.T) {
	got := OptimizePath("/..", Posix)
	if got != Undefined {
		t.Errorf("OptimizePath(/..) = %q, want sentinel %q", got, Undefined)
	}
}

func TestOptimizePathCollapsesAndDrops(t *testing.T) {
	got := OptimizePath("/a//b/./c", Posix)
	want := "/a/b/c"
	if got != want {
		t.Errorf("OptimizePath() = %q, want %q", got, want)
	}
}

func TestCombinePathsSingleSeparator(t *testing.T) {
	got := CombinePaths("/a/b", "c", Posix)
	want := "/a/b/c"
	if got != want {
		t.Errorf("CombinePaths() = %q, want %q", got, want)
	}
	got = CombinePaths("/a/b/", "c", Posix)
	if got != want {
		t.Errorf("CombinePaths() with trailing sep = %q, want %q", got, want)
	}
}

func TestCombinePathsRootedBOverridesA(t *testing.T) {
	got := CombinePaths("/a/b", "/c/d", Posix)
	want := "/c/d"
	if got != want {
		t.Errorf("CombinePaths() = %q, want %q", got, want)
	}
}

func TestHasRootOfTheoreticalAbsolutePath(t *testing.T) {
	cwd := "/home/user/project"
	got := GetTheoreticalAbsolutePath("src/main.cpp", cwd, Posix)
	if !HasRoot(got, true, Posix) {
		t.Errorf("GetTheoreticalAbsolutePath(...) = %q, want a rooted path", got)
	}
}

func TestGetExtension(t *testing.T) {
	if got := GetExtension("/a/b/file.cpp"); got != "cpp" {
		t.Errorf("GetExtension() = %q, want cpp", got)
	}
	if got := GetExtension("/a.b/file"); got != "" {
		t.Errorf("GetExtension() = %q, want empty (dot belongs to parent folder)", got)
	}
}

func TestGetPathlessName(t *testing.T) {
	if got := GetPathlessName("/a/b/c.h"); got != "c.h" {
		t.Errorf("GetPathlessName() = %q, want c.h", got)
	}
}

func TestGetRelativeParentFolderOfLiteralRootIsUndefined(t *testing.T) {
	if got := GetRelativeParentFolder("/", Posix); got != Undefined {
		t.Errorf("GetRelativeParentFolder(/) = %q, want sentinel %q", got, Undefined)
	}
}

func TestGetRelativeParentFolderOfHomeAliasAppendsDotDot(t *testing.T) {
	got := GetRelativeParentFolder("~", Posix)
	want := "~/.."
	if got != want {
		t.Errorf("GetRelativeParentFolder(~) = %q, want %q", got, want)
	}
}

func TestGetRelativeParentFolderOfOrdinaryAbsolutePath(t *testing.T) {
	got := GetRelativeParentFolder("/a/b", Posix)
	want := "/a"
	if got != want {
		t.Errorf("GetRelativeParentFolder(/a/b) = %q, want %q", got, want)
	}
}
