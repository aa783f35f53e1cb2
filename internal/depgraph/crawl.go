package depgraph

import (
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/Dawoodoz/dsrbuild/internal/buildlog"
)

func isReadable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

// CrawlSource analyzes absolutePath as a crawl origin: a regular file is
// handed to AnalyzeFromFile, a folder is rejected (a crawl origin names a
// single translation unit, not a directory to search), and a symbolic
// link is followed to whatever it points at before retrying, so a crawl
// origin that passes through a symlinked source tree still resolves to
// real content.
func (an *Analyzer) CrawlSource(ctx *ProjectContext, absolutePath string, logger *buildlog.Logger) error {
	info, err := os.Lstat(absolutePath)
	if err != nil {
		return xerrors.Errorf("crawling %s: %w", absolutePath, err)
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(absolutePath)
		if err != nil {
			return xerrors.Errorf("following symlink %s: %w", absolutePath, err)
		}
		if !isAbsolute(target) {
			target = joinSibling(absolutePath, target)
		}
		return an.CrawlSource(ctx, target, logger)
	case info.IsDir():
		logger.Printf("Crawling was given the folder %s but a source file was expected!", absolutePath)
		return nil
	default:
		if !isReadable(absolutePath) {
			return xerrors.Errorf("crawling %s: %w", absolutePath, os.ErrPermission)
		}
		logger.Printf("Crawling for source from %s.", absolutePath)
		return an.AnalyzeFromFile(ctx, absolutePath)
	}
}

func isAbsolute(path string) bool {
	return len(path) > 0 && path[0] == '/'
}

func joinSibling(original, relativeTarget string) string {
	idx := -1
	for i := len(original) - 1; i >= 0; i-- {
		if original[i] == '/' {
			idx = i
			break
		}
	}
	if idx == -1 {
		return relativeTarget
	}
	return original[:idx+1] + relativeTarget
}
