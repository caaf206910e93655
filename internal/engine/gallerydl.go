package engine

import (
	"context"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/grabby/grabbyd/internal/queue"
)

// gallerydlHosts are social media and gallery platforms.
var gallerydlHosts = regexp.MustCompile(`(?i)instagram\.com|reddit\.com|twitter\.com|x\.com|pinterest\.com|tumblr\.com|pixiv\.net|deviantart\.com|artstation\.com`)

// downloadedPath recognizes gallery-dl's per-file output lines, which
// are absolute paths on both unix and windows.
var downloadedPath = regexp.MustCompile(`^(/|[A-Za-z]:\\)`)

// GalleryDL scrapes image galleries and social media posts. One run
// may yield many files; the result count reflects all of them.
type GalleryDL struct {
	path   string
	runner *Runner
	avail  probe
}

func NewGalleryDL(path string, runner *Runner) *GalleryDL {
	return &GalleryDL{path: path, runner: runner}
}

func (e *GalleryDL) Tag() string { return TagGalleryDL }

func (e *GalleryDL) Available() bool {
	return e.avail.check(func() bool { return binaryResponds(e.path) })
}

func (e *GalleryDL) Handles(url string) bool {
	return gallerydlHosts.MatchString(url)
}

func (e *GalleryDL) Run(ctx context.Context, req Request, sink ProgressSink) queue.Result {
	cmd := exec.Command(e.path,
		"--dest", req.OutputDir,
		"--write-metadata",
		"--write-info-json",
		req.URL) // #nosec G204

	var files []string
	ring, err := e.runner.Stream(ctx, TagGalleryDL, cmd, func(line string) {
		if !downloadedPath.MatchString(line) {
			return
		}
		files = append(files, line)
		if sink != nil {
			sink(queue.Progress{Title: filepath.Base(line)})
		}
	}, nil)
	if err != nil {
		return failureResult(TagGalleryDL, err, ring)
	}
	return queue.Result{
		Success:    true,
		Engine:     TagGalleryDL,
		OutputPath: req.OutputDir,
		Count:      len(files),
	}
}
