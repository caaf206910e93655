package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grabby/grabbyd/internal/queue"
)

// ytdlpHosts are the general video platforms this adapter claims.
var ytdlpHosts = regexp.MustCompile(`(?i)youtube\.com|youtu\.be|vimeo\.com|dailymotion\.com|twitch\.tv|facebook\.com|tiktok\.com|twitter\.com|x\.com`)

// aria2Progress matches aria2c summary lines, e.g.
// [#1 SIZE:12.3MiB/45.6MiB(27%) CN:8 DL:1.2MiB ETA:30s]
var aria2Progress = regexp.MustCompile(`SIZE:([0-9.]+[KMGT]?iB)/([0-9.]+[KMGT]?iB)\((\d+)%\).*DL:([0-9.]+[KMGT]?iB).*ETA:(\w+)`)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// YtDlp extracts direct media URLs with yt-dlp and hands the transfer
// to aria2c for segmented, resumable downloads. It is the general
// fallback engine and also resolves playlists.
type YtDlp struct {
	ytdlpPath string
	aria2Path string
	// connections configures aria2c's split and per-server connection
	// count.
	connections int
	runner      *Runner
	avail       probe
}

func NewYtDlp(ytdlpPath, aria2Path string, connections int, runner *Runner) *YtDlp {
	if connections < 1 {
		connections = 16
	}
	return &YtDlp{
		ytdlpPath:   ytdlpPath,
		aria2Path:   aria2Path,
		connections: connections,
		runner:      runner,
	}
}

func (e *YtDlp) Tag() string { return TagYtDlp }

func (e *YtDlp) Available() bool {
	return e.avail.check(func() bool {
		return binaryResponds(e.ytdlpPath) && binaryResponds(e.aria2Path)
	})
}

func (e *YtDlp) Handles(url string) bool {
	return ytdlpHosts.MatchString(url)
}

// videoInfo is the subset of yt-dlp's JSON dump the adapter consumes.
type videoInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Ext   string `json:"ext"`
}

func (e *YtDlp) Run(ctx context.Context, req Request, sink ProgressSink) queue.Result {
	format := req.Quality
	if format == "" {
		format = "best"
	}
	if req.Options.ExtractAudio {
		format = "bestaudio/best"
	}

	probeCmd := exec.Command(e.ytdlpPath, "--dump-json", "--no-download",
		"--format="+format, req.URL) // #nosec G204
	out, ring, err := e.runner.Capture(ctx, TagYtDlp, probeCmd)
	if err != nil {
		return failureResult(TagYtDlp, err, ring)
	}

	var info videoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return queue.Result{Engine: TagYtDlp, Message: "unreadable metadata dump: " + err.Error()}
	}
	if info.URL == "" {
		return queue.Result{Engine: TagYtDlp, Message: "could not extract direct url"}
	}
	if sink != nil && info.Title != "" {
		sink(queue.Progress{Title: info.Title})
	}

	outputPath, inputFile, err := e.writeInputFile(req, info)
	if err != nil {
		return queue.Result{Engine: TagYtDlp, Message: err.Error()}
	}
	defer os.Remove(inputFile)

	aria2Cmd := exec.Command(e.aria2Path,
		"--input-file", inputFile,
		"--summary-interval", "1") // #nosec G204
	ring, err = e.runner.Stream(ctx, TagYtDlp, aria2Cmd, func(line string) {
		if p, ok := ParseAria2Progress(line); ok && sink != nil {
			p.Title = info.Title
			sink(p)
		}
	}, nil)
	if err != nil {
		return failureResult(TagYtDlp, err, ring)
	}

	return queue.Result{
		Success:    true,
		Engine:     TagYtDlp,
		Title:      info.Title,
		OutputPath: outputPath,
		Count:      1,
	}
}

// writeInputFile renders the aria2c download descriptor: the direct
// URL followed by indented per-download options.
func (e *YtDlp) writeInputFile(req Request, info videoInfo) (outputPath, inputFile string, err error) {
	name := invalidFilenameChars.ReplaceAllString(info.Title, "_")
	if name == "" {
		name = "video"
	}
	ext := info.Ext
	if ext == "" {
		ext = "mp4"
	}
	outputPath = filepath.Join(req.OutputDir, name+"."+ext)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", info.URL)
	fmt.Fprintf(&b, "  out=%s\n", filepath.Base(outputPath))
	fmt.Fprintf(&b, "  dir=%s\n", req.OutputDir)
	fmt.Fprintf(&b, "  split=%d\n", e.connections)
	fmt.Fprintf(&b, "  max-connection-per-server=%d\n", e.connections)
	fmt.Fprintf(&b, "  min-split-size=1M\n")
	fmt.Fprintf(&b, "  continue=true\n")
	fmt.Fprintf(&b, "  max-tries=5\n")
	fmt.Fprintf(&b, "  retry-wait=3\n")
	if req.RateBps > 0 {
		fmt.Fprintf(&b, "  max-overall-download-limit=%d\n", req.RateBps)
	}

	f, err := os.CreateTemp("", "grabby-aria2-*.txt")
	if err != nil {
		return "", "", err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", "", err
	}
	return outputPath, f.Name(), nil
}

// playlistEntry is one line of a --flat-playlist dump.
type playlistEntry struct {
	URL   string `json:"url"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ExpandPlaylist resolves a playlist URL into its children without
// downloading anything. Lines that are not valid JSON are skipped.
func (e *YtDlp) ExpandPlaylist(ctx context.Context, url string) ([]queue.PlaylistEntry, error) {
	cmd := exec.Command(e.ytdlpPath, "--flat-playlist", "--dump-json", url) // #nosec G204

	var entries []queue.PlaylistEntry
	ring, err := e.runner.Stream(ctx, TagYtDlp, cmd, func(line string) {
		var pe playlistEntry
		if json.Unmarshal([]byte(line), &pe) != nil {
			return
		}
		child := pe.URL
		if child == "" && pe.ID != "" {
			child = "https://www.youtube.com/watch?v=" + pe.ID
		}
		if child == "" {
			return
		}
		entries = append(entries, queue.PlaylistEntry{URL: child, Title: pe.Title})
	}, nil)
	if err != nil {
		if last := ring.Last(); last != "" {
			return nil, fmt.Errorf("playlist expansion: %s", last)
		}
		return nil, fmt.Errorf("playlist expansion: %w", err)
	}
	return entries, nil
}

// ParseAria2Progress extracts a progress update from one aria2c summary
// line. The second return is false for lines that carry no progress.
func ParseAria2Progress(line string) (queue.Progress, bool) {
	m := aria2Progress.FindStringSubmatch(line)
	if m == nil {
		return queue.Progress{}, false
	}
	downloaded := parseByteSize(m[1])
	total := parseByteSize(m[2])
	pct := 0.0
	fmt.Sscanf(m[3], "%f", &pct)
	return queue.Progress{
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		Percentage:      pct,
		Speed:           m[4] + "/s",
		ETA:             m[5],
	}, true
}

// parseByteSize converts human sizes to bytes. It accepts both binary
// units as printed by aria2c ("12.3MiB") and streamlink's decimal
// forms ("35.0 MB").
func parseByteSize(s string) int64 {
	s = strings.ReplaceAll(s, " ", "")
	multipliers := map[string]float64{
		"KiB": 1 << 10,
		"MiB": 1 << 20,
		"GiB": 1 << 30,
		"TiB": 1 << 40,
		"KB":  1e3,
		"MB":  1e6,
		"GB":  1e9,
		"TB":  1e12,
		"iB":  1,
		"B":   1,
	}
	for _, suffix := range []string{"KiB", "MiB", "GiB", "TiB", "KB", "MB", "GB", "TB", "iB", "B"} {
		if strings.HasSuffix(s, suffix) {
			var n float64
			if _, err := fmt.Sscanf(strings.TrimSuffix(s, suffix), "%f", &n); err != nil {
				return 0
			}
			return int64(n * multipliers[suffix])
		}
	}
	var n float64
	if _, err := fmt.Sscanf(s, "%f", &n); err != nil {
		return 0
	}
	return int64(n)
}
