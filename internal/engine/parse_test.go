package engine

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAria2Progress(t *testing.T) {
	line := "[#1 SIZE:2MiB/8MiB(25%) CN:8 DL:1536KiB ETA:30s]"

	p, ok := ParseAria2Progress(line)
	require.True(t, ok)
	assert.Equal(t, int64(2<<20), p.DownloadedBytes)
	assert.Equal(t, int64(8<<20), p.TotalBytes)
	assert.InDelta(t, 25.0, p.Percentage, 0.01)
	assert.Equal(t, "1536KiB/s", p.Speed)
	assert.Equal(t, "30s", p.ETA)
}

func TestParseAria2ProgressIgnoresNoise(t *testing.T) {
	for _, line := range []string{
		"",
		"Download complete: /tmp/video.mp4",
		"[#1 SIZE:garbage]",
	} {
		_, ok := ParseAria2Progress(line)
		assert.False(t, ok, "line %q must not parse", line)
	}
}

func TestParseStreamlinkProgress(t *testing.T) {
	p, ok := ParseStreamlinkProgress("[download] Written 35.0 MB (17s @ 2.1 MB/s)")
	require.True(t, ok)
	assert.Equal(t, int64(35_000_000), p.DownloadedBytes)
	assert.Equal(t, "2.1 MB/s", p.Speed)
	assert.Equal(t, "live", p.ETA)

	p, ok = ParseStreamlinkProgress("[download] Written 1536 KiB")
	require.True(t, ok)
	assert.Equal(t, int64(1536<<10), p.DownloadedBytes)
	assert.Empty(t, p.Speed)

	_, ok = ParseStreamlinkProgress("[cli][info] Opening stream: 1080p (hls)")
	assert.False(t, ok)
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"2MiB":    2 << 20,
		"1.5KiB":  1536,
		"3GiB":    3 << 30,
		"35.0 MB": 35_000_000,
		"2 KB":    2000,
		"120B":    120,
		"7":       7,
		"junk":    0,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseByteSize(in), "input %q", in)
	}
}

func TestPermanentFailure(t *testing.T) {
	assert.True(t, PermanentFailure("ERROR: Unsupported URL: https://example.com"))
	assert.True(t, PermanentFailure("server returned 404"))
	assert.True(t, PermanentFailure("video Not Found"))
	assert.False(t, PermanentFailure("connection reset by peer"))
	assert.False(t, PermanentFailure(""))
}

func TestLineRingWrapsAndOrders(t *testing.T) {
	r := NewLineRing(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		r.Append(l)
	}
	assert.Equal(t, []string{"c", "d", "e"}, r.Lines())
	assert.Equal(t, "e", r.Last())
	assert.Equal(t, "c\nd\ne", r.String())
}

func TestLineRingLastSkipsBlank(t *testing.T) {
	r := NewLineRing(4)
	r.Append("real error")
	r.Append("   ")
	r.Append("")
	assert.Equal(t, "real error", r.Last())
}

func TestWriteInputFileRendersOptions(t *testing.T) {
	e := NewYtDlp("yt-dlp", "aria2c", 16, NewRunner(0))
	dir := t.TempDir()

	outputPath, inputFile, err := e.writeInputFile(Request{
		OutputDir: dir,
		RateBps:   1 << 20,
	}, videoInfo{
		URL:   "https://cdn.example.com/v.mp4",
		Title: `a/b:c?*"what"`,
		Ext:   "mp4",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(inputFile) })

	assert.NotContains(t, outputPath[len(dir):], "?")
	data, err := os.ReadFile(inputFile)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "https://cdn.example.com/v.mp4\n"))
	assert.Contains(t, text, "  split=16\n")
	assert.Contains(t, text, "  max-connection-per-server=16\n")
	assert.Contains(t, text, "  continue=true\n")
	assert.Contains(t, text, "  max-overall-download-limit=1048576\n")
	assert.Contains(t, text, "  dir="+dir+"\n")
}

func TestWriteInputFileOmitsRateWhenUnlimited(t *testing.T) {
	e := NewYtDlp("yt-dlp", "aria2c", 8, NewRunner(0))

	_, inputFile, err := e.writeInputFile(Request{OutputDir: t.TempDir()},
		videoInfo{URL: "https://cdn.example.com/v.mp4", Title: "clip"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(inputFile) })

	data, err := os.ReadFile(inputFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "max-overall-download-limit")
	assert.Contains(t, string(data), "  out=clip.mp4\n")
}
