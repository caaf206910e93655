package queue

import "regexp"

// Playlist URL recognition is a pure pattern match; expansion into
// children happens later through the engine.

var playlistPatterns = map[string][]*regexp.Regexp{
	"youtube": {
		regexp.MustCompile(`(?i)youtube\.com/playlist\?list=`),
		regexp.MustCompile(`(?i)youtube\.com/watch\?.*&list=`),
	},
	"spotify": {
		regexp.MustCompile(`(?i)spotify\.com/playlist/`),
		regexp.MustCompile(`(?i)spotify\.com/album/`),
	},
	"soundcloud": {
		regexp.MustCompile(`(?i)soundcloud\.com/.*/sets/`),
	},
}

var (
	youtubeListID   = regexp.MustCompile(`list=([^&]+)`)
	spotifyListID   = regexp.MustCompile(`/(?:playlist|album)/([^/?]+)`)
	soundcloudSetID = regexp.MustCompile(`/sets/([^/?]+)`)
)

// DetectPlaylist reports the platform when the URL names a playlist.
func DetectPlaylist(url string) (platform string, ok bool) {
	for platform, patterns := range playlistPatterns {
		for _, p := range patterns {
			if p.MatchString(url) {
				return platform, true
			}
		}
	}
	return "", false
}

// ExtractPlaylistID pulls the platform-local playlist id out of the URL.
func ExtractPlaylistID(url string) string {
	if m := youtubeListID.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	if m := spotifyListID.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	if m := soundcloudSetID.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

// Playlist aggregates the children expanded from one playlist URL.
// Child linkage is by id only.
type Playlist struct {
	ID       string   `json:"id"`
	Platform string   `json:"platform"`
	URL      string   `json:"url"`
	ChildIDs []string `json:"child_ids"`
	Total    int      `json:"total"`
	Done     int      `json:"done"`
	Failed   int      `json:"failed"`
}

// Finished reports whether every child reached a terminal state.
func (p *Playlist) Finished() bool {
	return p.Total > 0 && p.Done+p.Failed >= p.Total
}
