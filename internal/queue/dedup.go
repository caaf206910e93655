package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

var trackingParam = regexp.MustCompile(`^(utm_.*|ref|source)$`)

var nonWord = regexp.MustCompile(`[^\w\s]`)

// NormalizeURL lowercases the host and strips tracking query parameters
// so cosmetic variants of the same URL collapse to one form.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	q := u.Query()
	for key := range q {
		if trackingParam.MatchString(strings.ToLower(key)) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// normalizeTitle lowercases and strips non-word characters.
func normalizeTitle(title string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(title), ""))
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DuplicateDetector remembers normalized URL and title hashes. It is not
// self-locking; the scheduler owns it.
type DuplicateDetector struct {
	urls   map[string]struct{}
	titles map[string]struct{}
}

func NewDuplicateDetector() *DuplicateDetector {
	return &DuplicateDetector{
		urls:   make(map[string]struct{}),
		titles: make(map[string]struct{}),
	}
}

// KnownURL reports whether a normalized-equal URL was seen before.
func (d *DuplicateDetector) KnownURL(raw string) bool {
	_, ok := d.urls[hashKey(NormalizeURL(raw))]
	return ok
}

// KnownTitle reports whether a normalized-equal title was seen before.
// Only URL knowledge gates admission; titles are recorded for reporting.
func (d *DuplicateDetector) KnownTitle(title string) bool {
	_, ok := d.titles[hashKey(normalizeTitle(title))]
	return ok
}

func (d *DuplicateDetector) AddURL(raw string) {
	d.urls[hashKey(NormalizeURL(raw))] = struct{}{}
}

func (d *DuplicateDetector) AddTitle(title string) {
	d.titles[hashKey(normalizeTitle(title))] = struct{}{}
}
