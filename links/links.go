// Package links finds supported short-video links in chat text and tags them
// with the platform they belong to.
package links

import (
	"regexp"
	"sort"
)

// Platform identifies the hosting service of a link.
type Platform string

const (
	Instagram     Platform = "instagram"
	TikTok        Platform = "tiktok"
	YouTubeShorts Platform = "youtube_shorts"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{Instagram, TikTok, YouTubeShorts}

// Label is the human readable platform name used in captions and reports.
func (p Platform) Label() string {
	switch p {
	case Instagram:
		return "Instagram"
	case TikTok:
		return "TikTok"
	case YouTubeShorts:
		return "YouTube Shorts"
	default:
		return string(p)
	}
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// Link is a classified URL found in a message.
type Link struct {
	Platform Platform
	URL      string
	// Offset is the byte position of the URL inside the scanned text.
	Offset int
}

var patterns = []struct {
	platform Platform
	re       *regexp.Regexp
}{
	{Instagram, regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/(?:p|reels?|tv)/[a-zA-Z0-9_-]+/?`)},
	{TikTok, regexp.MustCompile(`(?i)https?://(?:www\.|vm\.|vt\.|m\.)?tiktok\.com/(?:@[\w.-]+/video/\d+|t/[\w-]+|[\w-]+)/?`)},
	{YouTubeShorts, regexp.MustCompile(`(?i)https?://(?:www\.|m\.)?youtube\.com/shorts/[a-zA-Z0-9_-]+`)},
}

// ClassifyAll returns every supported link in text ordered by position.
func ClassifyAll(text string) []Link {
	var found []Link
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			found = append(found, Link{Platform: p.platform, URL: text[loc[0]:loc[1]], Offset: loc[0]})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].Offset < found[j].Offset })
	return found
}

// Classify returns the earliest supported link in text. A message with
// several links yields one request for the first of them.
func Classify(text string) (Link, bool) {
	all := ClassifyAll(text)
	if len(all) == 0 {
		return Link{}, false
	}
	return all[0], true
}
