// Package media maps between media URLs and the compact provider-code/id
// pairs the server speaks.
package media

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Link identifies one piece of media as a provider code and an opaque id.
type Link struct {
	Type string
	ID   string
}

// String returns the compact "type:id" form.
func (l Link) String() string {
	return l.Type + ":" + l.ID
}

// FileExtensions lists the raw-file extensions the server will accept.
var FileExtensions = []string{
	".mp4", ".flv", ".webm", ".ogg", ".ogv", ".mp3", ".mov", ".m4a",
}

// pattern rules are tried in order; the first match wins. A rule either
// captures the id in its first group or, with wholeURL set, uses the
// entire input as the id.
type urlRule struct {
	re       *regexp.Regexp
	linkType string
	wholeURL bool
	// transform rewrites the captured id (e.g. twitch video ids get a
	// "v" prefix).
	transform func(string) string
}

var urlRules = []urlRule{
	{re: regexp.MustCompile(`youtube\.com/watch\?(?:[^#]*&)?v=([^&#]+)`), linkType: "yt"},
	{re: regexp.MustCompile(`youtu\.be/([^?&#/]+)`), linkType: "yt"},
	{re: regexp.MustCompile(`youtube\.com/playlist\?(?:[^#]*&)?list=([^&#]+)`), linkType: "yp"},
	{re: regexp.MustCompile(`clips\.twitch\.tv/([A-Za-z0-9_-]+)`), linkType: "tc"},
	{re: regexp.MustCompile(`twitch\.tv/videos/([0-9]+)`), linkType: "tv", transform: func(id string) string { return "v" + id }},
	{re: regexp.MustCompile(`twitch\.tv/([A-Za-z0-9_-]+)`), linkType: "tw"},
	{re: regexp.MustCompile(`vimeo\.com/([0-9]+)`), linkType: "vi"},
	{re: regexp.MustCompile(`dailymotion\.com/video/([A-Za-z0-9]+)`), linkType: "dm"},
	{re: regexp.MustCompile(`^https?://(?:www\.)?soundcloud\.com/.+$`), linkType: "sc", wholeURL: true},
	{re: regexp.MustCompile(`(?:drive|docs)\.google\.com/file/d/([^/?&#]+)`), linkType: "gd"},
	{re: regexp.MustCompile(`drive\.google\.com/open\?(?:[^#]*&)?id=([^&#]+)`), linkType: "gd"},
	{re: regexp.MustCompile(`imgur\.com/a/([A-Za-z0-9]+)`), linkType: "im"},
	{re: regexp.MustCompile(`streamable\.com/([A-Za-z0-9]+)`), linkType: "sb"},
	{re: regexp.MustCompile(`vid\.me/embedded/([A-Za-z0-9_-]+)`), linkType: "vm"},
	{re: regexp.MustCompile(`vid\.me/([A-Za-z0-9_-]+)`), linkType: "vm"},
	{re: regexp.MustCompile(`livestream\.com/([A-Za-z0-9_-]+)`), linkType: "li"},
	{re: regexp.MustCompile(`ustream\.tv/([A-Za-z0-9_-]+)`), linkType: "us"},
	{re: regexp.MustCompile(`(?:hitbox|smashcast)\.tv/([A-Za-z0-9_-]+)`), linkType: "hb"},
}

// linkToURL renders a link back into a canonical URL for providers whose
// ids are not themselves URLs.
var linkToURL = map[string]string{
	"yt": "https://youtube.com/watch?v=%s",
	"yp": "https://youtube.com/playlist?list=%s",
	"tw": "https://twitch.tv/%s",
	"tc": "https://clips.twitch.tv/%s",
	"tv": "https://twitch.tv/videos/%s",
	"vi": "https://vimeo.com/%s",
	"dm": "https://dailymotion.com/video/%s",
	"sc": "https://soundcloud.com/%s",
	"gd": "https://drive.google.com/file/d/%s",
	"im": "https://imgur.com/a/%s",
	"sb": "https://streamable.com/%s",
	"vm": "https://vid.me/%s",
	"li": "https://livestream.com/%s",
	"us": "https://ustream.tv/%s",
	"hb": "https://hitbox.tv/%s",
}

// wholeURLTypes carry their full URL as the id.
var wholeURLTypes = map[string]bool{
	"fi": true, "hl": true, "rt": true, "cm": true,
}

var (
	prefixRe = regexp.MustCompile(`^([a-z]{2}):(.+)$`)
	rtmpRe   = regexp.MustCompile(`^rtmp://`)
	m3u8Re   = regexp.MustCompile(`^https://.+\.m3u8(?:[?#].*)?$`)
	jsonRe   = regexp.MustCompile(`^https://.+\.json(?:[?#].*)?$`)
	httpRe   = regexp.MustCompile(`^(https?)://`)
)

// URL renders the link as a URL. Ids that already are URLs pass through.
// An unknown provider code logs a warning and falls back to the "type:id"
// textual form.
func (l Link) URL() string {
	if wholeURLTypes[l.Type] {
		return l.ID
	}
	if l.Type == "tv" {
		return fmt.Sprintf(linkToURL["tv"], strings.TrimPrefix(l.ID, "v"))
	}
	format, ok := linkToURL[l.Type]
	if !ok {
		log.Warn().Str("type", l.Type).Str("id", l.ID).Msg("no URL mapping for media type")
		return l.String()
	}
	if strings.HasPrefix(l.ID, "https://") || strings.HasPrefix(l.ID, "http://") {
		return l.ID
	}
	return fmt.Sprintf(format, l.ID)
}

// FromURL parses a media URL or an explicit "xx:id" form into a Link.
// Raw file URLs must use https and one of FileExtensions.
func FromURL(raw string) (Link, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return Link{}, fmt.Errorf("empty media URL")
	}

	if m := prefixRe.FindStringSubmatch(u); m != nil {
		return Link{Type: m[1], ID: m[2]}, nil
	}

	for _, rule := range urlRules {
		m := rule.re.FindStringSubmatch(u)
		if m == nil {
			continue
		}
		if rule.wholeURL {
			return Link{Type: rule.linkType, ID: u}, nil
		}
		id := m[1]
		if rule.transform != nil {
			id = rule.transform(id)
		}
		return Link{Type: rule.linkType, ID: id}, nil
	}

	if rtmpRe.MatchString(u) {
		return Link{Type: "rt", ID: u}, nil
	}
	if m3u8Re.MatchString(u) {
		return Link{Type: "hl", ID: u}, nil
	}
	if jsonRe.MatchString(u) {
		return Link{Type: "cm", ID: u}, nil
	}

	scheme := httpRe.FindStringSubmatch(u)
	if scheme == nil || scheme[1] != "https" {
		return Link{}, fmt.Errorf("%q: raw file URL must begin with \"https\"", raw)
	}
	trimmed := u
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	for _, ext := range FileExtensions {
		if strings.HasSuffix(strings.ToLower(trimmed), ext) {
			return Link{Type: "fi", ID: u}, nil
		}
	}
	return Link{}, fmt.Errorf("%q: does not match the supported file extensions", raw)
}
