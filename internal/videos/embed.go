package videos

import (
	"net/url"
	"strings"
)

// IsEmbed reports whether rawURL points at a known hosting platform rather
// than a directly playable file.
func IsEmbed(rawURL string) bool {
	return youtubeID(rawURL) != "" || vimeoID(rawURL) != ""
}

// EmbedURL rewrites a hosting URL into its iframe-embeddable form. URLs of
// unknown platforms come back unchanged.
func EmbedURL(rawURL string) string {
	if id := youtubeID(rawURL); id != "" {
		return "https://www.youtube.com/embed/" + id
	}
	if id := vimeoID(rawURL); id != "" {
		return "https://player.vimeo.com/video/" + id
	}
	return rawURL
}

// HostingThumbnailURL derives the hosting platform's poster image URL, or ""
// when the platform exposes none.
func HostingThumbnailURL(rawURL string) string {
	if id := youtubeID(rawURL); id != "" {
		return "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg"
	}
	return ""
}

// youtubeID extracts the video id from watch, short-link and embed URL
// shapes.
func youtubeID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return id
		}
		if rest, ok := strings.CutPrefix(u.Path, "/embed/"); ok {
			return strings.Trim(rest, "/")
		}
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			return strings.Trim(rest, "/")
		}
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	}
	return ""
}

// vimeoID extracts the numeric video id from vimeo page and player URLs.
func vimeoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var candidate string
	switch host {
	case "vimeo.com":
		candidate = strings.Trim(u.Path, "/")
	case "player.vimeo.com":
		candidate = strings.Trim(strings.TrimPrefix(u.Path, "/video/"), "/")
	default:
		return ""
	}
	if candidate == "" {
		return ""
	}
	for _, r := range candidate {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return candidate
}
