package discovery

import (
	"net/url"
	"strings"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

var platformHosts = map[string]database.Platform{
	"youtube.com":        database.PlatformYouTube,
	"m.youtube.com":      database.PlatformYouTube,
	"youtu.be":           database.PlatformYouTube,
	"twitter.com":        database.PlatformTwitter,
	"mobile.twitter.com": database.PlatformTwitter,
	"x.com":              database.PlatformTwitter,
	"instagram.com":      database.PlatformInstagram,
	"facebook.com":       database.PlatformFacebook,
	"m.facebook.com":     database.PlatformFacebook,
	"fb.com":             database.PlatformFacebook,
	"linkedin.com":       database.PlatformLinkedIn,
	"tiktok.com":         database.PlatformTikTok,
	"open.spotify.com":   database.PlatformSpotify,
	"podcasts.apple.com": database.PlatformApplePodcasts,
	"itunes.apple.com":   database.PlatformApplePodcasts,
}

// path prefixes that are share or login widgets, not profiles
var ignoredPrefixes = []string{"intent", "share", "sharer", "sharer.php", "home", "login", "hashtag", "watch", "embed"}

// DetectPlatform recognises a social profile URL and extracts its handle.
func DetectPlatform(raw string) (database.Platform, string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	platform, ok := platformHosts[host]
	if !ok {
		return "", "", false
	}

	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return "", "", false
	}
	for _, p := range ignoredPrefixes {
		if strings.EqualFold(segments[0], p) {
			return "", "", false
		}
	}

	handle := segments[0]
	switch platform {
	case database.PlatformYouTube:
		if len(segments) > 1 && (segments[0] == "channel" || segments[0] == "c" || segments[0] == "user") {
			handle = segments[1]
		}
	case database.PlatformLinkedIn:
		if len(segments) < 2 {
			return "", "", false
		}
		handle = segments[1]
	case database.PlatformSpotify:
		if len(segments) < 2 || segments[0] != "show" {
			return "", "", false
		}
		handle = segments[1]
	case database.PlatformApplePodcasts:
		handle = segments[len(segments)-1]
		if !strings.HasPrefix(handle, "id") {
			return "", "", false
		}
	}

	return platform, strings.TrimPrefix(handle, "@"), true
}
