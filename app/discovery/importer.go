// Package discovery imports podcasts from RSS feeds and finds their social profiles.
package discovery

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
)

var ErrInvalidFeedURL = errors.New("feed url must be an absolute http(s) url")

// item descriptions scanned for social links
const maxScannedItems = 10

const maxBodySize = 10 << 20

// Tracker queues the first enrichment job for a newly imported podcast.
type Tracker interface {
	QueueInitialTracking(ctx context.Context, s settings.Settings, podcastID int64) (int64, bool, error)
}

type ImportResult struct {
	PodcastID      int64                 `json:"podcast_id"`
	Title          string                `json:"title"`
	SocialLinks    []database.SocialLink `json:"social_links"`
	TrackingQueued bool                  `json:"tracking_queued"`
	TrackingJobID  int64                 `json:"tracking_job_id,omitempty"`
}

type Importer struct {
	podcasts   *database.PodcastRepository
	tracker    Tracker
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
	timeout    time.Duration
	now        func() time.Time
}

// NewImporter builds an importer. A nil tracker disables initial tracking.
func NewImporter(podcasts *database.PodcastRepository, tracker Tracker, httpClient *http.Client, userAgent string, timeout time.Duration) *Importer {
	return &Importer{
		podcasts:   podcasts,
		tracker:    tracker,
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
		timeout:    cmp.Or(timeout, 30*time.Second),
		now:        time.Now,
	}
}

// ImportFeed fetches and parses feedURL, upserts the podcast by feed url and
// records one social link per detected platform. With track set, a budget-gated
// initial tracking job is queued when the podcast has links.
func (i *Importer) ImportFeed(ctx context.Context, s settings.Settings, feedURL string, track bool) (*ImportResult, error) {
	u, err := url.Parse(strings.TrimSpace(feedURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidFeedURL
	}
	feedURL = u.String()

	data, err := i.fetch(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	feed, err := i.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	podcast := podcastFromFeed(feed, feedURL)

	candidates := append([]string{feed.Link}, feed.Links...)

	if home, err := url.Parse(podcast.WebsiteURL); err == nil && home.Host != "" {
		page, err := i.fetch(ctx, home.String())
		if err != nil {
			slog.Warn("Failed to fetch podcast homepage", "url", home.String(), "error", err)
		} else {
			if links, err := ScanLinks(page, home); err == nil {
				candidates = append(candidates, links...)
			}
			if podcast.Description == "" {
				if summary, err := Summarize(page, home); err == nil {
					podcast.Description = summary
				}
			}
		}
	}

	for n, item := range feed.Items {
		if n >= maxScannedItems {
			break
		}
		html := cmp.Or(item.Content, item.Description)
		if html == "" {
			continue
		}
		if links, err := ScanLinks([]byte(html), nil); err == nil {
			candidates = append(candidates, links...)
		}
	}

	now := i.now()
	id, err := i.podcasts.UpsertByFeedURL(podcast, now)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{PodcastID: id, Title: podcast.Title, SocialLinks: []database.SocialLink{}}
	seen := map[database.Platform]bool{}
	for _, c := range candidates {
		platform, handle, ok := DetectPlatform(c)
		if !ok || seen[platform] {
			continue
		}
		seen[platform] = true

		link := database.SocialLink{PodcastID: id, Platform: platform, ProfileURL: c, Handle: handle, DiscoveredAt: database.UTC(now)}
		if link.ID, err = i.podcasts.UpsertSocialLink(&link, now); err != nil {
			return nil, err
		}
		result.SocialLinks = append(result.SocialLinks, link)
	}

	if track && i.tracker != nil && len(result.SocialLinks) > 0 {
		jobID, queued, err := i.tracker.QueueInitialTracking(ctx, s, id)
		if err != nil {
			return nil, fmt.Errorf("failed to queue initial tracking: %w", err)
		}
		result.TrackingQueued, result.TrackingJobID = queued, jobID
	}

	slog.Info("Podcast imported",
		"podcast", id,
		"title", podcast.Title,
		"social_links", len(result.SocialLinks),
		"tracking_queued", result.TrackingQueued)

	return result, nil
}

func podcastFromFeed(feed *gofeed.Feed, feedURL string) *database.Podcast {
	p := &database.Podcast{
		Title:       strings.TrimSpace(feed.Title),
		Description: strings.TrimSpace(feed.Description),
		RSSFeedURL:  feedURL,
		WebsiteURL:  strings.TrimSpace(feed.Link),
	}
	if feed.Image != nil {
		p.ImageURL = feed.Image.URL
	}
	if len(feed.Authors) > 0 && feed.Authors[0] != nil {
		p.Author = feed.Authors[0].Name
	}
	if ext := feed.ITunesExt; ext != nil {
		p.Author = cmp.Or(p.Author, ext.Author)
		p.ImageURL = cmp.Or(p.ImageURL, ext.Image)
		p.Description = cmp.Or(p.Description, strings.TrimSpace(ext.Summary))
	}
	p.Title = cmp.Or(p.Title, feedURL)
	return p
}

func (i *Importer) fetch(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", i.userAgent)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}
