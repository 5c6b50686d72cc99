// Package dbtest opens a throwaway migrated database for package tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

func New(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// Podcast inserts a podcast with one social link per platform and returns its id.
func Podcast(t testing.TB, db *database.DB, feedURL string, platforms ...database.Platform) int64 {
	t.Helper()

	repo := database.NewPodcastRepository(db)
	id, err := repo.UpsertByFeedURL(&database.Podcast{Title: feedURL, RSSFeedURL: feedURL}, time.Now())
	if err != nil {
		t.Fatalf("failed to insert podcast: %v", err)
	}
	for _, p := range platforms {
		link := &database.SocialLink{PodcastID: id, Platform: p, ProfileURL: "https://" + string(p) + ".example/" + feedURL}
		if _, err := repo.UpsertSocialLink(link, time.Now()); err != nil {
			t.Fatalf("failed to insert social link: %v", err)
		}
	}
	return id
}
