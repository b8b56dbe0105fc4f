package musicbrainz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
)

// Enricher fills in musicbrainz_id and short_bio for artists that have
// none. Failed lookups are cached so the same miss is not retried every
// run.
type Enricher struct {
	cat    *catalog.Catalog
	client *Client
}

// NewEnricher creates an enricher over the catalogue
func NewEnricher(cat *catalog.Catalog, client *Client) *Enricher {
	if client == nil {
		client = NewClient()
	}
	return &Enricher{cat: cat, client: client}
}

// EnsureSchema creates the lookup cache table
func (e *Enricher) EnsureSchema() error {
	_, err := e.cat.Store().Exec(`
		CREATE TABLE IF NOT EXISTS musicbrainz_lookups (
			search_name TEXT PRIMARY KEY,
			mbid TEXT NOT NULL DEFAULT '',
			looked_up_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create lookup cache: %w", err)
	}
	return nil
}

// EnrichArtist resolves one artist. A cached miss short-circuits; a
// fresh hit is written onto the artist row.
func (e *Enricher) EnrichArtist(ctx context.Context, artist *catalog.Artist) error {
	if artist.MusicBrainzID != "" || artist.Name == "" {
		return nil
	}
	if artist.ID == catalog.UnknownArtistID || artist.ID == catalog.VariousArtistsID {
		return nil
	}

	searchKey := strings.ToLower(strings.TrimSpace(artist.Name))

	var cachedMbid string
	err := e.cat.Store().QueryRow(`
		SELECT mbid FROM musicbrainz_lookups WHERE search_name = ?
	`, searchKey).Scan(&cachedMbid)
	if err == nil {
		if cachedMbid == "" {
			return nil // known miss
		}
		return e.apply(artist, cachedMbid, "")
	}
	if err != sql.ErrNoRows {
		return err
	}

	match, err := util.RetryWithBackoff(nil, func() (*Artist, error) {
		return e.client.SearchArtist(ctx, artist.Name)
	}, "musicbrainz search "+artist.Name)
	if err != nil {
		return err
	}

	mbid, bio := "", ""
	if match != nil {
		mbid = match.ID
		bio = formatBio(match)
	}
	if _, err := e.cat.Store().Exec(`
		INSERT OR REPLACE INTO musicbrainz_lookups (search_name, mbid) VALUES (?, ?)
	`, searchKey, mbid); err != nil {
		return err
	}
	if mbid == "" {
		return nil
	}
	return e.apply(artist, mbid, bio)
}

func (e *Enricher) apply(artist *catalog.Artist, mbid, bio string) error {
	err := e.cat.Transaction(func(tx *sql.Tx) error {
		return e.cat.SetArtistMusicBrainz(tx, artist.ID, mbid, bio)
	})
	if err != nil {
		return err
	}
	util.DebugLog("musicbrainz: enriched %q with %s", artist.Name, mbid)
	return nil
}

func formatBio(a *Artist) string {
	parts := []string{}
	if a.Type != "" {
		parts = append(parts, a.Type)
	}
	if a.Country != "" {
		parts = append(parts, a.Country)
	}
	if a.Disambiguation != "" {
		parts = append(parts, a.Disambiguation)
	}
	return strings.Join(parts, ", ")
}
