package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// Show is a TV show grouping episodes
type Show struct {
	ID           int64
	Title        string
	ReleaseDate  int64
	ShortSummary string
	ArtworkMrl   string
	TvdbID       string
}

// ShowEpisode links a media to its show
type ShowEpisode struct {
	ID            int64
	MediaID       int64
	ShowID        int64
	EpisodeNumber int
	SeasonNumber  int
	Title         string
	ShortSummary  string
}

const showTable = "shows"

const showCols = `id_show, title, COALESCE(release_date, 0), short_summary,
	artwork, tvdb_id`

func scanShow(row interface{ Scan(...any) error }) (*Show, error) {
	s := &Show{}
	err := row.Scan(&s.ID, &s.Title, &s.ReleaseDate, &s.ShortSummary,
		&s.ArtworkMrl, &s.TvdbID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateShow inserts a show row
func (c *Catalog) CreateShow(q store.DBTX, title string) (*Show, error) {
	res, err := q.Exec(`INSERT INTO shows (title) VALUES (?)`, title)
	if err != nil {
		return nil, fmt.Errorf("failed to insert show: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	s := &Show{ID: id, Title: title}
	c.store.Identity().Put(showTable, id, s)
	return s, nil
}

// ShowByTitle matches case-insensitively on the exact title
func (c *Catalog) ShowByTitle(q store.DBTX, title string) (*Show, error) {
	row := q.QueryRow(`SELECT `+showCols+` FROM shows WHERE title = ? COLLATE NOCASE`, title)
	s, err := scanShow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch show: %w", err)
	}
	c.store.Identity().Put(showTable, s.ID, s)
	return s, nil
}

// ShowByID fetches a show through the identity map
func (c *Catalog) ShowByID(id int64) (*Show, error) {
	if v, ok := c.store.Identity().Get(showTable, id); ok {
		return v.(*Show), nil
	}
	row := c.store.QueryRow(`SELECT `+showCols+` FROM shows WHERE id_show = ?`, id)
	s, err := scanShow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(showTable, id, s)
	return s, nil
}

// ListShows lists shows alphabetically
func (c *Catalog) ListShows(desc bool) ([]*Show, error) {
	rows, err := c.store.Query(`SELECT ` + showCols + ` FROM shows ORDER BY title ` + sortDirection(desc))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Show
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SearchShows matches the query against the show full-text mirror
func (c *Catalog) SearchShows(pattern string) ([]*Show, error) {
	rows, err := c.store.Query(`
		SELECT `+showCols+` FROM shows
		WHERE id_show IN (SELECT rowid FROM show_fts WHERE show_fts MATCH ?)
		ORDER BY title`, ftsQuery(pattern))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Show
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateShowEpisode inserts an episode row for a media
func (c *Catalog) CreateShowEpisode(q store.DBTX, mediaID, showID int64, episode, season int, title string) (*ShowEpisode, error) {
	res, err := q.Exec(`
		INSERT INTO show_episodes (media_id, show_id, episode_number, season_number, title)
		VALUES (?, ?, ?, ?, ?)
	`, mediaID, showID, episode, season, title)
	if err != nil {
		return nil, fmt.Errorf("failed to insert show episode: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ShowEpisode{
		ID:            id,
		MediaID:       mediaID,
		ShowID:        showID,
		EpisodeNumber: episode,
		SeasonNumber:  season,
		Title:         title,
	}, nil
}

// EpisodeByMedia fetches the episode backing one media, if any
func (c *Catalog) EpisodeByMedia(mediaID int64) (*ShowEpisode, error) {
	e := &ShowEpisode{}
	err := c.store.QueryRow(`
		SELECT id_episode, media_id, show_id, episode_number, season_number, title, short_summary
		FROM show_episodes WHERE media_id = ?
	`, mediaID).Scan(&e.ID, &e.MediaID, &e.ShowID, &e.EpisodeNumber,
		&e.SeasonNumber, &e.Title, &e.ShortSummary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// EpisodesByShow lists a show's episodes in season and episode order
func (c *Catalog) EpisodesByShow(showID int64) ([]*ShowEpisode, error) {
	rows, err := c.store.Query(`
		SELECT id_episode, media_id, show_id, episode_number, season_number, title, short_summary
		FROM show_episodes WHERE show_id = ?
		ORDER BY season_number, episode_number
	`, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ShowEpisode
	for rows.Next() {
		e := &ShowEpisode{}
		err := rows.Scan(&e.ID, &e.MediaID, &e.ShowID, &e.EpisodeNumber,
			&e.SeasonNumber, &e.Title, &e.ShortSummary)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
