package catalog

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/franz/medialib/internal/store"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func addTestMedia(t *testing.T, c *Catalog, title string) *Media {
	t.Helper()
	var m *Media
	err := c.Transaction(func(tx *sql.Tx) error {
		var err error
		m, err = c.CreateMedia(tx, title, MediaTypeAudio)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create media %q: %v", title, err)
	}
	return m
}

// checkDensePositions asserts P1: positions form exactly 1..N
func checkDensePositions(t *testing.T, c *Catalog, playlistID int64) {
	t.Helper()
	positions, err := c.PlaylistPositions(playlistID)
	if err != nil {
		t.Fatalf("failed to read positions: %v", err)
	}
	seen := make(map[int]bool)
	for mediaID, pos := range positions {
		if pos < 1 || pos > len(positions) {
			t.Fatalf("media %d has position %d outside 1..%d", mediaID, pos, len(positions))
		}
		if seen[pos] {
			t.Fatalf("duplicate position %d", pos)
		}
		seen[pos] = true
	}
}

func playlistOrder(t *testing.T, c *Catalog, playlistID int64) []int64 {
	t.Helper()
	media, err := c.PlaylistMedia(playlistID)
	if err != nil {
		t.Fatalf("failed to list playlist: %v", err)
	}
	ids := make([]int64, len(media))
	for i, m := range media {
		ids[i] = m.ID
	}
	return ids
}

func TestPlaylistAppendAssignsDensePositions(t *testing.T) {
	c := openTestCatalog(t)
	p, err := c.CreatePlaylist("road trip")
	if err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}

	m1 := addTestMedia(t, c, "one")
	m2 := addTestMedia(t, c, "two")

	// append on an empty playlist yields position 1
	if err := c.PlaylistAppend(p.ID, m1.ID); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	positions, _ := c.PlaylistPositions(p.ID)
	if positions[m1.ID] != 1 {
		t.Errorf("expected first append at position 1, got %d", positions[m1.ID])
	}

	if err := c.PlaylistAppend(p.ID, m2.ID); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	positions, _ = c.PlaylistPositions(p.ID)
	if positions[m2.ID] != 2 {
		t.Errorf("expected second append at position 2, got %d", positions[m2.ID])
	}
	checkDensePositions(t, c, p.ID)
}

func TestPlaylistMoveSwapsTwoItems(t *testing.T) {
	c := openTestCatalog(t)
	p, _ := c.CreatePlaylist("pair")
	m1 := addTestMedia(t, c, "one")
	m2 := addTestMedia(t, c, "two")
	c.PlaylistAppend(p.ID, m1.ID)
	c.PlaylistAppend(p.ID, m2.ID)

	if err := c.PlaylistMove(p.ID, m2.ID, 1); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	got := playlistOrder(t, c, p.ID)
	want := []int64{m2.ID, m1.ID}
	if got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected order %v, got %v", want, got)
	}
	checkDensePositions(t, c, p.ID)
}

func TestPlaylistMoveRejectsPositionZero(t *testing.T) {
	c := openTestCatalog(t)
	p, _ := c.CreatePlaylist("strict")
	m := addTestMedia(t, c, "one")
	c.PlaylistAppend(p.ID, m.ID)

	if err := c.PlaylistMove(p.ID, m.ID, 0); err == nil {
		t.Fatal("expected move to position 0 to fail")
	}
}

func TestPlaylistInsertPastEndEqualsAppend(t *testing.T) {
	c := openTestCatalog(t)
	p, _ := c.CreatePlaylist("bounds")
	m1 := addTestMedia(t, c, "one")
	m2 := addTestMedia(t, c, "two")
	m3 := addTestMedia(t, c, "three")
	c.PlaylistAppend(p.ID, m1.ID)
	c.PlaylistAppend(p.ID, m2.ID)

	// N+1 on a length-2 playlist is a plain append
	if err := c.PlaylistAdd(p.ID, m3.ID, 3); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	positions, _ := c.PlaylistPositions(p.ID)
	if positions[m3.ID] != 3 {
		t.Errorf("expected position 3, got %d", positions[m3.ID])
	}
	checkDensePositions(t, c, p.ID)
}

func TestPlaylistEditScenario(t *testing.T) {
	c := openTestCatalog(t)
	p, _ := c.CreatePlaylist("edit")
	m1 := addTestMedia(t, c, "one")
	m2 := addTestMedia(t, c, "two")
	m3 := addTestMedia(t, c, "three")

	c.PlaylistAppend(p.ID, m1.ID)
	c.PlaylistAppend(p.ID, m2.ID)
	c.PlaylistAppend(p.ID, m3.ID)
	if err := c.PlaylistMove(p.ID, m3.ID, 1); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if err := c.PlaylistMove(p.ID, m1.ID, 3); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	got := playlistOrder(t, c, p.ID)
	want := []int64{m3.ID, m2.ID, m1.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	positions, _ := c.PlaylistPositions(p.ID)
	if positions[m3.ID] != 1 || positions[m2.ID] != 2 || positions[m1.ID] != 3 {
		t.Errorf("expected positions [1 2 3], got %v", positions)
	}
}

func TestPlaylistRemoveClosesGap(t *testing.T) {
	c := openTestCatalog(t)
	p, _ := c.CreatePlaylist("gaps")
	var ids []int64
	for _, title := range []string{"a", "b", "c", "d"} {
		m := addTestMedia(t, c, title)
		ids = append(ids, m.ID)
		c.PlaylistAppend(p.ID, m.ID)
	}

	if err := c.PlaylistRemove(p.ID, ids[1]); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	checkDensePositions(t, c, p.ID)

	got := playlistOrder(t, c, p.ID)
	want := []int64{ids[0], ids[2], ids[3]}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestDeletedMediaLeavesPlaylistDense(t *testing.T) {
	c := openTestCatalog(t)
	p, _ := c.CreatePlaylist("cleanup")
	m1 := addTestMedia(t, c, "one")
	m2 := addTestMedia(t, c, "two")
	m3 := addTestMedia(t, c, "three")
	c.PlaylistAppend(p.ID, m1.ID)
	c.PlaylistAppend(p.ID, m2.ID)
	c.PlaylistAppend(p.ID, m3.ID)

	if err := c.DeleteMedia(m2.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	checkDensePositions(t, c, p.ID)

	got := playlistOrder(t, c, p.ID)
	if len(got) != 2 || got[0] != m1.ID || got[1] != m3.ID {
		t.Errorf("expected [%d %d], got %v", m1.ID, m3.ID, got)
	}
}

func TestPlaylistReplayReproducesOrder(t *testing.T) {
	c := openTestCatalog(t)
	m1 := addTestMedia(t, c, "one")
	m2 := addTestMedia(t, c, "two")
	m3 := addTestMedia(t, c, "three")

	ops := func(playlistID int64) {
		c.PlaylistAppend(playlistID, m1.ID)
		c.PlaylistAppend(playlistID, m2.ID)
		c.PlaylistAdd(playlistID, m3.ID, 2)
		c.PlaylistMove(playlistID, m1.ID, 2)
	}

	p1, _ := c.CreatePlaylist("first")
	ops(p1.ID)
	p2, _ := c.CreatePlaylist("second")
	ops(p2.ID)

	a := playlistOrder(t, c, p1.ID)
	b := playlistOrder(t, c, p2.ID)
	if len(a) != len(b) {
		t.Fatalf("replay produced different lengths: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replay diverged: %v vs %v", a, b)
		}
	}
}
