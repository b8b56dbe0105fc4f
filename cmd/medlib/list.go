package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/medialib/internal/catalog"
)

var listCmd = &cobra.Command{
	Use:       "list {media|albums|artists|genres|shows|playlists}",
	Short:     "List catalogue entities",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"media", "albums", "artists", "genres", "shows", "playlists"},
	RunE:      runList,
}

func init() {
	listCmd.Flags().Bool("desc", false, "reverse the sort order")
	listCmd.Flags().String("search", "", "full-text search instead of listing everything")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}
	defer lib.Close()
	cat := lib.Catalog()

	desc, _ := cmd.Flags().GetBool("desc")
	search, _ := cmd.Flags().GetString("search")

	switch args[0] {
	case "media":
		var media []*catalog.Media
		if search != "" {
			media, err = cat.SearchMedia(search)
		} else {
			audio, aerr := cat.ListMedia(catalog.MediaTypeAudio, catalog.SortAlpha, desc)
			if aerr != nil {
				return aerr
			}
			video, verr := cat.ListMedia(catalog.MediaTypeVideo, catalog.SortAlpha, desc)
			if verr != nil {
				return verr
			}
			media = append(audio, video...)
		}
		if err != nil {
			return err
		}
		for _, m := range media {
			printMedia(m)
		}
	case "albums":
		var albums []*catalog.Album
		if search != "" {
			albums, err = cat.SearchAlbums(search)
		} else {
			albums, err = cat.ListAlbums(catalog.SortAlpha, desc)
		}
		if err != nil {
			return err
		}
		for _, a := range albums {
			artist := ""
			if a.AlbumArtistID != 0 {
				if row, err := cat.ArtistByID(a.AlbumArtistID); err == nil && row != nil {
					artist = row.Name
				}
			}
			fmt.Printf("%-40s %-25s %2d tracks  %s\n",
				a.Title, artist, a.NbTracks, formatDuration(a.Duration))
		}
	case "artists":
		var artists []*catalog.Artist
		if search != "" {
			artists, err = cat.SearchArtists(search)
		} else {
			artists, err = cat.ListArtists(catalog.SortAlpha, desc)
		}
		if err != nil {
			return err
		}
		for _, a := range artists {
			fmt.Printf("%-40s %d albums, %d tracks\n", a.Name, a.NbAlbums, a.NbTracks)
		}
	case "genres":
		genres, err := cat.ListGenres(desc)
		if err != nil {
			return err
		}
		for _, g := range genres {
			fmt.Println(g.Name)
		}
	case "shows":
		shows, err := cat.ListShows(desc)
		if err != nil {
			return err
		}
		for _, s := range shows {
			episodes, _ := cat.EpisodesByShow(s.ID)
			fmt.Printf("%-40s %d episodes\n", s.Title, len(episodes))
		}
	case "playlists":
		playlists, err := cat.ListPlaylists(catalog.SortAlpha, desc)
		if err != nil {
			return err
		}
		for _, p := range playlists {
			media, _ := cat.PlaylistMedia(p.ID)
			created := time.Unix(p.CreationDate, 0)
			fmt.Printf("%-40s %3d items  created %s\n",
				p.Name, len(media), humanize.Time(created))
		}
	default:
		return fmt.Errorf("unknown entity %q", args[0])
	}
	return nil
}

func printMedia(m *catalog.Media) {
	kind := "video"
	if m.Type == catalog.MediaTypeAudio {
		kind = "audio"
	}
	present := ""
	if !m.IsPresent {
		present = " (absent)"
	}
	fmt.Printf("%-50s %-5s %s%s\n", m.Title, kind, formatDuration(m.Duration), present)
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "--:--"
	}
	d := time.Duration(ms) * time.Millisecond
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", mins, secs)
}
