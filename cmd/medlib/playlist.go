package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Create and edit playlists",
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()
		p, err := lib.Catalog().CreatePlaylist(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created playlist %d: %s\n", p.ID, p.Name)
		return nil
	},
}

var playlistAddCmd = &cobra.Command{
	Use:   "add <playlist-id> <media-id>",
	Short: "Append a media to a playlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		playlistID, mediaID, err := parseIDPair(args)
		if err != nil {
			return err
		}
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()
		return lib.Catalog().PlaylistAppend(playlistID, mediaID)
	},
}

var playlistMoveCmd = &cobra.Command{
	Use:   "move <playlist-id> <media-id> <position>",
	Short: "Move a media to a 1-based position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		playlistID, mediaID, err := parseIDPair(args)
		if err != nil {
			return err
		}
		position, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid position %q", args[2])
		}
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()
		return lib.Catalog().PlaylistMove(playlistID, mediaID, position)
	},
}

var playlistShowCmd = &cobra.Command{
	Use:   "show <playlist-id>",
	Short: "Print a playlist in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		playlistID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid playlist id %q", args[0])
		}
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()
		cat := lib.Catalog()

		p, err := cat.PlaylistByID(playlistID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("no playlist with id %d", playlistID)
		}
		media, err := cat.PlaylistMedia(playlistID)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d items)\n", p.Name, len(media))
		for i, m := range media {
			fmt.Printf("%3d. %s\n", i+1, m.Title)
		}
		return nil
	},
}

func parseIDPair(args []string) (int64, int64, error) {
	playlistID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid playlist id %q", args[0])
	}
	mediaID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid media id %q", args[1])
	}
	return playlistID, mediaID, nil
}

func init() {
	playlistCmd.AddCommand(playlistCreateCmd, playlistAddCmd, playlistMoveCmd, playlistShowCmd)
	rootCmd.AddCommand(playlistCmd)
}
