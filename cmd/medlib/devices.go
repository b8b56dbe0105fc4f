package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List known storage devices and their mount state",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		devices, err := lib.Catalog().ListDevices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			state := "absent"
			if d.IsPresent {
				state = "present"
			}
			kind := "fixed"
			if d.IsRemovable {
				kind = "removable"
			}
			fmt.Printf("%-36s %-9s %-7s %s\n", d.UUID, kind, state, d.LastMountpoint)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
