package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jfmyers9/crate/internal/store"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scans and what became of them",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	entries, err := store.NewHistory(st, cfg.AppID).List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No scans yet.")
		return nil
	}

	tbl := newTable(os.Stdout, 16, 14, 11, 40, 7, 0)
	tbl.row("WHEN", "TAG", "STATE", "ALBUM", "TRACKS", "ERROR")
	for _, e := range entries {
		album := ""
		if e.Artist != "" {
			album = e.Artist + " - " + e.Album
		}
		tracks := ""
		if e.Submitted > 0 {
			tracks = strconv.Itoa(e.Accepted) + "/" + strconv.Itoa(e.Submitted)
		}
		tbl.row(e.ProcessedAt.Local().Format("2006-01-02 15:04"), e.TagID, e.State, album, tracks, e.Error)
	}
	return nil
}
