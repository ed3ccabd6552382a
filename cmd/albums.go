package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jfmyers9/crate/internal/catalog"
	"github.com/jfmyers9/crate/internal/config"
	"github.com/jfmyers9/crate/internal/store"
	"github.com/spf13/cobra"
)

var (
	albumOwner   string
	albumBarcode string
)

var albumsCmd = &cobra.Command{
	Use:   "albums",
	Short: "Manage the tag to album mapping",
}

var albumsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mapped tags",
	Args:  cobra.NoArgs,
	RunE:  runAlbumsList,
}

var albumsAddCmd = &cobra.Command{
	Use:   "add <tag> [artist] [album]",
	Short: "Map a tag to an album",
	Long: `Map a tag to an album. Mapping a tag again replaces its album.

The artist and album can be given directly or found from the sleeve's
barcode with --barcode, which searches the Discogs database.`,
	Example: `  crate albums add 04A1B2C3 "Pink Floyd" "The Dark Side of the Moon"
  crate albums add 04A1B2C3 --barcode 5099902894225`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runAlbumsAdd,
}

var albumsRmCmd = &cobra.Command{
	Use:     "rm <tag>",
	Aliases: []string{"remove"},
	Short:   "Remove a tag mapping",
	Args:    cobra.ExactArgs(1),
	RunE:    runAlbumsRm,
}

var albumsLookupCmd = &cobra.Command{
	Use:   "lookup <barcode>",
	Short: "Look up a release by barcode without mapping it",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlbumsLookup,
}

func init() {
	rootCmd.AddCommand(albumsCmd)
	albumsCmd.AddCommand(albumsListCmd, albumsAddCmd, albumsRmCmd, albumsLookupCmd)

	albumsAddCmd.Flags().StringVar(&albumOwner, "owner", "", "Who the record belongs to")
	albumsAddCmd.Flags().StringVar(&albumBarcode, "barcode", "", "Find artist and album by barcode")
}

func newCatalog(cfg *config.Config) *catalog.Client {
	return catalog.New(catalog.Config{
		Token:   cfg.Catalog.Token,
		BaseURL: cfg.Catalog.BaseURL,
		Logger:  logger,
	})
}

func runAlbumsList(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	albums, err := store.NewAlbums(st, cfg.AppID).List(cmd.Context())
	if err != nil {
		return err
	}
	if len(albums) == 0 {
		fmt.Println("No tags mapped. Add one with 'crate albums add'.")
		return nil
	}

	tbl := newTable(os.Stdout, 16, 28, 36, 0)
	tbl.row("TAG", "ARTIST", "ALBUM", "OWNER")
	for _, a := range albums {
		tbl.row(a.TagID, a.Artist, a.Album, a.Owner)
	}
	return nil
}

func runAlbumsAdd(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	album := store.Album{TagID: args[0], Owner: albumOwner}
	switch {
	case albumBarcode != "":
		if len(args) > 1 {
			return fmt.Errorf("give either --barcode or artist and album, not both")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), catalog.DefaultTimeout)
		defer cancel()
		release, err := newCatalog(cfg).LookupBarcode(ctx, albumBarcode)
		if err != nil {
			return fmt.Errorf("barcode lookup failed: %w", err)
		}
		album.Artist, album.Album = release.Artist, release.Album
	case len(args) == 3:
		album.Artist, album.Album = args[1], args[2]
	default:
		return fmt.Errorf("artist and album are required without --barcode")
	}

	albums := store.NewAlbums(st, cfg.AppID)
	if err := albums.Upsert(cmd.Context(), album); err != nil {
		return err
	}

	fmt.Printf("✓ %s → %s - %s\n", store.NormalizeTag(album.TagID), album.Artist, album.Album)
	return nil
}

func runAlbumsRm(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	err = store.NewAlbums(st, cfg.AppID).Delete(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("tag %s is not mapped", store.NormalizeTag(args[0]))
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Removed %s\n", store.NormalizeTag(args[0]))
	return nil
}

func runAlbumsLookup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	release, err := newCatalog(cfg).LookupBarcode(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s - %s", release.Artist, release.Album)
	if release.Year != "" {
		fmt.Printf(" (%s)", release.Year)
	}
	fmt.Println()
	return nil
}
