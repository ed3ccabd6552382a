package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfmyers9/crate/internal/config"
	"github.com/jfmyers9/crate/internal/scrobbler"
	"github.com/jfmyers9/crate/internal/store"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with Last.fm",
	Long: `Authenticate with Last.fm to enable scrobbling.

This command will guide you through the Last.fm authentication process:
1. You'll be prompted to enter your Last.fm API key and secret
2. A browser URL will be provided for you to authorize the application
3. After authorization, the session is stored in crate's database and
   config file, where the daemon reads it for every scan

You can get API credentials from: https://www.last.fm/api/account/create`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reader := bufio.NewReader(os.Stdin)

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	creds := store.NewCredentials(st, cfg.AppID, cfg.UserID)

	// Stored credentials win over the config file
	if stored, err := creds.Get(ctx); err != nil {
		return err
	} else if stored != nil {
		cfg.LastFM.APIKey = stored.APIKey
		cfg.LastFM.APISecret = stored.APISecret
		if stored.Username != "" {
			cfg.LastFM.Username = stored.Username
		}
	}

	fmt.Println("Last.fm Authentication")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("You can get API credentials from: https://www.last.fm/api/account/create")
	fmt.Println()

	if cfg.LastFM.APIKey != "" && cfg.LastFM.APISecret != "" {
		fmt.Printf("Found existing API credentials.\n")
		fmt.Printf("API Key: %s\n", cfg.LastFM.APIKey)
		fmt.Print("\nUse existing credentials? [Y/n]: ")
		response, err := reader.ReadString('\n')
		if err != nil {
			response = "y"
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			cfg.LastFM.APIKey = ""
			cfg.LastFM.APISecret = ""
		}
	}

	if cfg.LastFM.APIKey == "" {
		fmt.Print("Enter your Last.fm API Key: ")
		apiKey, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		cfg.LastFM.APIKey = strings.TrimSpace(apiKey)
	}

	if cfg.LastFM.APISecret == "" {
		fmt.Print("Enter your Last.fm API Secret: ")
		apiSecret, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read API secret: %w", err)
		}
		cfg.LastFM.APISecret = strings.TrimSpace(apiSecret)
	}

	if cfg.LastFM.APIKey == "" || cfg.LastFM.APISecret == "" {
		return fmt.Errorf("API key and secret are required")
	}

	client, err := scrobbler.New(scrobbler.Options{
		APIKey:    cfg.LastFM.APIKey,
		APISecret: cfg.LastFM.APISecret,
		BaseURL:   cfg.LastFM.BaseURL,
		Timeout:   cfg.LastFM.Timeout,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	fmt.Println("\nGenerating authentication token...")
	token, authURL, err := client.AuthenticateWithToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate auth token: %w", err)
	}

	fmt.Println("\nPlease visit this URL to authorize crate:")
	fmt.Printf("\n  %s\n\n", authURL)
	fmt.Println("After authorizing, press Enter to continue...")
	_, _ = reader.ReadString('\n')

	// The token only becomes usable once the user has approved it, so a
	// quick Enter gets a few more chances.
	fmt.Println("Retrieving session key...")
	maxRetries := 3
	retryDelay := 2 * time.Second

	var session *store.Session
	for i := 0; i < maxRetries; i++ {
		sess, err := client.GetSession(ctx, token)
		if err == nil {
			session = &store.Session{Key: sess.Key, Name: sess.Username}
			break
		}

		if i < maxRetries-1 {
			fmt.Printf("Failed to retrieve session (attempt %d/%d). Retrying in %v...\n",
				i+1, maxRetries, retryDelay)
			time.Sleep(retryDelay)
		} else {
			return fmt.Errorf("failed to get session key after %d attempts: %w", maxRetries, err)
		}
	}

	if session.Name != "" {
		cfg.LastFM.Username = session.Name
	}
	if err := creds.Put(ctx, store.Credential{
		APIKey:    cfg.LastFM.APIKey,
		APISecret: cfg.LastFM.APISecret,
		Username:  cfg.LastFM.Username,
	}); err != nil {
		return err
	}
	if err := creds.PutSession(ctx, *session); err != nil {
		return err
	}

	cfg.LastFM.SessionKey = session.Key
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("\n✓ Authenticated as %s\n", session.Name)
	fmt.Printf("✓ Session stored in %s\n", cfg.DBPath())
	fmt.Printf("✓ Config saved to %s\n", filepath.Join(config.GetConfigDir(), "config.yaml"))
	fmt.Println("\nMap a record with 'crate albums add', then start 'crate daemon'.")

	return nil
}
