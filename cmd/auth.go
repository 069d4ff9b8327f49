package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/tgplay/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in with your Telegram identity",
	Long: `Sign in so that playlist and chat features work.

The player identifies you with the init data string the Telegram web app
container hands out. Paste it when prompted; it is checked against the
backend and saved to ~/.config/tgplay/config.yaml.

Set TGPLAY_INIT_DATA instead to use an identity without saving it.`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(logFile, logLevel)

	fmt.Println("tgplay Sign-in")
	fmt.Println("==============")
	fmt.Println()

	if cfg.InitData != "" {
		fmt.Println("Found an existing identity.")
		fmt.Print("Replace it? [y/N]: ")
		response, err := reader.ReadString('\n')
		if err != nil {
			response = "n"
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			return verifyIdentity(cfg, logger)
		}
	}

	fmt.Print("Paste your init data: ")
	initData, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read init data: %w", err)
	}
	cfg.InitData = strings.TrimSpace(initData)
	if cfg.InitData == "" {
		return fmt.Errorf("init data is required")
	}

	if err := verifyIdentity(cfg, logger); err != nil {
		return err
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("✓ Identity saved to %s/config.yaml\n", config.GetConfigDir())
	fmt.Println("\nYou can now use 'tgplay play' with your playlist.")
	return nil
}

// verifyIdentity logs in with cfg's identity and reports who it belongs to.
func verifyIdentity(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	fmt.Println("\nChecking identity with the backend...")
	user, err := client.Auth().Login(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	if user == nil {
		return fmt.Errorf("the backend rejected this identity")
	}

	name := user.FirstName
	if user.Username != "" {
		name = fmt.Sprintf("%s (@%s)", name, user.Username)
	}
	fmt.Printf("✓ Signed in as %s\n", name)
	return nil
}
