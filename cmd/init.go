package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/config"
	"github.com/riverwalks/rw/internal/db"
	"github.com/riverwalks/rw/internal/output"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize a new fieldwork project",
	Long:    `Creates the local .rw directory and SQLite database, and primes the offline app shell when the server is reachable.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()

		if _, err := os.Stat(filepath.Join(baseDir, ".rw")); err == nil {
			output.Warning(".rw/ already exists")
			return nil
		}

		database, err := db.Initialize(baseDir)
		if err != nil {
			output.Error("failed to initialize database: %v", err)
			return err
		}
		defer database.Close()

		fmt.Println("INITIALIZED .rw/")

		if _, err := os.Stat(filepath.Join(baseDir, ".git")); err == nil {
			addToGitignore(filepath.Join(baseDir, ".gitignore"))
		}

		// Make sure this machine has a stable device identity for
		// idempotent replays.
		deviceID, err := config.GetDeviceID()
		if err != nil {
			output.Error("failed to create device id: %v", err)
			return err
		}
		fmt.Printf("Device: %s\n", deviceID)

		if skip, _ := cmd.Flags().GetBool("no-prime"); !skip {
			primeShell(cmd.Context())
		}

		return nil
	},
}

func addToGitignore(path string) {
	content, _ := os.ReadFile(path)
	contentStr := string(content)

	if strings.Contains(contentStr, ".rw/") {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	if len(contentStr) > 0 && !strings.HasSuffix(contentStr, "\n") {
		f.WriteString("\n")
	}

	f.WriteString(".rw/\n")
	fmt.Println("Added .rw/ to .gitignore")
}

// primeShell caches the app-shell document so document requests have an
// offline fallback from day one. Best effort.
func primeShell(ctx context.Context) {
	layer, err := openLayer(ctx)
	if err != nil {
		output.Info("app shell not primed: %v", err)
		return
	}
	defer layer.Close()

	primeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	layer.PrimeShell(primeCtx, config.GetAppURL())
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("no-prime", false, "Skip priming the offline app shell")
}
