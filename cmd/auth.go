package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/apiclient"
	"github.com/riverwalks/rw/internal/config"
	"github.com/riverwalks/rw/internal/output"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage server authentication",
	GroupID: "system",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save an API key for the fieldwork server",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, _ := cmd.Flags().GetString("key")
		email, _ := cmd.Flags().GetString("email")

		reader := bufio.NewReader(os.Stdin)
		if apiKey == "" {
			fmt.Print("API key: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read api key: %w", err)
			}
			apiKey = strings.TrimSpace(line)
		}
		if apiKey == "" {
			return fmt.Errorf("api key required")
		}
		if email == "" {
			fmt.Print("Email (optional): ")
			line, _ := reader.ReadString('\n')
			email = strings.TrimSpace(line)
		}

		deviceID, err := config.GetDeviceID()
		if err != nil {
			return fmt.Errorf("device id: %w", err)
		}

		serverURL := config.GetAPIURL()
		creds := &config.AuthCredentials{
			APIKey:    apiKey,
			Email:     email,
			ServerURL: serverURL,
			DeviceID:  deviceID,
		}
		if err := config.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}

		// Confirm the key against the server when reachable; offline saves
		// still succeed so login can happen before heading out.
		client := apiclient.New(serverURL, apiKey, deviceID)
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := client.Health(ctx); err != nil {
			output.Warning("credentials saved but not verified (%v)", err)
			return nil
		}

		output.Success("Logged in to %s", serverURL)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove saved credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ClearAuth(); err != nil {
			output.Error("logout: %v", err)
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := config.LoadAuth()
		if err != nil {
			output.Error("load auth: %v", err)
			return err
		}

		if creds == nil || creds.APIKey == "" {
			fmt.Println("Not logged in.")
			return nil
		}

		keyPrefix := creds.APIKey
		if len(keyPrefix) > 12 {
			keyPrefix = keyPrefix[:12] + "..."
		}

		if creds.Email != "" {
			fmt.Printf("Email:  %s\n", creds.Email)
		}
		fmt.Printf("Server: %s\n", creds.ServerURL)
		fmt.Printf("Key:    %s\n", keyPrefix)
		fmt.Printf("Device: %s\n", creds.DeviceID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)

	authLoginCmd.Flags().String("key", "", "API key (prompted when omitted)")
	authLoginCmd.Flags().String("email", "", "Account email")
}
