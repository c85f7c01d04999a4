package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/config"
	"github.com/riverwalks/rw/internal/output"
)

// validConfigKeys lists the supported config keys for set/get.
var validConfigKeys = []string{
	"api.url",
	"app.url",
	"sync.max_attempts",
	"sync.probe_interval",
	"sync.auto.enabled",
	"sync.auto.debounce",
}

func isValidConfigKey(key string) bool {
	for _, k := range validConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}

func parseBool(val string) (bool, error) {
	switch strings.ToLower(val) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q (use true/false/1/0)", val)
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage rw configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]

		if !isValidConfigKey(key) {
			output.Error("unknown config key: %s", key)
			fmt.Println("Valid keys:", strings.Join(validConfigKeys, ", "))
			return fmt.Errorf("unknown config key: %s", key)
		}

		cfg, err := config.Load()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		switch key {
		case "api.url":
			cfg.APIURL = val
		case "app.url":
			cfg.AppURL = val
		case "sync.max_attempts":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				output.Error("invalid attempt count %q", val)
				return fmt.Errorf("invalid attempt count %q", val)
			}
			cfg.Sync.MaxAttempts = intPtr(n)
		case "sync.probe_interval":
			if _, err := time.ParseDuration(val); err != nil {
				output.Error("invalid duration %q: %v", val, err)
				return err
			}
			cfg.Sync.ProbeInterval = val
		case "sync.auto.enabled":
			b, err := parseBool(val)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			cfg.Sync.Auto.Enabled = boolPtr(b)
		case "sync.auto.debounce":
			if _, err := time.ParseDuration(val); err != nil {
				output.Error("invalid duration %q: %v", val, err)
				return err
			}
			cfg.Sync.Auto.Debounce = val
		}

		if err := config.Save(cfg); err != nil {
			output.Error("save config: %v", err)
			return err
		}

		output.Success("set %s = %s", key, val)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		if !isValidConfigKey(key) {
			output.Error("unknown config key: %s", key)
			fmt.Println("Valid keys:", strings.Join(validConfigKeys, ", "))
			return fmt.Errorf("unknown config key: %s", key)
		}

		cfg, err := config.Load()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		var val string
		switch key {
		case "api.url":
			val = cfg.APIURL
			if val == "" {
				val = config.GetAPIURL() + " (default)"
			}
		case "app.url":
			val = cfg.AppURL
			if val == "" {
				val = config.GetAppURL() + " (default)"
			}
		case "sync.max_attempts":
			if cfg.Sync.MaxAttempts != nil {
				val = strconv.Itoa(*cfg.Sync.MaxAttempts)
			} else {
				val = "3 (default)"
			}
		case "sync.probe_interval":
			val = cfg.Sync.ProbeInterval
			if val == "" {
				val = "30s (default)"
			}
		case "sync.auto.enabled":
			if cfg.Sync.Auto.Enabled != nil {
				val = strconv.FormatBool(*cfg.Sync.Auto.Enabled)
			} else {
				val = "true (default)"
			}
		case "sync.auto.debounce":
			val = cfg.Sync.Auto.Debounce
			if val == "" {
				val = "3s (default)"
			}
		}

		fmt.Println(val)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			output.Error("marshal config: %v", err)
			return err
		}

		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
}
