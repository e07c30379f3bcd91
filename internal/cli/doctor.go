package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"menubot/internal/config"
	"menubot/internal/menu"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

type checkResult struct {
	name     string
	passed   bool
	required bool
	message  string
}

func newDoctorCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics to check system health",
		Long:  `Verify that the configuration, storage and menu catalog are usable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "🤖 menubot diagnostics")
			fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			fmt.Fprintln(out)

			failed := false
			for _, result := range runChecks(cfg) {
				printResult(out, result)
				if result.required && !result.passed {
					failed = true
				}
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

			if failed {
				fmt.Fprintf(out, "%s✗ Some required checks failed%s\n", colorRed, colorReset)
				return fmt.Errorf("diagnostics failed")
			}
			fmt.Fprintf(out, "%s✓ All required checks passed%s\n", colorGreen, colorReset)
			return nil
		},
	}
}

func runChecks(cfg *config.Config) []checkResult {
	return []checkResult{
		checkConfigFile(cfg),
		checkConfigValid(cfg),
		checkTelegramToken(cfg),
		checkOwner(cfg),
		checkWritableDir("Storage path", filepath.Dir(cfg.StoragePath), true),
		checkCatalog(cfg),
		checkBackupDir(cfg),
	}
}

func printResult(out io.Writer, result checkResult) {
	symbol, color := "✓", colorGreen
	if !result.passed {
		symbol, color = "✗", colorYellow
		if result.required {
			color = colorRed
		}
	}

	typeLabel := ""
	if !result.required {
		typeLabel = fmt.Sprintf(" %s[optional]%s", colorCyan, colorReset)
	}

	fmt.Fprintf(out, "%s%s%s %s%s", color, symbol, colorReset, result.name, typeLabel)
	if result.message != "" {
		fmt.Fprintf(out, "\n  %s%s%s", color, result.message, colorReset)
	}
	fmt.Fprintln(out)
}

func checkConfigFile(cfg *config.Config) checkResult {
	result := checkResult{name: "Config file", required: false}

	if cfg.ConfigPath == "" {
		result.message = "No config file, using defaults. Run 'menubot config init' to create one."
		return result
	}

	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		result.message = fmt.Sprintf("Failed to read config file: %v", err)
		return result
	}

	var yamlData map[string]interface{}
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		result.message = fmt.Sprintf("Invalid YAML syntax: %v", err)
		return result
	}

	result.passed = true
	result.message = fmt.Sprintf("Found: %s", cfg.ConfigPath)
	return result
}

func checkConfigValid(cfg *config.Config) checkResult {
	result := checkResult{name: "Config values", required: true}
	if err := cfg.Validate(); err != nil {
		result.message = err.Error()
		return result
	}
	result.passed = true
	return result
}

func checkTelegramToken(cfg *config.Config) checkResult {
	result := checkResult{name: "Telegram bot token", required: false}

	if cfg.Telegram.Token == "" {
		result.message = "Not set; only 'menubot console' will work. Run: menubot config set telegram.token <token>"
		return result
	}
	// Tokens look like 123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11
	if len(cfg.Telegram.Token) < 30 {
		result.message = "Token appears invalid (too short)"
		return result
	}

	result.passed = true
	result.message = "Set"
	return result
}

func checkOwner(cfg *config.Config) checkResult {
	result := checkResult{name: "Owner", required: false}
	if cfg.Roles.Owner == "" {
		result.message = "Not set; owner-only options and alerts are unavailable. Run: menubot config set roles.owner <id>"
		return result
	}
	result.passed = true
	result.message = fmt.Sprintf("%s (+%d admins)", cfg.Roles.Owner, len(cfg.Roles.Admins))
	return result
}

func checkCatalog(cfg *config.Config) checkResult {
	result := checkResult{name: "Menu catalog", required: true}

	if cfg.Menu.Catalog == "" {
		result.passed = true
		result.message = "Built-in"
		return result
	}

	data, err := os.ReadFile(cfg.Menu.Catalog)
	if err != nil {
		result.message = fmt.Sprintf("Failed to read %s: %v", cfg.Menu.Catalog, err)
		return result
	}
	catalog, err := menu.Parse(data)
	if err != nil {
		result.message = err.Error()
		return result
	}

	result.passed = true
	result.message = fmt.Sprintf("%s (%d nodes)", cfg.Menu.Catalog, len(catalog.Keys()))
	return result
}

func checkBackupDir(cfg *config.Config) checkResult {
	if cfg.Backup.Schedule == "" {
		return checkResult{name: "Backup directory", passed: true, message: "Backups disabled"}
	}
	return checkWritableDir("Backup directory", cfg.Backup.Dir, false)
}

func checkWritableDir(name, dir string, required bool) checkResult {
	result := checkResult{name: name, required: required}

	if dir == "" || dir == "." {
		result.message = "Not configured"
		return result
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			result.message = fmt.Sprintf("Directory doesn't exist and cannot be created: %s", dir)
			return result
		}
		result.passed = true
		result.message = fmt.Sprintf("Created directory: %s", dir)
		return result
	}

	testFile := filepath.Join(dir, ".menubot-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		result.message = fmt.Sprintf("Directory not writable: %s", dir)
		return result
	}
	os.Remove(testFile)

	result.passed = true
	result.message = fmt.Sprintf("Exists and writable: %s", dir)
	return result
}
