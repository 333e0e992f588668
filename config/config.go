package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhcgn/mailbox-export/credential"
)

const (
	SourceIMAP = "imap"
	SourceMbox = "mbox"

	envPrefix = "MAILBOX_EXPORT"
)

// Config captures all options required to run an export.
type Config struct {
	Source             string
	MboxPath           string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	StartTLS           bool
	InsecureSkipVerify bool
	OutputDir          string
	Store              string
	Folders            string
	IncludeFolder      []string
	ExcludeFolder      []string
	Extension          string
	Manifest           bool
	AssumeYes          bool
	LogLevel           string
	LogDir             string
}

// lookupPassword is the last password source after the flag and IMAP_PASS.
var lookupPassword = credential.Password

// RegisterFlags attaches the connection flags to cmd as persistent flags so
// subcommands share them, and the export-only flags to cmd itself.
func RegisterFlags(cmd *cobra.Command) {
	persistent := cmd.PersistentFlags()
	persistent.String("config", "", "Optional config file (yaml, toml or json)")
	persistent.String("source", SourceIMAP, "Mail source: imap or mbox")
	persistent.String("mbox", "", "Path to a Thunderbird-style mail directory (source mbox)")
	persistent.String("imap-host", "", "IMAP server hostname")
	persistent.Int("imap-port", 993, "IMAP server port")
	persistent.String("imap-user", "", "IMAP username")
	persistent.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var, then the OS keyring)")
	persistent.Bool("use-tls", true, "Use TLS for the IMAP connection")
	persistent.Bool("starttls", false, "Upgrade a plain IMAP connection with STARTTLS")
	persistent.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	persistent.String("store", "", "Mailbox to export, by number or name (prompted when empty)")
	persistent.String("log-level", "info", "Logging level: debug, info, warn, error")
	persistent.String("log-dir", "", "Directory for log files (stdout only when empty)")
	persistent.StringArray("include-folder", nil, "Regex allow-list applied to folder display names (mutually exclusive with --exclude-folder)")
	persistent.StringArray("exclude-folder", nil, "Regex block-list applied to folder display names (mutually exclusive with --include-folder)")

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Base output directory (prompted when empty)")
	flags.String("folders", "", `Folders to export: "all" or comma-separated numbers (prompted when empty)`)
	flags.String("extension", ".msg", "File extension of exported messages")
	flags.Bool("manifest", true, "Append every exported file to manifest.jsonl in the mailbox directory")
	flags.BoolP("yes", "y", false, "Do not ask for confirmation before exporting")
}

// LoadConfig merges flags, MAILBOX_EXPORT_* environment variables and the
// optional config file into a validated Config.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, fmt.Errorf("binding flags: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Config{
		Source:             strings.ToLower(strings.TrimSpace(v.GetString("source"))),
		MboxPath:           v.GetString("mbox"),
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		StartTLS:           v.GetBool("starttls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		OutputDir:          v.GetString("output"),
		Store:              v.GetString("store"),
		Folders:            v.GetString("folders"),
		IncludeFolder:      patterns(cmd, v, "include-folder"),
		ExcludeFolder:      patterns(cmd, v, "exclude-folder"),
		Extension:          v.GetString("extension"),
		Manifest:           v.GetBool("manifest"),
		AssumeYes:          v.GetBool("yes"),
		LogLevel:           strings.ToLower(v.GetString("log-level")),
		LogDir:             v.GetString("log-dir"),
	}

	if cfg.StartTLS {
		cfg.UseTLS = false
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.MboxPath != "" {
		cfg.MboxPath = filepath.Clean(cfg.MboxPath)
	}
	if cfg.OutputDir != "" {
		cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	}

	if cfg.Source == SourceIMAP && cfg.IMAPPass == "" {
		pass, err := resolvePassword(cfg)
		if err != nil {
			return Config{}, err
		}
		cfg.IMAPPass = pass
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// patterns reads a regex list. Flag values are taken verbatim since viper
// would split them on commas.
func patterns(cmd *cobra.Command, v *viper.Viper, name string) []string {
	if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
		values, err := cmd.Flags().GetStringArray(name)
		if err == nil {
			return values
		}
	}
	return v.GetStringSlice(name)
}

func resolvePassword(cfg Config) (string, error) {
	if pass := os.Getenv("IMAP_PASS"); pass != "" {
		return pass, nil
	}
	if cfg.IMAPUser == "" || cfg.IMAPHost == "" {
		return "", nil
	}
	pass, err := lookupPassword(credential.Account{User: cfg.IMAPUser, Host: cfg.IMAPHost})
	if errors.Is(err, credential.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading password from keyring: %w", err)
	}
	return pass, nil
}

func validateConfig(cfg Config) error {
	switch cfg.Source {
	case SourceIMAP:
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required for source imap")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required for source imap")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass, IMAP_PASS env var or the keyring (password set)")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	case SourceMbox:
		if cfg.MboxPath == "" {
			return fmt.Errorf("--mbox is required for source mbox")
		}
	default:
		return fmt.Errorf("invalid --source: %s", cfg.Source)
	}

	if len(cfg.IncludeFolder) > 0 && len(cfg.ExcludeFolder) > 0 {
		return fmt.Errorf("--include-folder and --exclude-folder are mutually exclusive")
	}
	if strings.ContainsAny(cfg.Extension, `/\`) {
		return fmt.Errorf("invalid --extension: %s", cfg.Extension)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
