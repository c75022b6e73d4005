package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"save-go/internal/app"
	"save-go/internal/config"
	"save-go/internal/encryption"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a SaveApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AddSpace", "Upload").
func newApp(cmd *cobra.Command, operation string) (*app.SaveApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewSaveApp(cmd.Context(), cfg, app.Options{
		Operation:  operation,
		ConfigPath: defaults["config_path"],
		Passphrase: passphrase,
		Verbose:    verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// withApp runs fn against a fresh SaveApp and records a failure in the log.
func withApp(cmd *cobra.Command, operation string, fn func(a *app.SaveApp) error) error {
	a, err := newApp(cmd, operation)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(a); err != nil {
		a.Fail(err)
		return err
	}
	return nil
}

// passphrase reads the secret passphrase from the environment, else from
// the terminal.
func passphrase() (string, error) {
	if p := os.Getenv(app.PassphraseEnv); p != "" {
		return p, nil
	}
	return readSecret("Passphrase: ")
}

func readSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal, set %s instead", app.PassphraseEnv)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "save",
	Short:        "Archive media to remote storage spaces",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		alias, _ := cmd.Flags().GetString("alias")
		role, _ := cmd.Flags().GetString("role")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.Profile = config.ProfileConfig{Alias: alias, Role: role}

		pass := os.Getenv(app.PassphraseEnv)
		if pass == "" {
			if pass, err = readSecret("New passphrase: "); err != nil {
				return err
			}
			again, err := readSecret("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if again != pass {
				return errors.New("passphrases do not match")
			}
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if err := sealer.Setup(pass); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Content Dir:    %s\n", cfg.ContentDir)
		fmt.Printf("Database:       %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Selected Space: %s\n", cfg.SelectedSpace)
		fmt.Printf("Profile:        %s (%s)\n", cfg.Profile.Alias, cfg.Profile.Role)
		fmt.Printf("Parallelism:    %d\n", cfg.Upload.Parallelism)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a consistent copy of the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Backup", func(a *app.SaveApp) error {
			if err := a.Backup(args[0]); err != nil {
				return err
			}
			fmt.Printf("Database copied to %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log progress to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("alias", "", "Your name, used as author when a space has none")
	configInitCmd.Flags().String("role", "", "Your role, used as author when a space has none")

	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(spaceCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(assetCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(unpublishCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(watchCmd)
}
