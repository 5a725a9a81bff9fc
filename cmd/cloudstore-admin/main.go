// Command cloudstore-admin performs operator tasks against the database and
// object store that the server uses.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/cloudstore/internal/auth"
	"github.com/fruitsalade/cloudstore/internal/config"
	"github.com/fruitsalade/cloudstore/internal/database"
	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/resource"
	"github.com/fruitsalade/cloudstore/internal/storage/factory"
	"github.com/fruitsalade/cloudstore/internal/vfs"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cloudstore-admin",
	Short:         "Cloudstore administration",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.InitDefault()
		return nil
	},
}

// loadConfig reads the same environment the server does.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func newResources(ctx context.Context, cfg *config.Config) (*resource.Service, error) {
	backend, err := factory.NewBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return resource.NewService(vfs.New(backend), vfs.NewResolver(cfg.RootDirTemplate), nil), nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.MigrateUp(db); err != nil {
			return err
		}
		version, dirty, err := database.Version(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username> <email> <password>",
	Short: "Create a user and its root directory",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, email, password := args[0], args[1], args[2]
		if err := auth.ValidateCredentials(username, password); err != nil {
			return err
		}
		if err := auth.ValidateEmail(email); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		resources, err := newResources(ctx, cfg)
		if err != nil {
			return err
		}

		accounts := auth.New(db, cfg.JWTSecret, cfg.TokenTTL)
		u, err := accounts.SignUp(ctx, username, email, password)
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		if err := resources.CreateRootDirectory(ctx, u.ID); err != nil {
			if delErr := accounts.DeleteUser(ctx, u.ID); delErr != nil {
				return fmt.Errorf("creating root directory: %w (rollback failed: %v)", err, delErr)
			}
			return fmt.Errorf("creating root directory: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", u.Username, u.ID)
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree <user-id> [path]",
	Short: "List every resource under a user's directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}
		path := "/"
		if len(args) == 2 {
			path = args[1]
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		resources, err := newResources(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		return runTree(cmd.Context(), cmd.OutOrStdout(), resources, userID, path)
	},
}

// runTree prints the subtree at path of userID's namespace, one entry per
// line, indented by depth below the user's root.
func runTree(ctx context.Context, out io.Writer, resources *resource.Service, userID int64, path string) error {
	list, err := resources.WithIdentity(resource.FixedUser(userID)).Tree(ctx, path)
	if err != nil {
		return err
	}
	printTree(out, list)
	return nil
}

func printTree(out io.Writer, list []resource.Resource) {
	for _, r := range list {
		full := r.Path + r.Name
		depth := strings.Count(strings.Trim(full, "/"), "/")
		indent := strings.Repeat("  ", depth)
		if r.IsDir() {
			fmt.Fprintf(out, "%s%s/\n", indent, r.Name)
			continue
		}
		fmt.Fprintf(out, "%s%s (%d bytes)\n", indent, r.Name, *r.Size)
	}
}

func init() {
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(migrateCmd, userCmd, treeCmd)
}
