// README: Admin CLI for migrations, pricing configuration, quotes and user rosters.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"transferhub/internal/infra"
	"transferhub/internal/logging"
	"transferhub/internal/modules/pricing"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:           "transferhub-admin",
		Short:         "Administer a transferhub deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("TH_DB_DSN"), "Postgres DSN (defaults to TH_DB_DSN)")

	connect := func(ctx context.Context) (*pgxpool.Pool, error) {
		if dsn == "" {
			return nil, errors.New("--dsn or TH_DB_DSN is required")
		}
		return infra.NewDB(ctx, dsn)
	}

	cmd.AddCommand(migrateCmd(connect), pricingCmd(connect), quoteCmd(), usersCmd(connect))
	return cmd
}

type connectFunc func(ctx context.Context) (*pgxpool.Pool, error)

func migrateCmd(connect connectFunc) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply a SQL migration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := infra.ApplyMigrationFile(cmd.Context(), db, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements from %s\n", n, file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "migrations/0001_init.sql", "migration file")
	return cmd
}

func pricingCmd(connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "pricing", Short: "Inspect or change the pricing configuration"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the active pricing configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			svc := pricing.NewService(pricing.NewStore(db), quietLogger(cmd))
			if err := svc.Load(cmd.Context()); err != nil {
				return err
			}
			cfg := svc.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "# version %d\n", cfg.Version)
			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	}

	var (
		file string
		by   string
	)
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Validate a YAML pricing file and persist it as the next version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := pricing.LoadConfigFile(file)
			if err != nil {
				return err
			}
			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			svc := pricing.NewService(pricing.NewStore(db), quietLogger(cmd))
			if err := svc.Load(cmd.Context()); err != nil {
				return err
			}
			out, err := svc.Update(cmd.Context(), cfg, types.ID(by))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pricing version %d saved\n", out.Version)
			return nil
		},
	}
	apply.Flags().StringVarP(&file, "file", "f", "", "YAML pricing file")
	apply.Flags().StringVar(&by, "by", "", "admin user id recorded as updated_by")
	_ = apply.MarkFlagRequired("file")

	cmd.AddCommand(show, apply)
	return cmd
}

// quoteCmd prices a trip offline against a pricing file or the defaults.
func quoteCmd() *cobra.Command {
	var (
		km       float64
		category string
		file     string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a trip without touching the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := pricing.NewService(nil, quietLogger(cmd))
			if file != "" {
				cfg, err := pricing.LoadConfigFile(file)
				if err != nil {
					return err
				}
				if err := svc.Seed(cfg); err != nil {
					return err
				}
			}
			q, err := svc.Estimate(cmd.Context(), km, pricing.Category(category))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(q)
		},
	}
	cmd.Flags().Float64Var(&km, "km", 0, "trip distance in kilometres")
	cmd.Flags().StringVar(&category, "category", string(pricing.CategoryEconomy), "vehicle category")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML pricing file (defaults when empty)")
	return cmd
}

func usersCmd(connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Provision user accounts"}
	var (
		file        string
		syncClaims  bool
		projectID   string
		credentials string
	)
	imp := &cobra.Command{
		Use:   "import",
		Short: "Upsert every user in a YAML roster",
		Long: `Upsert every user in a YAML roster into Postgres. With --sync-claims the
role of each user is also written to their Firebase custom claims, which is
what the API reads to authorise requests.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			roster, err := user.LoadRosterFile(file)
			if err != nil {
				return err
			}
			var fa *infra.FirebaseAuth
			if syncClaims {
				if projectID == "" {
					return errors.New("--sync-claims needs --firebase-project or TH_FIREBASE_PROJECT_ID")
				}
				app, err := infra.NewFirebaseApp(cmd.Context(), projectID, credentials)
				if err != nil {
					return err
				}
				if fa, err = infra.NewFirebaseAuth(cmd.Context(), app); err != nil {
					return err
				}
			}
			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			dir := user.NewPostgresDirectory(db)
			for _, u := range roster {
				if err := dir.Upsert(cmd.Context(), u); err != nil {
					return fmt.Errorf("upsert %s: %w", u.ID, err)
				}
				if fa != nil {
					if err := fa.SetRole(cmd.Context(), string(u.ID), string(u.Role)); err != nil {
						return err
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d users\n", len(roster))
			return nil
		},
	}
	imp.Flags().StringVarP(&file, "file", "f", "", "YAML roster")
	imp.Flags().BoolVar(&syncClaims, "sync-claims", false, "also set Firebase role claims")
	imp.Flags().StringVar(&projectID, "firebase-project", os.Getenv("TH_FIREBASE_PROJECT_ID"), "Firebase project id")
	imp.Flags().StringVar(&credentials, "firebase-credentials", os.Getenv("TH_FIREBASE_CREDENTIALS"), "service account JSON path")
	_ = imp.MarkFlagRequired("file")
	cmd.AddCommand(imp)
	return cmd
}

func writeYAML(w io.Writer, cfg pricing.Config) error {
	data, err := pricing.MarshalYAML(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func quietLogger(cmd *cobra.Command) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), "warn")
}
