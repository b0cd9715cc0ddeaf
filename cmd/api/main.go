package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patient-access/internal/adapters/auth/jwtverifier"
	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/config"
	"patient-access/internal/platform/logger"
	"patient-access/internal/ports/auth"
	"patient-access/internal/router"

	"github.com/spf13/cobra"
)

// @title						Patient Access API
// @version					1.0
// @description				Autorizaciones temporales de acceso al historial clínico, otorgadas por el paciente vía QR.
// @BasePath					/
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	rootCmd := &cobra.Command{
		Use:           "patient-access",
		Short:         "Patient access authorization API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	app := router.New(deps.options)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      app.Handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.SweepInterval > 0 {
		go accessgrants.RunSweeper(ctx, app.Grants, cfg.SweepInterval, log)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", map[string]any{
			"addr":    cfg.Addr(),
			"storage": cfg.StorageBackend,
			"auth":    cfg.AuthMode,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped", nil)
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			if err := migrate(cmd.Context(), cfg); err != nil {
				return err
			}
			log.Info("migrations applied", map[string]any{"storage": cfg.StorageBackend})
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire ACTIVE grants past their window once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			deps, err := wire(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer deps.close()

			n, err := router.New(deps.options).Grants.ExpireStale(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			log.Info("sweep finished", map[string]any{"expired": n})
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		orgID  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed JWT for local testing (AUTH_MODE=jwt)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			v, err := jwtverifier.New(cfg.JWTSecret, cfg.JWTIssuer)
			if err != nil {
				return err
			}
			tok, err := v.Sign(auth.Claims{
				UserID:         userID,
				Email:          email,
				Role:           auth.ParseRole(role),
				OrganizationID: orgID,
			}, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "subject (user id)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", "patient", "patient | practitioner | pharmacist | admin")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id (practitioners)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})
}
