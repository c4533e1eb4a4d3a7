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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nikhil/teamhub/internal/auth"
	"github.com/nikhil/teamhub/internal/config"
	"github.com/nikhil/teamhub/internal/database"
	"github.com/nikhil/teamhub/internal/handlers"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/middleware"
	"github.com/nikhil/teamhub/internal/routes"
	"github.com/nikhil/teamhub/internal/service/authz"
	"github.com/nikhil/teamhub/internal/service/cascade"
	"github.com/nikhil/teamhub/internal/service/chat"
	"github.com/nikhil/teamhub/internal/service/invitation"
	"github.com/nikhil/teamhub/internal/service/membership"
	"github.com/nikhil/teamhub/internal/service/users"
)

var (
	envFile string
	cfg     config.Config
	log     *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "teamhub",
	Short:         "Team collaboration and membership API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ReadEnvFiles(envFiles()...); err != nil {
			return err
		}
		cfg = config.FromEnv()
		log = logger.New("teamhub", logger.Options{Env: cfg.AppEnv, Level: cfg.LogLevel})
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the invitation sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(envFiles()...)
		if err != nil {
			return err
		}
		cfg = loaded
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cmd.Context(), cfg.DatabaseConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		log.Info("Schema migrated", "driver", db.Dialect)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-invitations",
	Short: "Mark every lapsed pending invitation as expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cmd.Context(), cfg.DatabaseConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		members := membership.NewStore(db, log.ForService("membership"))
		manager := invitation.NewManager(db, members, authz.NewGate(members, log.ForService("authz")), log.ForService("invitation"))
		n, err := manager.CleanExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d invitations\n", n)
		return nil
	},
}

// envFiles returns the --env-file path, or nothing to fall back to ./.env.
func envFiles() []string {
	if envFile == "" {
		return nil
	}
	return []string{envFile}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default ./.env when present)")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	defer log.Sync()

	db, err := database.Open(ctx, cfg.DatabaseConfig())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}

	members := membership.NewStore(db, log.ForService("membership"))
	gate := authz.NewGate(members, log.ForService("authz"))
	invitations := invitation.NewManager(db, members, gate, log.ForService("invitation"), invitation.WithTTL(cfg.InvitationTTL))
	directory := users.NewDirectory(db, log.ForService("users"))
	httpLog := log.ForService("http")

	router := routes.RegisterAllRoutes(routes.Deps{
		Teams: &handlers.TeamHandler{
			Members: members,
			Gate:    gate,
			Cascade: cascade.NewCoordinator(db, members, log.ForService("cascade")),
			Users:   directory,
			Log:     httpLog,
		},
		Invitations:  &handlers.InvitationHandler{Invitations: invitations, Gate: gate, Users: directory, Log: httpLog},
		Chat:         &handlers.ChatHandler{Chat: chat.NewTracker(db, gate, log.ForService("chat")), Log: httpLog},
		Users:        &handlers.UserHandler{Users: directory, Log: httpLog},
		Verifier:     verifier,
		TokenLimiter: middleware.NewRateLimiter(cfg.TokenRateLimit, cfg.TokenRateBurst, httpLog),
		DB:           db,
		Log:          httpLog,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server is running", "addr", cfg.HTTPAddr, "driver", db.Dialect)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return invitations.RunSweeper(gCtx, cfg.InvitationSweepInterval)
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
