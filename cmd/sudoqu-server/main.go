package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sudoqu/sudoqu/internal/game"
	"github.com/sudoqu/sudoqu/internal/httpapi"
	"github.com/sudoqu/sudoqu/internal/session"
	"github.com/sudoqu/sudoqu/internal/sudoku"
)

type options struct {
	remote     bool
	teams      []string
	httpAddr   string
	difficulty string
	mode       string
	seed       int64
	dev        bool
}

func main() {
	// Optional .env for local runs; flags still win.
	_ = godotenv.Load()

	opts := options{
		remote:   envBool("SUDOQU_REMOTE", false),
		httpAddr: os.Getenv("SUDOQU_HTTP_ADDR"),
		seed:     envInt64("SUDOQU_SEED", time.Now().UnixNano()),
	}
	if teams := os.Getenv("SUDOQU_TEAMS"); teams != "" {
		opts.teams = strings.Split(teams, ",")
	}

	cmd := &cobra.Command{
		Use:   "sudoqu-server",
		Short: "Multiplayer sudoku session coordinator",
		Long: "Runs the session coordinator for multiplayer sudoku: hands out\n" +
			"identities, distributes puzzles and keeps every player's view of the\n" +
			"game consistent over a line-delimited TCP protocol.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.remote, "remote", opts.remote, "accept remote connections (default loopback only)")
	cmd.Flags().StringSliceVar(&opts.teams, "teams", opts.teams, "team labels offered to players")
	cmd.Flags().StringVar(&opts.httpAddr, "http", opts.httpAddr, "optional HTTP listen address (health, session view, websocket)")
	cmd.Flags().StringVar(&opts.difficulty, "difficulty", "", "start a game immediately at this difficulty")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "mode for the immediate game: versus or coop")
	cmd.Flags().Int64Var(&opts.seed, "seed", opts.seed, "puzzle generator seed")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "human-readable logs")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	log, err := newLogger(opts.dev)
	if err != nil {
		return err
	}
	defer log.Sync()

	coordinator := session.New(log, sudoku.NewGenerator(opts.seed))
	if len(opts.teams) > 0 {
		coordinator.SetTeams(opts.teams)
	}
	if err := coordinator.Start(opts.remote); err != nil {
		log.Error("failed to start session", zap.Error(err))
		return err
	}
	defer coordinator.Stop()

	if opts.difficulty != "" || opts.mode != "" {
		if err := startImmediateGame(ctx, coordinator, opts); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if opts.httpAddr != "" {
		srv := &http.Server{
			Addr:    opts.httpAddr,
			Handler: httpapi.SetupRoutes(coordinator, log),
		}
		g.Go(func() error {
			log.Info("http listening", zap.String("addr", opts.httpAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	log.Info("shutting down")
	return err
}

func startImmediateGame(ctx context.Context, c *session.Coordinator, opts options) error {
	if opts.difficulty == "" || opts.mode == "" {
		return fmt.Errorf("--difficulty and --mode must be given together")
	}
	difficulty, err := sudoku.ParseDifficulty(opts.difficulty)
	if err != nil {
		return err
	}
	mode, err := game.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	return c.StartGame(ctx, difficulty, mode)
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
