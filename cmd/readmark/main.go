package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"readmark/internal/config"
	"readmark/internal/extract"
	"readmark/internal/library"
	"readmark/internal/model"
	web "readmark/internal/server"
	"readmark/internal/store"
	"readmark/internal/worker"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	logger  *zap.Logger
	cfg     *config.Config
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:           "readmark",
	Short:         "readmark - A self-hosted read-it-later tool with highlights",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log)
		return err
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the worker and web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		// Setup Manual 'q' input handling
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if scanner.Text() == "q" {
					fmt.Println(" 'q' pressed. Stopping...")
					cancel()
					return
				}
			}
		}()

		issuer, err := newIssuer()
		if err != nil {
			return err
		}

		b, err := openBackend(cfg.Store, true)
		if err != nil {
			return err
		}
		defer b.Close()

		svc := library.NewService(b.store, newExtractor(), logger)

		var queue web.Enqueuer
		if b.queue != nil {
			queue = b.queue
		}
		srv, err := web.NewServer(svc, queue, issuer, logger, web.Options{
			Addr:           cfg.Server.Addr,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			CookieName:     cfg.Auth.Cookie,
			SavesPerMinute: cfg.RateLimit.SavesPerMinute,
			SaveBurst:      cfg.RateLimit.Burst,
		})
		if err != nil {
			return fmt.Errorf("init web server: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down...")
			shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer done()
			return srv.Stop(shutdownCtx)
		})

		if cfg.Worker.Enabled && b.queue != nil {
			w := worker.NewWorker(b.queue, svc, logger, cfg.Worker.PopTimeout)
			g.Go(func() error {
				w.Start(gctx)
				return nil
			})
		}

		if b.hybrid != nil {
			g.Go(func() error {
				return b.hybrid.RunGC(gctx, cfg.Store.GCInterval, cfg.Store.GCDiscardRatio, logger)
			})
		}

		logger.Info("Server running.", zap.String("store", cfg.Store.Driver))
		fmt.Println("Press 'q' + Enter or Ctrl+C to stop.")

		// Block until shutdown
		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("Goodbye!")
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Queue a URL for the worker to save",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		if strings.TrimSpace(user) == "" {
			return errors.New("--user is required")
		}
		if _, err := extract.ParseURL(args[0]); err != nil {
			return fmt.Errorf("%s: %w", extract.Message(err), err)
		}

		// Redis only, so the running server keeps its Badger lock.
		rdb, err := connectRedis(cfg.Store.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()

		job := store.NewJob(user, args[0], tags)
		if err := store.NewRedisQueue(rdb).Push(cmd.Context(), job); err != nil {
			return fmt.Errorf("queue article: %w", err)
		}

		logger.Info("Article queued",
			zap.String("job_id", job.ID.String()),
			zap.String("url", job.URL))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [article-id]",
	Short: "Print an article with its highlights as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid article id: %w", err)
		}

		svc, closeFn, err := offlineService()
		if err != nil {
			return err
		}
		defer closeFn()

		md, err := svc.ExportMarkdown(cmd.Context(), user, id)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	},
}

var highlightCmd = &cobra.Command{
	Use:   "highlight [article-id] [quote]",
	Short: "Highlight a quoted passage of a saved article",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		occurrence, _ := cmd.Flags().GetInt("occurrence")
		color, _ := cmd.Flags().GetString("color")
		note, _ := cmd.Flags().GetString("note")

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid article id: %w", err)
		}

		svc, closeFn, err := offlineService()
		if err != nil {
			return err
		}
		defer closeFn()

		h, err := svc.HighlightQuote(cmd.Context(), user, id, args[1], occurrence, model.Color(color), note)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s [%d, %d) %q\n", h.ID, h.StartOffset, h.EndOffset, h.Text)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token [user]",
	Short: "Issue an access token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issuer, err := newIssuer()
		if err != nil {
			return err
		}
		token, err := issuer.Issue(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().String("redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().String("badger", "./badger-data", "Path to BadgerDB data directory")
	rootCmd.PersistentFlags().String("store", config.DriverHybrid, "Store driver (hybrid or sqlite)")
	rootCmd.PersistentFlags().String("sqlite", "./readmark.db", "Path to SQLite database")
	serverCmd.Flags().String("addr", ":8080", "HTTP listen address")

	for _, c := range []*cobra.Command{addCmd, exportCmd, highlightCmd} {
		c.Flags().String("user", "", "User id that owns the article")
	}
	addCmd.Flags().StringSlice("tags", nil, "Tags for the article")
	highlightCmd.Flags().Int("occurrence", 0, "Which match of the quote to highlight, from 0")
	highlightCmd.Flags().String("color", string(model.ColorYellow), "Highlight color")
	highlightCmd.Flags().String("note", "", "Note attached to the highlight")

	rootCmd.AddCommand(serverCmd, addCmd, exportCmd, highlightCmd, tokenCmd)

	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
