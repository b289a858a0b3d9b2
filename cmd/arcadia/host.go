package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/feed"
	"github.com/Kh3rwa1/ArcadiaApp/internal/host"
)

func hostCmd() *cobra.Command {
	var (
		configPath string
		category   string
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run a headless feed host driven from stdin",
		Long: `Run a headless feed host. Commands are read from stdin, one per line:

  next          swipe to the next card (wraps at the end)
  prev          swipe to the previous card
  goto N        jump to index N
  restart       restart the active game
  mute, unmute  audio settings for live cards
  bg, fg        move the app to the background or foreground
  flush         push pending progress now
  status        print the window state
  quit          flush and exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			hc, err := host.NewContext(cfg, logger, nil)
			if err != nil {
				logger.Error("Failed to open host context", zap.Error(err))
				return err
			}
			defer func() {
				if err := hc.Close(); err != nil {
					logger.Warn("close store", zap.Error(err))
				}
			}()

			h := host.New(hc, nil)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			done := make(chan error, 1)
			go func() { done <- h.Run(ctx) }()

			if _, err := h.LoadFeed(ctx, category); err != nil {
				logger.Warn("Feed unavailable", zap.Error(err))
			}
			go readCommands(ctx, os.Stdin, cmd.OutOrStdout(), h, stop)

			return <-done
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment overrides it)")
	cmd.Flags().StringVar(&category, "category", "", "only show games of this category")
	return cmd
}

func readCommands(ctx context.Context, in io.Reader, out io.Writer, h *host.Host, quit func()) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			quit()
			return
		}
		if err := dispatch(ctx, out, h, fields); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
	// stdin closed: keep running until a signal arrives.
}

func dispatch(ctx context.Context, out io.Writer, h *host.Host, fields []string) error {
	switch fields[0] {
	case "next":
		h.Do(func(s *feed.Supervisor) { report(out, s.Next()) })
	case "prev":
		h.Do(func(s *feed.Supervisor) { report(out, s.OnViewportSettled(s.ActiveIndex()-1)) })
	case "goto":
		if len(fields) != 2 {
			return errors.New("usage: goto N")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("bad index %q", fields[1])
		}
		h.Do(func(s *feed.Supervisor) { report(out, s.JumpTo(n)) })
	case "restart":
		h.Do(func(s *feed.Supervisor) { s.Restart() })
	case "mute":
		h.Do(func(s *feed.Supervisor) { s.SetAudio(true, 0) })
	case "unmute":
		h.Do(func(s *feed.Supervisor) { s.SetAudio(false, 1) })
	case "bg":
		h.Do(func(s *feed.Supervisor) { s.OnActiveBecomesInactive() })
	case "fg":
		h.Do(func(s *feed.Supervisor) { s.OnActiveBecomesActive() })
	case "flush":
		return h.Flush(ctx)
	case "status":
		h.Do(func(s *feed.Supervisor) { printStatus(out, s) })
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

func report(out io.Writer, err error) {
	if err != nil {
		fmt.Fprintln(out, "error:", err)
	}
}

func printStatus(out io.Writer, s *feed.Supervisor) {
	items := s.Items()
	for _, st := range s.Snapshot() {
		if !st.Role.Live() && st.Attempts == 0 {
			continue
		}
		marker := " "
		if st.Index == s.ActiveIndex() {
			marker = ">"
		}
		fmt.Fprintf(out, "%s %3d %-9s %-20s attempts=%d degraded=%t\n",
			marker, st.Index, st.Role, items[st.Index].Title, st.Attempts, st.Degraded)
	}
}
