package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/transcript"
)

// NewWatchCommand creates the 'watch' command.
func NewWatchCommand(deps *Deps) *cobra.Command {
	var (
		wait     time.Duration
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Follow a growing transcript and detect phrases live",
		Long: `Tail a transcript file that a recorder is still writing and feed each
completed line to a live session. Detections and enhancements are printed as
they happen; a line without a trailing newline is not read until it is
finished.

Stop with Ctrl-C (or after --duration). The queue is then flushed and the
reconciled items are printed grouped by category.

Transcript lines use the "MM:SS : Speaker : text" format.

Examples:
  penf-live watch ~/recordings/standup.txt
  penf-live watch meeting.txt --duration 30m --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return runWatch(ctx, cmd.OutOrStdout(), deps, args[0], wait)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "Maximum time to wait for enhancements after stopping")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop watching after this long (0 = until interrupted)")

	return cmd
}

func runWatch(ctx context.Context, w io.Writer, deps *Deps, path string, wait time.Duration) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}

	// The session outlives ctx so the final flush can still run.
	ls, err := openLocalSession(context.Background(), deps, cfg, filepath.Base(path))
	if err != nil {
		return err
	}
	defer ls.Close()

	var (
		mu       sync.Mutex
		segments int
	)
	unsubscribe := func() {}
	if cfg.OutputFormat == config.OutputFormatText {
		fmt.Fprintf(w, "Watching %s (session %s)\n", path, shortID(ls.ID()))
		unsubscribe = ls.Subscribe(live.ListenerFunc(func(ev live.Event) {
			mu.Lock()
			defer mu.Unlock()
			printEvent(w, ev)
		}))
	}

	sink := transcript.IngestInto(ls, nil)
	counting := transcript.SinkFunc(func(ctx context.Context, seg transcript.Segment) error {
		mu.Lock()
		segments++
		mu.Unlock()
		return sink.HandleSegment(ctx, seg)
	})

	err = transcript.Follow(ctx, path, counting)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if err := ls.finish(waitCtx); err != nil {
		deps.logger().Warn("Enhancements still outstanding", logging.Err(err))
	}
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	result := replayResult{
		Session:  ls.Info(),
		Segments: segments,
		Stats:    ls.Stats(),
		Groups:   ls.Grouped(),
	}
	return output(w, cfg.OutputFormat, result, func(w io.Writer) error {
		fmt.Fprintln(w)
		return printSummary(w, result)
	})
}
