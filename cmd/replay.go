package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/transcript"
)

// replayResult is the machine-readable output of replay and watch.
type replayResult struct {
	Session  live.Info    `json:"session" yaml:"session"`
	Segments int          `json:"segments" yaml:"segments"`
	Stats    live.Stats   `json:"stats" yaml:"stats"`
	Groups   []live.Group `json:"groups" yaml:"groups"`
}

// NewReplayCommand creates the 'replay' command.
func NewReplayCommand(deps *Deps) *cobra.Command {
	var (
		speed   float64
		charset string
		wait    time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Replay a finished transcript through a live session",
		Long: `Feed a recorded transcript (WebVTT or "MM:SS : Speaker : text") through a
live session as if the meeting were happening now, then print the
reconciled items grouped by category.

Phrases are detected per utterance and queued for enhancement. After the
last segment the queue is flushed and the command waits for outstanding
enhancements before printing.

Flags:
  --speed     Pace segments by their timestamps (2 = twice real time, 0 = no pacing)
  --charset   Transcript charset (default: detect, falling back to Latin-1)
  --wait      Maximum time to wait for outstanding enhancements
  --verbose   Print each detection and enhancement as it happens

Examples:
  penf-live replay standup.vtt
  penf-live replay planning.txt --speed 10 --verbose
  penf-live replay standup.vtt --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), cmd.OutOrStdout(), deps, args[0], speed, charset, wait, verbose)
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", 0, "Playback speed multiplier (0 disables pacing)")
	cmd.Flags().StringVar(&charset, "charset", "", "Transcript charset (utf-8, latin1, windows-1252)")
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "Maximum time to wait for enhancements")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print session events as they happen")

	return cmd
}

func runReplay(ctx context.Context, w io.Writer, deps *Deps, path string, speed float64, charset string, wait time.Duration, verbose bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := deps.config()
	if err != nil {
		return err
	}

	t, err := transcript.ParseFile(path, charset)
	if err != nil {
		return err
	}

	ls, err := openLocalSession(ctx, deps, cfg, filepath.Base(path))
	if err != nil {
		return err
	}
	defer ls.Close()

	var mu sync.Mutex
	unsubscribe := func() {}
	if verbose {
		unsubscribe = ls.Subscribe(live.ListenerFunc(func(ev live.Event) {
			mu.Lock()
			defer mu.Unlock()
			printEvent(w, ev)
		}))
	}

	segments := 0
	sink := transcript.IngestInto(ls, nil)
	counting := transcript.SinkFunc(func(ctx context.Context, seg transcript.Segment) error {
		segments++
		return sink.HandleSegment(ctx, seg)
	})
	if err := transcript.Replay(ctx, t.Segments, speed, counting); err != nil {
		return fmt.Errorf("replaying %s: %w", path, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
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
		return printSummary(w, result)
	})
}

func printSummary(w io.Writer, r replayResult) error {
	if r.Session.Title != "" {
		fmt.Fprintf(w, "%s\n", r.Session.Title)
	}
	fmt.Fprintf(w, "%d segments, %d items (%d enhanced)\n\n", r.Segments, r.Stats.Total, r.Stats.Enhanced)
	return printGroups(w, r.Groups)
}
