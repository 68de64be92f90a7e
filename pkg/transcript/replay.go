package transcript

import (
	"context"
	"fmt"
	"time"
)

// Replay feeds final segments to sink in order. With speed > 0 segments are
// paced by their start times divided by speed (2 plays twice as fast); with
// speed 0 they are fed as fast as the sink accepts them.
func Replay(ctx context.Context, segments []Segment, speed float64, sink Sink) error {
	if speed < 0 {
		return fmt.Errorf("replay speed must not be negative, got %v", speed)
	}

	var base int64
	for _, seg := range segments {
		if seg.Final {
			base = seg.StartMs
			break
		}
	}

	start := time.Now()
	for i, seg := range segments {
		if !seg.Final {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if speed > 0 && seg.StartMs > base {
			due := time.Duration(float64(seg.StartMs-base)/speed) * time.Millisecond
			if wait := due - time.Since(start); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		if err := sink.HandleSegment(ctx, seg); err != nil {
			return fmt.Errorf("segment %d at %dms: %w", i, seg.StartMs, err)
		}
	}
	return nil
}
