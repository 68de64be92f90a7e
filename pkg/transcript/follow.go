package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// tail reads newline-terminated lines from a growing file. Bytes after the
// last newline are held back until the line is completed.
type tail struct {
	path    string
	f       *os.File
	offset  int64
	partial []byte
}

func openTail(path string) (*tail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	return &tail{path: path, f: f}, nil
}

func (t *tail) close() {
	if t.f != nil {
		t.f.Close()
	}
}

// reopen starts over on a replaced file.
func (t *tail) reopen() error {
	t.close()
	f, err := os.Open(t.path)
	if err != nil {
		t.f = nil
		return err
	}
	t.f = f
	t.offset = 0
	t.partial = nil
	return nil
}

// lines returns the complete lines appended since the last call.
func (t *tail) lines() ([][]byte, error) {
	if t.f == nil {
		return nil, nil
	}

	if info, err := t.f.Stat(); err == nil && info.Size() < t.offset {
		// Truncated: read from the top again.
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		t.offset = 0
		t.partial = nil
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := t.f.Read(buf)
		if n > 0 {
			t.partial = append(t.partial, buf[:n]...)
			t.offset += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading transcript: %w", err)
		}
	}

	var out [][]byte
	for {
		idx := bytes.IndexByte(t.partial, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(t.partial[:idx], "\r")
		out = append(out, append([]byte(nil), line...))
		t.partial = t.partial[idx+1:]
	}
	return out, nil
}

// Follow tails a growing TXT transcript and feeds each completed line to
// sink. Lines already in the file are fed first. It returns when ctx is done
// or the sink fails.
func Follow(ctx context.Context, path string, sink Sink) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving transcript path: %w", err)
	}

	t, err := openTail(abs)
	if err != nil {
		return err
	}
	defer t.close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer watcher.Close()

	// Watch the directory so a file replaced by an editor is picked up again.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching transcript directory: %w", err)
	}

	feed := func() error {
		lines, err := t.lines()
		if err != nil {
			return err
		}
		for _, raw := range lines {
			text, err := Decode(raw, "")
			if err != nil {
				continue
			}
			seg, ok := ParseTXTLine(string(text))
			if !ok {
				continue
			}
			if err := sink.HandleSegment(ctx, seg); err != nil {
				return fmt.Errorf("segment at %dms: %w", seg.StartMs, err)
			}
		}
		return nil
	}

	if err := feed(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if err := t.reopen(); err != nil {
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := feed(); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching transcript: %w", err)
		}
	}
}
