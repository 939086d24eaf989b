package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/ignore"
)

// watchExtensions are the file types the server can extract.
var watchExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".pdf": true}

func newWatchCmd() *cobra.Command {
	var initial bool
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest files in a directory as they are created or changed",
		Long: `Watch a directory and ingest every .txt, .md or .pdf file written to it.

Each file keeps a document id derived from its absolute path, so saving a
file again replaces its fragments instead of adding new ones. Hidden files
and names matched by .ragignore or .gitignore in the directory are skipped.

Examples:
  ragctl watch --tenant acme ./docs
  ragctl watch --tenant acme --initial ./docs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newDirWatcher(newClient(requestTimeout), args[0], debounce, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if initial {
				w.ingestExisting(cmd.Context())
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[ragctl] watching %s (ctrl-c to stop)\n", w.dir)
			return w.run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", false, "ingest files already in the directory first")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is ingested")
	return cmd
}

// documentIDFor returns a stable document id for a file path.
func documentIDFor(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

type dirWatcher struct {
	client   *client
	dir      string
	debounce time.Duration
	out      io.Writer
	ignore   *ignore.Matcher

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup

	// outMu serializes writes to out; debounced ingests run on timer goroutines.
	outMu sync.Mutex
}

func newDirWatcher(c *client, dir string, debounce time.Duration, out io.Writer) (*dirWatcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	matcher, err := ignore.Load(abs)
	if err != nil {
		return nil, fmt.Errorf("reading ignore files: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem watcher: %w", err)
	}
	if err := fw.Add(abs); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", abs, err)
	}

	return &dirWatcher{
		client:   c,
		dir:      abs,
		debounce: debounce,
		out:      out,
		ignore:   matcher,
		watcher:  fw,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// run processes events until ctx is done. Pending ingests are cancelled.
func (w *dirWatcher) run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		for path, t := range w.pending {
			if t.Stop() {
				w.wg.Done()
			}
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.wg.Wait()
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.wanted(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.printf("watch error: %v\n", err)
		}
	}
}

// schedule ingests path once it has been quiet for the debounce period.
func (w *dirWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
	w.pending[path] = t
}

func (w *dirWatcher) ingest(ctx context.Context, path string) {
	resp, err := w.client.upload(ctx, path, documentIDFor(path))
	if err != nil {
		if ctx.Err() == nil {
			w.printf("%s: %v\n", filepath.Base(path), err)
		}
		return
	}
	var buf bytes.Buffer
	printIngest(&buf, filepath.Base(path), resp)
	w.write(buf.Bytes())
}

func (w *dirWatcher) printf(format string, args ...any) {
	w.write(fmt.Appendf(nil, format, args...))
}

// write emits one report in a single call so concurrent reports never interleave.
func (w *dirWatcher) write(p []byte) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	_, _ = w.out.Write(p)
}

func (w *dirWatcher) ingestExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.printf("listing %s: %v\n", w.dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !w.wanted(e.Name()) {
			continue
		}
		w.ingest(ctx, filepath.Join(w.dir, e.Name()))
	}
}

func (w *dirWatcher) wanted(path string) bool {
	return watchExtensions[strings.ToLower(filepath.Ext(path))] && !w.ignore.Match(path)
}
