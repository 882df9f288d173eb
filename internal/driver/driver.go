// Package driver implements the single-file pipeline mode (C5): read a
// file or stdin line by line, push every line through an engine.Engine,
// and write whatever reaches "end" to stdout or an output file. Grounded
// on the teacher's logTailer read loop (internal/monitors/file_monitor.go)
// stripped of its follow/reopen/worker-pool machinery, since single-file
// mode processes one static file start to finish and exits.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tagflow/tagflow/internal/engine"
	"github.com/sirupsen/logrus"
)

// Run reads every line from in, drives it through eng, and writes every
// line that reaches "end" to out, one per line. It returns the first
// fatal error the engine reports.
func Run(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.New()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	writer := bufio.NewWriter(out)
	defer writer.Flush()

	runErr := eng.Run(ctx, lines, func(line string) error {
		if _, err := fmt.Fprintln(writer, line); err != nil {
			return err
		}
		return nil
	})
	if runErr != nil {
		logger.WithError(runErr).Error("pipeline aborted")
		return runErr
	}
	if err := <-scanErr; err != nil {
		logger.WithError(err).Error("input read failed")
		return err
	}
	return writer.Flush()
}

// OpenInput opens path for reading, or returns os.Stdin when path is "-"
// or empty.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// OpenOutput opens path for writing, creating parent directories as
// needed, or returns os.Stdout when path is "-" or empty.
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
