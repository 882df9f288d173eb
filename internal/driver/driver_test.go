package driver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tagflow/tagflow/internal/config"
	"github.com/tagflow/tagflow/internal/engine"
	"github.com/tagflow/tagflow/internal/metrics"
	"github.com/tagflow/tagflow/internal/registry"
	_ "github.com/tagflow/tagflow/internal/stages"
)

func buildUpperEngine(t *testing.T) *engine.Engine {
	t.Helper()
	graph, _, err := config.Build(&config.Document{
		Start: "start",
		Nodes: []config.NodeConfig{{Tag: "start", Type: "builtin.Upper"}},
	}, registry.Default)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	return engine.New(graph, 0, metrics.New(), nil, nil)
}

func TestRunWritesEachLineThatReachesEnd(t *testing.T) {
	in := strings.NewReader("alpha\nbeta\n")
	var out bytes.Buffer

	if err := Run(context.Background(), buildUpperEngine(t), in, &out, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := "ALPHA\nBETA\n"
	if out.String() != want {
		t.Errorf("expected %q, got %q", want, out.String())
	}
}

func TestOpenOutputCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.log")

	w, err := OpenOutput(path)
	if err != nil {
		t.Fatalf("OpenOutput returned error: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected parent directory to exist: %v", err)
	}
}

func TestOpenInputDashIsStdin(t *testing.T) {
	r, err := OpenInput("-")
	if err != nil {
		t.Fatalf("OpenInput returned error: %v", err)
	}
	defer r.Close()
	if r == nil {
		t.Fatal("expected non-nil reader for stdin")
	}
}
