package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tagflow/tagflow/internal/registry"
	_ "github.com/tagflow/tagflow/internal/stages"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadDefaultsStartTag(t *testing.T) {
	path := writeTempConfig(t, `
nodes:
  - tag: start
    type: builtin.Identity
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if doc.Start != "start" {
		t.Errorf("expected default start tag %q, got %q", "start", doc.Start)
	}
}

func TestBuildValidGraph(t *testing.T) {
	doc := &Document{
		Start: "start",
		Nodes: []NodeConfig{
			{Tag: "start", Type: "builtin.Tagger", Routes: []string{"error", "info"}},
			{Tag: "error", Type: "builtin.Upper"},
			{Tag: "info", Type: "builtin.Identity"},
		},
	}
	graph, warnings, err := Build(doc, registry.Default)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
	if graph.Start != "start" {
		t.Errorf("unexpected start tag %q", graph.Start)
	}
	if len(graph.Nodes) != 3 {
		t.Errorf("expected 3 nodes, got %d", len(graph.Nodes))
	}
}

func TestBuildRejectsMissingStart(t *testing.T) {
	doc := &Document{
		Start: "start",
		Nodes: []NodeConfig{
			{Tag: "other", Type: "builtin.Identity"},
		},
	}
	if _, _, err := Build(doc, registry.Default); err == nil {
		t.Fatal("expected error for missing start node")
	}
}

func TestBuildRejectsDuplicateTags(t *testing.T) {
	doc := &Document{
		Start: "start",
		Nodes: []NodeConfig{
			{Tag: "start", Type: "builtin.Identity"},
			{Tag: "start", Type: "builtin.Upper"},
		},
	}
	if _, _, err := Build(doc, registry.Default); err == nil {
		t.Fatal("expected error for duplicate node tag")
	}
}

func TestBuildRejectsUnknownRouteTarget(t *testing.T) {
	doc := &Document{
		Start: "start",
		Nodes: []NodeConfig{
			{Tag: "start", Type: "builtin.Identity", Routes: []string{"nowhere"}},
		},
	}
	if _, _, err := Build(doc, registry.Default); err == nil {
		t.Fatal("expected error for unknown route target")
	}
}

func TestBuildRejectsUnknownType(t *testing.T) {
	doc := &Document{
		Start: "start",
		Nodes: []NodeConfig{
			{Tag: "start", Type: "nope.DoesNotExist"},
		},
	}
	if _, _, err := Build(doc, registry.Default); err == nil {
		t.Fatal("expected error for unresolvable processor type")
	}
}

func TestBuildWarnsOnUnreachableNode(t *testing.T) {
	doc := &Document{
		Start: "start",
		Nodes: []NodeConfig{
			{Tag: "start", Type: "builtin.Identity"},
			{Tag: "orphan", Type: "builtin.Identity"},
		},
	}
	_, warnings, err := Build(doc, registry.Default)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected an unreachable-node warning")
	}
}

func TestBuildAcceptsExplicitEndNode(t *testing.T) {
	doc := &Document{
		Start: "start",
		Nodes: []NodeConfig{
			{Tag: "start", Type: "builtin.Identity"},
			{Tag: "end", Type: "builtin.Identity"},
		},
	}
	graph, _, err := Build(doc, registry.Default)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if _, ok := graph.Nodes[registry.End]; ok {
		t.Fatal("explicit end node should be ignored, not materialized")
	}
}

func TestMaxHopsEnvOverride(t *testing.T) {
	t.Setenv(maxHopsEnvVar, "42")
	if got := MaxHops(); got != 42 {
		t.Errorf("expected MaxHops override 42, got %d", got)
	}
}

func TestMaxHopsDefaultWhenUnset(t *testing.T) {
	t.Setenv(maxHopsEnvVar, "")
	if got := MaxHops(); got != DefaultMaxHops {
		t.Errorf("expected default %d, got %d", DefaultMaxHops, got)
	}
}
