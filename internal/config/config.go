// Package config loads and validates the routing graph configuration
// document (spec.md §4.2, §6), grounded on the teacher's
// internal/config/config.go layering of "parse file, apply defaults,
// apply environment overrides, validate".
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tagflow/tagflow/internal/registry"
	"github.com/tagflow/tagflow/pkg/apperr"
	"gopkg.in/yaml.v2"
)

// NodeConfig is one entry of the "nodes" sequence in the config document.
type NodeConfig struct {
	Tag     string   `yaml:"tag"`
	Type    string   `yaml:"type"`
	Routes  []string `yaml:"routes"`
}

// Document is the raw shape of the YAML config document (spec.md §6).
type Document struct {
	Start string       `yaml:"start"`
	Nodes []NodeConfig `yaml:"nodes"`
}

// Node is a resolved, validated routing-graph entry: a tag bound to a
// live Stage instance.
type Node struct {
	Tag     registry.Tag
	Stage   registry.Stage
	Routes  []registry.Tag
}

// Graph is the validated node table the engine dispatches against.
type Graph struct {
	Start registry.Tag
	Nodes map[registry.Tag]*Node
}

// DefaultMaxHops is the hop bound H when ROUTER_MAX_HOPS does not
// override it; the config document has no hop-bound field.
const DefaultMaxHops = 1000

const maxHopsEnvVar = "ROUTER_MAX_HOPS"

// MaxHops resolves the hop bound: ROUTER_MAX_HOPS env var if set and
// valid, else DefaultMaxHops. This is an additive override beyond the
// literal spec text, mirroring the teacher's env-overrides-file-defaults
// pattern (config.go applyEnvironmentOverrides).
func MaxHops() int {
	if raw := os.Getenv(maxHopsEnvVar); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMaxHops
}

// TraceEnabledFromEnv reports whether TRACE_ENABLED is set to a truthy
// value (spec.md §6): true/1/yes, case-insensitive.
func TraceEnabledFromEnv() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("TRACE_ENABLED")))
	switch v {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// Load reads and parses the config document at path without resolving
// processor types or validating the graph; Build does that.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConfigNotFound, "config", "Load", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeConfigInvalid, "config", "Load", err)
	}
	if doc.Start == "" {
		doc.Start = string(registry.Start)
	}
	return &doc, nil
}

// Build resolves a parsed Document into a validated Graph, running four
// validation checks (start node present, unique tags, route targets
// resolve, type identifiers resolve), then logging (via the returned
// warnings) unreachable nodes and static cycles as non-fatal advisories.
// The checks run in this order: unique tags, start node present, type
// identifiers (node by node), route targets; when a document breaks
// several rules, the first failing check in that order is reported.
func Build(doc *Document, reg *registry.Registry) (*Graph, []string, error) {
	if reg == nil {
		reg = registry.Default
	}

	tagSeen := make(map[string]bool, len(doc.Nodes))
	nodes := make(map[registry.Tag]*Node, len(doc.Nodes))

	for _, nc := range doc.Nodes {
		if nc.Tag == "" {
			return nil, nil, apperr.New(apperr.CodeConfigInvalid, "config", "Build", "node missing tag")
		}
		// Open question (spec.md §9): an explicit "end" node entry is
		// accepted and ignored, since end is always a synthesized sink.
		if nc.Tag == string(registry.End) {
			continue
		}
		if tagSeen[nc.Tag] {
			return nil, nil, apperr.New(apperr.CodeConfigInvalid, "config", "Build",
				fmt.Sprintf("duplicate node tag %q", nc.Tag))
		}
		tagSeen[nc.Tag] = true
	}

	// step 1: start node must exist among nodes.
	startTag := registry.Tag(doc.Start)
	if !tagSeen[doc.Start] {
		return nil, nil, apperr.New(apperr.CodeConfigInvalid, "config", "Build",
			fmt.Sprintf("start node %q not present in nodes", doc.Start))
	}

	// step 4: resolve types while building nodes (duplicate check for
	// step 2 already ran above); route targets (step 3) are checked after.
	for _, nc := range doc.Nodes {
		if nc.Tag == string(registry.End) {
			continue
		}
		stage, err := reg.Build(nc.Type)
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.CodeConfigInvalid, "config", "Build", err)
		}
		routes := make([]registry.Tag, 0, len(nc.Routes))
		for _, r := range nc.Routes {
			routes = append(routes, registry.Tag(r))
		}
		nodes[registry.Tag(nc.Tag)] = &Node{
			Tag:    registry.Tag(nc.Tag),
			Stage:  stage,
			Routes: routes,
		}
	}

	for _, n := range nodes {
		for _, r := range n.Routes {
			if r == registry.End {
				continue
			}
			if _, ok := nodes[r]; !ok {
				return nil, nil, apperr.New(apperr.CodeConfigInvalid, "config", "Build",
					fmt.Sprintf("node %q declares route to unknown tag %q", n.Tag, r))
			}
		}
	}

	graph := &Graph{Start: startTag, Nodes: nodes}

	var warnings []string
	warnings = append(warnings, unreachableWarnings(graph)...)
	warnings = append(warnings, cycleWarnings(graph)...)

	return graph, warnings, nil
}

// unreachableWarnings returns advisory warnings for nodes no static route
// reaches from start (spec.md §4.2's non-fatal "unreachable from start").
func unreachableWarnings(g *Graph) []string {
	reachable := map[registry.Tag]bool{g.Start: true}
	queue := []registry.Tag{g.Start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node, ok := g.Nodes[cur]
		if !ok {
			continue
		}
		for _, r := range node.Routes {
			if r == registry.End || reachable[r] {
				continue
			}
			reachable[r] = true
			queue = append(queue, r)
		}
	}
	var warnings []string
	for tag := range g.Nodes {
		if !reachable[tag] {
			warnings = append(warnings, fmt.Sprintf("node %q is unreachable from %q", tag, g.Start))
		}
	}
	return warnings
}

// cycleWarnings returns an advisory warning if the statically declared
// route graph contains a cycle. Runtime routing is driven by emitted
// tags, not this static graph, so a cycle here is advisory only
// (spec.md §4.2).
func cycleWarnings(g *Graph) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[registry.Tag]int, len(g.Nodes))
	var cyclic bool
	var visit func(registry.Tag)
	visit = func(tag registry.Tag) {
		if cyclic {
			return
		}
		color[tag] = gray
		if node, ok := g.Nodes[tag]; ok {
			for _, r := range node.Routes {
				if r == registry.End {
					continue
				}
				switch color[r] {
				case gray:
					cyclic = true
					return
				case white:
					visit(r)
				}
			}
		}
		color[tag] = black
	}
	for tag := range g.Nodes {
		if color[tag] == white {
			visit(tag)
		}
		if cyclic {
			break
		}
	}
	if cyclic {
		return []string{"detected cycle in statically declared routing graph"}
	}
	return nil
}
