// Package workflow loads and mutates persisted ComfyUI workflow
// graphs before submission. The graph is not validated for
// well-formedness here; malformed graphs surface as backend-side
// submission errors.
package workflow

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
)

// Node is one operation entry in a workflow graph.
type Node struct {
	ClassType string                 `json:"class_type,omitempty"`
	Inputs    map[string]interface{} `json:"inputs,omitempty"`
}

// Graph maps node ID to node description.
type Graph map[string]Node

// injectableParams whitelists, per operation-kind prefix, the input
// names that free-text injection may overwrite. Injection is best
// effort: nodes whose inputs carry none of these names are left alone.
var injectableParams = map[string][]string{
	"CLIPTextEncode": {"text"},
	"TextInput":      {"text"},
	"PrimitiveNode":  {"text"},
	"":               {"text", "prompt"}, // nodes without a class type fall back to common names
}

// Load parses a persisted workflow graph from path. Read or parse
// failures are hard errors naming the path and cause, never a silent
// empty graph.
func Load(path string) (Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", path, err)
	}

	var graph Graph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", path, err)
	}

	return graph, nil
}

// InjectText walks the graph's nodes and overwrites whitelisted text
// inputs with text. Nodes with no recognized input name are skipped;
// every other field is left untouched. Returns the node IDs updated.
func (g Graph) InjectText(text string) []string {
	var updated []string

	for nodeID, node := range g {
		if node.Inputs == nil {
			continue
		}
		for _, param := range paramsFor(node.ClassType) {
			if _, ok := node.Inputs[param]; ok {
				node.Inputs[param] = text
				updated = append(updated, nodeID)
				log.Printf("[Workflow] set %q on node %s (%s)", param, nodeID, node.ClassType)
				break
			}
		}
	}

	return updated
}

// ApplyOverrides merges explicit per-node input overrides into the
// graph. Unknown node IDs are ignored, not errors.
func (g Graph) ApplyOverrides(overrides map[string]map[string]interface{}) {
	for nodeID, params := range overrides {
		node, ok := g[nodeID]
		if !ok {
			log.Printf("[Workflow] override target %s not in graph, skipping", nodeID)
			continue
		}
		if node.Inputs == nil {
			node.Inputs = make(map[string]interface{})
			g[nodeID] = node
		}
		for k, v := range params {
			node.Inputs[k] = v
		}
	}
}

// paramsFor resolves the injectable-input whitelist for a node's
// operation kind. Exact match first, then prefix match for suffixed
// variants (e.g. CLIPTextEncodeSDXL), then the untyped fallback.
func paramsFor(classType string) []string {
	if params, ok := injectableParams[classType]; ok {
		return params
	}
	for kind, params := range injectableParams {
		if kind != "" && strings.HasPrefix(classType, kind) {
			return params
		}
	}
	return injectableParams[""]
}
