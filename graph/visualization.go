package graph

import (
	"fmt"
	"strings"
)

// Exporter renders a graph definition as a diagram.
type Exporter[S any] struct {
	graph *StateGraph[S]
}

// NewExporter creates a new graph exporter for the given graph
func NewExporter[S any](graph *StateGraph[S]) *Exporter[S] {
	return &Exporter[S]{graph: graph}
}

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// DrawMermaid generates a top-down Mermaid flowchart.
func (ge *Exporter[S]) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// DrawMermaidWithOptions generates a Mermaid flowchart. Unconditional edges are
// solid, every declared router target is drawn as a dotted edge.
func (ge *Exporter[S]) DrawMermaidWithOptions(opts MermaidOptions) string {
	g := ge.graph
	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "flowchart %s\n", direction)
	sb.WriteString("    START([\"START\"])\n")
	for _, name := range g.order {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", mermaidID(name), name)
	}
	if ge.reachesEnd() {
		sb.WriteString("    END([\"END\"])\n")
	}

	if g.entryPoint != "" {
		fmt.Fprintf(&sb, "    START --> %s\n", mermaidID(g.entryPoint))
	}
	for _, e := range g.edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", mermaidID(e.From), mermaidID(e.To))
	}
	for _, from := range g.conditionalFroms() {
		for _, to := range g.conditionalEdges[from].Targets {
			fmt.Fprintf(&sb, "    %s -.-> %s\n", mermaidID(from), mermaidID(to))
		}
	}

	sb.WriteString("    style START fill:#90EE90\n")
	if ge.reachesEnd() {
		sb.WriteString("    style END fill:#FFB6C1\n")
	}
	if g.entryPoint != "" {
		fmt.Fprintf(&sb, "    style %s fill:#87CEEB\n", mermaidID(g.entryPoint))
	}
	return sb.String()
}

// DrawDOT generates a Graphviz representation of the graph.
func (ge *Exporter[S]) DrawDOT() string {
	g := ge.graph

	var sb strings.Builder
	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TD;\n")
	sb.WriteString("    node [shape=box];\n")
	sb.WriteString("    START [label=\"START\", shape=ellipse, style=filled, fillcolor=lightgreen];\n")
	if ge.reachesEnd() {
		sb.WriteString("    END [label=\"END\", shape=ellipse, style=filled, fillcolor=lightpink];\n")
	}
	if g.entryPoint != "" {
		fmt.Fprintf(&sb, "    %q [style=filled, fillcolor=lightblue];\n", g.entryPoint)
		fmt.Fprintf(&sb, "    START -> %q;\n", g.entryPoint)
	}
	for _, e := range g.edges {
		fmt.Fprintf(&sb, "    %q -> %q;\n", e.From, e.To)
	}
	for _, from := range g.conditionalFroms() {
		for _, to := range g.conditionalEdges[from].Targets {
			fmt.Fprintf(&sb, "    %q -> %q [style=dashed];\n", from, to)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (ge *Exporter[S]) reachesEnd() bool {
	for _, e := range ge.graph.edges {
		if e.To == END {
			return true
		}
	}
	// Routers may always return END.
	return len(ge.graph.conditionalEdges) > 0
}

// mermaidID makes a node name safe to use as a Mermaid identifier.
func mermaidID(name string) string {
	if name == END {
		return "END"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}
