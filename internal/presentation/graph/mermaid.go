package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/actdata/pkg/depgraph"
	"github.com/aretw0/actdata/pkg/domain"
)

// GraphOverlay contains the outcome of an execution pass to visualize on the graph.
type GraphOverlay struct {
	Statuses map[domain.GID]domain.FunctionStatus
}

// OverlayFromReport maps every run of r to its last status.
func OverlayFromReport(r *domain.ExecutionReport) *GraphOverlay {
	if r == nil {
		return nil
	}
	o := &GraphOverlay{Statuses: make(map[domain.GID]domain.FunctionStatus, len(r.Runs))}
	for _, run := range r.Runs {
		o.Statuses[run.Host] = run.Status
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of the Tree Functions of g.
// Each function is labelled with its host Parameter and function ID.
// It applies semantic styling:
// - High priority: [[Subroutine]]
// - Expression: [/Parallelogram/]
// - Default: [Rectangle]
// Edges carry the Parameters the producer writes and the consumer reads.
// It also applies overlay styles (execution status) if provided.
func GenerateMermaid(g *depgraph.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, f := range g.Functions() {
		safeID := sanitizeMermaidID(f.Host.String())

		opener, closer := "[", "]"
		switch {
		case f.Binding.Priority == domain.PriorityHigh:
			opener, closer = "[[", "]]"
		case f.Binding.Function == "expr":
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s <br/> %s\"%s\n", safeID, opener, f.Host, f.Binding.Function, closer)
	}

	for _, edge := range g.Edges() {
		from, _ := g.Function(edge[0])
		to, _ := g.Function(edge[1])
		var shared []string
		for _, out := range from.Binding.Outputs {
			if slices.Contains(to.Binding.Inputs, out) && !slices.Contains(shared, out.String()) {
				shared = append(shared, out.String())
			}
		}
		fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n",
			sanitizeMermaidID(edge[0].String()), strings.Join(shared, ", "), sanitizeMermaidID(edge[1].String()))
	}

	// Apply Overlay Styles
	if overlay != nil && len(overlay.Statuses) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef succeeded fill:#dcfce7,stroke:#15803d,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#fee2e2,stroke:#b91c1c,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef blocked fill:#fef3c7,stroke:#b45309,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef cancelled fill:#f4f4f5,stroke:#71717a,stroke-dasharray:4,color:#000;\n")

		for _, f := range g.Functions() {
			status, ok := overlay.Statuses[f.Host]
			if !ok || status == domain.StatusPending {
				continue
			}
			fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(f.Host.String()), status)
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(":", "_", "#", "_", ".", "_", "-", "_", "/", "_", " ", "_")
	return r.Replace(id)
}
