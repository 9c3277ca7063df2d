package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
)

// RootTag marks descriptors drawn as entry points.
const RootTag = "root"

// GraphOverlay contains live stack data to visualize on the catalog graph.
type GraphOverlay struct {
	Dormant []domain.StateID
	Current domain.StateID
}

// OverlayFromSnapshot marks the top of snap as current and everything below as dormant.
func OverlayFromSnapshot(snap domain.StackSnapshot) *GraphOverlay {
	overlay := &GraphOverlay{}
	for _, e := range snap.Entries {
		if e.Dormant {
			overlay.Dormant = append(overlay.Dormant, e.StateID)
			continue
		}
		overlay.Current = e.StateID
	}
	return overlay
}

// GenerateMermaid produces a Mermaid flowchart of the registered descriptors and their
// declared links. It applies semantic styling:
// - Root (tagged "root"): ((Circle))
// - Multiple entry labels: [[Subroutine]]
// - Default: [Rectangle]
// Push links are solid, Replace links dotted, Interrupt links dotted with a bolt.
func GenerateMermaid(reg *registry.Registry, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range reg.IDs() {
		desc, err := reg.Lookup(id)
		if err != nil {
			continue
		}
		safeID := sanitizeMermaidID(string(id))

		opener, closer := "[", "]"
		switch {
		case desc.HasTag(RootTag):
			opener, closer = "((", "))"
		case len(desc.Labels) > 1:
			opener, closer = "[[", "]]"
		}

		text := string(id)
		if len(desc.Labels) > 1 {
			labels := make([]string, len(desc.Labels))
			for i, l := range desc.Labels {
				labels[i] = "@" + string(l)
			}
			text = fmt.Sprintf("%s <br/> %s", id, strings.Join(labels, ", "))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, text, closer))

		for _, link := range desc.Links {
			if link.Kind == domain.TransitionPop || link.Target == "" {
				continue
			}
			safeTo := sanitizeMermaidID(string(link.Target))

			name := string(link.Kind)
			if link.Label != "" && link.Label != domain.DefaultLabel {
				name += "@" + string(link.Label)
			}

			var arrow string
			switch link.Kind {
			case domain.TransitionReplace:
				arrow = fmt.Sprintf("-. \"%s\" .->", name)
			case domain.TransitionInterrupt:
				arrow = fmt.Sprintf("-. ⚡ %s .->", name)
			default:
				arrow = fmt.Sprintf("-- \"%s\" -->", name)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef dormant fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Dormant {
			safeID := sanitizeMermaidID(string(id))
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s dormant;\n", safeID))
			}
		}

		if overlay.Current != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(string(overlay.Current))))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
