package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
)

// CatalogMarkdown summarizes the registered descriptors as a markdown document.
func CatalogMarkdown(title string, reg *registry.Registry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "%d states registered.\n\n", reg.Len())

	sb.WriteString("| State | Labels | Tags | Transitions |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, id := range reg.IDs() {
		d, err := reg.Lookup(id)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", id, labels(d), codeList(d.Tags), links(d.Links))
	}

	for _, id := range reg.IDs() {
		d, _ := reg.Lookup(id)
		if d == nil || d.Description == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", id, d.Description)
	}
	return sb.String()
}

func labels(d *registry.Descriptor) string {
	if len(d.Labels) == 0 {
		return "any"
	}
	out := make([]string, len(d.Labels))
	for i, l := range d.Labels {
		out[i] = string(l)
	}
	return codeList(out)
}

func codeList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "`" + s + "`"
	}
	return strings.Join(quoted, ", ")
}

func links(ls []registry.Link) string {
	if len(ls) == 0 {
		return "-"
	}
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		target := string(l.Target)
		if l.Label != "" && l.Label != domain.DefaultLabel {
			target += "@" + string(l.Label)
		}
		out = append(out, fmt.Sprintf("%s → `%s`", l.Kind, target))
	}
	return strings.Join(out, "<br>")
}
