package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/statestack/internal/presentation/graph"
	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/stretchr/testify/assert"
)

func noop() behavior.Factory {
	return behavior.Ticking(func(behavior.Scope) (bool, error) { return false, nil }, nil)
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name        string
		descriptors []registry.Descriptor
		contains    []string
		excludes    []string
	}{
		{
			name: "Root Shape",
			descriptors: []registry.Descriptor{
				{ID: "idle", Tags: []string{graph.RootTag}, Factory: noop()},
			},
			contains: []string{`idle(("idle"))`},
		},
		{
			name: "Labeled Shape",
			descriptors: []registry.Descriptor{
				{ID: "guard", Labels: []domain.Label{"default", "alert"}, Factory: noop()},
			},
			contains: []string{`guard[["guard <br/> @default, @alert"]]`},
		},
		{
			name: "ID Sanitization",
			descriptors: []registry.Descriptor{
				{ID: "combat/melee.close", Factory: noop()},
				{ID: "hyphen-ated", Factory: noop()},
			},
			contains: []string{
				`combat_melee_close["combat/melee.close"]`,
				`hyphen_ated["hyphen-ated"]`,
			},
		},
		{
			name: "Link Kinds",
			descriptors: []registry.Descriptor{
				{ID: "patrol", Factory: noop(), Links: []registry.Link{
					{Kind: domain.TransitionPush, Target: "investigate"},
					{Kind: domain.TransitionPush, Target: "guard", Label: "alert"},
					{Kind: domain.TransitionReplace, Target: "flee"},
					{Kind: domain.TransitionInterrupt, Target: "idle"},
					{Kind: domain.TransitionPop},
				}},
			},
			contains: []string{
				`patrol -- "push" --> investigate`,
				`patrol -- "push@alert" --> guard`,
				`patrol -. "replace" .-> flee`,
				`patrol -. ⚡ interrupt .-> idle`,
			},
			excludes: []string{"pop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.NewRegistry().MustRegister(tt.descriptors...)
			out := graph.GenerateMermaid(reg, nil)

			assert.True(t, strings.HasPrefix(out, "graph TD\n"))
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out, unwanted)
			}
			assert.NotContains(t, out, "classDef")
		})
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	reg := registry.NewRegistry().MustRegister(
		registry.Descriptor{ID: "idle", Factory: noop()},
		registry.Descriptor{ID: "patrol", Factory: noop()},
		registry.Descriptor{ID: "fight", Factory: noop()},
	)
	snap := domain.StackSnapshot{Entries: []domain.InstanceSnapshot{
		{StateID: "idle", Dormant: true},
		{StateID: "patrol", Dormant: true},
		{StateID: "fight"},
	}}

	overlay := graph.OverlayFromSnapshot(snap)
	assert.Equal(t, domain.StateID("fight"), overlay.Current)
	assert.Equal(t, []domain.StateID{"idle", "patrol"}, overlay.Dormant)

	out := graph.GenerateMermaid(reg, overlay)
	assert.Contains(t, out, "classDef current")
	assert.Contains(t, out, "class idle dormant;")
	assert.Contains(t, out, "class patrol dormant;")
	assert.Contains(t, out, "class fight current;")
}
