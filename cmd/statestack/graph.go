package main

import (
	"fmt"

	"github.com/aretw0/statestack/internal/logging"
	"github.com/aretw0/statestack/internal/presentation/graph"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <scenario.yaml>",
	Short: "Export the catalog as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of the catalog's states and declared transitions.
With --agent the scenario is simulated for --frames frames and the agent's stack is
overlaid on the diagram.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _ := cmd.Flags().GetString("agent")
		if agent == "" {
			_, reg, err := loadScenario(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(reg, nil))
			return nil
		}

		ctx := cmd.Context()
		s, world, err := startWorld(ctx, args[0], logging.NewNop())
		if err != nil {
			return err
		}
		defer world.Unload(ctx)

		frames := s.Frames
		if cmd.Flags().Changed("frames") {
			frames, _ = cmd.Flags().GetUint64("frames")
		}
		for f := uint64(1); f <= frames; f++ {
			_ = s.Step(ctx, world, f)
		}

		snap, err := world.Inspect(domain.AgentID(agent))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(world.Registry(), graph.OverlayFromSnapshot(snap)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("agent", "", "Overlay this agent's stack")
	graphCmd.Flags().Uint64("frames", 0, "Frames to simulate before the overlay (default: scenario frames)")
}
