package main

import (
	"fmt"

	"github.com/aretw0/statestack/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Simulate a scenario headless",
	Long: `Loads the scenario, attaches its agents and ticks the world frame by frame, printing
every agent's stack after each frame.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		quiet, _ := cmd.Flags().GetBool("quiet")

		ctx := cmd.Context()
		s, world, err := startWorld(ctx, args[0], logger)
		if err != nil {
			return err
		}
		defer world.Unload(ctx)

		frames := s.Frames
		if cmd.Flags().Changed("frames") {
			frames, _ = cmd.Flags().GetUint64("frames")
		}

		out := cmd.OutOrStdout()
		view := tui.NewStackView(out)
		for f := uint64(1); f <= frames; f++ {
			if err := s.Step(ctx, world, f); err != nil {
				logger.Warn("frame input rejected", "frame", f, "error", err)
			}
			if quiet {
				continue
			}
			for _, snap := range world.InspectAll() {
				fmt.Fprintln(out, view.Render(snap))
			}
		}

		faults := 0
		for _, id := range world.Agents() {
			recent, _ := world.Faults(id)
			for _, fault := range recent {
				faults++
				fmt.Fprintf(cmd.ErrOrStderr(), "fault: agent=%s frame=%d state=%s fatal=%t: %v\n",
					id, fault.Frame, fault.StateID, fault.Fatal, fault.Err)
			}
		}
		fmt.Fprintf(out, "%d frames, %d agents, %d faults\n", frames, len(world.Agents()), faults)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolP("quiet", "q", false, "Only print the summary")
	runCmd.Flags().Uint64("frames", 0, "Override the scenario frame count")
}
