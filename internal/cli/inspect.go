package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cuecard/internal/recording"
)

// NewInspectCmd prints the format and duration of a saved recording.
func NewInspectCmd(_ *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wav>",
		Short: "Show the format of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := recording.Inspect(f)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], info)
			return nil
		},
	}
}
