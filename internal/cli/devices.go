package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewDevicesCmd lists the capture devices of the configured audio backend.
func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			backend, err := deps.Registry.CreateAudio(cfg.Audio)
			if err != nil {
				return fmt.Errorf("create audio backend: %w", err)
			}
			if c, ok := backend.(io.Closer); ok {
				defer c.Close()
			}

			list, err := backend.Devices()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			NewRenderer(cmd.OutOrStdout()).Devices(list)
			return nil
		},
	}
}
