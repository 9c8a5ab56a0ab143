package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/maauso/stillcast/internal/bootstrap"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the encoding engine and report what was found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := bootstrap.NewCore(cmd.Context(), ctx.cfg, ctx.logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close(cmd.Context()) }()

			eng, err := core.Engine.EnsureReady(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if b, ok := eng.(interface{ Binary() string }); ok {
				fmt.Fprintf(out, "ffmpeg:      %s\n", b.Binary())
			}
			if w, ok := eng.(interface{ WorkDir() string }); ok {
				fmt.Fprintf(out, "workspace:   %s\n", w.WorkDir())
			}
			fmt.Fprintf(out, "state:       %s\n", core.Engine.State())
			fmt.Fprintf(out, "resolution:  %s\n", ctx.cfg.Resolution)
			fmt.Fprintf(out, "max inputs:  audio %s, image %s\n",
				humanize.IBytes(ctx.cfg.MaxAudioSize.Bytes()), humanize.IBytes(ctx.cfg.MaxImageSize.Bytes()))
			return nil
		},
	}
}
