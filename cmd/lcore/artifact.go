package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"launcher-core/internal/app"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect and maintain the artifact store",
}

var artifactPutCmd = &cobra.Command{
	Use:   "put FILE",
	Short: "Store a file and print its hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			hash, err := a.Store().Put(ctx, f)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		})
	},
}

var artifactGetCmd = &cobra.Command{
	Use:   "get HASH [FILE]",
	Short: "Write verified artifact content to FILE or stdout",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rc, err := a.Store().Get(ctx, args[0])
			if err != nil {
				return err
			}
			defer rc.Close()

			var w io.Writer = os.Stdout
			if len(args) == 2 {
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = io.Copy(w, rc)
			return err
		})
	},
}

var artifactVerifyCmd = &cobra.Command{
	Use:   "verify HASH",
	Short: "Re-hash stored content and compare it with its key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ok, err := a.Store().Verify(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("artifact %s is corrupt", args[0])
			}
			fmt.Println("ok")
			return nil
		})
	},
}

var artifactGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete unreferenced artifacts past the grace period",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Sweeper().RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d of %d candidates (%d skipped, %d errors)\n",
				res.Deleted, res.Candidates, res.Skipped, res.Errors)
			return nil
		})
	},
}

func init() {
	artifactCmd.AddCommand(artifactPutCmd)
	artifactCmd.AddCommand(artifactGetCmd)
	artifactCmd.AddCommand(artifactVerifyCmd)
	artifactCmd.AddCommand(artifactGCCmd)
}
