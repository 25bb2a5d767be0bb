package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"launcher-core/internal/app"
	"launcher-core/internal/launcher"
)

var launcherCmd = &cobra.Command{
	Use:   "launcher",
	Short: "Publish and select launcher builds",
}

func printVersion(v *launcher.LauncherVersion) {
	fmt.Printf("%s  %-7s  %s  %10d  %s\n",
		v.ID, v.OS, v.ArtifactHash[:12], v.Size, v.CreatedAt.Format("2006-01-02 15:04:05"))
}

var launcherPublishCmd = &cobra.Command{
	Use:   "publish OS FILE",
	Short: "Publish a launcher build and make it the actual version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := launcher.ParseOSType(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			v, err := a.Versions().Publish(ctx, target, f)
			if err != nil {
				return err
			}
			printVersion(v)
			return nil
		})
	},
}

var launcherActualCmd = &cobra.Command{
	Use:   "actual OS",
	Short: "Show the actual launcher version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := launcher.ParseOSType(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			v, err := a.Versions().GetActual(target)
			if err != nil {
				return err
			}
			printVersion(v)
			return nil
		})
	},
}

var launcherRollbackCmd = &cobra.Command{
	Use:   "rollback OS VERSION_ID",
	Short: "Make an earlier build the actual version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := launcher.ParseOSType(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			v, err := a.Versions().Rollback(ctx, target, args[1])
			if err != nil {
				return err
			}
			printVersion(v)
			return nil
		})
	},
}

var launcherHistoryCmd = &cobra.Command{
	Use:   "history OS",
	Short: "List published builds, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := launcher.ParseOSType(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			versions, err := a.Versions().History(ctx, target)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Println("No builds published.")
				return nil
			}
			for _, v := range versions {
				printVersion(v)
			}
			return nil
		})
	},
}

func init() {
	launcherCmd.AddCommand(launcherPublishCmd)
	launcherCmd.AddCommand(launcherActualCmd)
	launcherCmd.AddCommand(launcherRollbackCmd)
	launcherCmd.AddCommand(launcherHistoryCmd)
}
