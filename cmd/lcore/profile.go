package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"launcher-core/internal/app"
	"launcher-core/internal/launcher"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage game profiles",
}

// followFeed prints progress lines until the returned stop func is called.
func followFeed(pm *launcher.ProfileManager) (stop func()) {
	sub := pm.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range sub.C() {
			fmt.Println(line)
		}
	}()
	return func() {
		sub.Unsubscribe()
		<-done
	}
}

var profileCreateCmd = &cobra.Command{
	Use:   "create NAME GAME_VERSION",
	Short: "Create a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		loaderName, _ := cmd.Flags().GetString("loader")
		loader, err := launcher.ParseLoaderKind(loaderName)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, err := a.Profiles().CreateProfile(ctx, args[0], args[1], loader)
			if err != nil {
				return err
			}
			fmt.Printf("Created profile %s (%s, %s)\n", p.Name, p.GameVersion, p.Loader)
			return nil
		})
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			profiles, err := a.Profiles().ListProfiles(ctx)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Println("No profiles.")
				return nil
			}
			for _, p := range profiles {
				fmt.Printf("%-20s  %-10s  %-8s  %-11s  %s\n",
					p.Name, p.GameVersion, p.Loader, p.State, p.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a profile and its manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, err := a.Profiles().GetProfile(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Name:     %s\n", p.Name)
			fmt.Printf("Version:  %s (launch %s)\n", p.GameVersion, p.LaunchVersion)
			fmt.Printf("Loader:   %s\n", p.Loader)
			fmt.Printf("State:    %s\n", p.State)
			fmt.Printf("Client:   %s\n", p.ClientPath)
			fmt.Printf("Entries:  %d\n", len(p.Manifest.Entries))
			for _, e := range p.Manifest.Entries {
				fmt.Printf("  %s  %10d  %s\n", e.Hash[:12], e.Size, e.Path)
			}
			return nil
		})
	},
}

var profileValidateCmd = &cobra.Command{
	Use:   "validate NAME",
	Short: "Resolve the manifest and report missing artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Profiles().Validate(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%d of %d entries missing\n", len(report.Missing), report.Total)
			for _, e := range report.Missing {
				fmt.Printf("  %s\n", e.Path)
			}
			return nil
		})
	},
}

var profileDownloadCmd = &cobra.Command{
	Use:   "download NAME",
	Short: "Download missing artifacts and mark the profile ready",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			pm := a.Profiles()
			if _, err := pm.Validate(ctx, args[0]); err != nil {
				return err
			}
			stop := followFeed(pm)
			report, err := pm.Download(ctx, args[0])
			stop()
			if err != nil {
				return err
			}
			fmt.Printf("Fetched %d, cached %d, %d bytes\n", report.Fetched, report.Cached, report.TotalBytes)
			return nil
		})
	},
}

var profileLaunchCmd = &cobra.Command{
	Use:   "launch NAME",
	Short: "Install and start the game, waiting for it to exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts launcher.StartupOptions
		opts.MinRAMMB, _ = cmd.Flags().GetInt("min-ram")
		opts.MaxRAMMB, _ = cmd.Flags().GetInt("max-ram")
		opts.FullScreen, _ = cmd.Flags().GetBool("fullscreen")
		opts.ServerAddress, _ = cmd.Flags().GetString("server")
		opts.ServerPort, _ = cmd.Flags().GetInt("port")
		opts.UserName, _ = cmd.Flags().GetString("user")
		opts.UserUUID, _ = cmd.Flags().GetString("uuid")
		opts.AccessToken, _ = cmd.Flags().GetString("token")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			proc, err := a.Profiles().CreateLaunchProcess(ctx, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Printf("Game started (pid %d)\n", proc.PID())
			a.Profiles().WaitForGames()
			return nil
		})
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a profile and release its artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Profiles().Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed profile %s\n", args[0])
			return nil
		})
	},
}

func init() {
	profileCmd.AddCommand(profileCreateCmd)
	profileCreateCmd.Flags().String("loader", "vanilla", "Mod loader")
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileValidateCmd)
	profileCmd.AddCommand(profileDownloadCmd)
	profileCmd.AddCommand(profileLaunchCmd)
	profileLaunchCmd.Flags().Int("min-ram", 512, "Minimum heap in MB")
	profileLaunchCmd.Flags().Int("max-ram", 2048, "Maximum heap in MB")
	profileLaunchCmd.Flags().Bool("fullscreen", false, "Start in full screen")
	profileLaunchCmd.Flags().String("server", "", "Server to connect to on start")
	profileLaunchCmd.Flags().Int("port", 0, "Server port")
	profileLaunchCmd.Flags().String("user", "Player", "Player name")
	profileLaunchCmd.Flags().String("uuid", "", "Player UUID")
	profileLaunchCmd.Flags().String("token", "", "Access token")
	profileCmd.AddCommand(profileRemoveCmd)
}
