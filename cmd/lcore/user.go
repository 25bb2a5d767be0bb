package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"launcher-core/internal/app"
	"launcher-core/internal/launcher"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect users and manage hardware bans",
}

func fingerprintFlags(cmd *cobra.Command) {
	cmd.Flags().String("cpu", "", "CPU identifier")
	cmd.Flags().String("motherboard", "", "Motherboard identifier")
	cmd.Flags().StringSlice("disk", nil, "Disk identifier (repeatable)")
}

func fingerprintFrom(cmd *cobra.Command) (launcher.HardwareFingerprint, error) {
	var fp launcher.HardwareFingerprint
	fp.CPU, _ = cmd.Flags().GetString("cpu")
	fp.Motherboard, _ = cmd.Flags().GetString("motherboard")
	fp.Disks, _ = cmd.Flags().GetStringSlice("disk")
	if len(fp.Components()) == 0 {
		return fp, fmt.Errorf("at least one of --cpu, --motherboard or --disk is required")
	}
	return fp, nil
}

// withIdentity is withApp for commands that need the identity core.
func withIdentity(cmd *cobra.Command, fn func(ctx context.Context, id *launcher.Identity) error) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		id, err := a.Identity()
		if err != nil {
			return err
		}
		return fn(ctx, id)
	})
}

var userBanCmd = &cobra.Command{
	Use:   "ban",
	Short: "Ban hardware components",
	RunE: func(cmd *cobra.Command, args []string) error {
		fp, err := fingerprintFrom(cmd)
		if err != nil {
			return err
		}
		return withIdentity(cmd, func(ctx context.Context, id *launcher.Identity) error {
			if err := id.BlockHardware(ctx, fp); err != nil {
				return err
			}
			fmt.Printf("Banned %d component(s)\n", len(fp.Components()))
			return nil
		})
	},
}

var userUnbanCmd = &cobra.Command{
	Use:   "unban",
	Short: "Lift hardware bans",
	RunE: func(cmd *cobra.Command, args []string) error {
		fp, err := fingerprintFrom(cmd)
		if err != nil {
			return err
		}
		return withIdentity(cmd, func(ctx context.Context, id *launcher.Identity) error {
			if err := id.UnblockHardware(ctx, fp); err != nil {
				return err
			}
			fmt.Printf("Unbanned %d component(s)\n", len(fp.Components()))
			return nil
		})
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show UUID",
	Short: "Show a user and their sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIdentity(cmd, func(ctx context.Context, id *launcher.Identity) error {
			u, err := id.FindUser(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("UUID:     %s\n", u.UUID)
			fmt.Printf("Name:     %s\n", u.Name)
			fmt.Printf("Expires:  %s\n", u.ExpiredDate.Format("2006-01-02 15:04:05"))
			fmt.Printf("Device:   %s from %s\n", u.DeviceID, u.SourceAddress)
			fmt.Printf("Hardware: cpu=%s motherboard=%s disks=%s\n",
				u.Fingerprint.CPU, u.Fingerprint.Motherboard, strings.Join(u.Fingerprint.Disks, ","))
			fmt.Printf("Banned:   %t\n", u.IsBanned)
			fmt.Printf("Sessions: %d\n", len(u.Sessions))
			for _, s := range u.Sessions {
				end := "open"
				if s.End != nil {
					end = s.End.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("  %s  %s  %s\n", s.ID, s.Start.Format("2006-01-02 15:04:05"), end)
			}
			return nil
		})
	},
}

var userRevokeCmd = &cobra.Command{
	Use:   "revoke UUID",
	Short: "Invalidate a user's tokens and close their sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIdentity(cmd, func(ctx context.Context, id *launcher.Identity) error {
			if err := id.Revoke(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Revoked tokens of %s\n", args[0])
			return nil
		})
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate against the local identity core",
}

var authLoginCmd = &cobra.Command{
	Use:   "login LOGIN",
	Short: "Authenticate and print the issued tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret("Password: ")
		if err != nil {
			return err
		}
		var fp launcher.HardwareFingerprint
		fp.CPU, _ = cmd.Flags().GetString("cpu")
		fp.Motherboard, _ = cmd.Flags().GetString("motherboard")
		fp.Disks, _ = cmd.Flags().GetStringSlice("disk")

		return withIdentity(cmd, func(ctx context.Context, id *launcher.Identity) error {
			res, err := id.Authenticate(ctx, launcher.AuthRequest{
				Login:         args[0],
				Secret:        secret,
				SourceAddress: "cli",
				Fingerprint:   fp,
			})
			if err != nil {
				return err
			}
			if _, err := id.StartSession(ctx, res.User.UUID); err != nil {
				return err
			}
			fmt.Printf("UUID:          %s\n", res.User.UUID)
			fmt.Printf("Name:          %s\n", res.User.Name)
			fmt.Printf("Access token:  %s\n", res.User.AccessToken)
			fmt.Printf("Refresh token: %s\n", res.RefreshToken)
			fmt.Printf("Expires:       %s\n", res.User.ExpiredDate.Format("2006-01-02 15:04:05"))
			return nil
		})
	},
}

func init() {
	fingerprintFlags(userBanCmd)
	fingerprintFlags(userUnbanCmd)
	userCmd.AddCommand(userBanCmd)
	userCmd.AddCommand(userUnbanCmd)
	userCmd.AddCommand(userShowCmd)
	userCmd.AddCommand(userRevokeCmd)

	fingerprintFlags(authLoginCmd)
	authCmd.AddCommand(authLoginCmd)
}
