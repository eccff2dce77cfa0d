// Command craftconnect runs the session gateway and the small admin tasks
// around it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/app"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/domain"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/events"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/service"
	"github.com/aussiebroadwan/craftconnect/pkg/cryptox"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "craftconnect",
		Short: "CraftConnect session gateway",
		Long: `Session gateway for CraftConnect. Mints access/refresh pairs for
identities confirmed by the identity provider, rotates refresh tokens and
mirrors sessions into HttpOnly cookies.

Configuration comes from the environment, optionally layered over the YAML
file named by CRAFTCONNECT_CONFIG. Running without a subcommand serves.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	cmd.AddCommand(
		serveCmd(),
		mintCmd(),
		profileCmd(),
		secretCmd(),
		versionCmd(),
	)
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run()
}

func mintCmd() *cobra.Command {
	var (
		id     jwtx.Identity
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Issue a token pair for an identity",
		Long: `Records the identity as a profile and issues a pair for it, exactly as a
login through the identity provider would. Useful for local testing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			codec, err := jwtx.NewCodec(cfg.CodecConfig())
			if err != nil {
				return err
			}
			db, err := app.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := &service.SessionService{Store: db, Issuer: jwtx.NewIssuer(codec), Events: events.Discard{}}
			pair, err := svc.Login(cmd.Context(), id)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(pair)
			}

			green := color.New(color.FgGreen)
			cyan := color.New(color.FgCyan)

			fmt.Println()
			cyan.Println("  Token pair")
			cyan.Println("  ----------")
			fmt.Printf("  UID:             %s\n", id.UID)
			green.Printf("  Access token:    ")
			fmt.Println(pair.AccessToken)
			green.Printf("  Refresh token:   ")
			fmt.Println(pair.RefreshToken)
			fmt.Printf("  Access expires:  %s\n", time.Duration(pair.ExpiresIn)*time.Millisecond)
			fmt.Printf("  Refresh expires: %s\n", time.Duration(pair.RefreshExpiresIn)*time.Millisecond)
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&id.UID, "uid", "", "User id (required)")
	cmd.Flags().StringVar(&id.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&id.Username, "username", "", "Display name (defaults to the email local part)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the pair as JSON")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the gateway's copy of user profiles",
	}

	var p domain.Profile
	set := &cobra.Command{
		Use:   "set",
		Short: "Create or update a profile",
		Long: `Refreshed access tokens carry the profile on file, so updating it here
changes what the next refresh mints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			db, err := app.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if p.Username == "" {
				p.Username = domain.FallbackUsername(p.Email)
			}
			if err := db.Profiles().UpsertProfile(cmd.Context(), p); err != nil {
				return err
			}

			color.New(color.FgGreen).Printf("  Saved profile ")
			fmt.Printf("%s (%s)\n", p.UID, p.Username)
			return nil
		},
	}
	set.Flags().StringVar(&p.UID, "uid", "", "User id (required)")
	set.Flags().StringVar(&p.Email, "email", "", "Email address")
	set.Flags().StringVar(&p.Username, "username", "", "Display name")
	_ = set.MarkFlagRequired("uid")

	var uid string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove a profile; its refresh tokens stop working",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			db, err := app.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := db.Profiles().DeleteProfile(ctx, uid); err != nil {
				return err
			}
			color.New(color.FgYellow).Printf("  Deleted profile ")
			fmt.Println(uid)
			return nil
		},
	}
	del.Flags().StringVar(&uid, "uid", "", "User id (required)")
	_ = del.MarkFlagRequired("uid")

	cmd.AddCommand(set, del)
	return cmd
}

func secretCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate signing secrets as environment lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < cryptox.MinSecretSize {
				return fmt.Errorf("size must be at least %d bytes", cryptox.MinSecretSize)
			}
			out := cmd.OutOrStdout()
			for _, name := range []string{"JWT_SECRET", "JWT_REFRESH_SECRET", "IDENTITY_SECRET"} {
				s, err := cryptox.GenerateSecret(size)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s=%s\n", name, s)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", cryptox.SecretSize256, "Random bytes per secret")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "craftconnect version %s\n", app.BuildVersion)
		},
	}
}
