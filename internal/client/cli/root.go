package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/bulletinkeeper/internal/client/config"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/spf13/cobra"
)

// passphraseEnv lets unattended runs (cron "send") skip the prompt.
const passphraseEnv = config.EnvPrefix + "_PASSPHRASE"

// getPassword is an indirection used to facilitate testing.
var getPassword = GetPassword

// Configuration flags (-a, -d, -c ...) are parsed by the config package, so
// every command tolerates flags it does not declare itself.
var lenientFlags = cobra.FParseErrWhitelist{UnknownFlags: true}

// NewRootCommand builds the client command line. Without a subcommand it
// unlocks the key pair and starts the interactive shell.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:                "bulletin-client",
		Short:              "Write, seal and back up bulletins",
		Long:               "Write bulletins offline, seal them and back them up to a bulletin server.",
		FParseErrWhitelist: lenientFlags,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *App) error {
				a.Run(ctx)
				return nil
			})
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:                "keygen",
			Short:              "Create the key pair file if it does not exist and print the public code",
			FParseErrWhitelist: lenientFlags,
			RunE:               runKeygen,
		},
		&cobra.Command{
			Use:                "upload",
			Aliases:            []string{"send"},
			Short:              "Upload every bulletin waiting in the outboxes",
			FParseErrWhitelist: lenientFlags,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *App) error { return a.Send(ctx) })
			},
		},
		&cobra.Command{
			Use:                "retrieve",
			Short:              "Download this account's sealed bulletins from the server",
			FParseErrWhitelist: lenientFlags,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *App) error { return a.Retrieve(ctx) })
			},
		},
		&cobra.Command{
			Use:                "folders",
			Short:              "List folders and their bulletin counts",
			FParseErrWhitelist: lenientFlags,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *App) error { return a.Folders(ctx) })
			},
		},
		&cobra.Command{
			Use:                "search <text> [from] [to]",
			Short:              "Collect matching bulletins into the search results folder",
			Args:               cobra.RangeArgs(1, 3),
			FParseErrWhitelist: lenientFlags,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *App) error { return a.Search(ctx, args) })
			},
		},
		&cobra.Command{
			Use:                "export <folder|id>",
			Short:              "Export a folder as XML or a bulletin as an archive",
			Args:               cobra.ExactArgs(1),
			FParseErrWhitelist: lenientFlags,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *App) error { return a.Export(ctx, args) })
			},
		},
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cfg := config.LoadConfig()
	pass, err := passphrase(cmd)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	security := cryptox.NewSecurity()
	created, err := cryptox.LoadOrCreateKeyPairFile(security, cfg.KeyPairFile, pass)
	if err != nil {
		return err
	}
	defer security.ClearKeyPair()

	code, err := cryptox.ComputePublicCode(security.PublicKeyString())
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", cfg.KeyPairFile)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Public key:  %s\nPublic code: %s\n", security.PublicKeyString(), code)
	return nil
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	ctx := cmd.Context()
	cfg := config.LoadConfig()
	pass, err := passphrase(cmd)
	if err != nil {
		return err
	}
	a, err := NewApp(ctx, cfg, pass)
	common.WipeByteArray(pass)
	if err != nil {
		return err
	}
	a.out = cmd.OutOrStdout()

	runErr := fn(ctx, a)
	if err := a.Close(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func passphrase(cmd *cobra.Command) ([]byte, error) {
	if v, ok := os.LookupEnv(passphraseEnv); ok {
		return []byte(v), nil
	}
	return getPassword(cmd.ErrOrStderr(), "Key pair passphrase")
}
