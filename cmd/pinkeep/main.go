package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	// stdout carries native messages when launched by the browser.
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	args := applyOriginAlias(os.Args)
	root := newRootCmd()
	root.SetArgs(args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("pinkeep command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pinkeep",
		Short:         "Keep pinned browser tabs across sessions and windows",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newHostCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newAddCurrentCmd())
	root.AddCommand(newManifestCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newVersionCmd())

	return root
}

const extensionOriginPrefix = "chrome-extension://"

// applyOriginAlias routes browser launches, which pass the calling extension
// origin as the first argument, to the host command.
func applyOriginAlias(args []string) []string {
	if len(args) < 2 || !strings.HasPrefix(args[1], extensionOriginPrefix) {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], "host")
	out = append(out, args[1:]...)
	return out
}
