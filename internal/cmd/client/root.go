package client

import (
	"github.com/spf13/cobra"

	"github.com/rzbill/taglog/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command holding the client commands.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "taglog",
		Short: "taglog client commands",
	}
	for _, c := range Commands(baseURL) {
		root.AddCommand(c)
	}
	return root
}

// Commands returns the client subcommands so they can be mounted on another
// root (the server binary mounts them next to "server").
func Commands(baseURL BaseURLFunc) []*cobra.Command {
	if baseURL == nil {
		baseURL = BaseURLFromEnv
	}
	t := transports.NewHTTPTransport(baseURL)
	return []*cobra.Command{
		newLogCommand(t),
		newGetCommand(t),
		newLatestCommand(t),
		newListenCommand(t),
		newCountCommand(t),
		newSweepCommand(t),
		newCleanupCommand(t),
		newNamespacesCommand(t),
	}
}
