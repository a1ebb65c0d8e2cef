package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

var contractorsCmd = &cobra.Command{
	Use:   "contractors",
	Short: "List contractors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDistinct(cmd,
			func(fs *fieldSession, ctx context.Context) ([]string, error) { return fs.api.Contractors(ctx) },
			func(fs *fieldSession, ctx context.Context) ([]string, error) { return fs.cache.Contractors(ctx) },
		)
	},
}

var statusesCmd = &cobra.Command{
	Use:   "statuses",
	Short: "List stock statuses in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDistinct(cmd,
			func(fs *fieldSession, ctx context.Context) ([]string, error) { return fs.api.Statuses(ctx) },
			func(fs *fieldSession, ctx context.Context) ([]string, error) { return fs.cache.Statuses(ctx) },
		)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the server and the local queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer fs.Close()

		h, err := fs.api.Health(cmd.Context())
		if err != nil {
			cmd.Printf("Server:   unreachable (%v)\n", err)
		} else {
			cmd.Printf("Server:   %s\n", h.Status)
			cmd.Printf("Store:    %s (connected: %t)\n", h.Store, h.StoreConnected)
		}

		n, err := fs.cache.PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Pending:  %d\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contractorsCmd, statusesCmd, healthCmd)
}

type distinctFunc func(fs *fieldSession, ctx context.Context) ([]string, error)

// listDistinct prints the server's list, or the cache's when the server is
// unreachable.
func listDistinct(cmd *cobra.Command, remote, local distinctFunc) error {
	fs, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer fs.Close()

	vals, err := remote(fs, cmd.Context())
	if errors.Is(err, types.ErrStoreUnavailable) {
		cmd.Println("Server unreachable, showing cached values.")
		vals, err = local(fs, cmd.Context())
	}
	if err != nil {
		return err
	}
	for _, v := range vals {
		cmd.Println(v)
	}
	return nil
}
