package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/syncer"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List edits waiting to be pushed to the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer fs.Close()

		pending, err := fs.cache.PendingUpdates(cmd.Context())
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			cmd.Println("No pending updates.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RECORD\tFIELD\tOLD\tNEW\tQUEUED AT")
		for _, pu := range pending {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", pu.RecordID, pu.Field, pu.OldValue, pu.NewValue, pu.CreatedAt.Local().Format(time.DateTime))
		}
		w.Flush()
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued edits to the server once",
	Long:  `Sync pushes queued edits in the order they were made. The newest edit of a field wins on the server: once it is accepted, older queued edits of that field are dropped.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer fs.Close()

		res, err := syncer.New(fs.api, fs.cache, 0, fs.logger).Flush(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Attempted %d, synced %d, failed %d\n", res.Attempted, res.Synced, res.Failed)
		return printRemaining(cmd, fs)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep pushing queued edits until interrupted",
	Long:  `Watch checks the server on every tick and pushes queued edits whenever it answers.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")

		fs, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer fs.Close()

		ctx := cmd.Context()
		s := syncer.New(fs.api, fs.cache, interval, fs.logger)
		s.Start(ctx)
		cmd.Printf("Watching %s every %s, Ctrl-C to stop\n", cachePath(), interval)

		<-ctx.Done()
		s.Stop()
		return printRemaining(cmd, fs)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Replace the local cache with the server's records",
	Long:  `Refresh downloads every record. Queued edits are applied again on top of the fresh copy.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer fs.Close()

		n, err := fs.session.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Cached %d records\n", n)
		return printRemaining(cmd, fs)
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 30*time.Second, "time between sync attempts")

	rootCmd.AddCommand(pendingCmd, syncCmd, watchCmd, refreshCmd)
}

func printRemaining(cmd *cobra.Command, fs *fieldSession) error {
	n, err := fs.cache.PendingCount(context.WithoutCancel(cmd.Context()))
	if err != nil {
		return err
	}
	if n > 0 {
		cmd.Printf("%d edit(s) still pending\n", n)
	}
	return nil
}
