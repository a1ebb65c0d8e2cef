package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

var editCmd = &cobra.Command{
	Use:   "edit <id> <field> <value>",
	Short: "Change the shift or stock status of a record",
	Long: `Edit writes the change to the local cache and queues it, then pushes it to
the server. If the push fails the edit stays queued for "oretrack sync".

Fields: SHIFT (DAY, NIGHT) and STOCK_STATUS (BUILDING, COMPLETE, RECLAIMING,
DEPLETED). Values are case-insensitive.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		fs, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer fs.Close()

		res, err := fs.session.Edit(cmd.Context(), id, args[1], strings.ToUpper(strings.TrimSpace(args[2])))
		if err != nil {
			return err
		}
		pu := res.Pending
		cmd.Printf("Record %d %s: %s -> %s\n", pu.RecordID, pu.Field, pu.OldValue, pu.NewValue)
		if res.Synced {
			cmd.Println("Synced.")
		} else {
			cmd.Printf("Queued for sync (%v)\n", res.RemoteErr)
		}
		return nil
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk-update <id:FIELD=VALUE>...",
	Short: "Send several edits to the server in one request",
	Long: `bulk-update sends every edit in one request. The server applies each one
independently and reports the ones it rejected. Bulk edits are not queued
offline.

  oretrack bulk-update 3:SHIFT=NIGHT 4:STOCK_STATUS=COMPLETE`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items := make([]types.BulkUpdateItem, 0, len(args))
		for _, a := range args {
			item, err := parseBulkItem(a)
			if err != nil {
				return err
			}
			items = append(items, item)
		}

		res, err := newAPI().BulkUpdate(cmd.Context(), items)
		if err != nil {
			return err
		}
		cmd.Printf("Updated %d, failed %d\n", res.Successful, res.Failed)
		for _, e := range res.Errors {
			cmd.Printf("  record %d: %s\n", e.ID, e.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd, bulkCmd)
}

// parseBulkItem reads "id:FIELD=VALUE".
func parseBulkItem(s string) (types.BulkUpdateItem, error) {
	idPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return types.BulkUpdateItem{}, fmt.Errorf("invalid edit %q: want id:FIELD=VALUE", s)
	}
	field, value, ok := strings.Cut(rest, "=")
	if !ok || field == "" || value == "" {
		return types.BulkUpdateItem{}, fmt.Errorf("invalid edit %q: want id:FIELD=VALUE", s)
	}
	id, err := parseID(idPart)
	if err != nil {
		return types.BulkUpdateItem{}, err
	}
	return types.BulkUpdateItem{ID: id, Field: field, Value: strings.ToUpper(value)}, nil
}
