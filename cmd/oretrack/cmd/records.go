package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/syncer"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search records by stock id or contractor",
	Long: `Search ranks records against the query: exact stock id first, then prefix,
then substring, then contractor matches. With no query the filtered records are
listed by id.

When the server cannot be reached the local cache is searched instead, which
also tolerates small typos in the stock id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := types.SearchParams{}
		if len(args) == 1 {
			p.Query = args[0]
		}
		p.Filters.Contractor, _ = cmd.Flags().GetString("contractor")
		p.Filters.Status, _ = cmd.Flags().GetString("status")
		p.Filters.DateStart, _ = cmd.Flags().GetString("from")
		p.Filters.DateEnd, _ = cmd.Flags().GetString("to")
		p.Page.Limit, _ = cmd.Flags().GetInt("limit")
		p.Page.Offset, _ = cmd.Flags().GetInt("offset")

		fs, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer fs.Close()

		res, src, err := fs.session.Search(cmd.Context(), p)
		if err != nil {
			return err
		}
		if src == syncer.SourceLocal {
			cmd.Println("Server unreachable, showing cached records.")
		}
		if len(res.Records) == 0 {
			cmd.Println("No records found.")
			return nil
		}
		printRecords(cmd, res.Records)
		cmd.Printf("\nShowing %d-%d of %d\n", p.Page.Offset+1, p.Page.Offset+len(res.Records), res.Pagination.Total)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
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

		rec, err := fs.api.Get(cmd.Context(), id)
		if errors.Is(err, types.ErrStoreUnavailable) {
			cmd.Println("Server unreachable, showing cached record.")
			rec, err = fs.cache.Get(cmd.Context(), id)
		}
		if err != nil {
			return err
		}
		printRecords(cmd, []types.Record{rec})
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the field changes recorded for a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		changes, err := newAPI().History(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			cmd.Println("No changes recorded.")
			return nil
		}
		printChanges(cmd, changes)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("contractor", "", "only records from this contractor")
	searchCmd.Flags().String("status", "", "only records with this stock status")
	searchCmd.Flags().String("from", "", "earliest date, YYYY-MM-DD")
	searchCmd.Flags().String("to", "", "latest date, YYYY-MM-DD")
	searchCmd.Flags().Int("limit", types.DefaultPageLimit, "page size")
	searchCmd.Flags().Int("offset", 0, "records to skip")

	rootCmd.AddCommand(searchCmd, getCmd, historyCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

func printRecords(cmd *cobra.Command, recs []types.Record) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTOCK ID\tCONTRACTOR\tDATE\tSHIFT\tSTATUS")
	for _, r := range recs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.StockID, r.Contractor, r.Date, r.Shift, r.Status)
	}
	w.Flush()
}

func printChanges(cmd *cobra.Command, changes []store.FieldChange) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CHANGED AT\tFIELD\tOLD\tNEW")
	for _, c := range changes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ChangedAt.Format("2006-01-02 15:04:05"), c.Field, c.OldValue, c.NewValue)
	}
	w.Flush()
}
