// Command oretrack-import loads stockpile records from workbooks or YAML
// files into the relational store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/oretrack/internal/config"
	"github.com/BrandonDHaskell/oretrack/internal/db"
	"github.com/BrandonDHaskell/oretrack/internal/ingest"
	"github.com/BrandonDHaskell/oretrack/internal/logging"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store/sqlstore"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// upserter is the ingestion side of a record store.
type upserter interface {
	UpsertRecords(ctx context.Context, recs []types.Record) (int, error)
}

type options struct {
	sheet  string
	dryRun bool
	strict bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "oretrack-import <file>...",
		Short: "Load records from .xlsx or .yaml files",
		Long: `oretrack-import reads each file and upserts its records by ID into the store
configured by the ORETRACK_DB_* environment (or .env).

Workbooks need a header row with ID, CONTRACTOR, DATE, SHIFT, STOCK_ID and
STOCK_STATUS in any order and case. Rows that fail validation are reported
and skipped unless --strict is set.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.NewWithOutput(cmd.ErrOrStderr(), cfg.Env, cfg.LogLevel)

			if opts.dryRun {
				_, err := importFiles(cmd.Context(), cmd.OutOrStdout(), nil, args, opts, logger)
				return err
			}

			conn, dialect, err := db.Open(cmd.Context(), db.Config{
				Driver:   cfg.DBDriver,
				Path:     cfg.DBPath,
				URL:      cfg.DBURL,
				Env:      cfg.Env,
				MaxConns: cfg.DBMaxConns,
			})
			if err != nil {
				return err
			}
			defer conn.Close()
			writer := db.NewWorker(conn)
			defer writer.Close()

			_, err = importFiles(cmd.Context(), cmd.OutOrStdout(), sqlstore.New(conn, writer, dialect), args, opts, logger)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "workbook sheet to read (default is the first)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "parse and validate without writing")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "write nothing from a file that has bad rows")
	return cmd
}

// importFiles reads every file and upserts the good records into st. A nil
// st only validates. The returned count is the number of records written.
func importFiles(ctx context.Context, out io.Writer, st upserter, files []string, opts options, logger logrus.FieldLogger) (int, error) {
	total := 0
	var failed []error

	for _, path := range files {
		log := logger.WithField("file", path)

		recs, err := readFile(path, opts.sheet)
		var rowErrs []error
		if err != nil {
			var rowErr *ingest.RowError
			if !errors.As(err, &rowErr) {
				failed = append(failed, fmt.Errorf("%s: %w", path, err))
				log.WithError(err).Error("file skipped")
				continue
			}
			rowErrs = unjoin(err)
			for _, re := range rowErrs {
				fmt.Fprintf(out, "%s: %v\n", path, re)
			}
			if opts.strict {
				failed = append(failed, fmt.Errorf("%s: %d bad row(s)", path, len(rowErrs)))
				continue
			}
		}

		if st == nil {
			fmt.Fprintf(out, "%s: %d valid, %d rejected (dry run)\n", path, len(recs), len(rowErrs))
			continue
		}

		n, err := st.UpsertRecords(ctx, recs)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
			log.WithError(err).Error("upsert failed")
			continue
		}
		total += n
		fmt.Fprintf(out, "%s: %d imported, %d rejected\n", path, n, len(rowErrs))
		log.WithFields(logrus.Fields{"imported": n, "rejected": len(rowErrs)}).Info("file imported")
	}
	return total, errors.Join(failed...)
}

func readFile(path, sheet string) ([]types.Record, error) {
	if sheet == "" {
		return ingest.FromFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingest.FromWorkbook(f, sheet)
}

// unjoin flattens an errors.Join result.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
