package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatlabs-hq/agency-ops/internal/earnings"
)

var earningsCmd = &cobra.Command{
	Use:   "earnings",
	Short: "Earnings ledger operations",
}

var (
	importFile    string
	importCompany string
)

// earnings import loads an exported platform statement into the ledger.
// Expected columns: worker_id, kind, amount_cents, currency, occurred_at
// (RFC3339), shift_id, source.
var earningsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load a CSV earnings export into the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importFile)
		if err != nil {
			return eris.Wrapf(err, "open %s", importFile)
		}
		defer f.Close()

		entries, err := readEarningsCSV(f, importCompany)
		if err != nil {
			return err
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := earnings.NewPostgresStore(pool)
		n, err := store.BulkImport(ctx, entries)
		if err != nil {
			return err
		}

		zap.L().Info("earnings imported",
			zap.String("file", importFile),
			zap.Int64("rows", n),
		)
		fmt.Printf("Imported %d earnings rows\n", n)
		return nil
	},
}

func readEarningsCSV(r io.Reader, companyID string) ([]earnings.Entry, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read csv header")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"worker_id", "amount_cents", "occurred_at"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("csv missing required column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var entries []earnings.Entry
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "read csv line %d", line)
		}

		amount, err := strconv.ParseInt(field(rec, "amount_cents"), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "csv line %d: amount_cents", line)
		}
		occurredAt, err := time.Parse(time.RFC3339, field(rec, "occurred_at"))
		if err != nil {
			return nil, eris.Wrapf(err, "csv line %d: occurred_at", line)
		}

		kind := earnings.Kind(field(rec, "kind"))
		if kind == "" {
			kind = earnings.KindSale
		}
		currency := field(rec, "currency")
		if currency == "" {
			currency = cfg.Bonus.DefaultCurrency
		}

		entries = append(entries, earnings.Entry{
			CompanyID:   companyID,
			WorkerID:    field(rec, "worker_id"),
			Kind:        kind,
			AmountCents: amount,
			Currency:    currency,
			OccurredAt:  occurredAt,
			ShiftID:     field(rec, "shift_id"),
			Source:      field(rec, "source"),
		})
	}
	return entries, nil
}

func init() {
	earningsImportCmd.Flags().StringVar(&importFile, "file", "", "CSV file to import")
	earningsImportCmd.Flags().StringVar(&importCompany, "company", "", "company id the rows belong to")
	_ = earningsImportCmd.MarkFlagRequired("file")
	_ = earningsImportCmd.MarkFlagRequired("company")

	earningsCmd.AddCommand(earningsImportCmd)
	rootCmd.AddCommand(earningsCmd)
}
