package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlabs-hq/agency-ops/internal/config"
	"github.com/chatlabs-hq/agency-ops/internal/earnings"
)

func TestReadEarningsCSV(t *testing.T) {
	cfg = &config.Config{}
	cfg.Bonus.DefaultCurrency = "USD"

	input := strings.Join([]string{
		"worker_id,kind,amount_cents,currency,occurred_at,shift_id,source",
		"w-1,sale,2500,,2024-05-01T10:00:00Z,sh-1,platform",
		"w-1,refund,-500,EUR,2024-05-01T11:30:00Z,,platform",
		"w-2,,1000,,2024-05-01T12:00:00Z,,",
	}, "\n")

	entries, err := readEarningsCSV(strings.NewReader(input), "co-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "co-1", entries[0].CompanyID)
	assert.Equal(t, earnings.KindSale, entries[0].Kind)
	assert.Equal(t, int64(2500), entries[0].AmountCents)
	assert.Equal(t, "USD", entries[0].Currency)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), entries[0].OccurredAt)
	assert.Equal(t, "sh-1", entries[0].ShiftID)

	assert.Equal(t, earnings.KindRefund, entries[1].Kind)
	assert.Equal(t, int64(-500), entries[1].AmountCents)
	assert.Equal(t, "EUR", entries[1].Currency)

	// Kind defaults to sale when the column is empty.
	assert.Equal(t, earnings.KindSale, entries[2].Kind)
}

func TestReadEarningsCSV_MissingColumn(t *testing.T) {
	_, err := readEarningsCSV(strings.NewReader("worker_id,kind\nw-1,sale"), "co-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount_cents")
}

func TestReadEarningsCSV_BadAmount(t *testing.T) {
	input := "worker_id,amount_cents,occurred_at\nw-1,lots,2024-05-01T10:00:00Z"
	_, err := readEarningsCSV(strings.NewReader(input), "co-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount_cents")
}

func TestReadEarningsCSV_BadTimestamp(t *testing.T) {
	input := "worker_id,amount_cents,occurred_at\nw-1,1000,yesterday"
	_, err := readEarningsCSV(strings.NewReader(input), "co-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "occurred_at")
}
