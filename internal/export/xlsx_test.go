package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

func TestWriteHistory(t *testing.T) {
	t.Parallel()

	snaps := []rank.Snapshot{
		{
			Query:       "red shoes",
			PrimaryID:   "111",
			ReferenceID: "222",
			CreatedAt:   time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
			Regions: []rank.RegionRanks{
				{Region: rank.DefaultRegions[0], Ranks: rank.Ranks{
					Primary:   rank.RankRecord{Rank: 10, Page: 2},
					Reference: rank.RankRecord{},
				}},
				{Region: rank.DefaultRegions[1], Ranks: rank.Ranks{
					Primary: rank.RankRecord{Rank: 12, Page: 2},
				}, Synthesized: true},
			},
		},
		{
			Query:     "boots",
			PrimaryID: "333",
			CreatedAt: time.Date(2025, 3, 13, 9, 30, 0, 0, time.UTC),
			Regions:   []rank.RegionRanks{{Region: rank.DefaultRegions[0]}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHistory(&buf, snaps))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "Дата", rows[0][0])
	require.Equal(t, []string{"2025-03-14 09:30", "red shoes", "Москва", "111", "2", "10", "222", "-", "-", "нет"}, rows[1])
	require.Equal(t, "СПб", rows[2][2])
	require.Equal(t, "да", rows[2][9])
	require.Equal(t, "-", rows[3][5])
	require.Equal(t, "", rows[3][6])
}

func TestWriteHistoryEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteHistory(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
