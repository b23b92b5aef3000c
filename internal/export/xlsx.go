// Package export renders snapshot history as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

// SheetName is the worksheet holding history rows.
const SheetName = "История"

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []any{
	"Дата",
	"Запрос",
	"Регион",
	"Артикул",
	"Страница",
	"Позиция",
	"Артикул конкурента",
	"Страница конкурента",
	"Позиция конкурента",
	"Оценка",
}

// WriteHistory writes one row per snapshot and region, newest snapshot first as given.
func WriteHistory(w io.Writer, snaps []rank.Snapshot) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	row := 1
	if err := writeRow(sw, row, header); err != nil {
		return err
	}
	for _, snap := range snaps {
		for _, rr := range snap.Regions {
			row++
			if err := writeRow(sw, row, historyRow(snap, rr)); err != nil {
				return err
			}
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func historyRow(snap rank.Snapshot, rr rank.RegionRanks) []any {
	primary := rr.Ranks.Primary
	out := []any{
		snap.CreatedAt.Format("2006-01-02 15:04"),
		snap.Query,
		rr.Region.Name,
		snap.PrimaryID,
		cell(rank.FormatPage(primary.Rank, primary.Page)),
		cell(rank.FormatRank(primary.Rank)),
	}
	if snap.ReferenceID != "" {
		ref := rr.Ranks.Reference
		out = append(out,
			snap.ReferenceID,
			cell(rank.FormatPage(ref.Rank, ref.Page)),
			cell(rank.FormatRank(ref.Rank)),
		)
	} else {
		out = append(out, "", "", "")
	}
	estimate := "нет"
	if rr.Synthesized {
		estimate = "да"
	}
	return append(out, estimate)
}

// cell keeps numbers numeric so spreadsheet sorting works.
func cell(d rank.Display) any {
	if d.IsNumber() {
		return d.Value
	}
	return d.String()
}

func writeRow(sw *excelize.StreamWriter, row int, values []any) error {
	ref, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := sw.SetRow(ref, values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
