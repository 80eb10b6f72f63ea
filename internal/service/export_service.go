package service

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Schedule"

// ExportSchedule renders posts as a workbook in the schedule tab layout with
// an extra derived status column.
func ExportSchedule(posts []models.ScheduledPost, loc *time.Location) (*bytes.Buffer, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	header := append(append([]string{}, repository.ScheduleHeader...), "Derived Status", "Row")
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, p := range posts {
		urls := make([]string, len(p.MediaItems))
		for j, m := range p.MediaItems {
			urls[j] = m.URL
		}
		at := p.ScheduledTime.In(loc)
		row := []interface{}{
			p.Day, at.Format("2006-01-02"), at.Format("15:04"), p.Theme, p.Title, p.Caption,
			p.Script, p.CTA, string(p.StoredStatus), strings.Join(urls, ", "), string(p.Status), p.RowIndex,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("error writing row %d: %w", p.RowIndex, err)
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	return f.WriteToBuffer()
}
