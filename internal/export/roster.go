package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var rosterColumns = []string{
	"Booking ID", "First name", "Middle name", "Last name", "Department",
	"Email", "Resume", "Status", "Booked at",
}

// FileName is the download name of a slot roster.
func FileName(s *model.Slot) string {
	return fmt.Sprintf("roster_%s_%s_%s.xlsx", s.Kind, s.Date, sanitizeTime(s.Time))
}

// sanitizeTime drops ':' which is not allowed in sheet names.
func sanitizeTime(t string) string {
	return strings.ReplaceAll(t, ":", "-")
}

// WriteRoster writes the slot's bookings as a single-sheet workbook.
func WriteRoster(w io.Writer, slot *model.Slot, bookings []model.Booking) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := fmt.Sprintf("%s %s", slot.Date, sanitizeTime(slot.Time))
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	summary := fmt.Sprintf("%s slot on %s at %s: %d of %d seats booked",
		slot.Kind, slot.Date, slot.Time, slot.Booked, slot.Limit)
	if err := f.SetCellValue(sheet, "A1", summary); err != nil {
		return err
	}

	const headerRow = 3
	for i, col := range rosterColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, headerRow)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, headerRow)
		end, _ := excelize.CoordinatesToCellName(len(rosterColumns), headerRow)
		_ = f.SetCellStyle(sheet, start, end, style)
	}

	for i, b := range bookings {
		resume := b.ResumeLink
		if resume == "" {
			resume = b.ResumeFile
		}
		row := []any{
			b.ID, b.FirstName, b.MiddleName, b.LastName, b.Department,
			b.Email, resume, string(b.Status), b.CreatedAt.Format("2006-01-02 15:04"),
		}
		start, err := excelize.CoordinatesToCellName(1, headerRow+1+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	return f.Write(w)
}
