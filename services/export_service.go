package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sorteohub/sorteo-backend/models"
)

const winnerTimestampLayout = "02/01/2006 15:04:05"

// ExportService turns a draw's ordered winner list into a downloadable
// spreadsheet: position, display value and win time, followed by every
// available field of the draw.
type ExportService struct{}

// NewExportService creates a new export service instance
func NewExportService() *ExportService {
	return &ExportService{}
}

// headerRow builds the export header: the fixed columns plus one column per
// available field, prettified from its normalized key
func (s *ExportService) headerRow(draw *models.Draw) []string {
	headers := []string{"Position", "Display Name", "Win Timestamp"}
	for _, field := range draw.AvailableFields {
		headers = append(headers, prettifyField(field))
	}
	return headers
}

func (s *ExportService) winnerRow(position int, winner models.Winner, draw *models.Draw) []string {
	row := []string{
		strconv.Itoa(position),
		winner.Participant.DisplayValue,
		winner.WonAt.Format(winnerTimestampLayout),
	}
	for _, field := range draw.AvailableFields {
		row = append(row, winner.Participant.Data.Get(field))
	}
	return row
}

// WriteWinnersCSV streams the winner list as UTF-8 CSV. The leading BOM
// keeps Excel from misreading accented characters.
func (s *ExportService) WriteWinnersCSV(w io.Writer, draw *models.Draw, winners []models.Winner) error {
	if _, err := w.Write([]byte("\xef\xbb\xbf")); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(w)

	if err := writer.Write(s.headerRow(draw)); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, winner := range winners {
		if winner.Participant == nil {
			continue
		}
		if err := writer.Write(s.winnerRow(i+1, winner, draw)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteWinnersXLSX writes the winner list as an XLSX workbook with a bold
// header row
func (s *ExportService) WriteWinnersXLSX(w io.Writer, draw *models.Draw, winners []models.Winner) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	headers := s.headerRow(draw)
	for col, value := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to build cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	lastHeader, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to build cell name: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	rowIndex := 2
	for i, winner := range winners {
		if winner.Participant == nil {
			continue
		}
		for col, value := range s.winnerRow(i+1, winner, draw) {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIndex)
			if err != nil {
				return fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write cell: %w", err)
			}
		}
		rowIndex++
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// prettifyField turns a normalized field key back into a readable column
// title: "nombre_completo" -> "Nombre completo"
func prettifyField(field string) string {
	pretty := strings.ReplaceAll(field, "_", " ")
	if pretty == "" {
		return pretty
	}
	return strings.ToUpper(pretty[:1]) + pretty[1:]
}
