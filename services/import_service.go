package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/sorteohub/sorteo-backend/models"
	"github.com/sorteohub/sorteo-backend/shared"
)

// ImportService parses uploaded spreadsheet-like files into a normalized
// header list plus one data mapping per row. Supported formats: CSV (the
// default), XLSX workbooks, and HTML table files ("Save as Web Page"
// spreadsheet exports). Parsing is a pure transformation of the uploaded
// bytes; nothing is persisted here.
type ImportService struct {
	serviceMetrics *shared.ServiceMetrics
}

// NewImportService creates a new import service instance
func NewImportService() *ImportService {
	return &ImportService{
		serviceMetrics: shared.NewServiceMetrics("Import_Service"),
	}
}

// accentFoldings maps the accented vowels and ñ that show up in Spanish
// headers to their ASCII equivalents. Applied after lowercasing, so only
// the lowercase forms are listed.
var accentFoldings = strings.NewReplacer(
	"á", "a",
	"é", "e",
	"í", "i",
	"ó", "o",
	"ú", "u",
	"ñ", "n",
)

var invalidHeaderChars = regexp.MustCompile(`[^a-z0-9_]`)

// NormalizeHeader converts a raw header cell into a stable field key:
// trim, lowercase, spaces to underscores, fold accents, then drop every
// remaining character outside [a-z0-9_].
//
//	"Nombre Completo" -> "nombre_completo"
//	" Cédula "        -> "cedula"
func (s *ImportService) NormalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = accentFoldings.Replace(normalized)
	return invalidHeaderChars.ReplaceAllString(normalized, "")
}

// ParseFile parses an uploaded file into headers and rows. The format is
// chosen from the declared filename's extension; anything unrecognized is
// treated as CSV. Only the first sheet of a workbook is consulted.
func (s *ImportService) ParseFile(data []byte, filename string) (*models.ImportResult, error) {
	start := time.Now()

	var cells [][]string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		cells, err = s.parseWorkbook(data)
	case ".htm", ".html":
		cells, err = s.parseHTMLTable(data)
	default:
		cells, err = s.parseCSV(data)
	}

	s.serviceMetrics.RecordRequest(err == nil, time.Since(start))

	if err != nil {
		return nil, err
	}

	result := s.buildResult(cells)

	logrus.WithFields(logrus.Fields{
		"filename": filename,
		"headers":  len(result.Headers),
		"rows":     result.Total,
	}).Info("Parsed tabular upload")

	return result, nil
}

// Validate checks the structural minimum: at least one header and one data
// row. Duplicate headers, type mismatches and malformed cells are accepted
// as-is.
func (s *ImportService) Validate(result *models.ImportResult) error {
	if result == nil || len(result.Headers) == 0 {
		return shared.ErrImportNoHeaders
	}
	if len(result.Rows) == 0 {
		return shared.ErrImportNoRows
	}
	return nil
}

// buildResult normalizes the header row and zips every data row against it
// positionally. Short rows leave their trailing keys absent from the
// mapping; extra trailing cells without a header are dropped.
func (s *ImportService) buildResult(cells [][]string) *models.ImportResult {
	if len(cells) == 0 {
		return &models.ImportResult{Headers: []string{}, Rows: []models.ParticipantData{}}
	}

	headers := make([]string, len(cells[0]))
	for i, h := range cells[0] {
		headers[i] = s.NormalizeHeader(h)
	}

	rows := make([]models.ParticipantData, 0, len(cells)-1)
	for _, record := range cells[1:] {
		row := make(models.ParticipantData, len(headers))
		for i, header := range headers {
			if i >= len(record) {
				break
			}
			row[header] = record[i]
		}
		rows = append(rows, row)
	}

	return &models.ImportResult{
		Headers: headers,
		Rows:    rows,
		Total:   len(rows),
	}
}

func (s *ImportService) parseCSV(data []byte) ([][]string, error) {
	// Strip the UTF-8 BOM that Excel prepends to CSV exports
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // rows may be shorter than the header row

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

func (s *ImportService) parseWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	// Only the first sheet is consulted
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook rows: %w", err)
	}

	return rows, nil
}

func (s *ImportService) parseHTMLTable(data []byte) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var records [][]string
	doc.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			records = append(records, cells)
		}
	})

	return records, nil
}

// GetServiceMetrics exposes the import metrics tracker
func (s *ImportService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.serviceMetrics
}
