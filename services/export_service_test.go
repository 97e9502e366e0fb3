package services

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sorteohub/sorteo-backend/models"
)

func exportFixture() (*models.Draw, []models.Winner) {
	draw := &models.Draw{
		Name:            "Sorteo Navidad",
		AvailableFields: models.StringList{"nombre_completo", "cedula"},
	}

	wonAt := time.Date(2025, 12, 24, 20, 30, 0, 0, time.UTC)
	winners := []models.Winner{
		{
			WonAt: wonAt,
			Participant: &models.Participant{
				DisplayValue: "Juan Pérez",
				Data:         models.ParticipantData{"nombre_completo": "Juan Pérez", "cedula": "1234567"},
			},
		},
		{
			WonAt: wonAt.Add(time.Minute),
			Participant: &models.Participant{
				DisplayValue: "María López",
				Data:         models.ParticipantData{"nombre_completo": "María López", "cedula": "2345678"},
			},
		},
	}
	return draw, winners
}

func TestWriteWinnersCSV(t *testing.T) {
	s := NewExportService()
	draw, winners := exportFixture()

	var buf bytes.Buffer
	require.NoError(t, s.WriteWinnersCSV(&buf, draw, winners))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\xef\xbb\xbf"), "CSV must start with a UTF-8 BOM")

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\xef\xbb\xbf"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"Position", "Display Name", "Win Timestamp", "Nombre completo", "Cedula"}, records[0])
	assert.Equal(t, []string{"1", "Juan Pérez", "24/12/2025 20:30:00", "Juan Pérez", "1234567"}, records[1])
	assert.Equal(t, []string{"2", "María López", "24/12/2025 20:31:00", "María López", "2345678"}, records[2])
}

func TestWriteWinnersCSVSkipsDanglingWinner(t *testing.T) {
	s := NewExportService()
	draw, winners := exportFixture()
	winners = append(winners, models.Winner{WonAt: time.Now()})

	var buf bytes.Buffer
	require.NoError(t, s.WriteWinnersCSV(&buf, draw, winners))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\xef\xbb\xbf"))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestWriteWinnersXLSX(t *testing.T) {
	s := NewExportService()
	draw, winners := exportFixture()

	var buf bytes.Buffer
	require.NoError(t, s.WriteWinnersXLSX(&buf, draw, winners))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Position", "Display Name", "Win Timestamp", "Nombre completo", "Cedula"}, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Juan Pérez", rows[1][1])
	assert.Equal(t, "2345678", rows[2][4])
}

func TestWriteWinnersEmptyList(t *testing.T) {
	s := NewExportService()
	draw, _ := exportFixture()

	var buf bytes.Buffer
	require.NoError(t, s.WriteWinnersCSV(&buf, draw, nil))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\xef\xbb\xbf"))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1, "header row only")
}

func TestPrettifyField(t *testing.T) {
	assert.Equal(t, "Nombre completo", prettifyField("nombre_completo"))
	assert.Equal(t, "Cedula", prettifyField("cedula"))
	assert.Equal(t, "", prettifyField(""))
}
