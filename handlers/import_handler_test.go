package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorteohub/sorteo-backend/services"
)

func newImportTestApp(maxUploadBytes int) (*fiber.App, *services.StagingService) {
	staging := services.NewStagingService(time.Minute)
	handler := NewImportHandler(services.NewImportService(), staging, maxUploadBytes)

	app := fiber.New()
	app.Post("/api/v1/imports", handler.Upload)
	return app, staging
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	defer resp.Body.Close()
	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestUploadStagesCSV(t *testing.T) {
	app, staging := newImportTestApp(0)

	csvContent := "Nombre Completo,Cédula\nJuan Pérez,1234567\nMaría López,2345678\n"
	resp, err := app.Test(uploadRequest(t, "participantes.csv", csvContent))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, true, payload["success"])

	data := payload["data"].(map[string]interface{})
	assert.NotEmpty(t, data["import_id"])
	assert.Equal(t, []interface{}{"nombre_completo", "cedula"}, data["headers"])
	assert.Equal(t, float64(2), data["total"])
	assert.Len(t, data["preview"].([]interface{}), 2)

	assert.Equal(t, 1, staging.Len())
}

func TestUploadPreviewIsCapped(t *testing.T) {
	app, _ := newImportTestApp(0)

	var sb strings.Builder
	sb.WriteString("nombre\n")
	for i := 0; i < 10; i++ {
		sb.WriteString("fila\n")
	}

	resp, err := app.Test(uploadRequest(t, "big.csv", sb.String()))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	data := payload["data"].(map[string]interface{})
	assert.Equal(t, float64(10), data["total"])
	assert.Len(t, data["preview"].([]interface{}), 5)
}

func TestUploadRejectsMissingFile(t *testing.T) {
	app, _ := newImportTestApp(0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, false, payload["success"])
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	app, staging := newImportTestApp(0)

	resp, err := app.Test(uploadRequest(t, "vacio.csv", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, 0, staging.Len())
}

func TestUploadRejectsHeaderOnlyFile(t *testing.T) {
	app, _ := newImportTestApp(0)

	resp, err := app.Test(uploadRequest(t, "solo-cabecera.csv", "nombre,cedula\n"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUploadEnforcesSizeLimit(t *testing.T) {
	app, _ := newImportTestApp(16)

	resp, err := app.Test(uploadRequest(t, "grande.csv", "nombre\n"+strings.Repeat("x\n", 100)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
}
