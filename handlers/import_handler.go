package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/sorteohub/sorteo-backend/services"
	"github.com/sorteohub/sorteo-backend/shared"
)

const previewRows = 5

type ImportHandler struct {
	Importer       *services.ImportService
	Staging        *services.StagingService
	MaxUploadBytes int
}

func NewImportHandler(importer *services.ImportService, staging *services.StagingService, maxUploadBytes int) *ImportHandler {
	return &ImportHandler{
		Importer:       importer,
		Staging:        staging,
		MaxUploadBytes: maxUploadBytes,
	}
}

// Upload parses a spreadsheet file, stages the result and returns the
// staged import id with a preview. The client passes the id into the
// create-draw step.
func (h *ImportHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "file is required",
		})
	}
	if h.MaxUploadBytes > 0 && fileHeader.Size > int64(h.MaxUploadBytes) {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"success": false,
			"error":   "file exceeds the upload size limit",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "failed to open uploaded file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "failed to read uploaded file",
		})
	}

	result, err := h.Importer.ParseFile(data, fileHeader.Filename)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	if err := h.Importer.Validate(result); err != nil {
		if errors.Is(err, shared.ErrImportNoHeaders) || errors.Is(err, shared.ErrImportNoRows) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	importID := h.Staging.Put(result)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"import_id": importID,
			"headers":   result.Headers,
			"preview":   result.Preview(previewRows),
			"total":     result.Total,
		},
	})
}
