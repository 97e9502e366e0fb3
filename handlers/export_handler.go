package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sorteohub/sorteo-backend/services"
)

type ExportHandler struct {
	Draws    *services.DrawService
	Exporter *services.ExportService
}

func NewExportHandler(draws *services.DrawService, exporter *services.ExportService) *ExportHandler {
	return &ExportHandler{Draws: draws, Exporter: exporter}
}

// ExportWinners downloads the winner list as CSV (default) or XLSX
func (h *ExportHandler) ExportWinners(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	draw, err := h.Draws.GetDrawByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	if draw == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "draw not found",
		})
	}

	winners, err := h.Draws.ListWinners(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	filename := fmt.Sprintf("winners_%s_%s", slugify(draw.Name), time.Now().Format("2006-01-02"))

	switch c.Query("format", "csv") {
	case "xlsx":
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s.xlsx", filename))
		if err := h.Exporter.WriteWinnersXLSX(c.Response().BodyWriter(), draw, winners); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
	default:
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s.csv", filename))
		if err := h.Exporter.WriteWinnersCSV(c.Response().BodyWriter(), draw, winners); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
	}

	return nil
}

// slugify reduces a draw name to a filename-safe token
func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	var out strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			out.WriteRune(r)
		}
	}
	if out.Len() == 0 {
		return "draw"
	}
	return out.String()
}
