package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sorteohub/sorteo-backend/models"
	"github.com/sorteohub/sorteo-backend/services"
	"github.com/sorteohub/sorteo-backend/shared"
)

type DrawHandler struct {
	Service  *services.DrawService
	Importer *services.ImportService
	Staging  *services.StagingService
	Storage  *services.StorageService
}

func NewDrawHandler(service *services.DrawService, importer *services.ImportService, staging *services.StagingService, storage *services.StorageService) *DrawHandler {
	return &DrawHandler{
		Service:  service,
		Importer: importer,
		Staging:  staging,
		Storage:  storage,
	}
}

type createDrawRequest struct {
	ImportID      string   `json:"import_id"`
	Name          string   `json:"name"`
	DisplayFields []string `json:"display_fields"`
	DisplayFormat string   `json:"display_format"`
}

type updateDrawRequest struct {
	Name             *string  `json:"name"`
	Status           *string  `json:"status"`
	DisplayFields    []string `json:"display_fields"`
	RemoveBackground bool     `json:"remove_background"`
}

func parseDrawID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// CreateDraw consumes a staged import and creates the draw with its
// participant pool
func (h *DrawHandler) CreateDraw(c *fiber.Ctx) error {
	var req createDrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "name is required",
		})
	}
	if len(req.DisplayFields) == 0 && req.DisplayFormat == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "display_fields or display_format is required",
		})
	}

	importID, err := uuid.Parse(req.ImportID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid import_id",
		})
	}

	result, err := h.Staging.Get(importID)
	if err != nil {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"success": false,
			"error":   "staged import not found or expired, please upload again",
		})
	}

	draw, err := h.Service.CreateDraw(c.Context(), result, services.DrawConfig{
		Name: req.Name,
		Template: models.DisplayTemplate{
			Fields: req.DisplayFields,
			Format: req.DisplayFormat,
		},
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	h.Staging.Delete(importID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    draw,
	})
}

// GetDraws lists non-deleted draws with participant and winner counts
func (h *DrawHandler) GetDraws(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	draws, err := h.Service.GetDraws(c.Context(), limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    draws,
	})
}

// GetDraw returns one draw by id, deleted or not
func (h *DrawHandler) GetDraw(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	draw, err := h.Service.GetDrawByID(c.Context(), id)
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
	return c.JSON(fiber.Map{
		"success": true,
		"data":    draw,
	})
}

// GetPublicDraw returns the projection payload for the on-screen shuffle.
// Only active draws are visible publicly.
func (h *DrawHandler) GetPublicDraw(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	draw, err := h.Service.GetDrawByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	if draw == nil || draw.DeletedAt != nil || !draw.IsActive() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "draw not found",
		})
	}

	winners, err := h.Service.ListWinners(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	displayFormat := draw.DisplayTemplate.Format
	if displayFormat == "" {
		displayFormat = services.BuildFieldFormat(draw.DisplayTemplate.Fields)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"draw":           draw,
			"winners":        winners,
			"display_format": displayFormat,
		},
	})
}

// PerformDraw draws one winner. Pool exhaustion is an ordinary negative
// result; drawing on a finished draw is an error.
func (h *DrawHandler) PerformDraw(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	winner, err := h.Service.DrawWinner(c.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrDrawNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "draw not found",
			})
		case errors.Is(err, shared.ErrDrawNotActive):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   "draw is not active",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
	}

	if winner == nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"winner":         nil,
				"pool_exhausted": true,
			},
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"winner": fiber.Map{
				"id":            winner.ID,
				"display_value": winner.DisplayValue,
				"data":          winner.Data,
			},
			"pool_exhausted": false,
		},
	})
}

// GetParticipants returns the available participants for the shuffle
// animation as id/display pairs
func (h *DrawHandler) GetParticipants(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	participants, err := h.Service.AvailableParticipants(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	type entry struct {
		ID           uuid.UUID `json:"id"`
		DisplayValue string    `json:"display_value"`
	}
	entries := make([]entry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, entry{ID: p.ID, DisplayValue: p.DisplayValue})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entries,
	})
}

// GetWinners returns the winner ledger in win order
func (h *DrawHandler) GetWinners(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	winners, err := h.Service.ListWinners(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    winners,
	})
}

// ResetDraw clears the winner ledger
func (h *DrawHandler) ResetDraw(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	if err := h.Service.Reset(c.Context(), id); err != nil {
		return h.lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// FinishDraw marks the draw as finished
func (h *DrawHandler) FinishDraw(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	if err := h.Service.Finish(c.Context(), id); err != nil {
		return h.lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// DeleteDraw soft-deletes the draw
func (h *DrawHandler) DeleteDraw(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	if err := h.Service.SoftDelete(c.Context(), id); err != nil {
		return h.lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// UpdateDraw edits name, status and the display-field list. Changing the
// field list recomputes every stored display value.
func (h *DrawHandler) UpdateDraw(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	var req updateDrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if req.Status != nil && *req.Status != models.DrawStatusActive && *req.Status != models.DrawStatusFinished {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "status must be active or finished",
		})
	}

	var previousBackground *string
	if req.RemoveBackground {
		if current, err := h.Service.GetDrawByID(c.Context(), id); err == nil && current != nil {
			previousBackground = current.BackgroundImage
		}
	}

	draw, err := h.Service.UpdateDraw(c.Context(), id, services.DrawUpdate{
		Name:             req.Name,
		Status:           req.Status,
		DisplayFields:    req.DisplayFields,
		RemoveBackground: req.RemoveBackground,
	})
	if err != nil {
		return h.lifecycleError(c, err)
	}

	if req.RemoveBackground && previousBackground != nil {
		if err := h.Storage.Remove(*previousBackground); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    draw,
	})
}

// UpdateBackground replaces the draw's background image
func (h *DrawHandler) UpdateBackground(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	draw, err := h.Service.GetDrawByID(c.Context(), id)
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

	fileHeader, err := c.FormFile("background_image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "background_image is required",
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

	ref, err := h.Storage.Save(data, fileHeader.Filename)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	if err := h.Service.SetBackground(c.Context(), id, &ref); err != nil {
		return h.lifecycleError(c, err)
	}

	// Old image is unreferenced now
	if draw.BackgroundImage != nil {
		if err := h.Storage.Remove(*draw.BackgroundImage); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"background_image": ref},
	})
}

// ReplaceParticipants re-imports the participant pool from a fresh upload.
// A header mismatch returns 409 with the field diff until the client
// retries with confirmed=true.
func (h *DrawHandler) ReplaceParticipants(c *fiber.Ctx) error {
	id, err := parseDrawID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid draw id",
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "file is required",
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
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	keepWinners := c.FormValue("keep_winners") == "true"
	confirmed := c.FormValue("confirmed") == "true"

	draw, err := h.Service.ReplaceParticipants(c.Context(), id, result, keepWinners, confirmed)
	if err != nil {
		var mismatch *shared.FieldMismatchError
		if errors.As(err, &mismatch) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success":            false,
				"error":              mismatch.Error(),
				"needs_confirmation": true,
				"missing_fields":     mismatch.MissingFields,
				"added_fields":       mismatch.AddedFields,
			})
		}
		return h.lifecycleError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    draw,
	})
}

func (h *DrawHandler) lifecycleError(c *fiber.Ctx, err error) error {
	if errors.Is(err, shared.ErrDrawNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "draw not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
