package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/service"
	"github.com/makeasinger/gentrack/internal/tracker"
	"github.com/makeasinger/gentrack/pkg/response"
)

type GenerationHandler struct {
	service       *service.GenerationService
	validator     *validator.Validate
	maxConcurrent int
}

func NewGenerationHandler(svc *service.GenerationService, v *validator.Validate, maxConcurrent int) *GenerationHandler {
	return &GenerationHandler{
		service:       svc,
		validator:     v,
		maxConcurrent: maxConcurrent,
	}
}

// List handles GET /api/generations
func (h *GenerationHandler) List(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"jobs": h.service.List()})
}

// Get handles GET /api/generations/:jobId
func (h *GenerationHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.Params("jobId"))
	if err != nil {
		return response.NotFound(c, "Job not found")
	}
	return response.OK(c, job)
}

// Register handles POST /api/generations
func (h *GenerationHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Register(c.UserContext(), &req)
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrAtCapacity):
			return response.AtCapacity(c, h.maxConcurrent)
		case errors.Is(err, tracker.ErrUnknownKind):
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Update handles PATCH /api/generations/:jobId
func (h *GenerationHandler) Update(c *fiber.Ctx) error {
	var req model.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.Update(c.UserContext(), c.Params("jobId"), &req)
	if err != nil {
		if errors.Is(err, tracker.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Remove handles DELETE /api/generations/:jobId
func (h *GenerationHandler) Remove(c *fiber.Ctx) error {
	if err := h.service.Remove(c.UserContext(), c.Params("jobId")); err != nil {
		return response.NotFound(c, "Job not found")
	}
	return response.NoContent(c)
}

// ClearTerminal handles POST /api/generations/clear
func (h *GenerationHandler) ClearTerminal(c *fiber.Ctx) error {
	removed := h.service.ClearTerminal(c.UserContext())
	return response.OK(c, fiber.Map{"removed": removed})
}

// Running handles GET /api/generations/running?tier=
func (h *GenerationHandler) Running(c *fiber.Ctx) error {
	tier := model.Tier(c.Query("tier", string(model.TierFree)))
	if !tier.Valid() {
		return response.ValidationError(c, "Unknown tier", fiber.Map{"tier": "oneof"})
	}
	return response.OK(c, h.service.Running(tier))
}
