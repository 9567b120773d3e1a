package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/gentrack/internal/model"
	"github.com/makeasinger/gentrack/internal/service"
	"github.com/makeasinger/gentrack/pkg/response"
)

type NoticeHandler struct {
	service *service.GenerationService
}

func NewNoticeHandler(svc *service.GenerationService) *NoticeHandler {
	return &NoticeHandler{service: svc}
}

// List handles GET /api/notices
func (h *NoticeHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.service.Notices())
}

// AcknowledgeKind handles DELETE /api/notices/:kind
func (h *NoticeHandler) AcknowledgeKind(c *fiber.Ctx) error {
	kind := model.Kind(c.Params("kind"))
	if !kind.Valid() {
		return response.ValidationError(c, "Unknown kind", nil)
	}
	if err := h.service.AcknowledgeKind(c.UserContext(), kind); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}

// AcknowledgeSubject handles DELETE /api/notices/:kind/:subjectId
func (h *NoticeHandler) AcknowledgeSubject(c *fiber.Ctx) error {
	kind := model.Kind(c.Params("kind"))
	if !kind.Valid() {
		return response.ValidationError(c, "Unknown kind", nil)
	}
	if err := h.service.AcknowledgeSubject(c.UserContext(), kind, c.Params("subjectId")); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}
