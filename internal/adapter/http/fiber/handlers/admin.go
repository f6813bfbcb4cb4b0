package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/ports"
)

// AdminHandler exposes the operator-facing contract.
type AdminHandler struct {
	service ports.AdminService
	log     *zap.Logger
}

func NewAdminHandler(service ports.AdminService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		log:     log,
	}
}

type SetFaultBody struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) SetFault(c *fiber.Ctx) error {
	var body SetFaultBody
	if err := c.BodyParser(&body); err != nil {
		body.Reason = "admin"
	}
	if body.Reason == "" {
		body.Reason = "admin"
	}
	res, err := h.service.SetFault(c.Context(), c.Params("id"), body.Reason)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *AdminHandler) Recover(c *fiber.Ctx) error {
	res, err := h.service.Recover(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type SetPolicyBody struct {
	Policy string `json:"policy"`
}

func (h *AdminHandler) SetDispatchPolicy(c *fiber.Ctx) error {
	var body SetPolicyBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.service.SetDispatchPolicy(body.Policy); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "policy": body.Policy})
}

func (h *AdminHandler) StartPile(c *fiber.Ctx) error {
	if err := h.service.StartPile(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *AdminHandler) StopPile(c *fiber.Ctx) error {
	if err := h.service.StopPile(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *AdminHandler) ListPiles(c *fiber.Ctx) error {
	return c.JSON(h.service.Piles(c.Context()))
}

func (h *AdminHandler) PileDetail(c *fiber.Ctx) error {
	view, err := h.service.PileDetail(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (h *AdminHandler) WaitingArea(c *fiber.Ctx) error {
	return c.JSON(h.service.WaitingAreaView(c.Context()))
}

func (h *AdminHandler) Statistics(c *fiber.Ctx) error {
	return c.JSON(h.service.Statistics(c.Context()))
}

func (h *AdminHandler) Policy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"policy": h.service.DispatchPolicy()})
}
