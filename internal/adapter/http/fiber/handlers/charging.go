package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/ports"
)

// ChargingHandler exposes the user-facing command contract. The caller is
// identified by the X-User-ID header; authentication lives outside this
// service.
type ChargingHandler struct {
	service ports.ChargingService
	log     *zap.Logger
}

func NewChargingHandler(service ports.ChargingService, log *zap.Logger) *ChargingHandler {
	return &ChargingHandler{
		service: service,
		log:     log,
	}
}

func userID(c *fiber.Ctx) (string, error) {
	id := c.Get("X-User-ID")
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "missing X-User-ID header")
	}
	return id, nil
}

type SubmitRequestBody struct {
	Mode      string  `json:"mode"`
	TargetKWH float64 `json:"target_kwh"`
}

func (h *ChargingHandler) Submit(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var body SubmitRequestBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	mode, err := domain.ParseChargeMode(body.Mode)
	if err != nil {
		return err
	}

	res, err := h.service.SubmitRequest(c.Context(), uid, mode, body.TargetKWH)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *ChargingHandler) Status(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	st, err := h.service.GetStatus(c.Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

type ModifyTargetBody struct {
	TargetKWH float64 `json:"target_kwh"`
}

func (h *ChargingHandler) ModifyTarget(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var body ModifyTargetBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.service.ModifyTarget(c.Context(), uid, body.TargetKWH); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type ModifyModeBody struct {
	Mode string `json:"mode"`
}

func (h *ChargingHandler) ModifyMode(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var body ModifyModeBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	mode, err := domain.ParseChargeMode(body.Mode)
	if err != nil {
		return err
	}
	res, err := h.service.ModifyMode(c.Context(), uid, mode)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *ChargingHandler) Cancel(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.service.Cancel(c.Context(), uid, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *ChargingHandler) Stop(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	bill, err := h.service.StopCharging(c.Context(), uid)
	if err != nil {
		return err
	}
	if bill == nil {
		return c.JSON(fiber.Map{"status": "ok", "bill": nil})
	}
	return c.JSON(fiber.Map{"status": "ok", "bill": bill})
}

func (h *ChargingHandler) Records(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	q := ports.RecordQuery{
		Sort:     ports.RecordSort(c.Query("sort", string(ports.RecordSortTimeDesc))),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	}
	if st := c.Query("status"); st != "" {
		q.Status = domain.BillStatus(st)
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid from time")
		}
		q.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid to time")
		}
		q.To = &t
	}

	bills, total, err := h.service.ListRecords(c.Context(), uid, q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"records":   bills,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}
