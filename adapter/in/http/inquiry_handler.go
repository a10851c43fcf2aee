// Package http provides the inbound HTTP adapter.
package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"inquiry_server/core/service/inquiry"
	"inquiry_server/pkg/logger"
	"inquiry_server/pkg/response"
)

// InquiryHandler handles inquiry API endpoints.
type InquiryHandler struct {
	svc     *inquiry.Service
	drainer *inquiry.Drainer
	log     *logger.Logger
}

// NewInquiryHandler creates a new InquiryHandler.
func NewInquiryHandler(svc *inquiry.Service, drainer *inquiry.Drainer, log *logger.Logger) *InquiryHandler {
	return &InquiryHandler{svc: svc, drainer: drainer, log: log}
}

// Register registers inquiry routes.
func (h *InquiryHandler) Register(app fiber.Router) {
	api := app.Group("/api")
	api.Post("/inquiries", h.Submit)
	api.Get("/inquiries/:id", h.Find)
	api.Post("/classify", h.Classify)
	api.Post("/drain", h.Drain)
	api.Get("/statistics", h.Statistics)
}

// Submit handles POST /api/inquiries: the synchronous classify-and-route
// path.
func (h *InquiryHandler) Submit(c *fiber.Ctx) error {
	var req inquiry.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	view, err := h.svc.ClassifyAndRoute(c.Context(), &req)
	if err != nil {
		h.log.WithError(err).Warn("submit failed")
		return response.FromError(c, err)
	}

	return response.Created(c, view)
}

// Find handles GET /api/inquiries/:id.
func (h *InquiryHandler) Find(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "invalid inquiry id")
	}

	view, err := h.svc.FindInquiry(c.Context(), id)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, view)
}

// classifyRequest is the body of the non-persisting classify endpoint.
type classifyRequest struct {
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	Text             string `json:"text"` // shorthand: body without subject
	IncludeAllScores bool   `json:"include_all_scores"`
}

// Classify handles POST /api/classify: classification without persistence,
// for test and debug callers.
func (h *InquiryHandler) Classify(c *fiber.Ctx) error {
	var req classifyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.Body == "" {
		req.Body = req.Text
	}

	result, err := h.svc.ClassifyText(c.Context(), req.Subject, req.Body, req.IncludeAllScores)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Drain handles POST /api/drain: a manual drain invocation, mostly for
// operations. The scheduler uses the same drainer.
func (h *InquiryHandler) Drain(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)

	report, err := h.drainer.Drain(c.Context(), limit)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, report)
}

// Statistics handles GET /api/statistics?days=7.
func (h *InquiryHandler) Statistics(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)

	stats, err := h.svc.Statistics(c.Context(), days)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, stats)
}
