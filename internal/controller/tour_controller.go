package controller

import (
	"loyalty-rewards-be/internal/dto"
	"loyalty-rewards-be/internal/pkg/serverutils"
	"loyalty-rewards-be/internal/service"
	"loyalty-rewards-be/pkg/tour"

	"github.com/gofiber/fiber/v2"
)

type ITourController interface {
	RegisterRoutes(r fiber.Router)
	GetState(ctx *fiber.Ctx) error
	GetTooltips(ctx *fiber.Ctx) error
	ShowTooltip(ctx *fiber.Ctx) error
	HideTooltip(ctx *fiber.Ctx) error
	GetSeen(ctx *fiber.Ctx) error
	MarkSeen(ctx *fiber.Ctx) error
	StartTour(ctx *fiber.Ctx) error
	NextStep(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
}

type tourController struct {
	service   service.ITourService
	history   service.ITourHistoryService
	jwtSecret string
}

func NewTourController(service service.ITourService, history service.ITourHistoryService, jwtSecret string) ITourController {
	return &tourController{service: service, history: history, jwtSecret: jwtSecret}
}

func (c *tourController) RegisterRoutes(r fiber.Router) {
	// Per route, since /tour/ws authenticates from the query string.
	auth := serverutils.JwtMiddleware(c.jwtSecret)
	h := r.Group("/tour")
	h.Get("/state", auth, c.GetState)
	h.Get("/tooltips", auth, c.GetTooltips)
	h.Post("/tooltips/hide", auth, c.HideTooltip)
	h.Post("/tooltips/:id/show", auth, c.ShowTooltip)
	h.Get("/tooltips/:id/seen", auth, c.GetSeen)
	h.Post("/tooltips/:id/seen", auth, c.MarkSeen)
	h.Post("/start", auth, c.StartTour)
	h.Post("/next", auth, c.NextStep)
	h.Get("/history", auth, c.GetHistory)
}

// identity reads what JwtMiddleware stored for the request.
func identity(ctx *fiber.Ctx) tour.Identity {
	userID, _ := ctx.Locals(serverutils.LocalUserID).(string)
	role, _ := ctx.Locals(serverutils.LocalRole).(string)
	return tour.Identity{UserID: userID, Role: tour.Role(role)}
}

func (c *tourController) GetState(ctx *fiber.Ctx) error {
	res := c.service.State(ctx.UserContext(), identity(ctx))
	return ctx.JSON(serverutils.SuccessResponse("Tour state", res))
}

func (c *tourController) GetTooltips(ctx *fiber.Ctx) error {
	res := c.service.Tooltips(identity(ctx).Role)
	return ctx.JSON(serverutils.SuccessResponse("Tooltips", res))
}

func (c *tourController) ShowTooltip(ctx *fiber.Ctx) error {
	res := c.service.ShowTooltip(ctx.UserContext(), identity(ctx), ctx.Params("id"))
	return ctx.JSON(serverutils.SuccessResponse("Tooltip shown", res))
}

func (c *tourController) HideTooltip(ctx *fiber.Ctx) error {
	res := c.service.HideTooltip(ctx.UserContext(), identity(ctx))
	return ctx.JSON(serverutils.SuccessResponse("Tooltip hidden", res))
}

func (c *tourController) GetSeen(ctx *fiber.Ctx) error {
	res := c.service.HasSeen(ctx.UserContext(), identity(ctx), ctx.Params("id"))
	return ctx.JSON(serverutils.SuccessResponse("Tooltip seen status", res))
}

func (c *tourController) MarkSeen(ctx *fiber.Ctx) error {
	res := c.service.MarkSeen(ctx.UserContext(), identity(ctx), ctx.Params("id"))
	return ctx.JSON(serverutils.SuccessResponse("Tooltip marked as seen", res))
}

func (c *tourController) StartTour(ctx *fiber.Ctx) error {
	var req dto.StartTourRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res := c.service.StartTour(ctx.UserContext(), identity(ctx), req.Steps)
	return ctx.JSON(serverutils.SuccessResponse("Tour started", res))
}

func (c *tourController) NextStep(ctx *fiber.Ctx) error {
	res := c.service.NextStep(ctx.UserContext(), identity(ctx))
	return ctx.JSON(serverutils.SuccessResponse("Tour advanced", res))
}

func (c *tourController) GetHistory(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 20)
	offset := ctx.QueryInt("offset", 0)

	res, total, err := c.history.GetHistory(ctx.UserContext(), identity(ctx).UserID, limit, offset)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Tour history", fiber.Map{
		"events": res,
		"total":  total,
	}))
}
