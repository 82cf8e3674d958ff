package orders

import (
	"medstock-backend/internal/auth"
	"medstock-backend/internal/httpx"
	"medstock-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateOrderRequest struct {
	PacksOrdered int64  `json:"packs_ordered"`
	Note         string `json:"note"`
}

type OrderResponse struct {
	ID           uint               `json:"id"`
	CourseID     uint               `json:"course_id"`
	PacksOrdered int64              `json:"packs_ordered"`
	Status       models.OrderStatus `json:"status"`
	Note         string             `json:"note"`
	OrderedBy    *uint              `json:"ordered_by"`
	OrderedAt    string             `json:"ordered_at"`
	ReceivedAt   *string            `json:"received_at"`
	CancelledAt  *string            `json:"cancelled_at"`
}

func toOrderResponse(o *models.MedicationOrder) OrderResponse {
	resp := OrderResponse{
		ID:           o.ID,
		CourseID:     o.CourseID,
		PacksOrdered: o.PacksOrdered,
		Status:       o.Status,
		Note:         o.Note,
		OrderedBy:    o.OrderedBy,
		OrderedAt:    o.OrderedAt.Format("2006-01-02 15:04:05"),
	}
	if o.ReceivedAt != nil {
		s := o.ReceivedAt.Format("2006-01-02 15:04:05")
		resp.ReceivedAt = &s
	}
	if o.CancelledAt != nil {
		s := o.CancelledAt.Format("2006-01-02 15:04:05")
		resp.CancelledAt = &s
	}
	return resp
}

// POST /api/courses/:id/orders
func CreateOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body CreateOrderRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		o, err := svc.Create(c.UserContext(), courseID, actor, body.PacksOrdered, body.Note)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toOrderResponse(o))
	}
}

// GET /api/orders?status=pending&course_id=
func ListOrdersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{Status: models.OrderStatus(c.Query("status"))}
		switch f.Status {
		case "", models.OrderPending, models.OrderReceived, models.OrderCancelled:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "status must be pending, received or cancelled")
		}
		courseID, err := httpx.QueryUint(c, "course_id")
		if err != nil {
			return err
		}
		f.CourseID = courseID

		list, err := svc.List(c.UserContext(), f)
		if err != nil {
			return err
		}
		resp := make([]OrderResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toOrderResponse(&list[i]))
		}
		return c.JSON(resp)
	}
}

// POST /api/orders/:id/receive
func ReceiveOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		o, res, err := svc.Receive(c.UserContext(), id, actor)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"order":          toOrderResponse(o),
			"restock_log_id": res.Log.ID,
			"before":         res.Before,
			"after":          res.After,
		})
	}
}

// POST /api/orders/:id/cancel
func CancelOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		o, err := svc.Cancel(c.UserContext(), id, actor)
		if err != nil {
			return err
		}
		return c.JSON(toOrderResponse(o))
	}
}
