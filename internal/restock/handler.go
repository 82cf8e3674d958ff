package restock

import (
	"medstock-backend/internal/alerts"
	"medstock-backend/internal/auth"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/httpx"
	"medstock-backend/internal/ledger"
	"medstock-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type RestockRequest struct {
	PackSize     *int64 `json:"pack_size"`
	PacksOnHand  *int64 `json:"packs_on_hand"`
	LooseUnits   *int64 `json:"loose_units"`
	OpeningUnits *int64 `json:"opening_units"`
}

type AdjustStockRequest struct {
	TotalUnits     *int64 `json:"total_units"`
	PacksOnHand    *int64 `json:"packs_on_hand"`
	LooseUnits     *int64 `json:"loose_units"`
	Reason         string `json:"reason"`
	AdjustmentDate string `json:"adjustment_date"` // "2025-03-10", empty means today
}

// Count picks the variant: total_units wins over packs/loose.
func (r AdjustStockRequest) Count() StockCount {
	if r.TotalUnits != nil {
		return AbsoluteUnits{TotalUnits: *r.TotalUnits}
	}
	if r.PacksOnHand == nil && r.LooseUnits == nil {
		return nil
	}
	var b PackBreakdown
	if r.PacksOnHand != nil {
		b.PacksOnHand = *r.PacksOnHand
	}
	if r.LooseUnits != nil {
		b.LooseUnits = *r.LooseUnits
	}
	return b
}

type StockChangeResponse struct {
	CourseID  uint                 `json:"course_id"`
	LogID     uint                 `json:"restock_log_id"`
	Before    models.StockSnapshot `json:"before"`
	After     models.StockSnapshot `json:"after"`
	Forecast  ledger.Forecast      `json:"forecast"`
	Status    alerts.Tier          `json:"status"`
	CreatedAt string               `json:"created_at"`
}

type RestockLogResponse struct {
	ID        uint                 `json:"id"`
	CourseID  uint                 `json:"course_id"`
	Action    models.RestockAction `json:"action"`
	Reason    string               `json:"reason"`
	ActorID   *uint                `json:"actor_id"`
	Actor     string               `json:"actor"`
	Before    models.StockSnapshot `json:"before"`
	After     models.StockSnapshot `json:"after"`
	CreatedAt string               `json:"created_at"`
}

func toChangeResponse(res *Result) StockChangeResponse {
	return StockChangeResponse{
		CourseID:  res.Course.ID,
		LogID:     res.Log.ID,
		Before:    res.Before,
		After:     res.After,
		Forecast:  res.Forecast,
		Status:    alerts.Classify(res.Forecast.DaysRemaining),
		CreatedAt: res.Log.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// POST /api/courses/:id/restock
func RestockHandler(p *Processor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body RestockRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		res, err := p.Restock(c.UserContext(), courseID, actor, RestockInput{
			PackSize:     body.PackSize,
			PacksOnHand:  body.PacksOnHand,
			LooseUnits:   body.LooseUnits,
			OpeningUnits: body.OpeningUnits,
		})
		if err != nil {
			return err
		}
		return c.JSON(toChangeResponse(res))
	}
}

// POST /api/courses/:id/adjust-stock
func AdjustStockHandler(p *Processor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body AdjustStockRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		in := AdjustInput{Count: body.Count(), Reason: body.Reason}
		if body.AdjustmentDate != "" {
			d, err := clock.ParseDate(body.AdjustmentDate)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "adjustment_date must be formatted as YYYY-MM-DD")
			}
			in.AdjustmentDate = &d
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		res, err := p.Adjust(c.UserContext(), courseID, actor, in)
		if err != nil {
			return err
		}
		return c.JSON(toChangeResponse(res))
	}
}

// GET /api/courses/:id/restock-logs
func ListRestockLogsHandler(p *Processor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		logs, err := p.History(c.UserContext(), courseID)
		if err != nil {
			return err
		}

		resp := make([]RestockLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, RestockLogResponse{
				ID:        l.ID,
				CourseID:  l.CourseID,
				Action:    l.Action,
				Reason:    l.Reason,
				ActorID:   l.ActorID,
				Actor:     l.ActorName,
				Before:    l.Before.Data(),
				After:     l.After.Data(),
				CreatedAt: l.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return c.JSON(resp)
	}
}
