package dashboard

import (
	"medstock-backend/internal/alerts"

	"github.com/gofiber/fiber/v2"
)

// GET /api/dashboard?tier=critical
func DashboardHandler(agg *Aggregator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var filter *alerts.Tier
		if s := c.Query("tier"); s != "" && s != "all" {
			t, ok := alerts.ParseTier(s)
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "tier must be critical, low, ok, unknown or all")
			}
			filter = &t
		}

		d, err := agg.Build(c.UserContext(), filter)
		if err != nil {
			return err
		}
		return c.JSON(d)
	}
}

// GET /api/alerts/feed
func FeedHandler(agg *Aggregator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		feed, err := agg.Feed(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"items": feed,
			"count": len(feed),
		})
	}
}
