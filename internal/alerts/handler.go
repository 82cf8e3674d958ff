package alerts

import (
	"time"

	"medstock-backend/internal/auth"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/httpx"
	"medstock-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AcknowledgeRequest struct {
	Note *string `json:"note"`
}

type SnoozeRequest struct {
	Until string  `json:"until"` // RFC3339 instant or YYYY-MM-DD (start of that day)
	Note  *string `json:"note"`
}

type AlertStateResponse struct {
	CourseID       uint    `json:"course_id"`
	AcknowledgedAt *string `json:"acknowledged_at"`
	AcknowledgedBy *uint   `json:"acknowledged_by"`
	AckNote        *string `json:"ack_note"`
	SnoozedUntil   *string `json:"snoozed_until"`
	SnoozedBy      *uint   `json:"snoozed_by"`
	SnoozeNote     *string `json:"snooze_note"`
}

func toStateResponse(st *models.AlertState) AlertStateResponse {
	return AlertStateResponse{
		CourseID:       st.CourseID,
		AcknowledgedAt: formatInstant(st.AcknowledgedAt),
		AcknowledgedBy: st.AcknowledgedBy,
		AckNote:        st.AckNote,
		SnoozedUntil:   formatInstant(st.SnoozedUntil),
		SnoozedBy:      st.SnoozedBy,
		SnoozeNote:     st.SnoozeNote,
	}
}

func formatInstant(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// POST /api/courses/:id/acknowledge
func AcknowledgeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body AcknowledgeRequest
		if len(c.Body()) > 0 {
			if err := httpx.ParseBody(c, &body); err != nil {
				return err
			}
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		st, err := svc.Acknowledge(c.UserContext(), courseID, actor, body.Note)
		if err != nil {
			return err
		}
		return c.JSON(toStateResponse(st))
	}
}

// POST /api/courses/:id/snooze
func SnoozeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body SnoozeRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		until, err := parseUntil(body.Until, svc.clock.Location())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "until must be an RFC3339 timestamp or YYYY-MM-DD")
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		st, err := svc.Snooze(c.UserContext(), courseID, actor, until, body.Note)
		if err != nil {
			return err
		}
		return c.JSON(toStateResponse(st))
	}
}

// POST /api/courses/:id/unsnooze
func UnsnoozeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		st, err := svc.Unsnooze(c.UserContext(), courseID, actor)
		if err != nil {
			return err
		}
		return c.JSON(toStateResponse(st))
	}
}

// GET /api/courses/:id/alert
func GetCourseAlertHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		view, err := svc.State(c.UserContext(), courseID)
		if err != nil {
			return err
		}
		return c.JSON(view)
	}
}

// parseUntil accepts an instant, or a calendar day meaning its start in the
// configured zone.
func parseUntil(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return clock.StartOfDay(s, loc)
}
