package audit

import (
	"medstock-backend/internal/clock"
	"medstock-backend/internal/httpx"
	"medstock-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID          uint   `json:"id"`
	CreatedAt   string `json:"created_at"`
	UserID      *uint  `json:"user_id"`
	UserName    string `json:"user_name"`
	EntityType  string `json:"entity_type"`
	EntityID    uint   `json:"entity_id"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Metadata    any    `json:"metadata"`
	IP          string `json:"ip"`
	UserAgent   string `json:"user_agent"`
}

type AuditLogPageResponse struct {
	Items    []AuditLogResponse `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// GET /api/audit-logs?actor=ayse&action=alert.&entity_type=course&client_id=3&from=2025-01-01&to=2025-01-31&page=1&page_size=50
func ListAuditLogsHandler(rec *Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID, err := httpx.QueryUint(c, "client_id")
		if err != nil {
			return err
		}
		entityID, err := httpx.QueryUint(c, "entity_id")
		if err != nil {
			return err
		}
		from, err := httpx.QueryDate(c, "from")
		if err != nil {
			return err
		}
		to, err := httpx.QueryDate(c, "to")
		if err != nil {
			return err
		}
		if to != nil {
			// "to" is a calendar day; include all of it.
			end := clock.AddDays(*to, 1)
			to = &end
		}

		page, err := rec.Query(c.UserContext(), Filter{
			Actor:      c.Query("actor"),
			Action:     c.Query("action"),
			EntityType: c.Query("entity_type"),
			EntityID:   entityID,
			ClientID:   clientID,
			From:       from,
			To:         to,
			Page:       c.QueryInt("page", 1),
			PageSize:   c.QueryInt("page_size", defaultPageSize),
		})
		if err != nil {
			return err
		}

		resp := AuditLogPageResponse{
			Items:    make([]AuditLogResponse, 0, len(page.Items)),
			Total:    page.Total,
			Page:     page.Page,
			PageSize: page.PageSize,
		}
		for _, l := range page.Items {
			resp.Items = append(resp.Items, toResponse(l))
		}
		return c.JSON(resp)
	}
}

func toResponse(l models.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:          l.ID,
		CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
		UserID:      l.UserID,
		UserName:    l.UserName,
		EntityType:  l.EntityType,
		EntityID:    l.EntityID,
		Action:      l.Action,
		Description: l.Description,
		Metadata:    l.Metadata,
		IP:          l.IP,
		UserAgent:   l.UserAgent,
	}
}
