package courses

import (
	"time"

	"medstock-backend/internal/alerts"
	"medstock-backend/internal/auth"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/httpx"
	"medstock-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type ClientRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

type ClientResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"created_at"`
}

func toClientResponse(c *models.Client) ClientResponse {
	return ClientResponse{
		ID:        c.ID,
		Name:      c.Name,
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

type CreateCourseRequest struct {
	ClientID     uint             `json:"client_id"`
	Medication   string           `json:"medication"`
	Strength     string           `json:"strength"`
	UnitLabel    string           `json:"unit_label"`
	DosePerAdmin decimal.Decimal  `json:"dose_per_admin"`
	AdminsPerDay decimal.Decimal  `json:"admins_per_day"`
	DailyUse     *decimal.Decimal `json:"daily_use"`
	PackSize     int64            `json:"pack_size"`
	OpeningUnits int64            `json:"opening_units"`
	StartDate    string           `json:"start_date"` // "2025-03-10", empty means today
	Notes        string           `json:"notes"`
}

type UpdateCourseRequest struct {
	Medication   *string          `json:"medication"`
	Strength     *string          `json:"strength"`
	UnitLabel    *string          `json:"unit_label"`
	DosePerAdmin *decimal.Decimal `json:"dose_per_admin"`
	AdminsPerDay *decimal.Decimal `json:"admins_per_day"`
	DailyUse     *decimal.Decimal `json:"daily_use"`
	StartDate    *string          `json:"start_date"`
	Notes        *string          `json:"notes"`
}

type CourseResponse struct {
	ID              uint                  `json:"id"`
	ClientID        uint                  `json:"client_id"`
	ClientName      string                `json:"client_name"`
	Medication      string                `json:"medication"`
	Strength        string                `json:"strength"`
	UnitLabel       string                `json:"unit_label"`
	DosePerAdmin    decimal.Decimal       `json:"dose_per_admin"`
	AdminsPerDay    decimal.Decimal       `json:"admins_per_day"`
	DailyUse        decimal.Decimal       `json:"daily_use"`
	PackSize        int64                 `json:"pack_size"`
	PacksOnHand     int64                 `json:"packs_on_hand"`
	LooseUnits      int64                 `json:"loose_units"`
	OpeningUnits    int64                 `json:"opening_units"`
	UnitsRemaining  int64                 `json:"units_remaining"`
	DaysRemaining   *int64                `json:"days_remaining"`
	StartDate       string                `json:"start_date"`
	AdjustmentDate  *string               `json:"adjustment_date"`
	LastRestockDate *string               `json:"last_restock_date"`
	HalfDate        *string               `json:"half_date"`
	RunoutDate      *string               `json:"runout_date"`
	Status          alerts.Tier           `json:"status"`
	Lifecycle       alerts.LifecycleState `json:"lifecycle"`
	VisibleInFeed   bool                  `json:"is_visible_in_feed"`
	Notes           string                `json:"notes"`
}

func toCourseResponse(v *CourseView) CourseResponse {
	c := v.Course
	return CourseResponse{
		ID:              c.ID,
		ClientID:        c.ClientID,
		ClientName:      c.Client.Name,
		Medication:      c.Medication,
		Strength:        c.Strength,
		UnitLabel:       c.UnitLabel,
		DosePerAdmin:    c.DosePerAdmin,
		AdminsPerDay:    c.AdminsPerDay,
		DailyUse:        c.DailyUse,
		PackSize:        c.PackSize,
		PacksOnHand:     c.PacksOnHand,
		LooseUnits:      c.LooseUnits,
		OpeningUnits:    c.OpeningUnits,
		UnitsRemaining:  v.Forecast.TotalUnits,
		DaysRemaining:   v.Forecast.DaysRemaining,
		StartDate:       c.StartDate.Format(clock.DateLayout),
		AdjustmentDate:  clock.FormatDate(c.AdjustmentDate),
		LastRestockDate: clock.FormatDate(c.LastRestockDate),
		HalfDate:        clock.FormatDate(v.Forecast.HalfDate),
		RunoutDate:      clock.FormatDate(v.Forecast.RunoutDate),
		Status:          v.Assessment.Tier,
		Lifecycle:       v.Assessment.Lifecycle,
		VisibleInFeed:   v.Assessment.VisibleInFeed,
		Notes:           c.Notes,
	}
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := clock.ParseDate(*s)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, field+" must be formatted as YYYY-MM-DD")
	}
	return &d, nil
}

// POST /api/clients
func CreateClientHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ClientRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		client, err := svc.CreateClient(c.UserContext(), actor, ClientInput{Name: body.Name, Notes: body.Notes})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toClientResponse(client))
	}
}

// GET /api/clients
func ListClientsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clients, err := svc.ListClients(c.UserContext())
		if err != nil {
			return err
		}
		resp := make([]ClientResponse, 0, len(clients))
		for i := range clients {
			resp = append(resp, toClientResponse(&clients[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/clients/:id
func GetClientHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		client, err := svc.GetClient(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(toClientResponse(client))
	}
}

// PUT /api/clients/:id
func UpdateClientHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body ClientRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		client, err := svc.UpdateClient(c.UserContext(), id, actor, ClientInput{Name: body.Name, Notes: body.Notes})
		if err != nil {
			return err
		}
		return c.JSON(toClientResponse(client))
	}
}

// DELETE /api/clients/:id
func DeleteClientHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		if err := svc.DeleteClient(c.UserContext(), id, actor); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/courses
func CreateCourseHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateCourseRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		start, err := parseOptionalDate("start_date", &body.StartDate)
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		v, err := svc.CreateCourse(c.UserContext(), actor, CourseInput{
			ClientID:     body.ClientID,
			Medication:   body.Medication,
			Strength:     body.Strength,
			UnitLabel:    body.UnitLabel,
			DosePerAdmin: body.DosePerAdmin,
			AdminsPerDay: body.AdminsPerDay,
			DailyUse:     body.DailyUse,
			PackSize:     body.PackSize,
			OpeningUnits: body.OpeningUnits,
			StartDate:    start,
			Notes:        body.Notes,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toCourseResponse(v))
	}
}

// GET /api/courses?client_id=
func ListCoursesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID, err := httpx.QueryUint(c, "client_id")
		if err != nil {
			return err
		}
		views, err := svc.ListCourses(c.UserContext(), clientID)
		if err != nil {
			return err
		}
		resp := make([]CourseResponse, 0, len(views))
		for i := range views {
			resp = append(resp, toCourseResponse(&views[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/courses/:id
func GetCourseHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		v, err := svc.GetCourse(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(toCourseResponse(v))
	}
}

// PUT /api/courses/:id
func UpdateCourseHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateCourseRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		start, err := parseOptionalDate("start_date", body.StartDate)
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		v, err := svc.UpdateCourse(c.UserContext(), id, actor, CourseUpdate{
			Medication:   body.Medication,
			Strength:     body.Strength,
			UnitLabel:    body.UnitLabel,
			DosePerAdmin: body.DosePerAdmin,
			AdminsPerDay: body.AdminsPerDay,
			DailyUse:     body.DailyUse,
			StartDate:    start,
			Notes:        body.Notes,
		})
		if err != nil {
			return err
		}
		return c.JSON(toCourseResponse(v))
	}
}

// DELETE /api/courses/:id
func DeleteCourseHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		if err := svc.DeleteCourse(c.UserContext(), id, actor); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
