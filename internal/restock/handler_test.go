package restock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medstock-backend/internal/auth"
	"medstock-backend/internal/httpx"
	"medstock-backend/internal/logger"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(p *Processor) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logger.NewNop())})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, uint(3))
		c.Locals(auth.CtxUserNameKey, "Zeynep")
		return c.Next()
	})
	app.Post("/courses/:id/restock", RestockHandler(p))
	app.Post("/courses/:id/adjust-stock", AdjustStockHandler(p))
	app.Get("/courses/:id/restock-logs", ListRestockLogsHandler(p))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func TestAdjustStockHandlerTotalUnitsWins(t *testing.T) {
	fx := newFixture(t)
	course := fx.seedCourse(t, 4, 0)
	app := newTestApp(fx.p)

	status, body := do(t, app, http.MethodPost, fmt.Sprintf("/courses/%d/adjust-stock", course.ID),
		`{"total_units":40,"packs_on_hand":9,"loose_units":9,"reason":"count","adjustment_date":"2025-03-09"}`)
	if status != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", status, body)
	}
	var resp StockChangeResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.After.PacksOnHand != 1 || resp.After.LooseUnits != 12 {
		t.Fatalf("after: %+v", resp.After)
	}
	if resp.After.AdjustmentDate == nil || *resp.After.AdjustmentDate != "2025-03-09" {
		t.Fatalf("adjustment_date: %v", resp.After.AdjustmentDate)
	}
}

func TestStockHandlersReportFieldErrors(t *testing.T) {
	fx := newFixture(t)
	course := fx.seedCourse(t, 4, 0)
	app := newTestApp(fx.p)

	cases := []struct {
		path, body string
		status     int
		mention    string
	}{
		{fmt.Sprintf("/courses/%d/adjust-stock", course.ID), `{"total_units":10}`, http.StatusBadRequest, "reason"},
		{fmt.Sprintf("/courses/%d/restock", course.ID), `{"loose_units":-2}`, http.StatusBadRequest, "loose_units"},
		{fmt.Sprintf("/courses/%d/adjust-stock", course.ID), `{"total_units":10,"reason":"x","adjustment_date":"10/03/2025"}`, http.StatusBadRequest, "adjustment_date"},
		{fmt.Sprintf("/courses/%d/restock", course.ID), `{"packs_on_hand":"three"}`, http.StatusBadRequest, "packs_on_hand must be a whole number"},
		{fmt.Sprintf("/courses/%d/adjust-stock", course.ID), `{"total_units":12.5,"reason":"x"}`, http.StatusBadRequest, "total_units must be a whole number"},
		{fmt.Sprintf("/courses/%d/restock", course.ID), `{"packs_on_hand":9223372036854775807}`, http.StatusBadRequest, "packs_on_hand is too large"},
		{fmt.Sprintf("/courses/%d/restock", course.ID), `{"packs_on_hand":`, http.StatusBadRequest, "invalid request body"},
		{"/courses/999/restock", `{"packs_on_hand":1}`, http.StatusNotFound, "course not found"},
	}
	for _, tc := range cases {
		status, body := do(t, app, http.MethodPost, tc.path, tc.body)
		if status != tc.status {
			t.Fatalf("%s %s: want=%d got=%d body=%s", tc.path, tc.body, tc.status, status, body)
		}
		if !strings.Contains(body, tc.mention) {
			t.Fatalf("%s %s: body should mention %q: %s", tc.path, tc.body, tc.mention, body)
		}
	}
}

func TestRestockLogsHandler(t *testing.T) {
	fx := newFixture(t)
	course := fx.seedCourse(t, 1, 0)
	app := newTestApp(fx.p)

	if status, body := do(t, app, http.MethodPost, fmt.Sprintf("/courses/%d/restock", course.ID), `{"packs_on_hand":2}`); status != http.StatusOK {
		t.Fatalf("restock: %d %s", status, body)
	}
	status, body := do(t, app, http.MethodGet, fmt.Sprintf("/courses/%d/restock-logs", course.ID), "")
	if status != http.StatusOK {
		t.Fatalf("logs: %d %s", status, body)
	}
	var logs []RestockLogResponse
	if err := json.Unmarshal([]byte(body), &logs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(logs) != 1 || logs[0].Actor != "Zeynep" || logs[0].Before.PacksOnHand != 1 || logs[0].After.PacksOnHand != 2 {
		t.Fatalf("logs: %+v", logs)
	}
}
