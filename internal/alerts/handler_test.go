package alerts

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medstock-backend/internal/auth"
	"medstock-backend/internal/httpx"
	"medstock-backend/internal/logger"

	"github.com/gofiber/fiber/v2"
)

func TestSnoozeHandlerReadsDayInConfiguredZone(t *testing.T) {
	fx := newLifecycleFixture(t)
	fx.clk.Loc = time.FixedZone("TRT", 3*60*60)
	course := seedCourse(t, fx.db, 5)

	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logger.NewNop())})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, uint(7))
		c.Locals(auth.CtxUserNameKey, "Nurse Ayse")
		return c.Next()
	})
	app.Post("/courses/:id/snooze", SnoozeHandler(fx.svc))

	post := func(body string) (int, string) {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/courses/%d/snooze", course.ID), strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("snooze: %v", err)
		}
		raw, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(raw)
	}

	// Today in the ward's zone has already started, so it is not in the future.
	status, body := post(`{"until":"2025-03-10"}`)
	if status != http.StatusBadRequest || !strings.Contains(body, "until") {
		t.Fatalf("today: want=400 mentioning until got=%d %s", status, body)
	}

	status, body = post(`{"until":"2025-03-11"}`)
	if status != http.StatusOK {
		t.Fatalf("tomorrow: want=200 got=%d %s", status, body)
	}
	if !strings.Contains(body, `"snoozed_until":"2025-03-10T21:00:00Z"`) {
		t.Fatalf("snoozed_until should be local midnight: %s", body)
	}

	status, body = post(`{"until":"11/03/2025"}`)
	if status != http.StatusBadRequest || !strings.Contains(body, "until") {
		t.Fatalf("bad layout: want=400 got=%d %s", status, body)
	}
}
