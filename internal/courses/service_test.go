package courses

import (
	"context"
	"errors"
	"testing"
	"time"

	"medstock-backend/internal/alerts"
	"medstock-backend/internal/apperr"
	"medstock-backend/internal/audit"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/database/testdb"
	"medstock-backend/internal/lock"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"

	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) (*Service, *audit.Recorder) {
	t.Helper()
	clk := &clock.Fixed{At: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	db := testdb.Open(t, clk)
	rec := audit.NewRecorder(db, clk)
	return NewService(db, lock.NewKeyedMutex(), rec, clk, logger.NewNop()), rec
}

func admin() audit.Actor {
	id := uint(1)
	return audit.Actor{ID: &id, Name: "Admin"}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func mustClient(t *testing.T, svc *Service, name string) *models.Client {
	t.Helper()
	c, err := svc.CreateClient(context.Background(), admin(), ClientInput{Name: name})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	return c
}

func TestCreateCourseDecomposesOpeningUnitsAndDefaultsDailyUse(t *testing.T) {
	svc, rec := newTestService(t)
	client := mustClient(t, svc, "Hasan")

	v, err := svc.CreateCourse(context.Background(), admin(), CourseInput{
		ClientID:     client.ID,
		Medication:   "Levothyroxine",
		DosePerAdmin: dec("1"),
		AdminsPerDay: dec("2"),
		PackSize:     28,
		OpeningUnits: 100,
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	c := v.Course
	if c.PacksOnHand != 3 || c.LooseUnits != 16 {
		t.Fatalf("decomposition: want=3+16 got=%d+%d", c.PacksOnHand, c.LooseUnits)
	}
	if !c.DailyUse.Equal(dec("2")) {
		t.Fatalf("daily_use: want=2 got=%s", c.DailyUse)
	}
	if !c.StartDate.Equal(clock.Date(2025, 3, 10)) {
		t.Fatalf("start_date: want=today got=%v", c.StartDate)
	}
	if v.Forecast.DaysRemaining == nil || *v.Forecast.DaysRemaining != 50 {
		t.Fatalf("days_remaining: want=50 got=%v", v.Forecast.DaysRemaining)
	}
	if v.Assessment.Tier != alerts.TierOK {
		t.Fatalf("tier: want=ok got=%s", v.Assessment.Tier)
	}
	if c.Client.Name != "Hasan" {
		t.Fatalf("client name: want=Hasan got=%q", c.Client.Name)
	}

	page, err := rec.Query(context.Background(), audit.Filter{Action: models.AuditActionCourseCreated})
	if err != nil {
		t.Fatalf("audit query: %v", err)
	}
	if page.Total != 1 || page.Items[0].EntityID != c.ID {
		t.Fatalf("course.created audit: %+v", page)
	}
}

func TestCreateCourseExplicitDailyUseAndZeroRate(t *testing.T) {
	svc, _ := newTestService(t)
	client := mustClient(t, svc, "Leyla")

	v, err := svc.CreateCourse(context.Background(), admin(), CourseInput{
		ClientID:     client.ID,
		Medication:   "Paracetamol",
		DosePerAdmin: dec("2"),
		AdminsPerDay: dec("4"),
		DailyUse:     decPtr("1.5"),
		PackSize:     16,
		OpeningUnits: 16,
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if !v.Course.DailyUse.Equal(dec("1.5")) {
		t.Fatalf("daily_use: want=1.5 got=%s", v.Course.DailyUse)
	}
	if *v.Forecast.DaysRemaining != 10 {
		t.Fatalf("days_remaining: want=10 got=%d", *v.Forecast.DaysRemaining)
	}

	v, err = svc.CreateCourse(context.Background(), admin(), CourseInput{
		ClientID:   client.ID,
		Medication: "As needed",
		PackSize:   10,
	})
	if err != nil {
		t.Fatalf("CreateCourse zero rate: %v", err)
	}
	if v.Forecast.DaysRemaining != nil || v.Assessment.Tier != alerts.TierUnknown {
		t.Fatalf("zero rate should be unknown: %+v %+v", v.Forecast, v.Assessment)
	}
}

func TestCreateCourseValidation(t *testing.T) {
	svc, _ := newTestService(t)
	client := mustClient(t, svc, "Can")

	cases := []struct {
		name  string
		in    CourseInput
		want  error
		field string
	}{
		{"no pack size", CourseInput{ClientID: client.ID, Medication: "X"}, apperr.ErrInvalidQuantity, "pack_size"},
		{"negative opening", CourseInput{ClientID: client.ID, Medication: "X", PackSize: 10, OpeningUnits: -1}, apperr.ErrInvalidQuantity, "opening_units"},
		{"negative dose", CourseInput{ClientID: client.ID, Medication: "X", PackSize: 10, DosePerAdmin: dec("-1")}, apperr.ErrInvalidQuantity, "dose_per_admin"},
		{"blank medication", CourseInput{ClientID: client.ID, PackSize: 10}, apperr.ErrInvalidInput, "medication"},
		{"forecast out of range", CourseInput{ClientID: client.ID, Medication: "X", PackSize: 10, OpeningUnits: 100, DailyUse: decPtr("0.00001")}, apperr.ErrInvalidQuantity, "daily_use"},
		{"unknown client", CourseInput{ClientID: 404, Medication: "X", PackSize: 10}, apperr.ErrNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateCourse(context.Background(), admin(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want=%v got=%v", tc.want, err)
			}
			var fe *apperr.FieldError
			if tc.field != "" && (!errors.As(err, &fe) || fe.Field != tc.field) {
				t.Fatalf("field: want=%s got=%v", tc.field, err)
			}
		})
	}
}

func TestUpdateCourseNeverDerivesDailyUse(t *testing.T) {
	svc, rec := newTestService(t)
	client := mustClient(t, svc, "Eda")
	v, err := svc.CreateCourse(context.Background(), admin(), CourseInput{
		ClientID: client.ID, Medication: "Sertraline", DosePerAdmin: dec("1"), AdminsPerDay: dec("1"), PackSize: 30, OpeningUnits: 30,
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	v, err = svc.UpdateCourse(context.Background(), v.Course.ID, admin(), CourseUpdate{AdminsPerDay: decPtr("3")})
	if err != nil {
		t.Fatalf("UpdateCourse: %v", err)
	}
	if !v.Course.DailyUse.Equal(dec("1")) || !v.Course.AdminsPerDay.Equal(dec("3")) {
		t.Fatalf("daily_use must stay 1 while admins_per_day=3: %s / %s", v.Course.DailyUse, v.Course.AdminsPerDay)
	}

	v, err = svc.UpdateCourse(context.Background(), v.Course.ID, admin(), CourseUpdate{DailyUse: decPtr("3")})
	if err != nil {
		t.Fatalf("UpdateCourse daily_use: %v", err)
	}
	if *v.Forecast.DaysRemaining != 10 {
		t.Fatalf("days_remaining: want=10 got=%d", *v.Forecast.DaysRemaining)
	}
	if v.Course.PacksOnHand != 1 {
		t.Fatalf("stock must not change on edit: %+v", v.Course)
	}

	page, err := rec.Query(context.Background(), audit.Filter{Action: models.AuditActionCourseUpdated})
	if err != nil {
		t.Fatalf("audit query: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("course.updated entries: want=2 got=%d", page.Total)
	}

	_, err = svc.UpdateCourse(context.Background(), v.Course.ID, admin(), CourseUpdate{DailyUse: decPtr("-1")})
	if !errors.Is(err, apperr.ErrInvalidQuantity) {
		t.Fatalf("negative daily_use: want ErrInvalidQuantity got=%v", err)
	}
}

func TestDeleteCourseThenClient(t *testing.T) {
	svc, _ := newTestService(t)
	client := mustClient(t, svc, "Burak")
	other := mustClient(t, svc, "Selin")
	v, err := svc.CreateCourse(context.Background(), admin(), CourseInput{
		ClientID: client.ID, Medication: "Warfarin", PackSize: 28, OpeningUnits: 28, DosePerAdmin: dec("1"), AdminsPerDay: dec("1"),
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if _, err := svc.CreateCourse(context.Background(), admin(), CourseInput{
		ClientID: other.ID, Medication: "Aspirin", PackSize: 28, OpeningUnits: 28, DosePerAdmin: dec("1"), AdminsPerDay: dec("1"),
	}); err != nil {
		t.Fatalf("CreateCourse other: %v", err)
	}

	if err := svc.DeleteClient(context.Background(), client.ID, admin()); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("client with live course: want ErrInvalidInput got=%v", err)
	}

	if err := svc.DeleteCourse(context.Background(), v.Course.ID, admin()); err != nil {
		t.Fatalf("DeleteCourse: %v", err)
	}
	if _, err := svc.GetCourse(context.Background(), v.Course.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted course: want ErrNotFound got=%v", err)
	}
	if err := svc.DeleteCourse(context.Background(), v.Course.ID, admin()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound got=%v", err)
	}

	all, err := svc.ListCourses(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(all) != 1 || all[0].Course.Medication != "Aspirin" {
		t.Fatalf("live courses: %+v", all)
	}
	mine, err := svc.ListCourses(context.Background(), &client.ID)
	if err != nil {
		t.Fatalf("ListCourses by client: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("client courses after delete: want=0 got=%d", len(mine))
	}

	if err := svc.DeleteClient(context.Background(), client.ID, admin()); err != nil {
		t.Fatalf("DeleteClient: %v", err)
	}
	if _, err := svc.GetClient(context.Background(), client.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted client: want ErrNotFound got=%v", err)
	}
}
