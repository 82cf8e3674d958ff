package dashboard

import (
	"context"
	"testing"
	"time"

	"medstock-backend/internal/alerts"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/database/testdb"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

type fixedPending int64

func (p fixedPending) PendingCount(context.Context) (int64, error) { return int64(p), nil }

type fixedSchedule struct{ at time.Time }

func (s fixedSchedule) NextRunAt() *time.Time { return &s.at }

type ward struct {
	db      *gorm.DB
	clk     *clock.Fixed
	courses map[string]uint
}

func newWard(t *testing.T) *ward {
	t.Helper()
	clk := &clock.Fixed{At: time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)}
	w := &ward{db: testdb.Open(t, clk), clk: clk, courses: map[string]uint{}}

	clients := map[string]*models.Client{}
	for _, name := range []string{"Cem", "Zafer", "Deniz", "Çiğdem", "Burak"} {
		c := &models.Client{Name: name}
		testdb.Seed(t, w.db, c)
		clients[name] = c
	}

	add := func(client, med string, units int64, daily int64) {
		c := &models.MedicationCourse{
			ClientID:     clients[client].ID,
			Medication:   med,
			DosePerAdmin: decimal.NewFromInt(daily),
			AdminsPerDay: decimal.NewFromInt(1),
			DailyUse:     decimal.NewFromInt(daily),
			PackSize:     10,
			PacksOnHand:  units / 10,
			LooseUnits:   units % 10,
			StartDate:    clock.Date(2025, 5, 20),
		}
		testdb.Seed(t, w.db, c)
		w.courses[med] = c.ID
	}
	add("Cem", "A", 2, 1)
	add("Cem", "B", 20, 1)
	add("Zafer", "F", 1, 1)
	add("Zafer", "G", 6, 1)
	add("Deniz", "D", 4, 1)
	add("Deniz", "E", 30, 0)
	add("Çiğdem", "C", 5, 1)
	add("Burak", "H", 50, 1)

	until := clk.Now().Add(6 * time.Hour)
	acked := clk.Now().Add(-time.Hour)
	testdb.Seed(t, w.db,
		&models.AlertState{CourseID: w.courses["F"], SnoozedUntil: &until},
		&models.AlertState{CourseID: w.courses["G"], AcknowledgedAt: &acked},
	)
	return w
}

func (w *ward) aggregator() *Aggregator {
	next := time.Date(2025, 5, 20, 12, 15, 0, 0, time.UTC)
	return NewAggregator(w.db, fixedPending(3), fixedSchedule{at: next}, w.clk, language.Turkish, logger.NewNop())
}

func meds(rows []AlertRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Medication)
	}
	return out
}

func groupNames(groups []Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Client.Name+":"+string(g.Status))
	}
	return out
}

func TestBuildGroupsBySeverityThenName(t *testing.T) {
	w := newWard(t)
	d, err := w.aggregator().Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantKPIs := KPIs{Critical: 2, Low: 3, OK: 2, Unknown: 1, PendingOrders: 3}
	gotKPIs := d.KPIs
	gotKPIs.NextScheduleAt = nil
	if diff := cmp.Diff(wantKPIs, gotKPIs); diff != "" {
		t.Fatalf("kpis (-want +got):\n%s", diff)
	}
	if d.KPIs.NextScheduleAt == nil || d.KPIs.NextScheduleAt.Minute() != 15 {
		t.Fatalf("nextScheduleAt: %v", d.KPIs.NextScheduleAt)
	}

	wantGroups := []string{"Cem:critical", "Zafer:critical", "Çiğdem:low", "Deniz:low", "Burak:ok"}
	if diff := cmp.Diff(wantGroups, groupNames(d.Groups)); diff != "" {
		t.Fatalf("groups (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B", "F", "G", "C", "D", "E", "H"}, meds(d.Alerts)); diff != "" {
		t.Fatalf("alerts (-want +got):\n%s", diff)
	}

	a := d.Alerts[0]
	if a.UnitsRemaining != 2 || a.DaysRemaining == nil || *a.DaysRemaining != 2 || a.RunoutDate == nil || *a.RunoutDate != "2025-05-22" {
		t.Fatalf("row A: %+v", a)
	}
	if a.Client.Name != "Cem" {
		t.Fatalf("row A client: %+v", a.Client)
	}
}

func TestTierFilterLeavesKPIsAlone(t *testing.T) {
	w := newWard(t)
	agg := w.aggregator()

	all, err := agg.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, tier := range []alerts.Tier{alerts.TierCritical, alerts.TierLow, alerts.TierOK, alerts.TierUnknown} {
		tier := tier
		d, err := agg.Build(context.Background(), &tier)
		if err != nil {
			t.Fatalf("Build(%s): %v", tier, err)
		}
		if diff := cmp.Diff(all.KPIs, d.KPIs); diff != "" {
			t.Fatalf("kpis changed under %s filter (-all +filtered):\n%s", tier, diff)
		}
		for _, r := range d.Alerts {
			if r.Status != tier {
				t.Fatalf("%s filter let %s through", tier, r.Status)
			}
		}
	}

	low := alerts.TierLow
	d, err := agg.Build(context.Background(), &low)
	if err != nil {
		t.Fatalf("Build(low): %v", err)
	}
	// Zafer keeps its critical group status even though only G is shown.
	if diff := cmp.Diff([]string{"Zafer:critical", "Çiğdem:low", "Deniz:low"}, groupNames(d.Groups)); diff != "" {
		t.Fatalf("low groups (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"G", "C", "D"}, meds(d.Alerts)); diff != "" {
		t.Fatalf("low alerts (-want +got):\n%s", diff)
	}
}

func TestFeedHidesSnoozedAndPutsUnacknowledgedFirst(t *testing.T) {
	w := newWard(t)
	agg := w.aggregator()

	feed, err := agg.Feed(context.Background())
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "D", "C", "G"}, meds(feed)); diff != "" {
		t.Fatalf("feed (-want +got):\n%s", diff)
	}

	// Once the snooze runs out F is back, without anyone touching its state.
	w.clk.Advance(6 * time.Hour)
	feed, err = agg.Feed(context.Background())
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if diff := cmp.Diff([]string{"F", "A", "D", "C", "G"}, meds(feed)); diff != "" {
		t.Fatalf("feed after expiry (-want +got):\n%s", diff)
	}
	if feed[0].Lifecycle != alerts.StateExpiredSnooze {
		t.Fatalf("F lifecycle: want=%s got=%s", alerts.StateExpiredSnooze, feed[0].Lifecycle)
	}
}

func TestDeletedCoursesDropOut(t *testing.T) {
	w := newWard(t)
	if err := w.db.Delete(&models.MedicationCourse{}, w.courses["A"]).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	d, err := w.aggregator().Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.KPIs.Critical != 1 {
		t.Fatalf("critical: want=1 got=%d", d.KPIs.Critical)
	}
	if d.Groups[0].Client.Name != "Zafer" {
		t.Fatalf("first group: want=Zafer got=%s", d.Groups[0].Client.Name)
	}
}
