package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"medstock-backend/internal/apperr"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/database/testdb"
	"medstock-backend/internal/models"

	"github.com/google/go-cmp/cmp"
)

func uintp(v uint) *uint { return &v }

func ids(items []models.AuditLog) []uint {
	out := make([]uint, 0, len(items))
	for _, l := range items {
		out = append(out, l.ID)
	}
	return out
}

func TestRecordStoresMetadata(t *testing.T) {
	clk := &clock.Fixed{At: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	db := testdb.Open(t, clk)
	rec := NewRecorder(db, clk)
	ctx := context.Background()

	err := rec.Record(ctx, Entry{
		Actor:      Actor{ID: uintp(4), Name: "Ayse Nurse", IP: "10.0.0.1", UserAgent: "ua"},
		Action:     models.AuditActionSnoozed,
		EntityType: models.EntityCourse,
		EntityID:   11,
		ClientID:   uintp(3),
		Before:     map[string]any{"snoozed_until": nil},
		After:      map[string]any{"snoozed_until": "2025-03-02T09:00:00Z"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	var got models.AuditLog
	if err := db.First(&got).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.CreatedAt.Equal(clk.Now()) {
		t.Fatalf("created_at: want=%v got=%v", clk.Now(), got.CreatedAt)
	}
	var meta map[string]any
	if err := json.Unmarshal(got.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	want := map[string]any{
		"client_id": float64(3),
		"before":    map[string]any{"snoozed_until": nil},
		"after":     map[string]any{"snoozed_until": "2025-03-02T09:00:00Z"},
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
	if got.UserID == nil || *got.UserID != 4 || got.UserName != "Ayse Nurse" || got.IP != "10.0.0.1" {
		t.Fatalf("actor fields not stored: %+v", got)
	}
}

func TestRecordFailureIsAuditWriteFailed(t *testing.T) {
	clk := &clock.Fixed{At: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	db := testdb.Open(t, clk)
	rec := NewRecorder(db, clk)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	_ = sqlDB.Close()

	err = rec.Record(context.Background(), Entry{Action: models.AuditActionRestock, EntityType: models.EntityCourse, EntityID: 1})
	if !errors.Is(err, apperr.ErrAuditWriteFailed) {
		t.Fatalf("expected ErrAuditWriteFailed, got %v", err)
	}
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	clk := &clock.Fixed{At: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	db := testdb.Open(t, clk)
	rec := NewRecorder(db, clk)
	ctx := context.Background()

	write := func(name, action string, clientID uint) {
		t.Helper()
		if err := rec.Record(ctx, Entry{
			Actor:      Actor{Name: name},
			Action:     action,
			EntityType: models.EntityCourse,
			EntityID:   clientID * 10,
			ClientID:   uintp(clientID),
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	// Three entries share one instant, then the clock moves on.
	write("Ayse", models.AuditActionAcknowledged, 1) // id 1
	write("Burak", models.AuditActionSnoozed, 2)     // id 2
	write("ayse k", models.AuditActionRestock, 1)    // id 3
	clk.Advance(24 * time.Hour)
	write("Cem", models.AuditActionUnsnoozed, 2) // id 4

	page, err := rec.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff([]uint{4, 1, 2, 3}, ids(page.Items)); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	if page.Total != 4 {
		t.Fatalf("total: want=4 got=%d", page.Total)
	}

	cases := []struct {
		name string
		f    Filter
		want []uint
	}{
		{"actor substring ignores case", Filter{Actor: "AYSE"}, []uint{1, 3}},
		{"action substring", Filter{Action: "alert."}, []uint{4, 1, 2}},
		{"client id in metadata", Filter{ClientID: uintp(2)}, []uint{4, 2}},
		{"entity type", Filter{EntityType: models.EntityClient}, []uint{}},
		{"date range", Filter{From: timep(clock.Date(2025, 3, 2))}, []uint{4}},
		{"date upper bound", Filter{To: timep(clock.Date(2025, 3, 2))}, []uint{1, 2, 3}},
		{"pagination", Filter{Page: 2, PageSize: 2}, []uint{2, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := rec.Query(ctx, tc.f)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if diff := cmp.Diff(tc.want, ids(p.Items)); diff != "" {
				t.Fatalf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func timep(t time.Time) *time.Time { return &t }

func TestTruncateKeepsRunesWhole(t *testing.T) {
	desc := "Course updated: " + strings.Repeat("ş", 150)
	got := truncate(desc, 255)
	if len(got) > 255 || !utf8.ValidString(got) {
		t.Fatalf("truncate: len=%d valid=%v", len(got), utf8.ValidString(got))
	}
	// 16 ASCII bytes leave room for 119 two-byte runes.
	if want := "Course updated: " + strings.Repeat("ş", 119); got != want {
		t.Fatalf("truncate: want len=%d got len=%d", len(want), len(got))
	}
	if got := truncate("Çiğdem", 64); got != "Çiğdem" {
		t.Fatalf("short string changed: %q", got)
	}
}

func TestQueryTreatsWildcardsLiterally(t *testing.T) {
	clk := &clock.Fixed{At: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	db := testdb.Open(t, clk)
	rec := NewRecorder(db, clk)
	ctx := context.Background()

	for _, e := range []Entry{
		{Actor: Actor{Name: "Ayse"}, Action: models.AuditActionSnoozed},
		{Actor: Actor{Name: "Night_shift"}, Action: "alert_bulk"},
		{Actor: Actor{Name: "100% Burak"}, Action: models.AuditActionRestock},
	} {
		e.EntityType = models.EntityCourse
		e.EntityID = 1
		if err := rec.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	cases := []struct {
		name string
		f    Filter
		want []uint
	}{
		{"underscore in action", Filter{Action: "alert_"}, []uint{2}},
		{"underscore in actor", Filter{Actor: "y_e"}, []uint{}},
		{"literal underscore in actor", Filter{Actor: "t_s"}, []uint{2}},
		{"percent in actor", Filter{Actor: "100%"}, []uint{3}},
		{"percent alone", Filter{Actor: "%"}, []uint{3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := rec.Query(ctx, tc.f)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if diff := cmp.Diff(tc.want, ids(p.Items)); diff != "" {
				t.Fatalf("ids (-want +got):\n%s", diff)
			}
		})
	}
}
