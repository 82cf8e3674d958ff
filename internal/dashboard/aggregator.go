// Package dashboard builds the read model behind the dashboard and the
// urgent alert feed. Every tier is recomputed from the stored counters.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"medstock-backend/internal/alerts"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/ledger"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// PendingCounter supplies the pendingOrders KPI.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int64, error)
}

// Scheduler supplies the nextScheduleAt KPI.
type Scheduler interface {
	NextRunAt() *time.Time
}

type KPIs struct {
	Critical       int        `json:"critical"`
	Low            int        `json:"low"`
	OK             int        `json:"ok"`
	Unknown        int        `json:"unknown"`
	PendingOrders  int64      `json:"pendingOrders"`
	NextScheduleAt *time.Time `json:"nextScheduleAt"`
}

type ClientRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type AlertRow struct {
	CourseID       uint                  `json:"course_id"`
	Medication     string                `json:"medication"`
	Strength       string                `json:"strength"`
	Status         alerts.Tier           `json:"status"`
	UnitsRemaining int64                 `json:"units_remaining"`
	DaysRemaining  *int64                `json:"days_remaining"`
	HalfDate       *string               `json:"half_date"`
	RunoutDate     *string               `json:"runout_date"`
	Client         ClientRef             `json:"client"`
	Lifecycle      alerts.LifecycleState `json:"lifecycle"`
	VisibleInFeed  bool                  `json:"is_visible_in_feed"`
	Acknowledged   bool                  `json:"acknowledged"`
	SnoozedUntil   *time.Time            `json:"snoozed_until"`
}

// Group holds one client's rows. Status is the most severe tier among all
// of the client's courses, whatever filter was applied to Rows.
type Group struct {
	Client ClientRef   `json:"client"`
	Status alerts.Tier `json:"status"`
	Rows   []AlertRow  `json:"rows"`
}

type Dashboard struct {
	KPIs   KPIs       `json:"kpis"`
	Alerts []AlertRow `json:"alerts"`
	Groups []Group    `json:"groups"`
}

type Aggregator struct {
	db       *gorm.DB
	pending  PendingCounter
	schedule Scheduler
	clock    clock.Clock
	lang     language.Tag
	log      *logger.Logger
}

func NewAggregator(db *gorm.DB, pending PendingCounter, schedule Scheduler, clk clock.Clock, lang language.Tag, log *logger.Logger) *Aggregator {
	return &Aggregator{db: db, pending: pending, schedule: schedule, clock: clk, lang: lang, log: log}
}

// Build assembles the dashboard. A non-nil filter narrows Alerts and Groups
// to that tier; KPIs are always counted over every live course.
func (a *Aggregator) Build(ctx context.Context, filter *alerts.Tier) (Dashboard, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Alerts: []AlertRow{}, Groups: []Group{}}
	for _, r := range rows {
		switch r.Status {
		case alerts.TierCritical:
			d.KPIs.Critical++
		case alerts.TierLow:
			d.KPIs.Low++
		case alerts.TierOK:
			d.KPIs.OK++
		default:
			d.KPIs.Unknown++
		}
	}
	if a.pending != nil {
		if d.KPIs.PendingOrders, err = a.pending.PendingCount(ctx); err != nil {
			return Dashboard{}, err
		}
	}
	if a.schedule != nil {
		d.KPIs.NextScheduleAt = a.schedule.NextRunAt()
	}

	for _, g := range a.group(rows) {
		if filter != nil {
			kept := g.Rows[:0]
			for _, r := range g.Rows {
				if r.Status == *filter {
					kept = append(kept, r)
				}
			}
			g.Rows = kept
		}
		if len(g.Rows) == 0 {
			continue
		}
		d.Groups = append(d.Groups, g)
		d.Alerts = append(d.Alerts, g.Rows...)
	}
	return d, nil
}

// Feed lists the rows that belong in the urgent list: critical or low and
// not actively snoozed. Unacknowledged rows come first.
func (a *Aggregator) Feed(ctx context.Context) ([]AlertRow, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return nil, err
	}
	feed := []AlertRow{}
	for _, r := range rows {
		if r.VisibleInFeed {
			feed = append(feed, r)
		}
	}
	sort.SliceStable(feed, func(i, j int) bool {
		if feed[i].Acknowledged != feed[j].Acknowledged {
			return !feed[i].Acknowledged
		}
		return lessRow(feed[i], feed[j])
	})
	return feed, nil
}

func (a *Aggregator) rows(ctx context.Context) ([]AlertRow, error) {
	db := a.db.WithContext(ctx)
	var list []models.MedicationCourse
	if err := db.Preload("Client").Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("loading courses: %w", err)
	}
	states, err := alerts.StatesFor(db, list)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	rows := make([]AlertRow, 0, len(list))
	for i := range list {
		c := &list[i]
		f, err := ledger.ForCourse(c)
		if err != nil {
			// Stored counters that fail validation cannot be forecast.
			a.log.Warn("course cannot be forecast", "course_id", c.ID, "error", err)
			f = ledger.Forecast{TotalUnits: c.TotalUnits()}
		}
		st := states[c.ID]
		as := alerts.Evaluate(f, st, now)

		rows = append(rows, AlertRow{
			CourseID:       c.ID,
			Medication:     c.Medication,
			Strength:       c.Strength,
			Status:         as.Tier,
			UnitsRemaining: f.TotalUnits,
			DaysRemaining:  f.DaysRemaining,
			HalfDate:       clock.FormatDate(f.HalfDate),
			RunoutDate:     clock.FormatDate(f.RunoutDate),
			Client:         ClientRef{ID: c.ClientID, Name: c.Client.Name},
			Lifecycle:      as.Lifecycle,
			VisibleInFeed:  as.VisibleInFeed,
			Acknowledged:   as.Acknowledged,
			SnoozedUntil:   st.Snooze().SnoozedUntil,
		})
	}
	return rows, nil
}

func (a *Aggregator) group(rows []AlertRow) []Group {
	byClient := map[uint]*Group{}
	var order []*Group
	for _, r := range rows {
		g, ok := byClient[r.Client.ID]
		if !ok {
			g = &Group{Client: r.Client, Status: alerts.TierUnknown}
			byClient[r.Client.ID] = g
			order = append(order, g)
		}
		if r.Status.Severity() > g.Status.Severity() {
			g.Status = r.Status
		}
		g.Rows = append(g.Rows, r)
	}

	// A Collator is not safe for concurrent use.
	col := collate.New(a.lang, collate.IgnoreCase)
	sort.SliceStable(order, func(i, j int) bool {
		gi, gj := order[i], order[j]
		if gi.Status.Severity() != gj.Status.Severity() {
			return gi.Status.Severity() > gj.Status.Severity()
		}
		if c := col.CompareString(gi.Client.Name, gj.Client.Name); c != 0 {
			return c < 0
		}
		return gi.Client.ID < gj.Client.ID
	})

	out := make([]Group, 0, len(order))
	for _, g := range order {
		sort.SliceStable(g.Rows, func(i, j int) bool { return lessRow(g.Rows[i], g.Rows[j]) })
		out = append(out, *g)
	}
	return out
}

// lessRow puts the most urgent row first: higher severity, then fewer days
// left, then medication name.
func lessRow(a, b AlertRow) bool {
	if a.Status.Severity() != b.Status.Severity() {
		return a.Status.Severity() > b.Status.Severity()
	}
	switch {
	case a.DaysRemaining != nil && b.DaysRemaining != nil && *a.DaysRemaining != *b.DaysRemaining:
		return *a.DaysRemaining < *b.DaysRemaining
	case a.DaysRemaining != nil && b.DaysRemaining == nil:
		return true
	case a.DaysRemaining == nil && b.DaysRemaining != nil:
		return false
	}
	if a.Medication != b.Medication {
		return a.Medication < b.Medication
	}
	return a.CourseID < b.CourseID
}
