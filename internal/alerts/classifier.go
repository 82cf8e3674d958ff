package alerts

import (
	"time"

	"medstock-backend/internal/ledger"
	"medstock-backend/internal/models"
)

type Tier string

const (
	TierCritical Tier = "critical"
	TierLow      Tier = "low"
	TierOK       Tier = "ok"
	TierUnknown  Tier = "unknown"
)

const (
	criticalBelowDays = 3
	lowBelowDays      = 8
)

// Severity orders tiers for grouping: critical > low > ok > unknown.
func (t Tier) Severity() int {
	switch t {
	case TierCritical:
		return 3
	case TierLow:
		return 2
	case TierOK:
		return 1
	default:
		return 0
	}
}

func (t Tier) Urgent() bool {
	return t == TierCritical || t == TierLow
}

func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierCritical, TierLow, TierOK, TierUnknown:
		return Tier(s), true
	}
	return "", false
}

// Classify works on the numeric day count only; dates are never compared.
func Classify(daysRemaining *int64) Tier {
	if daysRemaining == nil {
		return TierUnknown
	}
	d := *daysRemaining
	switch {
	case d < criticalBelowDays:
		return TierCritical
	case d < lowBelowDays:
		return TierLow
	default:
		return TierOK
	}
}

type LifecycleState string

const (
	StateNone          LifecycleState = "none"
	StateAcknowledged  LifecycleState = "acknowledged"
	StateSnoozed       LifecycleState = "snoozed"
	StateExpiredSnooze LifecycleState = "expired-snooze"
)

// Assessment keeps the tier (used for KPI counts) apart from feed
// visibility (used for the urgent list). A snoozed course still counts.
type Assessment struct {
	Tier          Tier           `json:"status"`
	VisibleInFeed bool           `json:"is_visible_in_feed"`
	Acknowledged  bool           `json:"acknowledged"`
	Snoozed       bool           `json:"snoozed"`
	Lifecycle     LifecycleState `json:"lifecycle"`
}

func Evaluate(f ledger.Forecast, state *models.AlertState, now time.Time) Assessment {
	a := Assessment{
		Tier:      Classify(f.DaysRemaining),
		Lifecycle: Lifecycle(state, now),
	}
	a.Acknowledged = state != nil && state.AcknowledgedAt != nil
	a.Snoozed = state.ActivelySnoozed(now)
	a.VisibleInFeed = a.Tier.Urgent() && !a.Snoozed
	return a
}

// Lifecycle reports the state that matters for display. An active snooze
// outranks an acknowledgement; an expired snooze is reported as such until
// someone unsnoozes, even though it no longer hides anything.
func Lifecycle(state *models.AlertState, now time.Time) LifecycleState {
	if state == nil {
		return StateNone
	}
	if state.SnoozedUntil != nil {
		if state.SnoozedUntil.After(now) {
			return StateSnoozed
		}
		if state.AcknowledgedAt == nil {
			return StateExpiredSnooze
		}
	}
	if state.AcknowledgedAt != nil {
		return StateAcknowledged
	}
	return StateNone
}
