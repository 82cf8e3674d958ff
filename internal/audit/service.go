package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"medstock-backend/internal/apperr"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actor is who the caller says performed an action. Nothing here checks it.
type Actor struct {
	ID        *uint
	Name      string
	IP        string
	UserAgent string
}

func SystemActor() Actor {
	return Actor{Name: "system"}
}

type Entry struct {
	Actor       Actor
	Action      string
	EntityType  string
	EntityID    uint
	ClientID    *uint
	Description string
	Before      any
	After       any
	Extra       map[string]any
}

// Writer is what mutating services need from the audit log.
type Writer interface {
	Record(ctx context.Context, e Entry) error
}

type Recorder struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewRecorder(db *gorm.DB, clk clock.Clock) *Recorder {
	return &Recorder{db: db, clock: clk}
}

// Record appends one entry. Any failure comes back wrapping
// apperr.ErrAuditWriteFailed.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	meta := make(map[string]any, len(e.Extra)+3)
	for k, v := range e.Extra {
		meta[k] = v
	}
	if e.Before != nil || e.After != nil {
		meta["before"] = e.Before
		meta["after"] = e.After
	}
	if e.ClientID != nil {
		meta["client_id"] = *e.ClientID
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: encoding metadata: %v", apperr.ErrAuditWriteFailed, err)
	}

	row := models.AuditLog{
		CreatedAt:   r.clock.Now(),
		UserID:      e.Actor.ID,
		UserName:    e.Actor.Name,
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Description: truncate(e.Description, 255),
		Metadata:    datatypes.JSON(raw),
		IP:          truncate(e.Actor.IP, 64),
		UserAgent:   truncate(e.Actor.UserAgent, 255),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrAuditWriteFailed, err)
	}
	return nil
}

// BestEffort records e and only logs a failure. The mutation that triggered
// the entry has already been committed and stays committed.
func BestEffort(ctx context.Context, w Writer, log *logger.Logger, e Entry) {
	if err := w.Record(ctx, e); err != nil {
		log.Warn("audit entry not written",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"error", err)
	}
}

type Filter struct {
	Actor      string // substring of the actor name, case-insensitive
	Action     string // substring of the action
	EntityType string
	EntityID   *uint
	ClientID   *uint
	From       *time.Time // inclusive
	To         *time.Time // exclusive
	Page       int
	PageSize   int
}

type Page struct {
	Items    []models.AuditLog `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Query lists entries newest first; entries created at the same instant come
// in ascending id order.
func (r *Recorder) Query(ctx context.Context, f Filter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}

	page := Page{Page: f.Page, PageSize: f.PageSize, Items: []models.AuditLog{}}
	if err := r.filtered(ctx, f).Count(&page.Total).Error; err != nil {
		return Page{}, fmt.Errorf("counting audit logs: %w", err)
	}
	err := r.filtered(ctx, f).
		Order("created_at DESC").
		Order("id ASC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&page.Items).Error
	if err != nil {
		return Page{}, fmt.Errorf("listing audit logs: %w", err)
	}
	return page, nil
}

func (r *Recorder) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if s := strings.TrimSpace(f.Actor); s != "" {
		q = q.Where("LOWER(user_name) LIKE ? ESCAPE '\\'", "%"+likeEscaper.Replace(strings.ToLower(s))+"%")
	}
	if s := strings.TrimSpace(f.Action); s != "" {
		q = q.Where("action LIKE ? ESCAPE '\\'", "%"+likeEscaper.Replace(s)+"%")
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != nil {
		q = q.Where("entity_id = ?", *f.EntityID)
	}
	if f.ClientID != nil {
		q = q.Where(datatypes.JSONQuery("metadata").Equals(*f.ClientID, "client_id"))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	return q
}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
