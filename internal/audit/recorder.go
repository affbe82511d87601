// Package audit records administrative actions and activity events. Recording
// is best-effort: a failed write is counted and reported to the caller, but
// the operation that triggered it must not be rolled back on account of its
// audit trail.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"counselsoc.org/internal/ids"
	"counselsoc.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so every
// record written during that request carries it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Outcome of an audited action.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusWarning = "warning"
)

// Activity priorities for the feed.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Entry is one row in the admin audit trail. OldValues and NewValues hold
// JSON images of the mutated resource before and after the change. Status
// defaults to success; Details carries free-form context for failed or
// warning entries.
type Entry struct {
	ID         string          `json:"id"`
	AdminID    string          `json:"admin_id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id,omitempty"`
	OldValues  json.RawMessage `json:"old_values,omitempty"`
	NewValues  json.RawMessage `json:"new_values,omitempty"`
	Status     string          `json:"status"`
	Details    string          `json:"details,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Activity is a lighter-weight event in the admin activity feed, for actions
// that are worth surfacing but mutate nothing (logins, exports, sweeps).
// AdminID is empty for system-generated events; RelatedEntity/RelatedID point
// at the record the event concerns, when there is one.
type Activity struct {
	ID            string    `json:"id"`
	AdminID       string    `json:"admin_id,omitempty"`
	Type          string    `json:"activity_type"`
	Title         string    `json:"title"`
	Message       string    `json:"message,omitempty"`
	Priority      string    `json:"priority"`
	RelatedEntity string    `json:"related_entity,omitempty"`
	RelatedID     string    `json:"related_id,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Filter narrows the audit and activity listings.
type Filter struct {
	AdminID  string
	Resource string
	Limit    int
	Offset   int
}

func (f *Filter) normalize() {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Recorder persists audit entries and activities to PostgreSQL and mirrors
// each record to the structured log.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the time source, for tests.
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given database handle.
func NewRecorder(db *sql.DB, opts ...RecorderOption) *Recorder {
	r := &Recorder{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes one audit entry and returns its id. On storage failure the
// record is counted as dropped and the error returned; callers log it and
// carry on.
func (r *Recorder) Record(ctx context.Context, entry Entry) (string, error) {
	entry.Action = strings.TrimSpace(entry.Action)
	entry.Resource = strings.TrimSpace(entry.Resource)
	if entry.AdminID == "" || entry.Action == "" || entry.Resource == "" {
		return "", errors.New("audit: admin_id, action and resource are required")
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}
	switch entry.Status {
	case StatusSuccess, StatusFailed, StatusWarning:
	default:
		return "", errors.New("audit: unknown status " + entry.Status)
	}
	entry.ID = ids.New()
	entry.CreatedAt = r.now().UTC()
	if entry.RequestID == "" {
		entry.RequestID = requestIDFromContext(ctx)
	}

	_, err := r.db.ExecContext(ctx,
		`insert into admin_audit_log(id, admin_id, action, resource, resource_id,
		   old_values, new_values, status, details, ip_address, user_agent, request_id, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		entry.ID, entry.AdminID, entry.Action, entry.Resource, nullable(entry.ResourceID),
		nullableJSON(entry.OldValues), nullableJSON(entry.NewValues),
		entry.Status, nullable(entry.Details),
		nullable(entry.IPAddress), nullable(entry.UserAgent), nullable(entry.RequestID),
		entry.CreatedAt,
	)
	if err != nil {
		obs.AuditDropped.WithLabelValues("audit_log").Inc()
		return "", err
	}
	mirror("audit", map[string]any{
		"id": entry.ID, "admin_id": entry.AdminID, "action": entry.Action,
		"resource": entry.Resource, "resource_id": entry.ResourceID,
		"status": entry.Status, "request_id": entry.RequestID,
	})
	return entry.ID, nil
}

// RecordActivity writes one activity event, with the same best-effort
// contract as Record. AdminID may be empty for events the system generates
// on its own, such as lifecycle sweeps.
func (r *Recorder) RecordActivity(ctx context.Context, activity Activity) (string, error) {
	activity.Type = strings.TrimSpace(activity.Type)
	activity.Title = strings.TrimSpace(activity.Title)
	if activity.Type == "" || activity.Title == "" {
		return "", errors.New("audit: activity type and title are required")
	}
	if activity.Priority == "" {
		activity.Priority = PriorityLow
	}
	switch activity.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return "", errors.New("audit: unknown priority " + activity.Priority)
	}
	activity.ID = ids.New()
	activity.CreatedAt = r.now().UTC()
	if activity.RequestID == "" {
		activity.RequestID = requestIDFromContext(ctx)
	}

	_, err := r.db.ExecContext(ctx,
		`insert into admin_activities(id, admin_id, activity_type, title, message,
		   priority, related_entity, related_id, ip_address, request_id, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		activity.ID, nullable(activity.AdminID), activity.Type, activity.Title,
		nullable(activity.Message), activity.Priority,
		nullable(activity.RelatedEntity), nullable(activity.RelatedID),
		nullable(activity.IPAddress), nullable(activity.RequestID), activity.CreatedAt,
	)
	if err != nil {
		obs.AuditDropped.WithLabelValues("activities").Inc()
		return "", err
	}
	mirror("activity", map[string]any{
		"id": activity.ID, "admin_id": activity.AdminID, "activity_type": activity.Type,
		"title": activity.Title, "priority": activity.Priority,
		"request_id": activity.RequestID,
	})
	return activity.ID, nil
}

// ListEntries pages through the audit trail, newest first.
func (r *Recorder) ListEntries(ctx context.Context, filter Filter) ([]Entry, error) {
	filter.normalize()
	rows, err := r.db.QueryContext(ctx,
		`select id, admin_id, action, resource, coalesce(resource_id, ''),
		   old_values, new_values, status, coalesce(details, ''),
		   coalesce(ip_address, ''), coalesce(user_agent, ''),
		   coalesce(request_id, ''), created_at
		 from admin_audit_log
		 where ($1 = '' or admin_id::text = $1) and ($2 = '' or resource = $2)
		 order by created_at desc limit $3 offset $4`,
		filter.AdminID, filter.Resource, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var oldVals, newVals []byte
		err := rows.Scan(&e.ID, &e.AdminID, &e.Action, &e.Resource, &e.ResourceID,
			&oldVals, &newVals, &e.Status, &e.Details,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.OldValues = json.RawMessage(oldVals)
		e.NewValues = json.RawMessage(newVals)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListActivities pages through the activity feed, newest first.
func (r *Recorder) ListActivities(ctx context.Context, filter Filter) ([]Activity, error) {
	filter.normalize()
	rows, err := r.db.QueryContext(ctx,
		`select id, coalesce(admin_id::text, ''), activity_type, title,
		   coalesce(message, ''), priority, coalesce(related_entity, ''),
		   coalesce(related_id, ''), coalesce(ip_address, ''),
		   coalesce(request_id, ''), created_at
		 from admin_activities
		 where ($1 = '' or admin_id::text = $1)
		 order by created_at desc limit $2 offset $3`,
		filter.AdminID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var a Activity
		err := rows.Scan(&a.ID, &a.AdminID, &a.Type, &a.Title,
			&a.Message, &a.Priority, &a.RelatedEntity, &a.RelatedID,
			&a.IPAddress, &a.RequestID, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// Marshal renders a resource image for the old_values / new_values columns.
func Marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func mirror(kind string, fields map[string]any) {
	entry := map[string]any{
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		"type": kind,
	}
	for k, v := range fields {
		if v != "" && v != nil {
			entry[k] = v
		}
	}
	if data, err := json.Marshal(entry); err == nil {
		obs.Logger().Println(string(data))
	}
}
