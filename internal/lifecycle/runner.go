// Package lifecycle implements the scheduled maintenance jobs: expiring
// members whose renewal date has passed, purging dead session rows and
// flagging approved members who never completed password setup.
package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"counselsoc.org/internal/audit"
	"counselsoc.org/internal/auth"
	"counselsoc.org/internal/obs"
)

// Runner executes the maintenance jobs against the primary database.
type Runner struct {
	db       *sql.DB
	store    auth.Store
	recorder *audit.Recorder
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerClock overrides the time source, for tests.
func WithRunnerClock(fn func() time.Time) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithRunnerRecorder posts a system activity to the admin feed after each
// sweep that expired someone.
func WithRunnerRecorder(rec *audit.Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner constructs a Runner.
func NewRunner(db *sql.DB, store auth.Store, opts ...RunnerOption) *Runner {
	r := &Runner{db: db, store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExpireOverdueMembers flips active members whose renewal date is strictly
// before the given instant to expired, in one statement. A member renewing on
// the boundary day stays active; the job is idempotent because expired rows
// no longer match the predicate.
func (r *Runner) ExpireOverdueMembers(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`update members set member_status=$1, updated_at=now()
		 where member_status=$2 and renewal_date < $3`,
		auth.MemberStatusExpired, auth.MemberStatusActive, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		obs.MembersExpired.Add(float64(n))
	}
	return n, nil
}

// PurgeExpiredSessions removes admin session rows whose tokens can no longer
// verify anyway.
func (r *Runner) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return r.store.Sessions(ctx).DeleteExpired(ctx, now)
}

// DanglingMember is an approved member with no usable credential.
type DanglingMember struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// FindDanglingMembers lists approved members who have no authentication row
// or never completed password setup. These need a fresh setup token, not an
// automatic transition, so the job only reports them.
func (r *Runner) FindDanglingMembers(ctx context.Context) ([]DanglingMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`select m.id, m.full_name
		 from members m
		 left join member_authentication a on a.member_id = m.id
		 where m.application_status = $1 and (a.member_id is null or a.password_hash = '')
		 order by m.created_at asc`,
		auth.ApplicationApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dangling []DanglingMember
	for rows.Next() {
		var d DanglingMember
		if err := rows.Scan(&d.ID, &d.FullName); err != nil {
			return nil, err
		}
		dangling = append(dangling, d)
	}
	return dangling, rows.Err()
}

// Run executes one full maintenance sweep. Individual job failures are
// logged and do not stop the remaining jobs.
func (r *Runner) Run(ctx context.Context) {
	now := r.now().UTC()

	expired, err := r.ExpireOverdueMembers(ctx, now)
	r.report("expire_members", map[string]any{"expired": expired}, err)
	if err == nil && expired > 0 && r.recorder != nil {
		_, _ = r.recorder.RecordActivity(ctx, audit.Activity{
			Type:          "membership_sweep",
			Title:         "Memberships expired",
			Message:       strconv.FormatInt(expired, 10) + " overdue members moved to expired",
			Priority:      audit.PriorityMedium,
			RelatedEntity: auth.ResourceMembers,
		})
	}

	purged, err := r.PurgeExpiredSessions(ctx, now)
	r.report("purge_sessions", map[string]any{"purged": purged}, err)

	dangling, err := r.FindDanglingMembers(ctx)
	r.report("dangling_members", map[string]any{"count": len(dangling)}, err)
}

// Schedule runs sweeps at the given interval until the context is canceled.
// The first sweep runs immediately.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	r.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Run(ctx)
		}
	}
}

func (r *Runner) report(job string, fields map[string]any, err error) {
	entry := map[string]any{
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		"type": "lifecycle",
		"job":  job,
	}
	for k, v := range fields {
		entry[k] = v
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	if data, merr := json.Marshal(entry); merr == nil {
		obs.Logger().Println(string(data))
	}
}
