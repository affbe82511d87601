package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRecorder(db), mock
}

func TestRecord(t *testing.T) {
	rec, mock := newTestRecorder(t)

	mock.ExpectExec("insert into admin_audit_log").
		WithArgs(sqlmock.AnyArg(), "admin-1", "update", "members", "member-1",
			[]byte(`{"member_status":"active"}`), []byte(`{"member_status":"suspended"}`),
			StatusSuccess, nil,
			"203.0.113.9", "test-agent", "req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := rec.Record(context.Background(), Entry{
		AdminID:    "admin-1",
		Action:     "update",
		Resource:   "members",
		ResourceID: "member-1",
		OldValues:  json.RawMessage(`{"member_status":"active"}`),
		NewValues:  json.RawMessage(`{"member_status":"suspended"}`),
		IPAddress:  "203.0.113.9",
		UserAgent:  "test-agent",
		RequestID:  "req-1",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("expected a record id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordStorageFailure(t *testing.T) {
	// A dead store must surface the error without panicking; the caller
	// decides that the triggering operation still succeeds.
	rec, mock := newTestRecorder(t)

	mock.ExpectExec("insert into admin_audit_log").
		WillReturnError(errors.New("connection refused"))

	_, err := rec.Record(context.Background(), Entry{
		AdminID:  "admin-1",
		Action:   "update",
		Resource: "members",
	})
	if err == nil {
		t.Fatal("expected an error from a dead store")
	}
}

func TestRecordValidation(t *testing.T) {
	rec, _ := newTestRecorder(t)

	if _, err := rec.Record(context.Background(), Entry{Action: "update", Resource: "members"}); err == nil {
		t.Fatal("expected error without admin_id")
	}
	if _, err := rec.Record(context.Background(), Entry{AdminID: "admin-1", Resource: "members"}); err == nil {
		t.Fatal("expected error without action")
	}
	if _, err := rec.Record(context.Background(), Entry{
		AdminID: "admin-1", Action: "update", Resource: "members", Status: "bogus",
	}); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestRecordFailedStatus(t *testing.T) {
	rec, mock := newTestRecorder(t)

	mock.ExpectExec("insert into admin_audit_log").
		WithArgs(sqlmock.AnyArg(), "admin-1", "delete", "members", nil,
			nil, nil, StatusFailed, "member has open invoices",
			nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := rec.Record(context.Background(), Entry{
		AdminID:  "admin-1",
		Action:   "delete",
		Resource: "members",
		Status:   StatusFailed,
		Details:  "member has open invoices",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordPicksUpRequestID(t *testing.T) {
	rec, mock := newTestRecorder(t)

	mock.ExpectExec("insert into admin_audit_log").
		WithArgs(sqlmock.AnyArg(), "admin-1", "create", "admins", nil,
			nil, nil, StatusSuccess, nil, nil, nil, "req-77", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := WithRequestID(context.Background(), "req-77")
	if _, err := rec.Record(ctx, Entry{AdminID: "admin-1", Action: "create", Resource: "admins"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordActivity(t *testing.T) {
	rec, mock := newTestRecorder(t)

	mock.ExpectExec("insert into admin_activities").
		WithArgs(sqlmock.AnyArg(), "admin-1", "login", "Admin login", "root signed in",
			PriorityLow, "admin", "admin-1", "203.0.113.9", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := rec.RecordActivity(context.Background(), Activity{
		AdminID:       "admin-1",
		Type:          "login",
		Title:         "Admin login",
		Message:       "root signed in",
		RelatedEntity: "admin",
		RelatedID:     "admin-1",
		IPAddress:     "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if id == "" {
		t.Fatal("expected a record id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordActivityWithoutAdmin(t *testing.T) {
	// System-generated events carry no actor; admin_id goes in as null.
	rec, mock := newTestRecorder(t)

	mock.ExpectExec("insert into admin_activities").
		WithArgs(sqlmock.AnyArg(), nil, "membership_sweep", "Memberships expired", "3 overdue members expired",
			PriorityMedium, nil, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := rec.RecordActivity(context.Background(), Activity{
		Type:     "membership_sweep",
		Title:    "Memberships expired",
		Message:  "3 overdue members expired",
		Priority: PriorityMedium,
	})
	if err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if id == "" {
		t.Fatal("expected a record id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordActivityValidation(t *testing.T) {
	rec, _ := newTestRecorder(t)

	if _, err := rec.RecordActivity(context.Background(), Activity{Type: "login"}); err == nil {
		t.Fatal("expected error without title")
	}
	if _, err := rec.RecordActivity(context.Background(), Activity{
		Type: "login", Title: "Admin login", Priority: "urgent",
	}); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}

func TestListEntries(t *testing.T) {
	rec, mock := newTestRecorder(t)
	now := time.Now().UTC()

	mock.ExpectQuery("from admin_audit_log").
		WithArgs("", "members", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "admin_id", "action", "resource", "resource_id",
			"old_values", "new_values", "status", "details",
			"ip_address", "user_agent", "request_id", "created_at",
		}).AddRow("01AB", "admin-1", "update", "members", "member-1",
			[]byte(`{"a":1}`), []byte(`{"a":2}`), StatusSuccess, "", "", "", "req-1", now))

	entries, err := rec.ListEntries(context.Background(), Filter{Resource: "members"})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "update" || entries[0].Status != StatusSuccess {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if string(entries[0].NewValues) != `{"a":2}` {
		t.Fatalf("unexpected new values: %s", entries[0].NewValues)
	}
}

func TestListActivitiesClampsLimit(t *testing.T) {
	rec, mock := newTestRecorder(t)

	mock.ExpectQuery("from admin_activities").
		WithArgs("admin-1", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "admin_id", "activity_type", "title", "message",
			"priority", "related_entity", "related_id",
			"ip_address", "request_id", "created_at",
		}))

	if _, err := rec.ListActivities(context.Background(), Filter{AdminID: "admin-1", Limit: 10000, Offset: -3}); err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
