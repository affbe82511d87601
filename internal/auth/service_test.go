package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	issuer, err := NewTokenIssuer("test-signing-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	svc, err := NewService(NewPGStore(db), issuer, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, mock
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := HashPassword(password, MemberHashCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func memberIdentifierRows(hash, memberStatus, applicationStatus string, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "full_name", "member_status", "application_status",
		"renewal_date", "created_at", "updated_at",
		"username", "password_hash", "salt", "password_changed_at",
	}).AddRow(
		"member-1", "Ada Smith", memberStatus, applicationStatus,
		now.AddDate(1, 0, 0), now, now,
		"asmith", hash, "salt", now,
	)
}

func adminRows(id, username, hash string, role Role, active bool, attempts int, lockedUntil any, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "salt", "role", "is_active",
		"login_attempts", "locked_until", "last_login", "password_changed_at",
		"created_at", "updated_at",
	}).AddRow(
		id, username, username+"@example.org", hash, "salt", string(role), active,
		attempts, lockedUntil, nil, now, now, now,
	)
}

func TestMemberLoginSuccess(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()
	hash := mustHash(t, "correct-horse")

	mock.ExpectQuery("join member_authentication").
		WithArgs("asmith").
		WillReturnRows(memberIdentifierRows(hash, MemberStatusActive, ApplicationApproved, now))
	mock.ExpectQuery("from member_contact_details").
		WithArgs("member-1").
		WillReturnRows(sqlmock.NewRows([]string{"member_id", "email", "phone"}).
			AddRow("member-1", "ada@example.org", ""))

	grant, principal, err := svc.MemberLogin(context.Background(), "ASmith", "correct-horse")
	if err != nil {
		t.Fatalf("MemberLogin: %v", err)
	}
	if grant.Token == "" || grant.ExpiresAt == 0 {
		t.Fatal("expected a populated token grant")
	}
	if principal.Username != "asmith" || principal.Email != "ada@example.org" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMemberLoginWrongPassword(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	mock.ExpectQuery("join member_authentication").
		WithArgs("asmith").
		WillReturnRows(memberIdentifierRows(mustHash(t, "correct-horse"), MemberStatusActive, ApplicationApproved, now))

	_, _, err := svc.MemberLogin(context.Background(), "asmith", "wrong-horse")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestMemberLoginPendingApplication(t *testing.T) {
	// A correct password against a pending application reveals the account
	// state; a wrong password must not, so the password check runs first.
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	mock.ExpectQuery("join member_authentication").
		WithArgs("asmith").
		WillReturnRows(memberIdentifierRows(mustHash(t, "correct-horse"), MemberStatusPending, ApplicationPending, now))

	_, _, err := svc.MemberLogin(context.Background(), "asmith", "correct-horse")
	if !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected account not active, got %v", err)
	}
}

func TestMemberLoginUnknownIdentifier(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("join member_authentication").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, _, err := svc.MemberLogin(context.Background(), "nobody", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestCreateMemberWritesAllRowsInOneTransaction(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into members").
		WithArgs(sqlmock.AnyArg(), "Ada Smith", MemberStatusActive, ApplicationApproved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into member_contact_details").
		WithArgs(sqlmock.AnyArg(), "ada@example.org", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into member_authentication").
		WithArgs(sqlmock.AnyArg(), "asmith", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	member, setupToken, err := svc.CreateMember(context.Background(), CreateMemberParams{
		FullName:    "Ada Smith",
		Username:    "asmith",
		Email:       "ada@example.org",
		RenewalDate: time.Now().AddDate(1, 0, 0),
	})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	if member.ID == "" || setupToken == "" {
		t.Fatal("expected a member id and a setup token")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateMemberDuplicateUsernameLeavesNoMemberBehind(t *testing.T) {
	// A taken username surfaces on the credential insert; the member and
	// contact rows written earlier in the transaction must roll back with it.
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into members").
		WithArgs(sqlmock.AnyArg(), "Ada Smith", MemberStatusActive, ApplicationApproved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into member_contact_details").
		WithArgs(sqlmock.AnyArg(), "ada@example.org", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into member_authentication").
		WithArgs(sqlmock.AnyArg(), "asmith", "", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "member_authentication_username_key"})
	mock.ExpectRollback()

	_, _, err := svc.CreateMember(context.Background(), CreateMemberParams{
		FullName:    "Ada Smith",
		Username:    "asmith",
		Email:       "ada@example.org",
		RenewalDate: time.Now().AddDate(1, 0, 0),
	})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAdminLoginSuccess(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	mock.ExpectQuery("from admins where username=").
		WithArgs("root").
		WillReturnRows(adminRows("admin-1", "root", mustHash(t, "correct-horse"), RoleSuperAdmin, true, 0, nil, now))
	mock.ExpectExec("login_attempts=0").
		WithArgs("admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into admin_sessions").
		WithArgs(sqlmock.AnyArg(), "admin-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	grant, admin, err := svc.AdminLogin(context.Background(), "root", "correct-horse")
	if err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	if grant.Token == "" {
		t.Fatal("expected a session token")
	}
	if admin.LoginAttempts != 0 || admin.LockedUntil != nil {
		t.Fatalf("login should clear lockout state: %+v", admin)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAdminLoginLockoutAtThreshold(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	mock.ExpectQuery("from admins where username=").
		WithArgs("root").
		WillReturnRows(adminRows("admin-1", "root", mustHash(t, "correct-horse"), RoleAdmin, true, 4, nil, now))
	mock.ExpectQuery("returning login_attempts").
		WithArgs("admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts"}).AddRow(5))
	mock.ExpectExec("set locked_until=").
		WithArgs("admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, _, err := svc.AdminLogin(context.Background(), "root", "wrong-horse")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAdminLoginFailureBelowThreshold(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	mock.ExpectQuery("from admins where username=").
		WithArgs("root").
		WillReturnRows(adminRows("admin-1", "root", mustHash(t, "correct-horse"), RoleAdmin, true, 0, nil, now))
	mock.ExpectQuery("returning login_attempts").
		WithArgs("admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts"}).AddRow(1))

	_, _, err := svc.AdminLogin(context.Background(), "root", "wrong-horse")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	// No lock statement should have been issued.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAdminLoginWhileLocked(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()
	until := now.Add(10 * time.Minute)

	mock.ExpectQuery("from admins where username=").
		WithArgs("root").
		WillReturnRows(adminRows("admin-1", "root", mustHash(t, "correct-horse"), RoleAdmin, true, 5, until, now))

	_, _, err := svc.AdminLogin(context.Background(), "root", "correct-horse")
	if !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected account not active, got %v", err)
	}
}

func TestAuthenticateAdmin(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	token, _, err := svc.tokens.Issue("admin-1", PurposeSession, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mock.ExpectQuery("select revoked_at from admin_sessions").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"revoked_at"}))
	mock.ExpectQuery("from admins where id=").
		WithArgs("admin-1").
		WillReturnRows(adminRows("admin-1", "root", "hash", RoleAdmin, true, 0, nil, now))
	mock.ExpectQuery("from admin_permissions").
		WithArgs("admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"admin_id", "resource", "action", "allowed"}))

	principal, verified, err := svc.AuthenticateAdmin(context.Background(), token)
	if err != nil {
		t.Fatalf("AuthenticateAdmin: %v", err)
	}
	if principal.Admin.ID != "admin-1" || verified.SubjectID != "admin-1" {
		t.Fatalf("unexpected principal: %+v", principal.Admin)
	}
	if err := svc.Authorize(principal, ResourceMembers, ActionWrite); err != nil {
		t.Fatalf("admin should write members: %v", err)
	}
	if err := svc.Authorize(principal, ResourceAdmins, ActionWrite); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin should not write admins, got %v", err)
	}
}

func TestAuthenticateAdminRevokedToken(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	token, _, err := svc.tokens.Issue("admin-1", PurposeSession, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mock.ExpectQuery("select revoked_at from admin_sessions").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"revoked_at"}).AddRow(now))

	_, _, err = svc.AuthenticateAdmin(context.Background(), token)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestAuthenticateAdminInactive(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	token, _, err := svc.tokens.Issue("admin-1", PurposeSession, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mock.ExpectQuery("select revoked_at from admin_sessions").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"revoked_at"}))
	mock.ExpectQuery("from admins where id=").
		WithArgs("admin-1").
		WillReturnRows(adminRows("admin-1", "root", "hash", RoleAdmin, false, 0, nil, now))
	mock.ExpectQuery("from admin_permissions").
		WithArgs("admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"admin_id", "resource", "action", "allowed"}))

	_, _, err = svc.AuthenticateAdmin(context.Background(), token)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestAuthenticateMemberRejectsResetToken(t *testing.T) {
	svc, _ := newTestService(t)

	token, _, err := svc.tokens.Issue("member-1", PurposePasswordReset, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, _, err = svc.AuthenticateMember(context.Background(), token)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestResetMemberPassword(t *testing.T) {
	svc, mock := newTestService(t)
	past := time.Now().UTC().Add(-time.Hour)

	token, _, err := svc.tokens.Issue("member-1", PurposePasswordReset, 2*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mock.ExpectQuery("from member_authentication where member_id=").
		WithArgs("member-1").
		WillReturnRows(sqlmock.NewRows([]string{"member_id", "username", "password_hash", "salt", "password_changed_at"}).
			AddRow("member-1", "asmith", "old-hash", "salt", past))
	mock.ExpectExec("update member_authentication set").
		WithArgs("member-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ResetMemberPassword(context.Background(), token, "new-password-1"); err != nil {
		t.Fatalf("ResetMemberPassword: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestResetMemberPasswordStaleToken(t *testing.T) {
	// A token issued before the last password change is dead even while its
	// exp claim is still in the future.
	issued := time.Now().UTC().Add(-30 * time.Minute)
	svc, mock := newTestService(t)
	svc.tokens.now = func() time.Time { return issued }

	token, _, err := svc.tokens.Issue("member-1", PurposePasswordReset, 2*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	svc.tokens.now = time.Now

	changedAfterIssue := issued.Add(10 * time.Minute)
	mock.ExpectQuery("from member_authentication where member_id=").
		WithArgs("member-1").
		WillReturnRows(sqlmock.NewRows([]string{"member_id", "username", "password_hash", "salt", "password_changed_at"}).
			AddRow("member-1", "asmith", "old-hash", "salt", changedAfterIssue))

	err = svc.ResetMemberPassword(context.Background(), token, "new-password-1")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected stale token rejection, got %v", err)
	}
}

func TestSetupMemberPasswordRequiresApproval(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now().UTC()

	token, _, err := svc.tokens.Issue("member-1", PurposePasswordSetup, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mock.ExpectQuery("from members where id=").
		WithArgs("member-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "full_name", "member_status", "application_status",
			"renewal_date", "created_at", "updated_at",
		}).AddRow("member-1", "Ada Smith", MemberStatusPending, ApplicationPending, now, now, now))

	err = svc.SetupMemberPassword(context.Background(), token, "new-password-1")
	if !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected account not active, got %v", err)
	}
}

func TestMemberForgotPasswordUnknownEmail(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("join member_contact_details").
		WithArgs("nobody@example.org").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	token, member, err := svc.MemberForgotPassword(context.Background(), "nobody@example.org")
	if err != nil {
		t.Fatalf("MemberForgotPassword: %v", err)
	}
	if token != "" || member != nil {
		t.Fatal("unknown email must not produce a token")
	}
}

func TestAdminLogoutRevokesSession(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("update admin_sessions set revoked_at=").
		WithArgs("token-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.AdminLogout(context.Background(), "admin-1", "token-1"); err != nil {
		t.Fatalf("AdminLogout: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
