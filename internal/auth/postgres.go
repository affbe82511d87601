package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"counselsoc.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Members(context.Context) MemberStore         { return &memberStore{db: s.db} }
func (s *PGStore) Admins(context.Context) AdminStore           { return &adminStore{db: s.db} }
func (s *PGStore) Permissions(context.Context) PermissionStore { return &permissionStore{db: s.db} }
func (s *PGStore) Sessions(context.Context) SessionStore       { return &sessionStore{db: s.db} }

const uniqueViolation = "23505"

func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateUsername
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStoreUnavailable
	}
	return err
}

// Member store -------------------------------------------------------------

type memberStore struct{ db *sql.DB }

func (s *memberStore) Create(ctx context.Context, m *Member, contact *MemberContact, cred *MemberCredential) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapStoreErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`insert into members(id, full_name, member_status, application_status, renewal_date)
		 values($1,$2,$3,$4,$5)`,
		m.ID, m.FullName, m.MemberStatus, m.ApplicationStatus, m.RenewalDate,
	)
	if err != nil {
		return mapStoreErr(err)
	}
	if contact != nil {
		contact.MemberID = m.ID
		_, err = tx.ExecContext(ctx,
			`insert into member_contact_details(member_id, email, phone) values($1,$2,$3)`,
			contact.MemberID, contact.Email, contact.Phone,
		)
		if err != nil {
			return mapStoreErr(err)
		}
	}
	if cred != nil {
		cred.MemberID = m.ID
		_, err = tx.ExecContext(ctx,
			`insert into member_authentication(member_id, username, password_hash, salt) values($1,$2,$3,$4)`,
			cred.MemberID, cred.Username, cred.PasswordHash, cred.Salt,
		)
		if err != nil {
			return mapStoreErr(err)
		}
	}
	return mapStoreErr(tx.Commit())
}

const memberColumns = `id, full_name, member_status, application_status, renewal_date, created_at, updated_at`

func scanMember(row interface{ Scan(...any) error }) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.FullName, &m.MemberStatus, &m.ApplicationStatus,
		&m.RenewalDate, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &m, nil
}

func (s *memberStore) Find(ctx context.Context, id string) (*Member, error) {
	return scanMember(s.db.QueryRowContext(ctx,
		`select `+memberColumns+` from members where id=$1`, id))
}

func (s *memberStore) List(ctx context.Context, limit, offset int) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+memberColumns+` from members order by created_at desc limit $1 offset $2`,
		limit, offset)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, mapStoreErr(rows.Err())
}

func (s *memberStore) FindByIdentifier(ctx context.Context, identifier string) (*Member, *MemberCredential, error) {
	row := s.db.QueryRowContext(ctx,
		`select m.id, m.full_name, m.member_status, m.application_status, m.renewal_date, m.created_at, m.updated_at,
		        a.username, a.password_hash, a.salt, a.password_changed_at
		 from members m
		 join member_authentication a on a.member_id = m.id
		 left join member_contact_details c on c.member_id = m.id
		 where a.username = $1 or c.email = $1`, identifier)

	var (
		m       Member
		cred    MemberCredential
		changed sql.NullTime
	)
	err := row.Scan(&m.ID, &m.FullName, &m.MemberStatus, &m.ApplicationStatus,
		&m.RenewalDate, &m.CreatedAt, &m.UpdatedAt,
		&cred.Username, &cred.PasswordHash, &cred.Salt, &changed)
	if err != nil {
		return nil, nil, mapStoreErr(err)
	}
	cred.MemberID = m.ID
	if changed.Valid {
		cred.PasswordChangedAt = changed.Time
	}
	return &m, &cred, nil
}

func (s *memberStore) FindByEmail(ctx context.Context, email string) (*Member, error) {
	return scanMember(s.db.QueryRowContext(ctx,
		`select m.id, m.full_name, m.member_status, m.application_status, m.renewal_date, m.created_at, m.updated_at
		 from members m
		 join member_contact_details c on c.member_id = m.id
		 where c.email = $1`, email))
}

func (s *memberStore) Contact(ctx context.Context, memberID string) (*MemberContact, error) {
	row := s.db.QueryRowContext(ctx,
		`select member_id, email, coalesce(phone, '') from member_contact_details where member_id=$1`, memberID)
	var c MemberContact
	if err := row.Scan(&c.MemberID, &c.Email, &c.Phone); err != nil {
		return nil, mapStoreErr(err)
	}
	return &c, nil
}

func (s *memberStore) Credential(ctx context.Context, memberID string) (*MemberCredential, error) {
	row := s.db.QueryRowContext(ctx,
		`select member_id, username, password_hash, salt, password_changed_at
		 from member_authentication where member_id=$1`, memberID)
	var (
		cred    MemberCredential
		changed sql.NullTime
	)
	if err := row.Scan(&cred.MemberID, &cred.Username, &cred.PasswordHash, &cred.Salt, &changed); err != nil {
		return nil, mapStoreErr(err)
	}
	if changed.Valid {
		cred.PasswordChangedAt = changed.Time
	}
	return &cred, nil
}

func (s *memberStore) UpdatePassword(ctx context.Context, memberID, passwordHash, salt string, changedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update member_authentication set password_hash=$2, salt=$3, password_changed_at=$4, updated_at=now()
		 where member_id=$1`,
		memberID, passwordHash, salt, changedAt,
	)
	if err != nil {
		return mapStoreErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *memberStore) UpdateStatus(ctx context.Context, id, memberStatus, applicationStatus string) (*Member, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := scanMember(tx.QueryRowContext(ctx,
		`select `+memberColumns+` from members where id=$1 for update`, id))
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`update members set member_status=$2, application_status=$3, updated_at=now() where id=$1`,
		id, memberStatus, applicationStatus,
	)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapStoreErr(err)
	}
	return old, nil
}

// Admin store --------------------------------------------------------------

type adminStore struct{ db *sql.DB }

const adminColumns = `id, username, email, password_hash, salt, role, is_active,
	login_attempts, locked_until, last_login, password_changed_at, created_at, updated_at`

func scanAdmin(row interface{ Scan(...any) error }) (*Admin, error) {
	var (
		a       Admin
		role    string
		locked  sql.NullTime
		last    sql.NullTime
		changed sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Salt, &role,
		&a.IsActive, &a.LoginAttempts, &locked, &last, &changed, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	a.Role = Role(role)
	if locked.Valid {
		a.LockedUntil = &locked.Time
	}
	if last.Valid {
		a.LastLogin = &last.Time
	}
	if changed.Valid {
		a.PasswordChangedAt = changed.Time
	}
	return &a, nil
}

func (s *adminStore) Create(ctx context.Context, a *Admin) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into admins(id, username, email, password_hash, salt, role, is_active)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Salt, string(a.Role), a.IsActive,
	)
	return mapStoreErr(err)
}

func (s *adminStore) Find(ctx context.Context, id string) (*Admin, error) {
	return scanAdmin(s.db.QueryRowContext(ctx,
		`select `+adminColumns+` from admins where id=$1`, id))
}

func (s *adminStore) FindByIdentifier(ctx context.Context, identifier string) (*Admin, error) {
	return scanAdmin(s.db.QueryRowContext(ctx,
		`select `+adminColumns+` from admins where username=$1 or email=$1`, identifier))
}

func (s *adminStore) FindByEmail(ctx context.Context, email string) (*Admin, error) {
	return scanAdmin(s.db.QueryRowContext(ctx,
		`select `+adminColumns+` from admins where email=$1`, email))
}

func (s *adminStore) List(ctx context.Context) ([]*Admin, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+adminColumns+` from admins order by created_at asc`)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var admins []*Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, mapStoreErr(rows.Err())
}

func (s *adminStore) UpdatePassword(ctx context.Context, adminID, passwordHash, salt string, changedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update admins set password_hash=$2, salt=$3, password_changed_at=$4, updated_at=now() where id=$1`,
		adminID, passwordHash, salt, changedAt,
	)
	if err != nil {
		return mapStoreErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *adminStore) RecordLoginSuccess(ctx context.Context, adminID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update admins set login_attempts=0, locked_until=null, last_login=$2, updated_at=now() where id=$1`,
		adminID, at,
	)
	return mapStoreErr(err)
}

func (s *adminStore) RecordLoginFailure(ctx context.Context, adminID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`update admins set login_attempts=login_attempts+1, updated_at=now()
		 where id=$1 returning login_attempts`, adminID)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, mapStoreErr(err)
	}
	return attempts, nil
}

func (s *adminStore) Lock(ctx context.Context, adminID string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update admins set locked_until=$2, updated_at=now() where id=$1`, adminID, until)
	return mapStoreErr(err)
}

func (s *adminStore) Unlock(ctx context.Context, adminID string) error {
	_, err := s.db.ExecContext(ctx,
		`update admins set locked_until=null, login_attempts=0, updated_at=now() where id=$1`, adminID)
	return mapStoreErr(err)
}

func (s *adminStore) SetRole(ctx context.Context, adminID string, role Role) error {
	_, err := s.db.ExecContext(ctx,
		`update admins set role=$2, updated_at=now() where id=$1`, adminID, string(role))
	return mapStoreErr(err)
}

func (s *adminStore) SetActive(ctx context.Context, adminID string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`update admins set is_active=$2, updated_at=now() where id=$1`, adminID, active)
	return mapStoreErr(err)
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) ForAdmin(ctx context.Context, adminID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select admin_id, resource, action, allowed from admin_permissions where admin_id=$1`, adminID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.AdminID, &p.Resource, &p.Action, &p.Allowed); err != nil {
			return nil, mapStoreErr(err)
		}
		perms = append(perms, p)
	}
	return perms, mapStoreErr(rows.Err())
}

func (s *permissionStore) Set(ctx context.Context, p Permission) error {
	_, err := s.db.ExecContext(ctx,
		`insert into admin_permissions(admin_id, resource, action, allowed) values($1,$2,$3,$4)
		 on conflict (admin_id, resource, action) do update set allowed=excluded.allowed`,
		p.AdminID, p.Resource, p.Action, p.Allowed,
	)
	return mapStoreErr(err)
}

// Session store ------------------------------------------------------------

type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into admin_sessions(id, admin_id, token_id, expires_at) values($1,$2,$3,$4)`,
		sess.ID, sess.AdminID, sess.TokenID, sess.ExpiresAt,
	)
	return mapStoreErr(err)
}

func (s *sessionStore) Revoke(ctx context.Context, tokenID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update admin_sessions set revoked_at=$2 where token_id=$1 and revoked_at is null`,
		tokenID, at,
	)
	return mapStoreErr(err)
}

func (s *sessionStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select revoked_at from admin_sessions where token_id=$1`, tokenID)
	var revoked sql.NullTime
	if err := row.Scan(&revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No row means the token never had a session record; stateless
			// validation still applies.
			return false, nil
		}
		return false, mapStoreErr(err)
	}
	return revoked.Valid, nil
}

func (s *sessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from admin_sessions where expires_at < $1`, now)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return n, nil
}
