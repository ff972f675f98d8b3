// Package repository is the process-wide source of truth for sessions, named
// profiles, identity-provider URLs, and SSO integrations. The lifecycle
// services never cache entity copies across calls; every operation re-reads
// the store before mutating it, and the store is the only party serializing
// to durable storage.
package repository

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/google/uuid"
)

// Repository is the store handle injected into every lifecycle service.
type Repository interface {
	// Sessions
	GetSessionByID(id string) (*core.Session, error)
	GetSessions() ([]core.Session, error)
	ListActive() ([]core.Session, error)
	ListPending() ([]core.Session, error)
	// ListIamRoleChained returns chained sessions. With a non-empty
	// parentSessionID only the direct children of that session are returned.
	ListIamRoleChained(parentSessionID string) ([]core.Session, error)
	AddSession(s *core.Session) error
	UpdateSession(s *core.Session) error
	DeleteSession(id string) error

	// Named profiles
	GetProfiles() ([]core.NamedProfile, error)
	GetProfileByID(id string) (*core.NamedProfile, error)
	GetDefaultProfileID() (string, error)
	AddProfile(p *core.NamedProfile) error
	UpdateProfile(p *core.NamedProfile) error
	RemoveProfile(id string) error

	// IdP URLs
	GetIdpUrls() ([]core.IdpUrl, error)
	GetIdpUrlByID(id string) (*core.IdpUrl, error)
	AddIdpUrl(u *core.IdpUrl) error
	UpdateIdpUrl(u *core.IdpUrl) error
	RemoveIdpUrl(id string) error

	// SSO integrations
	GetAwsSsoIntegrations() ([]core.AwsSsoIntegration, error)
	GetAwsSsoIntegration(id string) (*core.AwsSsoIntegration, error)
	GetAwsSsoIntegrationSessions(id string) ([]core.Session, error)
	AddAwsSsoIntegration(i *core.AwsSsoIntegration) error
	UpdateAwsSsoIntegration(i *core.AwsSsoIntegration) error
	RemoveAwsSsoIntegration(id string) error
	SetAccessTokenExpiration(id string, expiration *time.Time) error
}

// Store is the SQLite-backed Repository implementation. A single mutex
// serializes mutating calls so cascade loops keep their invariants when the
// host invokes operations from multiple goroutines.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore wraps an open metadata database and guarantees the default
// profile exists.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if _, err := s.GetDefaultProfileID(); err != nil {
		p := &core.NamedProfile{ID: uuid.New().String(), Name: core.DefaultProfileName}
		if err := s.AddProfile(p); err != nil {
			return nil, fmt.Errorf("creating default profile: %w", err)
		}
	}
	return s, nil
}

const sessionColumns = `id, name, type, status, region, started_at, last_stopped_at,
        profile_id, role_arn, parent_session_id, role_session_name,
        idp_url_id, idp_arn, sso_integration_id, email`

// --- Sessions ---

func (s *Store) GetSessionByID(id string) (*core.Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? LIMIT 1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return &sessions[0], nil
}

func (s *Store) GetSessions() ([]core.Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) listByStatus(status core.SessionStatus) ([]core.Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions WHERE status = ? ORDER BY name ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions by status: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) ListActive() ([]core.Session, error) {
	return s.listByStatus(core.StatusActive)
}

func (s *Store) ListPending() ([]core.Session, error) {
	return s.listByStatus(core.StatusPending)
}

func (s *Store) ListIamRoleChained(parentSessionID string) ([]core.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE type = ?`
	args := []any{string(core.TypeAwsIamRoleChained)}
	if parentSessionID != "" {
		query += ` AND parent_session_id = ?`
		args = append(args, parentSessionID)
	}

	rows, err := s.db.Query(query+` ORDER BY name ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chained sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) AddSession(sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, string(sess.Type), string(sess.Status), sess.Region,
		timeText(sess.StartedAt), timeText(sess.LastStoppedAt),
		nullable(sess.ProfileID), sess.RoleARN, nullable(sess.ParentSessionID),
		sess.RoleSessionName, nullable(sess.IdpURLID), sess.IdpARN,
		nullable(sess.SsoIntegrationID), sess.Email,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`UPDATE sessions SET name = ?, status = ?, region = ?, started_at = ?,
		        last_stopped_at = ?, profile_id = ?, role_arn = ?,
		        parent_session_id = ?, role_session_name = ?, idp_url_id = ?,
		        idp_arn = ?, sso_integration_id = ?, email = ?
		 WHERE id = ?`,
		sess.Name, string(sess.Status), sess.Region,
		timeText(sess.StartedAt), timeText(sess.LastStoppedAt),
		nullable(sess.ProfileID), sess.RoleARN, nullable(sess.ParentSessionID),
		sess.RoleSessionName, nullable(sess.IdpURLID), sess.IdpARN,
		nullable(sess.SsoIntegrationID), sess.Email,
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found: %s", sess.ID)
	}
	return nil
}

func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// --- Named profiles ---

func (s *Store) GetProfiles() ([]core.NamedProfile, error) {
	rows, err := s.db.Query(`SELECT id, name FROM named_profiles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	var profiles []core.NamedProfile
	for rows.Next() {
		var p core.NamedProfile
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (s *Store) GetProfileByID(id string) (*core.NamedProfile, error) {
	var p core.NamedProfile
	err := s.db.QueryRow(`SELECT id, name FROM named_profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("named profile not found: %s", id)
		}
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &p, nil
}

func (s *Store) GetDefaultProfileID() (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM named_profiles WHERE name = ?`, core.DefaultProfileName,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("default profile not found")
		}
		return "", fmt.Errorf("querying default profile: %w", err)
	}
	return id, nil
}

func (s *Store) AddProfile(p *core.NamedProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`INSERT INTO named_profiles (id, name) VALUES (?, ?)`, p.ID, p.Name); err != nil {
		return fmt.Errorf("inserting profile: %w", err)
	}
	return nil
}

func (s *Store) UpdateProfile(p *core.NamedProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE named_profiles SET name = ? WHERE id = ?`, p.Name, p.ID)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("named profile not found: %s", p.ID)
	}
	return nil
}

func (s *Store) RemoveProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM named_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("named profile not found: %s", id)
	}
	return nil
}

// --- IdP URLs ---

func (s *Store) GetIdpUrls() ([]core.IdpUrl, error) {
	rows, err := s.db.Query(`SELECT id, url FROM idp_urls ORDER BY url ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying idp urls: %w", err)
	}
	defer rows.Close()

	var urls []core.IdpUrl
	for rows.Next() {
		var u core.IdpUrl
		if err := rows.Scan(&u.ID, &u.URL); err != nil {
			return nil, fmt.Errorf("scanning idp url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func (s *Store) GetIdpUrlByID(id string) (*core.IdpUrl, error) {
	var u core.IdpUrl
	err := s.db.QueryRow(`SELECT id, url FROM idp_urls WHERE id = ?`, id).
		Scan(&u.ID, &u.URL)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("idp url not found: %s", id)
		}
		return nil, fmt.Errorf("querying idp url: %w", err)
	}
	return &u, nil
}

func (s *Store) AddIdpUrl(u *core.IdpUrl) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`INSERT INTO idp_urls (id, url) VALUES (?, ?)`, u.ID, u.URL); err != nil {
		return fmt.Errorf("inserting idp url: %w", err)
	}
	return nil
}

func (s *Store) UpdateIdpUrl(u *core.IdpUrl) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE idp_urls SET url = ? WHERE id = ?`, u.URL, u.ID)
	if err != nil {
		return fmt.Errorf("updating idp url: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("idp url not found: %s", u.ID)
	}
	return nil
}

func (s *Store) RemoveIdpUrl(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM idp_urls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing idp url: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("idp url not found: %s", id)
	}
	return nil
}

// --- SSO integrations ---

func (s *Store) GetAwsSsoIntegrations() ([]core.AwsSsoIntegration, error) {
	rows, err := s.db.Query(
		`SELECT id, alias, portal_url, region, browser_opening, access_token_expiration
		 FROM aws_sso_integrations ORDER BY alias ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sso integrations: %w", err)
	}
	defer rows.Close()

	var integrations []core.AwsSsoIntegration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, *i)
	}
	return integrations, nil
}

func (s *Store) GetAwsSsoIntegration(id string) (*core.AwsSsoIntegration, error) {
	rows, err := s.db.Query(
		`SELECT id, alias, portal_url, region, browser_opening, access_token_expiration
		 FROM aws_sso_integrations WHERE id = ? LIMIT 1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sso integration: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("sso integration not found: %s", id)
	}
	return scanIntegration(rows)
}

func (s *Store) GetAwsSsoIntegrationSessions(id string) ([]core.Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions WHERE sso_integration_id = ? ORDER BY name ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sso integration sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) AddAwsSsoIntegration(i *core.AwsSsoIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO aws_sso_integrations (id, alias, portal_url, region, browser_opening, access_token_expiration)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.Alias, i.PortalURL, i.Region, i.BrowserOpening,
		timeText(i.AccessTokenExpiration),
	)
	if err != nil {
		return fmt.Errorf("inserting sso integration: %w", err)
	}
	return nil
}

func (s *Store) UpdateAwsSsoIntegration(i *core.AwsSsoIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`UPDATE aws_sso_integrations SET alias = ?, portal_url = ?, region = ?,
		        browser_opening = ?, access_token_expiration = ?
		 WHERE id = ?`,
		i.Alias, i.PortalURL, i.Region, i.BrowserOpening,
		timeText(i.AccessTokenExpiration), i.ID,
	)
	if err != nil {
		return fmt.Errorf("updating sso integration: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("sso integration not found: %s", i.ID)
	}
	return nil
}

func (s *Store) RemoveAwsSsoIntegration(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM aws_sso_integrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing sso integration: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("sso integration not found: %s", id)
	}
	return nil
}

func (s *Store) SetAccessTokenExpiration(id string, expiration *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`UPDATE aws_sso_integrations SET access_token_expiration = ? WHERE id = ?`,
		timeText(expiration), id,
	)
	if err != nil {
		return fmt.Errorf("updating access token expiration: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("sso integration not found: %s", id)
	}
	return nil
}

// --- scan helpers ---

func scanSessions(rows *sql.Rows) ([]core.Session, error) {
	var sessions []core.Session
	for rows.Next() {
		var sess core.Session
		var startedAt, lastStoppedAt, profileID, parentID, idpURLID, ssoID sql.NullString

		err := rows.Scan(
			&sess.ID, &sess.Name, &sess.Type, &sess.Status, &sess.Region,
			&startedAt, &lastStoppedAt,
			&profileID, &sess.RoleARN, &parentID, &sess.RoleSessionName,
			&idpURLID, &sess.IdpARN, &ssoID, &sess.Email,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}

		sess.StartedAt = parseTimeText(startedAt)
		sess.LastStoppedAt = parseTimeText(lastStoppedAt)
		sess.ProfileID = profileID.String
		sess.ParentSessionID = parentID.String
		sess.IdpURLID = idpURLID.String
		sess.SsoIntegrationID = ssoID.String

		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanIntegration(rows *sql.Rows) (*core.AwsSsoIntegration, error) {
	var i core.AwsSsoIntegration
	var expiration sql.NullString

	err := rows.Scan(&i.ID, &i.Alias, &i.PortalURL, &i.Region, &i.BrowserOpening, &expiration)
	if err != nil {
		return nil, fmt.Errorf("scanning sso integration: %w", err)
	}
	i.AccessTokenExpiration = parseTimeText(expiration)
	return &i, nil
}

func timeText(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseTimeText(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
