package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMetadataDB(t.TempDir())
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := NewStore(database)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store
}

func addSession(t *testing.T, s *Store, sess core.Session) core.Session {
	t.Helper()
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = core.StatusInactive
	}
	if err := s.AddSession(&sess); err != nil {
		t.Fatalf("adding session %s: %v", sess.Name, err)
	}
	return sess
}

func TestDefaultProfileCreatedOnFirstOpen(t *testing.T) {
	store := setupStore(t)

	id, err := store.GetDefaultProfileID()
	if err != nil {
		t.Fatalf("default profile: %v", err)
	}
	if id == "" {
		t.Fatal("expected a default profile id")
	}

	p, err := store.GetProfileByID(id)
	if err != nil {
		t.Fatalf("reading default profile: %v", err)
	}
	if p.Name != core.DefaultProfileName {
		t.Errorf("default profile name = %q, want %q", p.Name, core.DefaultProfileName)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := setupStore(t)
	profileID, _ := store.GetDefaultProfileID()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := addSession(t, store, core.Session{
		Name:      "dev",
		Type:      core.TypeAwsIamUser,
		Status:    core.StatusActive,
		Region:    "eu-west-1",
		StartedAt: &started,
		ProfileID: profileID,
	})

	got, err := store.GetSessionByID(sess.ID)
	if err != nil {
		t.Fatalf("reading session: %v", err)
	}
	if got.Name != "dev" || got.Type != core.TypeAwsIamUser || got.Region != "eu-west-1" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
	if got.ProfileID != profileID {
		t.Errorf("profile_id = %q, want %q", got.ProfileID, profileID)
	}

	got.Status = core.StatusInactive
	got.StartedAt = nil
	if err := store.UpdateSession(got); err != nil {
		t.Fatalf("updating session: %v", err)
	}
	got, _ = store.GetSessionByID(sess.ID)
	if got.Status != core.StatusInactive || got.StartedAt != nil {
		t.Errorf("update not applied: %+v", got)
	}

	if err := store.DeleteSession(sess.ID); err != nil {
		t.Fatalf("deleting session: %v", err)
	}
	if _, err := store.GetSessionByID(sess.ID); err == nil {
		t.Error("expected not-found after delete")
	}
}

func TestListByStatus(t *testing.T) {
	store := setupStore(t)
	profileID, _ := store.GetDefaultProfileID()

	addSession(t, store, core.Session{Name: "a", Type: core.TypeAwsIamUser, Status: core.StatusActive, ProfileID: profileID})
	addSession(t, store, core.Session{Name: "b", Type: core.TypeAwsIamUser, Status: core.StatusPending, ProfileID: profileID})
	addSession(t, store, core.Session{Name: "c", Type: core.TypeAwsIamUser, Status: core.StatusInactive, ProfileID: profileID})

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("listing active: %v", err)
	}
	if len(active) != 1 || active[0].Name != "a" {
		t.Errorf("active = %+v, want just a", active)
	}

	pending, err := store.ListPending()
	if err != nil {
		t.Fatalf("listing pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "b" {
		t.Errorf("pending = %+v, want just b", pending)
	}
}

func TestListIamRoleChained(t *testing.T) {
	store := setupStore(t)
	profileID, _ := store.GetDefaultProfileID()

	parent := addSession(t, store, core.Session{Name: "parent", Type: core.TypeAwsIamUser, ProfileID: profileID})
	child := addSession(t, store, core.Session{
		Name: "child", Type: core.TypeAwsIamRoleChained, ProfileID: profileID,
		ParentSessionID: parent.ID,
	})
	addSession(t, store, core.Session{
		Name: "other-child", Type: core.TypeAwsIamRoleChained, ProfileID: profileID,
		ParentSessionID: child.ID,
	})

	all, err := store.ListIamRoleChained("")
	if err != nil {
		t.Fatalf("listing chained: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all chained = %d, want 2", len(all))
	}

	direct, err := store.ListIamRoleChained(parent.ID)
	if err != nil {
		t.Fatalf("listing direct children: %v", err)
	}
	if len(direct) != 1 || direct[0].Name != "child" {
		t.Errorf("direct children = %+v, want just child", direct)
	}
}

func TestProfileUniqueness(t *testing.T) {
	store := setupStore(t)

	p := &core.NamedProfile{ID: uuid.New().String(), Name: "work"}
	if err := store.AddProfile(p); err != nil {
		t.Fatalf("adding profile: %v", err)
	}
	dup := &core.NamedProfile{ID: uuid.New().String(), Name: "work"}
	if err := store.AddProfile(dup); err == nil {
		t.Error("expected unique constraint violation for duplicate profile name")
	}
}

func TestIntegrationTokenExpiration(t *testing.T) {
	store := setupStore(t)

	integration := &core.AwsSsoIntegration{
		ID:        uuid.New().String(),
		Alias:     "org",
		PortalURL: "https://org.awsapps.com/start",
		Region:    "us-east-1",
	}
	if err := store.AddAwsSsoIntegration(integration); err != nil {
		t.Fatalf("adding integration: %v", err)
	}

	exp := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	if err := store.SetAccessTokenExpiration(integration.ID, &exp); err != nil {
		t.Fatalf("setting expiration: %v", err)
	}
	got, err := store.GetAwsSsoIntegration(integration.ID)
	if err != nil {
		t.Fatalf("reading integration: %v", err)
	}
	if got.AccessTokenExpiration == nil || !got.AccessTokenExpiration.Equal(exp) {
		t.Errorf("expiration = %v, want %v", got.AccessTokenExpiration, exp)
	}

	if err := store.SetAccessTokenExpiration(integration.ID, nil); err != nil {
		t.Fatalf("clearing expiration: %v", err)
	}
	got, _ = store.GetAwsSsoIntegration(integration.ID)
	if got.AccessTokenExpiration != nil {
		t.Errorf("expiration = %v, want nil", got.AccessTokenExpiration)
	}
}
