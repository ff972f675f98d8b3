package profile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/db"
	"github.com/cirrus-hq/cirrus/internal/notify"
	"github.com/cirrus-hq/cirrus/internal/repository"
	"github.com/cirrus-hq/cirrus/internal/session"
)

type fakeBackend struct{}

func (fakeBackend) GenerateCredentials(ctx context.Context, sess *core.Session) (*core.Credentials, error) {
	return &core.Credentials{
		AccessKeyID:     "ASIAFAKE",
		SecretAccessKey: "secret",
		Expiration:      time.Now().UTC().Add(time.Hour),
	}, nil
}

func (fakeBackend) RemoveSecrets(sessionID string) error { return nil }

type fakeApplier struct{}

func (fakeApplier) Apply(profileName string, creds *core.Credentials) error { return nil }
func (fakeApplier) DeApply(profileName string) error                        { return nil }

type fakeAzure struct{}

func (fakeAzure) Activate(ctx context.Context, sess *core.Session) error   { return nil }
func (fakeAzure) Deactivate(ctx context.Context, sess *core.Session) error { return nil }

type fixture struct {
	store     *repository.Store
	svc       *Service
	profileID string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenMetadataDB(t.TempDir())
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := repository.NewStore(database)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	profileID, err := store.GetDefaultProfileID()
	if err != nil {
		t.Fatalf("default profile: %v", err)
	}

	hub := notify.NewHub()
	hooks := session.NewHooks(store, hub, nil, zerolog.Nop())
	factory := session.NewFactory()
	awsSvc := session.NewAwsService(store, hooks, factory, fakeBackend{}, fakeApplier{}, session.NewProfileLocks(), zerolog.Nop())
	factory.Register(core.TypeAwsIamUser, awsSvc)
	factory.Register(core.TypeAwsIamRoleChained, awsSvc)
	factory.Register(core.TypeAzure, session.NewAzureService(store, hooks, fakeAzure{}))

	return &fixture{
		store:     store,
		svc:       NewService(store, factory, hub, nil, zerolog.Nop()),
		profileID: profileID,
	}
}

func (f *fixture) addSession(t *testing.T, name string, typ core.SessionType, status core.SessionStatus, profileID string) core.Session {
	t.Helper()
	sess := core.Session{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      typ,
		Status:    status,
		Region:    "us-east-1",
		ProfileID: profileID,
	}
	if err := f.store.AddSession(&sess); err != nil {
		t.Fatalf("adding session %s: %v", name, err)
	}
	return sess
}

func (f *fixture) status(t *testing.T, id string) core.SessionStatus {
	t.Helper()
	sess, err := f.store.GetSessionByID(id)
	if err != nil {
		t.Fatalf("reading session %s: %v", id, err)
	}
	return sess.Status
}

func TestValidateName(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.Create("work"); err != nil {
		t.Fatalf("creating profile: %v", err)
	}

	tests := []struct {
		name    string
		wantErr string
	}{
		{"", "Empty profile name"},
		{"   ", "Empty profile name"},
		{"default", "Profile name is reserved"},
		{"work", "Profile name already exists"},
		{" work ", "Profile name already exists"},
		{"staging", ""},
	}
	for _, tt := range tests {
		err := f.svc.ValidateName(tt.name)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("ValidateName(%q) = %v, want nil", tt.name, err)
			}
			continue
		}
		if err == nil || err.Error() != tt.wantErr {
			t.Errorf("ValidateName(%q) = %v, want %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestRenameRoundTripsSessionStatus(t *testing.T) {
	f := setup(t)
	p, err := f.svc.Create("work")
	if err != nil {
		t.Fatalf("creating profile: %v", err)
	}

	s1 := f.addSession(t, "s1", core.TypeAwsIamUser, core.StatusPending, p.ID)
	s2 := f.addSession(t, "s2", core.TypeAwsIamUser, core.StatusInactive, p.ID)
	s3 := f.addSession(t, "s3", core.TypeAwsIamUser, core.StatusActive, p.ID)

	if err := f.svc.Rename(context.Background(), p.ID, "production"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	renamed, err := f.store.GetProfileByID(p.ID)
	if err != nil {
		t.Fatalf("reading profile: %v", err)
	}
	if renamed.Name != "production" {
		t.Errorf("profile name = %q, want production", renamed.Name)
	}

	if got := f.status(t, s1.ID); got != core.StatusPending {
		t.Errorf("s1 = %s, want pending", got)
	}
	if got := f.status(t, s2.ID); got != core.StatusInactive {
		t.Errorf("s2 = %s, want inactive", got)
	}
	if got := f.status(t, s3.ID); got != core.StatusActive {
		t.Errorf("s3 = %s, want active", got)
	}
}

func TestDeleteRepointsSessionsToDefault(t *testing.T) {
	f := setup(t)
	p, err := f.svc.Create("work")
	if err != nil {
		t.Fatalf("creating profile: %v", err)
	}

	s1 := f.addSession(t, "s1", core.TypeAwsIamUser, core.StatusActive, p.ID)
	s2 := f.addSession(t, "s2", core.TypeAwsIamUser, core.StatusInactive, p.ID)

	if err := f.svc.Delete(context.Background(), p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Sessions are repointed, never destroyed.
	for _, id := range []string{s1.ID, s2.ID} {
		sess, err := f.store.GetSessionByID(id)
		if err != nil {
			t.Fatalf("session %s did not survive the profile delete: %v", id, err)
		}
		if sess.ProfileID != f.profileID {
			t.Errorf("session %s profile = %s, want default %s", id, sess.ProfileID, f.profileID)
		}
	}
	if got := f.status(t, s1.ID); got != core.StatusActive {
		t.Errorf("s1 = %s, want active after restart", got)
	}

	profiles, err := f.store.GetProfiles()
	if err != nil {
		t.Fatalf("listing profiles: %v", err)
	}
	for _, prof := range profiles {
		if prof.ID == p.ID {
			t.Error("deleted profile still listed")
		}
	}
}

func TestDeleteDefaultProfileRefused(t *testing.T) {
	f := setup(t)
	if err := f.svc.Delete(context.Background(), f.profileID); err == nil {
		t.Fatal("expected an error deleting the default profile")
	}
}

func TestChangeProfileSkipsNonAwsTypes(t *testing.T) {
	f := setup(t)
	p, err := f.svc.Create("work")
	if err != nil {
		t.Fatalf("creating profile: %v", err)
	}

	azure := f.addSession(t, "az", core.TypeAzure, core.StatusInactive, "")
	result, err := f.svc.ChangeProfile(context.Background(), azure.ID, p.ID)
	if err != nil {
		t.Fatalf("change profile: %v", err)
	}
	if result != ChangeSkipped {
		t.Errorf("result = %s, want %s", result, ChangeSkipped)
	}
	got, _ := f.store.GetSessionByID(azure.ID)
	if got.ProfileID != "" {
		t.Errorf("azure session gained a profile: %s", got.ProfileID)
	}

	aws := f.addSession(t, "dev", core.TypeAwsIamUser, core.StatusInactive, f.profileID)
	result, err = f.svc.ChangeProfile(context.Background(), aws.ID, p.ID)
	if err != nil {
		t.Fatalf("change profile: %v", err)
	}
	if result != ChangeApplied {
		t.Errorf("result = %s, want %s", result, ChangeApplied)
	}
	got, _ = f.store.GetSessionByID(aws.ID)
	if got.ProfileID != p.ID {
		t.Errorf("aws session profile = %s, want %s", got.ProfileID, p.ID)
	}
}
