package audit

import (
	"database/sql"
	"testing"

	"github.com/cirrus-hq/cirrus/internal/db"
)

func setupAuditDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenAuditDB(t.TempDir())
	if err != nil {
		t.Fatalf("opening audit db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestLogAndVerify(t *testing.T) {
	database := setupAuditDB(t)

	logger, err := NewLogger(database)
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}

	logger.Log(EventSessionStarted, "sess-1", map[string]string{"profile": "default"})
	logger.Log(EventSessionRotated, "sess-1", nil)
	logger.Log(EventProfileRenamed, "", map[string]string{"from": "work", "to": "prod"})

	valid, count, err := Verify(database)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !valid {
		t.Error("expected valid chain")
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestChainContinuesAcrossReopen(t *testing.T) {
	database := setupAuditDB(t)

	first, err := NewLogger(database)
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	first.Log(EventSessionCreated, "sess-1", nil)

	// A new logger over the same db must pick the chain up where it ended.
	second, err := NewLogger(database)
	if err != nil {
		t.Fatalf("recreating logger: %v", err)
	}
	second.Log(EventSessionDeleted, "sess-1", nil)

	valid, count, err := Verify(database)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !valid || count != 2 {
		t.Errorf("valid=%v count=%d, want valid chain of 2", valid, count)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	database := setupAuditDB(t)

	logger, err := NewLogger(database)
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	logger.Log(EventSessionStarted, "sess-1", nil)
	logger.Log(EventSessionStopped, "sess-1", nil)

	if _, err := database.Exec(`UPDATE audit_log SET detail = '{"forged":true}' WHERE id = 1`); err != nil {
		t.Fatalf("tampering: %v", err)
	}

	valid, _, err := Verify(database)
	if valid {
		t.Error("expected verification to fail after tampering")
	}
	if err == nil {
		t.Error("expected an error describing the broken chain")
	}
}
