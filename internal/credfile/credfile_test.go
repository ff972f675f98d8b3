package credfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cirrus-hq/cirrus/internal/core"
)

func testCreds(token string) *core.Credentials {
	return &core.Credentials{
		AccessKeyID:     "ASIAEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    token,
		Expiration:      time.Now().Add(time.Hour),
	}
}

func TestApplyCreatesProfileSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	w := NewWriter(path)

	if err := w.Apply("default", testCreds("tok-1")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"[default]",
		"aws_access_key_id = ASIAEXAMPLE",
		"aws_secret_access_key = secret",
		"aws_session_token = tok-1",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("missing %q in:\n%s", want, content)
		}
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestApplyReplacesOnlyOwnSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	seed := "[other]\naws_access_key_id = AKIAOTHER\naws_secret_access_key = keep-me\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	w := NewWriter(path)
	if err := w.Apply("work", testCreds("tok-1")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := w.Apply("work", testCreds("tok-2")); err != nil {
		t.Fatalf("re-apply: %v", err)
	}

	data, _ := os.ReadFile(path)
	content := string(data)
	if !strings.Contains(content, "keep-me") {
		t.Error("foreign section was clobbered")
	}
	if strings.Contains(content, "tok-1") {
		t.Error("stale credentials left behind after re-apply")
	}
	if !strings.Contains(content, "tok-2") {
		t.Error("fresh credentials missing")
	}
	if strings.Count(content, "[work]") != 1 {
		t.Errorf("expected exactly one [work] section:\n%s", content)
	}
}

func TestDeApplyRemovesSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	w := NewWriter(path)

	if err := w.Apply("work", testCreds("tok")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := w.Apply("other", testCreds("tok")); err != nil {
		t.Fatalf("apply other: %v", err)
	}
	if err := w.DeApply("work"); err != nil {
		t.Fatalf("deapply: %v", err)
	}

	data, _ := os.ReadFile(path)
	content := string(data)
	if strings.Contains(content, "[work]") {
		t.Error("[work] section still present")
	}
	if !strings.Contains(content, "[other]") {
		t.Error("[other] section lost")
	}
}

func TestDeApplyIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	w := NewWriter(path)

	if err := w.DeApply("never-applied"); err != nil {
		t.Errorf("deapply on missing file: %v", err)
	}
}
