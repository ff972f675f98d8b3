package session

import (
	"context"
	"time"

	"github.com/cirrus-hq/cirrus/internal/core"
)

// LocalstackBackend serves the fixed credentials LocalStack accepts for any
// request. It exists so local-emulator sessions participate in the same
// lifecycle as real AWS sessions.
type LocalstackBackend struct {
	durationSecs int32
}

// NewLocalstackBackend creates the LocalStack credential backend.
func NewLocalstackBackend(durationSecs int32) *LocalstackBackend {
	return &LocalstackBackend{durationSecs: durationSecs}
}

func (b *LocalstackBackend) GenerateCredentials(ctx context.Context, sess *core.Session) (*core.Credentials, error) {
	return &core.Credentials{
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Expiration:      time.Now().UTC().Add(time.Duration(b.durationSecs) * time.Second),
	}, nil
}

func (b *LocalstackBackend) RemoveSecrets(sessionID string) error {
	return nil
}
