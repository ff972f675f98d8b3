// Package engine assembles the full CIRRUS runtime: configuration, metadata
// and audit databases, encrypted vault, lifecycle services, and the session
// factory binding them together. The CLI owns exactly one Engine per
// invocation.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/cirrus-hq/cirrus/internal/audit"
	"github.com/cirrus-hq/cirrus/internal/awsconn"
	"github.com/cirrus-hq/cirrus/internal/config"
	"github.com/cirrus-hq/cirrus/internal/core"
	"github.com/cirrus-hq/cirrus/internal/credfile"
	"github.com/cirrus-hq/cirrus/internal/db"
	"github.com/cirrus-hq/cirrus/internal/idpurl"
	"github.com/cirrus-hq/cirrus/internal/logging"
	"github.com/cirrus-hq/cirrus/internal/notify"
	"github.com/cirrus-hq/cirrus/internal/profile"
	"github.com/cirrus-hq/cirrus/internal/repository"
	"github.com/cirrus-hq/cirrus/internal/session"
	"github.com/cirrus-hq/cirrus/internal/ssointegration"
	"github.com/cirrus-hq/cirrus/internal/vault"
)

// Options carries the collaborators an embedding host may substitute.
// Zero-value fields get working defaults; the SAML and Azure collaborators
// default to stubs that fail with a descriptive error, because browser-driven
// sign-in lives outside this process.
type Options struct {
	SAML   session.SAMLAssertionProvider
	Azure  session.AzureBackend
	Config *config.GlobalConfig
}

// Engine is the assembled runtime.
type Engine struct {
	Config       *config.GlobalConfig
	Logger       zerolog.Logger
	Vault        *vault.Vault
	Repo         repository.Repository
	Hub          *notify.Hub
	Audit        *audit.Logger
	Clients      *awsconn.ClientFactory
	Factory      *session.Factory
	Creator      *session.Creator
	Profiles     *profile.Service
	IdpUrls      *idpurl.Service
	Integrations *ssointegration.Service

	metaDB  *sql.DB
	auditDB *sql.DB
}

// Open loads configuration, opens the data stores with the given vault
// passphrase, and wires every lifecycle service.
func Open(passphrase string, opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadGlobalConfig()
		if err != nil {
			return nil, err
		}
		cfg = &loaded
	}

	logger := logging.NewLogger(cfg.LogLevel)

	if err := db.EnsureDataDir(cfg.DataDir); err != nil {
		return nil, err
	}

	metaDB, err := db.OpenMetadataDB(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	auditDB, err := db.OpenAuditDB(cfg.DataDir)
	if err != nil {
		metaDB.Close()
		return nil, err
	}

	store, err := repository.NewStore(metaDB)
	if err != nil {
		metaDB.Close()
		auditDB.Close()
		return nil, err
	}
	auditLog, err := audit.NewLogger(auditDB)
	if err != nil {
		metaDB.Close()
		auditDB.Close()
		return nil, err
	}

	v, err := vault.OpenOrCreate(filepath.Join(cfg.DataDir, vault.VaultFileName), passphrase)
	if err != nil {
		metaDB.Close()
		auditDB.Close()
		return nil, err
	}

	e := &Engine{
		Config:  cfg,
		Logger:  logger,
		Vault:   v,
		Repo:    store,
		Hub:     notify.NewHub(),
		Audit:   auditLog,
		Clients: awsconn.NewClientFactory(logger),
		metaDB:  metaDB,
		auditDB: auditDB,
	}
	e.wire(opts)
	return e, nil
}

func (e *Engine) wire(opts Options) {
	saml := opts.SAML
	if saml == nil {
		saml = unsupportedSAML{}
	}
	azure := opts.Azure
	if azure == nil {
		azure = unsupportedAzure{}
	}

	applier := credfile.NewWriter(e.Config.CredentialsFilePath)
	hooks := session.NewHooks(e.Repo, e.Hub, e.Audit, e.Logger)
	locks := session.NewProfileLocks()
	e.Factory = session.NewFactory()

	dur := e.Config.SessionDurationSecs
	iamBackend := session.NewIamUserBackend(e.Vault, e.Clients, dur)

	awsService := func(backend session.CredentialBackend) *session.AwsService {
		return session.NewAwsService(e.Repo, hooks, e.Factory, backend, applier, locks, e.Logger)
	}

	e.Factory.Register(core.TypeAwsIamUser, awsService(iamBackend))
	e.Factory.Register(core.TypeAwsIamRoleChained,
		awsService(session.NewChainedBackend(e.Repo, e.Factory, e.Clients, dur)))
	e.Factory.Register(core.TypeAwsIamRoleFederated,
		awsService(session.NewFederatedBackend(e.Repo, saml, e.Clients, dur)))
	e.Factory.Register(core.TypeAwsSsoRole,
		awsService(session.NewSsoRoleBackend(e.Repo, e.Vault, e.Clients)))
	e.Factory.Register(core.TypeLocalstack,
		awsService(session.NewLocalstackBackend(dur)))
	e.Factory.Register(core.TypeAzure,
		session.NewAzureService(e.Repo, hooks, azure))

	e.Creator = session.NewCreator(e.Repo, hooks, iamBackend)
	e.Profiles = profile.NewService(e.Repo, e.Factory, e.Hub, e.Audit, e.Logger)
	e.IdpUrls = idpurl.NewService(e.Repo, e.Factory, e.Audit, e.Logger)
	e.Integrations = ssointegration.NewService(
		e.Repo, e.Vault, ssointegration.NewAwsPortal(e.Clients), e.Factory, e.Creator, e.Audit, e.Logger)
}

// VerifySession generates fresh credentials for an AWS-family session and
// resolves the principal behind them through STS.
func (e *Engine) VerifySession(ctx context.Context, sessionID string) (arn, account string, err error) {
	sess, err := e.Repo.GetSessionByID(sessionID)
	if err != nil {
		return "", "", err
	}

	svc, err := e.Factory.ServiceFor(sess.Type)
	if err != nil {
		return "", "", err
	}
	awsSvc, ok := svc.(*session.AwsService)
	if !ok {
		return "", "", fmt.Errorf("unsupported session type: %s", sess.Type)
	}

	creds, err := awsSvc.GenerateCredentials(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	arn, account, _, err = e.Clients.GetCallerIdentity(ctx, creds, sess.Region)
	return arn, account, err
}

// Close flushes and closes the vault and both databases.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.Vault.Close(); err != nil {
		firstErr = err
	}
	if err := e.metaDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.auditDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type unsupportedSAML struct{}

func (unsupportedSAML) Assertion(ctx context.Context, idpURL string) (string, error) {
	return "", fmt.Errorf("saml sign-in requires an external assertion provider (idp url: %s)", idpURL)
}

type unsupportedAzure struct{}

func (unsupportedAzure) Activate(ctx context.Context, sess *core.Session) error {
	return fmt.Errorf("azure sign-in requires an external backend")
}

func (unsupportedAzure) Deactivate(ctx context.Context, sess *core.Session) error {
	return fmt.Errorf("azure sign-in requires an external backend")
}
