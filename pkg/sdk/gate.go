package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/terraconstructs/svcgate/pkg/sdk/telemetry"
)

// ErrCacheMiss is returned by CredentialStore.LoadCredentials when nothing
// usable is cached.
var ErrCacheMiss = errors.New("no cached credential")

// ErrInsufficientPermission is reported when a credential carries none of the
// claims the access policy requires.
var ErrInsufficientPermission = errors.New("credential does not grant access")

// CredentialStore persists the single cached credential record.
type CredentialStore interface {
	// SaveCredentials replaces the cached record.
	SaveCredentials(cred *CachedCredential) error
	// LoadCredentials returns the cached record, or ErrCacheMiss when there is
	// none (including when a corrupted record had to be discarded).
	LoadCredentials() (*CachedCredential, error)
	// DeleteCredentials removes the cached record. It is idempotent and
	// reports nothing to the caller.
	DeleteCredentials()
}

// ExitCode identifies a fatal initialization failure class. Operators
// diagnose startup failures from these values alone, so they must stay stable.
type ExitCode int

const (
	ExitNoToken                ExitCode = 1
	ExitInsufficientPermission ExitCode = 2
	ExitNoCredential           ExitCode = 3
	ExitUnexpected             ExitCode = 4
)

func (c ExitCode) String() string {
	switch c {
	case ExitNoToken:
		return "no-token-provided"
	case ExitInsufficientPermission:
		return "insufficient-permission"
	case ExitNoCredential:
		return "acquisition-returned-nothing"
	case ExitUnexpected:
		return "unexpected-error"
	default:
		return fmt.Sprintf("exit-%d", int(c))
	}
}

// InitError is a classified initialization failure.
type InitError struct {
	Code ExitCode
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Gate decides whether the supervised service may start: it reuses a still
// valid cached credential or acquires and persists a new one.
type Gate struct {
	store    CredentialStore
	acquirer Acquirer
	source   FingerprintSource
	policy   *AccessPolicy
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
	exit     func(int)
}

// GateOption mutates a Gate.
type GateOption func(*Gate)

// WithAccessPolicy overrides the default access policy.
func WithAccessPolicy(policy *AccessPolicy) GateOption {
	return func(g *Gate) {
		if policy != nil {
			g.policy = policy
		}
	}
}

// WithGateLogger sets the logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGateMetrics records cache lookups on m.
func WithGateMetrics(m *telemetry.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithClock overrides the time source used for validity decisions.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithExitFunc overrides the process exit used by fatal initialization.
func WithExitFunc(exit func(int)) GateOption {
	return func(g *Gate) {
		if exit != nil {
			g.exit = exit
		}
	}
}

// NewGate wires a gate over store, acquirer and the fingerprint source.
func NewGate(store CredentialStore, acquirer Acquirer, source FingerprintSource, opts ...GateOption) *Gate {
	g := &Gate{
		store:    store,
		acquirer: acquirer,
		source:   source,
		logger:   discardLogger(),
		now:      time.Now,
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.policy == nil {
		// The default expression is a constant and always compiles.
		g.policy, _ = NewAccessPolicy("")
	}
	return g
}

// GetValidToken returns the cached credential when it is still valid, without
// any network call. Otherwise it acquires a new credential and persists it.
// A failed acquisition yields (nil, nil); an error is only returned when ctx
// ends.
func (g *Gate) GetValidToken(ctx context.Context, bearerToken string) (*CachedCredential, error) {
	cached, err := g.store.LoadCredentials()
	switch {
	case err == nil:
		status := Status(cached, g.now())
		g.metrics.RecordCacheLookup(ctx, status.String())
		if status == StatusValid {
			g.logger.Debug("reusing cached credential", "expires_at", cached.ExpiresAt)
			return cached, nil
		}
		g.logger.Info("cached credential not reusable", "status", status.String())
	case errors.Is(err, ErrCacheMiss):
		g.metrics.RecordCacheLookup(ctx, StatusAbsent.String())
	default:
		g.metrics.RecordCacheLookup(ctx, "error")
		g.logger.Warn("reading credential cache failed", "error", err)
	}

	return g.acquire(ctx, bearerToken)
}

// RefreshToken discards the cache and acquires a new credential, skipping the
// validity check. Used for forced re-authentication.
func (g *Gate) RefreshToken(ctx context.Context, bearerToken string) (*CachedCredential, error) {
	g.store.DeleteCredentials()
	return g.acquire(ctx, bearerToken)
}

func (g *Gate) acquire(ctx context.Context, bearerToken string) (*CachedCredential, error) {
	cred, err := g.acquirer.Acquire(ctx, bearerToken, g.source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var acqErr *AcquisitionError
		if errors.As(err, &acqErr) {
			g.logger.Error("credential acquisition rejected", "status", acqErr.StatusCode, "body", acqErr.Body)
		} else {
			g.logger.Error("credential acquisition failed", "error", err)
		}
		return nil, nil
	}

	cred.CachedAt = g.now()
	cred.ExpiresAt = TokenExpiry(cred.Token)
	if err := g.store.SaveCredentials(cred); err != nil {
		g.logger.Warn("persisting credential failed", "error", err)
	}
	return cred, nil
}

// Allows reports whether cred satisfies the gate's access policy.
func (g *Gate) Allows(cred *CachedCredential) bool {
	return g.policy.Allows(cred)
}

// Initialize obtains a valid credential for bearerToken. On failure it either
// returns false or, when exitOnFailure is set, exits the process with the
// ExitCode of the failure class. A credential that fails the access policy
// is only a warning unless exitOnFailure is set.
func (g *Gate) Initialize(ctx context.Context, bearerToken string, exitOnFailure bool) (*CachedCredential, bool) {
	cred, err := g.initialize(ctx, bearerToken, exitOnFailure)
	if err == nil {
		return cred, true
	}

	code := ExitUnexpected
	var initErr *InitError
	if errors.As(err, &initErr) {
		code = initErr.Code
	}
	g.logger.Error("access gate initialization failed", "code", int(code), "reason", code.String(), "error", err)
	if exitOnFailure {
		g.exit(int(code))
	}
	return nil, false
}

func (g *Gate) initialize(ctx context.Context, bearerToken string, strict bool) (cred *CachedCredential, err error) {
	defer func() {
		if r := recover(); r != nil {
			cred = nil
			err = &InitError{Code: ExitUnexpected, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if bearerToken == "" {
		return nil, &InitError{Code: ExitNoToken, Err: ErrNoBearerToken}
	}

	cred, err = g.GetValidToken(ctx, bearerToken)
	if err != nil {
		return nil, &InitError{Code: ExitUnexpected, Err: err}
	}
	if cred == nil {
		return nil, &InitError{Code: ExitNoCredential, Err: errors.New("credential acquisition returned nothing")}
	}

	if !g.policy.Allows(cred) {
		g.logger.Warn("credential does not grant access",
			"policy", g.policy.Expression(),
			"has_group_access", cred.HasGroupAccess,
			"is_nie_user", cred.IsNieUser,
			"is_ldap_enabled", cred.IsLdapEnabled,
		)
		if strict {
			return nil, &InitError{Code: ExitInsufficientPermission, Err: ErrInsufficientPermission}
		}
	}
	return cred, nil
}
