// internal/credential/issuer.go
package credential

import (
	"context"
	stderrors "errors"
	"fmt"

	"admissions-engine/internal/common/clock"
	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/metrics"
	"admissions-engine/internal/models"
)

const defaultMaxAttempts = 5

// Issuer generates access credentials. Random keys can collide, so every candidate is reserved
// in the KeyIndex before it is handed out, and issuance fails closed once attempts run out.
type Issuer struct {
	index       KeyIndex
	clock       clock.Clock
	generate    KeyGenerator
	maxAttempts int
	logger      logger.Logger
}

type IssuerOption func(*Issuer)

// WithGenerator replaces the random key source.
func WithGenerator(gen KeyGenerator) IssuerOption {
	return func(i *Issuer) { i.generate = gen }
}

// WithMaxAttempts bounds how many candidates are tried before giving up.
func WithMaxAttempts(n int) IssuerOption {
	return func(i *Issuer) {
		if n > 0 {
			i.maxAttempts = n
		}
	}
}

// WithKeyLength sets the length of randomly generated keys.
func WithKeyLength(n int) IssuerOption {
	return func(i *Issuer) {
		if n > 0 {
			i.generate = RandomKeys(n)
		}
	}
}

func NewIssuer(index KeyIndex, clk clock.Clock, log logger.Logger, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		index:       index,
		clock:       clk,
		generate:    RandomKeys(DefaultKeyLength),
		maxAttempts: defaultMaxAttempts,
		logger:      log.WithFields(map[string]interface{}{"component": "credential-issuer"}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a credential for ownerID. If the owner already holds a reserved key, that key is
// reused, so an interrupted issuance can be replayed without minting a second key.
func (i *Issuer) Issue(ctx context.Context, ownerID string, plan models.Plan) (*models.Credential, error) {
	key, ok, err := i.index.OwnedBy(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if ok {
		return i.credential(key, plan), nil
	}

	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		candidate, err := i.generate()
		if err != nil {
			return nil, errors.NewInfrastructureError("credential.generate", err)
		}

		reserved, err := i.index.Reserve(ctx, candidate, ownerID)
		if stderrors.Is(err, errors.ErrAlreadyIssued) {
			// a concurrent issuance for the same owner won; hand out its key
			held, ok, lookupErr := i.index.OwnedBy(ctx, ownerID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if ok {
				return i.credential(held, plan), nil
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if reserved {
			return i.credential(candidate, plan), nil
		}

		metrics.CredentialKeyCollisions.Inc()
		i.logger.Warn("access key collision", map[string]interface{}{
			"ownerId": ownerID,
			"attempt": attempt,
		})
	}

	return nil, errors.NewInfrastructureError("credential.issue",
		fmt.Errorf("no unique key after %d attempts", i.maxAttempts))
}

// Release frees the key held by ownerID so a later Issue may mint a new one.
func (i *Issuer) Release(ctx context.Context, ownerID string) error {
	return i.index.Release(ctx, ownerID)
}

func (i *Issuer) credential(key string, plan models.Plan) *models.Credential {
	issuedAt := i.clock.Now()
	return &models.Credential{
		Key:       key,
		Plan:      plan,
		IssuedAt:  issuedAt,
		ExpiresAt: ExpiresAt(issuedAt, plan),
	}
}
