// Package license resolves the ingest license key from the configured
// source: the environment, SSM Parameter Store, or Secrets Manager.
package license

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
)

// Source selects where the license key is fetched from.
type Source string

const (
	SourceEnvironment    Source = "environment_var"
	SourceSSM            Source = "ssm"
	SourceSecretsManager Source = "secrets_manager"
)

// ParameterClient is the narrow SSM surface the resolver needs.
type ParameterClient interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretClient is the narrow Secrets Manager surface the resolver needs.
type SecretClient interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver resolves the license key once per invocation. KeyRef is the raw
// LICENSE_KEY configuration value: the key itself for the environment
// source, a parameter path for SSM, or a secret id for Secrets Manager.
type Resolver struct {
	Source  Source
	KeyRef  string
	Caching bool

	cache   *Cache
	ssm     ParameterClient
	secrets SecretClient
	logger  *zap.Logger

	initOnce sync.Once
	initErr  error
}

// Option customizes a Resolver, mainly for injecting fakes in tests.
type Option func(*Resolver)

// WithCache supplies the process-wide secret cache.
func WithCache(c *Cache) Option { return func(r *Resolver) { r.cache = c } }

// WithParameterClient injects the SSM client.
func WithParameterClient(c ParameterClient) Option { return func(r *Resolver) { r.ssm = c } }

// WithSecretClient injects the Secrets Manager client.
func WithSecretClient(c SecretClient) Option { return func(r *Resolver) { r.secrets = c } }

// NewResolver creates a Resolver. Unknown sources fall back to the
// environment source.
func NewResolver(source Source, keyRef string, caching bool, logger *zap.Logger, opts ...Option) *Resolver {
	switch source {
	case SourceSSM, SourceSecretsManager:
	default:
		source = SourceEnvironment
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		Source:  source,
		KeyRef:  keyRef,
		Caching: caching,
		cache:   &Cache{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the license key. An explicit key is returned verbatim
// without any lookup. SSM lookup failures are fatal; Secrets Manager
// failures degrade to an empty key. The asymmetry is deliberate and
// load-bearing for existing deployments.
func (r *Resolver) Resolve(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	switch r.Source {
	case SourceSSM:
		return r.fromSSM(ctx, r.KeyRef)
	case SourceSecretsManager:
		return r.fromSecretsManager(ctx, r.KeyRef)
	default:
		return r.KeyRef, nil
	}
}

func (r *Resolver) fromSSM(ctx context.Context, parameterPath string) (string, error) {
	if parameterPath == "" {
		return "", nil
	}
	if r.Caching {
		if val, ok := r.cache.Get(); ok {
			r.logger.Info("using cached license key instead of fetching from ssm")
			return val, nil
		}
	}

	client, err := r.parameterClient(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(parameterPath),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("retrieving parameter %s: %w", parameterPath, err)
	}
	r.logger.Info("retrieved license key from ssm")

	value := aws.ToString(out.Parameter.Value)
	if r.Caching {
		r.cache.Put(value)
	}
	return value, nil
}

func (r *Resolver) fromSecretsManager(ctx context.Context, secretID string) (string, error) {
	if secretID == "" {
		return "", nil
	}
	if r.Caching {
		if val, ok := r.cache.Get(); ok {
			r.logger.Info("using cached license key instead of fetching from secrets manager")
			return val, nil
		}
	}

	client, err := r.secretClient(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		// Deliberately non-fatal, unlike the SSM source.
		r.logger.Error("unable to retrieve secret", zap.String("secret_id", secretID), zap.Error(err))
		return "", nil
	}
	r.logger.Info("retrieved license key from secrets manager")

	secret := aws.ToString(out.SecretString)
	if secret == "" && out.SecretBinary != nil {
		secret = string(out.SecretBinary)
	}
	if r.Caching {
		r.cache.Put(secret)
	}
	return secret, nil
}

func (r *Resolver) parameterClient(ctx context.Context) (ParameterClient, error) {
	if err := r.initClients(ctx); err != nil {
		return nil, err
	}
	return r.ssm, nil
}

func (r *Resolver) secretClient(ctx context.Context) (SecretClient, error) {
	if err := r.initClients(ctx); err != nil {
		return nil, err
	}
	return r.secrets, nil
}

func (r *Resolver) initClients(ctx context.Context) error {
	r.initOnce.Do(func() {
		if r.ssm != nil && r.secrets != nil {
			return
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			r.initErr = fmt.Errorf("loading aws config: %w", err)
			return
		}
		if r.ssm == nil {
			r.ssm = ssm.NewFromConfig(cfg)
		}
		if r.secrets == nil {
			r.secrets = secretsmanager.NewFromConfig(cfg)
		}
	})
	return r.initErr
}
