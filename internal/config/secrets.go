package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
)

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

// SecretFunc fetches a secret by provider-specific reference.
type SecretFunc func(ctx context.Context, ref string) (string, error)

// Resolver expands ${ENV:NAME}, ${VAULT:path#key} and ${AWS_SM:name}
// references in config values.
type Resolver struct {
	Getenv         func(string) string
	Vault          SecretFunc
	SecretsManager SecretFunc
	Timeout        time.Duration
}

// NewResolver returns a Resolver backed by the process environment, Vault and
// AWS Secrets Manager.
func NewResolver() *Resolver {
	return &Resolver{
		Getenv:         os.Getenv,
		Vault:          readVault,
		SecretsManager: readSecretsManager,
		Timeout:        10 * time.Second,
	}
}

// ResolveValue resolves a single value with the default resolver.
func ResolveValue(val string) (string, error) {
	return NewResolver().Resolve(val)
}

// Resolve replaces a secret reference with its value. Values without a
// reference are returned unchanged.
func (r *Resolver) Resolve(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider, ref := matches[1], matches[2]

	ctx := context.Background()
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var (
		secret string
		err    error
	)
	switch provider {
	case "ENV":
		secret = r.Getenv(ref)
		if secret == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
	case "VAULT":
		secret, err = r.Vault(ctx, ref)
	case "AWS_SM":
		secret, err = r.SecretsManager(ctx, ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
	if err != nil {
		return "", err
	}

	// The reference may be embedded, e.g. postgres://app:${ENV:PGPASS}@db/x.
	return strings.Replace(val, matches[0], secret, 1), nil
}

// readVault reads a KV secret. Format: secret/data/path#key
func readVault(ctx context.Context, ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok {
		return "", fmt.Errorf("invalid Vault reference %q: expected format path#key", ref)
	}

	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		return "", fmt.Errorf("VAULT_ADDR environment variable not set")
	}
	token := os.Getenv("VAULT_TOKEN")
	if token == "" {
		return "", fmt.Errorf("VAULT_TOKEN environment variable not set")
	}

	cfg := vault.DefaultConfig()
	cfg.Address = addr
	client, err := vault.NewClient(cfg)
	if err != nil {
		return "", fmt.Errorf("creating Vault client: %w", err)
	}
	client.SetToken(token)

	secret, err := client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("reading Vault secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret found at %s", path)
	}

	data := secret.Data
	// KV v2 nests the payload under "data".
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner
	}
	val, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("key %q not found in Vault secret at %s", key, path)
	}
	return val, nil
}

func readSecretsManager(ctx context.Context, ref string) (string, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}
	out, err := secretsmanager.NewFromConfig(cfg).GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", ref, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value", ref)
	}
	return *out.SecretString, nil
}
