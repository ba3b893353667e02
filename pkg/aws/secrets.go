package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// ErrSecretNotFound means Secrets Manager holds nothing under the name.
var ErrSecretNotFound = errors.New("secret not found")

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient reads the service's secrets, all stored under one name
// prefix such as "oranew/". Values are cached for the process lifetime.
type SecretsClient struct {
	client secretsAPI
	prefix string

	mu    sync.RWMutex
	cache map[string]string
}

func NewSecretsClient(cfg sdkaws.Config, prefix string) *SecretsClient {
	return newSecretsClient(secretsmanager.NewFromConfig(cfg), prefix)
}

func newSecretsClient(api secretsAPI, prefix string) *SecretsClient {
	return &SecretsClient{client: api, prefix: prefix, cache: make(map[string]string)}
}

// GetSecret returns the string value stored under prefix+key.
func (s *SecretsClient) GetSecret(ctx context.Context, key string) (string, error) {
	name := s.prefix + key

	s.mu.RLock()
	v, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", name)
	}

	s.mu.Lock()
	s.cache[name] = *out.SecretString
	s.mu.Unlock()
	return *out.SecretString, nil
}

// GetSecretFields reads a secret holding a flat JSON object, the shape the
// console's key/value editor writes.
func (s *SecretsClient) GetSecretFields(ctx context.Context, key string) (map[string]string, error) {
	raw, err := s.GetSecret(ctx, key)
	if err != nil {
		return nil, err
	}
	fields, err := ParseSecretFields(raw)
	if err != nil {
		return nil, fmt.Errorf("secret %s%s: %w", s.prefix, key, err)
	}
	return fields, nil
}

// ParseSecretFields decodes a flat JSON object into strings. Non-string
// values keep their JSON text, so a numeric port comes back as "5432".
// Nulls come back empty.
func ParseSecretFields(raw string) (map[string]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("decode secret fields: %w", err)
	}
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			fields[k] = str
			continue
		}
		fields[k] = string(v)
	}
	return fields, nil
}
