package config

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// ResolveJWTSecret returns the session-token signing secret. When
// JWT_SECRET_NAME names a Secret Manager secret the latest version is
// fetched; otherwise the plain JWT_SECRET value is used.
func ResolveJWTSecret(ctx context.Context, cfg *Config) (string, error) {
	if cfg.JWTSecretName == "" {
		if cfg.JWTSecret == "" {
			return "", fmt.Errorf("neither JWT_SECRET nor JWT_SECRET_NAME is set")
		}
		return cfg.JWTSecret, nil
	}

	if cfg.GCPProjectID == "" {
		return "", fmt.Errorf("JWT_SECRET_NAME is set but GCP_PROJECT_ID is empty")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	defer client.Close()

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", cfg.GCPProjectID, cfg.JWTSecretName)
	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", cfg.JWTSecretName, err)
	}

	return string(result.Payload.Data), nil
}
