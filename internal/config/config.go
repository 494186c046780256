package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds every environment-driven setting for the account service.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`

	// JWTSecret verifies session tokens. When JWTSecretName is set the value
	// is fetched from GCP Secret Manager at startup instead.
	JWTSecret     string `envconfig:"JWT_SECRET"`
	JWTSecretName string `envconfig:"JWT_SECRET_NAME"`

	// Avatar storage (S3-compatible, e.g. Supabase storage).
	S3URL               string `envconfig:"S3_URL"`
	S3Bucket            string `envconfig:"S3_BUCKET" default:"avatars"`
	S3Region            string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey         string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey         string `envconfig:"S3_SECRET_KEY"`
	AvatarPublicBaseURL string `envconfig:"AVATAR_PUBLIC_BASE_URL"`

	// Account event publishing and the usage-event push subscription.
	GCPProjectID                 string `envconfig:"GCP_PROJECT_ID"`
	PubSubEmulatorHost           string `envconfig:"PUBSUB_EMULATOR_HOST"`
	AccountEventsTopic           string `envconfig:"ACCOUNT_EVENTS_TOPIC" default:"account_events"`
	UsagePushEndpointURL         string `envconfig:"USAGE_PUSH_ENDPOINT_URL"`
	UsagePushServiceAccountEmail string `envconfig:"USAGE_PUSH_SERVICE_ACCOUNT_EMAIL"`

	BcryptCost int `envconfig:"BCRYPT_COST" default:"12"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
