package config

import "time"

// AuthConfig configures the supervisor's service-callback tokens: a
// short-lived, HMAC-signed token each service presents when calling
// back into the supervisor's own CallService entry point, so the
// supervisor can attribute the call to a specific registered service
// rather than trusting the caller's self-reported id.
type AuthConfig struct {
	CallbackSecret string        `yaml:"callback_secret"`
	TokenExpiry    time.Duration `yaml:"token_expiry"`
}
