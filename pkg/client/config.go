package client

import (
	"net/http"
	"time"

	"github.com/Sternrassler/fastpurge-client/pkg/batch"
	"github.com/Sternrassler/fastpurge-client/pkg/cooldown"
	"github.com/Sternrassler/fastpurge-client/pkg/edgerc"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ObjectType determines how purge objects are interpreted.
type ObjectType string

const (
	ObjectTypeURL    ObjectType = "url"
	ObjectTypeTag    ObjectType = "tag"
	ObjectTypeCPCode ObjectType = "cpcode"
)

// Network is the Akamai environment a purge targets.
type Network string

const (
	NetworkProduction Network = "production"
	NetworkStaging    Network = "staging"
)

// PurgeType is the purge action.
type PurgeType string

const (
	// PurgeTypeDelete removes content from every edge server.
	PurgeTypeDelete PurgeType = "delete"

	// PurgeTypeInvalidate marks content stale so edges revalidate it.
	PurgeTypeInvalidate PurgeType = "invalidate"
)

// Config holds the client configuration.
type Config struct {
	// Credentials used to sign requests. When zero they are loaded from
	// EdgercPath/EdgercSection.
	Credentials   edgerc.Credentials
	EdgercPath    string
	EdgercSection string

	// Transport
	Scheme     string // "https" (default) or "http"
	Port       int    // 443 by default
	HTTPClient *http.Client

	// Chunking
	MaxPayload int // Max encoded body size per request in bytes
	MaxObjects int // Max objects per request (0 = only MaxPayload applies)

	// Concurrency
	MaxRequests       int     // Max purge chunks in flight per client
	RequestsPerSecond float64 // Pace of outgoing requests (0 = unlimited)

	// Defaults applied when a purge does not choose
	DefaultNetwork   Network
	DefaultPurgeType PurgeType

	// DefaultDelay is assumed when the API omits estimatedSeconds.
	DefaultDelay time.Duration

	// SkipCompletionWait resolves chunks as soon as the API accepts them
	// instead of after the estimated completion time.
	SkipCompletionWait bool

	// Retry
	Retry RetryConfig

	// Cooldown, when set, shares Retry-After deadlines across chunks.
	Cooldown *cooldown.Tracker

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Scheme:           "https",
		Port:             443,
		MaxPayload:       batch.DefaultMaxPayload,
		MaxObjects:       0,
		MaxRequests:      10,
		DefaultNetwork:   NetworkProduction,
		DefaultPurgeType: PurgeTypeDelete,
		DefaultDelay:     5 * time.Second,
		Retry:            DefaultRetryConfig(),
	}
}

// ConfigFromEnv returns DefaultConfig overridden by FAST_PURGE_* environment
// variables: MAX_PAYLOAD, MAX_OBJECTS, MAX_REQUESTS, REQUESTS_PER_SECOND,
// DEFAULT_NETWORK, DEFAULT_TYPE, DEFAULT_DELAY (seconds), MAX_RETRIES,
// RETRY_BACKOFF (seconds), EDGERC and EDGERC_SECTION.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("FAST_PURGE")
	v.AutomaticEnv()

	v.SetDefault("max_payload", cfg.MaxPayload)
	v.SetDefault("max_objects", cfg.MaxObjects)
	v.SetDefault("max_requests", cfg.MaxRequests)
	v.SetDefault("requests_per_second", cfg.RequestsPerSecond)
	v.SetDefault("default_network", string(cfg.DefaultNetwork))
	v.SetDefault("default_type", string(cfg.DefaultPurgeType))
	v.SetDefault("default_delay", cfg.DefaultDelay.Seconds())
	v.SetDefault("max_retries", cfg.Retry.MaxRetries)
	v.SetDefault("retry_backoff", cfg.Retry.InitialBackoff.Seconds())
	v.SetDefault("edgerc", "")
	v.SetDefault("edgerc_section", "")

	cfg.MaxPayload = v.GetInt("max_payload")
	cfg.MaxObjects = v.GetInt("max_objects")
	cfg.MaxRequests = v.GetInt("max_requests")
	cfg.RequestsPerSecond = v.GetFloat64("requests_per_second")
	cfg.DefaultNetwork = Network(v.GetString("default_network"))
	cfg.DefaultPurgeType = PurgeType(v.GetString("default_type"))
	cfg.DefaultDelay = secondsToDuration(v.GetFloat64("default_delay"))
	cfg.Retry.MaxRetries = v.GetInt("max_retries")
	cfg.Retry.InitialBackoff = secondsToDuration(v.GetFloat64("retry_backoff"))
	cfg.EdgercPath = v.GetString("edgerc")
	cfg.EdgercSection = v.GetString("edgerc_section")

	return cfg
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// withDefaults fills zero fields from DefaultConfig.
func (cfg Config) withDefaults() Config {
	def := DefaultConfig()

	if cfg.Scheme == "" {
		cfg.Scheme = def.Scheme
	}
	if cfg.Port == 0 {
		if cfg.Scheme == "http" {
			cfg.Port = 80
		} else {
			cfg.Port = def.Port
		}
	}
	if cfg.MaxPayload == 0 {
		cfg.MaxPayload = def.MaxPayload
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.DefaultNetwork == "" {
		cfg.DefaultNetwork = def.DefaultNetwork
	}
	if cfg.DefaultPurgeType == "" {
		cfg.DefaultPurgeType = def.DefaultPurgeType
	}
	if cfg.DefaultDelay == 0 {
		cfg.DefaultDelay = def.DefaultDelay
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = def.Retry
	}
	if cfg.Retry.BackoffMultiplier == 0 {
		cfg.Retry.BackoffMultiplier = def.Retry.BackoffMultiplier
	}
	return cfg
}

func validNetwork(n Network) bool {
	return n == NetworkProduction || n == NetworkStaging
}

func validPurgeType(t PurgeType) bool {
	return t == PurgeTypeDelete || t == PurgeTypeInvalidate
}

func validObjectType(t ObjectType) bool {
	return t == ObjectTypeURL || t == ObjectTypeTag || t == ObjectTypeCPCode
}
