package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/pointledger/internal/flagx"
	"github.com/dmitrijs2005/pointledger/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its non-zero fields are copied into the runtime
// Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrGRPC            string          `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP            string          `json:"endpoint_addr_http"`
	DatabaseDSN                 string          `json:"database_dsn"`
	SecretKey                   string          `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration  `json:"access_token_validity_duration"`
	RateTTL                     timex.Duration  `json:"rate_ttl"`
	RateJitter                  *float64        `json:"rate_jitter"`
	RateCacheTTL                timex.Duration  `json:"rate_cache_ttl"`
	RedisAddr                   string          `json:"redis_addr"`
	RedisPassword               string          `json:"redis_password"`
	RedisDB                     int             `json:"redis_db"`
	SweepInterval               *timex.Duration `json:"sweep_interval"`
	SweepBatch                  int             `json:"sweep_batch"`
	OnboardingGrant             *float64        `json:"onboarding_grant"`
	KafkaBrokers                []string        `json:"kafka_brokers"`
	KafkaTopic                  string          `json:"kafka_topic"`
	S3RootUser                  string          `json:"s3_root_user"`
	S3RootPassword              string          `json:"s3_root_password"`
	S3Bucket                    string          `json:"s3_bucket"`
	S3Region                    string          `json:"s3_region"`
	S3BaseEndpoint              string          `json:"s3_base_endpoint"`
	MirrorQueueSize             int             `json:"mirror_queue_size"`
	LogLevel                    string          `json:"log_level"`
	LogBackend                  string          `json:"log_backend"`
	MetricsNamespace            string          `json:"metrics_namespace"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c/-config flags or $LEDGER_CONFIG; when none
// is set no file is loaded. If the file cannot be read or contains invalid
// JSON, the function panics. Keys missing from the file keep their current
// value; pointer fields let the file set an explicit zero.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RateTTL.Duration > 0 {
		config.RateTTL = c.RateTTL.Duration
	}
	if c.RateJitter != nil {
		config.RateJitter = *c.RateJitter
	}
	if c.RateCacheTTL.Duration > 0 {
		config.RateCacheTTL = c.RateCacheTTL.Duration
	}
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != 0 {
		config.RedisDB = c.RedisDB
	}
	if c.SweepInterval != nil {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.SweepBatch > 0 {
		config.SweepBatch = c.SweepBatch
	}
	if c.OnboardingGrant != nil {
		config.OnboardingGrant = *c.OnboardingGrant
	}
	if len(c.KafkaBrokers) > 0 {
		config.KafkaBrokers = c.KafkaBrokers
	}
	setString(&config.KafkaTopic, c.KafkaTopic)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.MirrorQueueSize > 0 {
		config.MirrorQueueSize = c.MirrorQueueSize
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.MetricsNamespace, c.MetricsNamespace)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
