package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/pointledger/internal/flagx"
)

// parseEnv overlays LEDGER_* environment variables. A .env file, if any,
// has already been loaded into the environment by main.
func parseEnv(c *Config) {
	flagx.EnvString(&c.EndpointAddrGRPC, "LEDGER_GRPC_ADDR")
	flagx.EnvString(&c.EndpointAddrHTTP, "LEDGER_HTTP_ADDR")
	flagx.EnvString(&c.DatabaseDSN, "LEDGER_DATABASE_DSN")
	flagx.EnvString(&c.SecretKey, "LEDGER_SECRET_KEY")
	flagx.EnvDuration(&c.AccessTokenValidityDuration, "LEDGER_ACCESS_TOKEN_TTL")
	flagx.EnvDuration(&c.RateTTL, "LEDGER_RATE_TTL")
	envFloat(&c.RateJitter, "LEDGER_RATE_JITTER")
	flagx.EnvDuration(&c.RateCacheTTL, "LEDGER_RATE_CACHE_TTL")
	flagx.EnvString(&c.RedisAddr, "LEDGER_REDIS_ADDR")
	flagx.EnvString(&c.RedisPassword, "LEDGER_REDIS_PASSWORD")
	flagx.EnvInt(&c.RedisDB, "LEDGER_REDIS_DB")
	flagx.EnvDuration(&c.SweepInterval, "LEDGER_SWEEP_INTERVAL")
	flagx.EnvInt(&c.SweepBatch, "LEDGER_SWEEP_BATCH")
	envFloat(&c.OnboardingGrant, "LEDGER_ONBOARDING_GRANT")
	flagx.EnvList(&c.KafkaBrokers, "LEDGER_KAFKA_BROKERS")
	flagx.EnvString(&c.KafkaTopic, "LEDGER_KAFKA_TOPIC")
	flagx.EnvString(&c.S3RootUser, "LEDGER_S3_USER")
	flagx.EnvString(&c.S3RootPassword, "LEDGER_S3_PASSWORD")
	flagx.EnvString(&c.S3Bucket, "LEDGER_S3_BUCKET")
	flagx.EnvString(&c.S3Region, "LEDGER_S3_REGION")
	flagx.EnvString(&c.S3BaseEndpoint, "LEDGER_S3_ENDPOINT")
	flagx.EnvInt(&c.MirrorQueueSize, "LEDGER_MIRROR_QUEUE")
	flagx.EnvString(&c.LogLevel, "LEDGER_LOG_LEVEL")
	flagx.EnvString(&c.LogBackend, "LEDGER_LOG_BACKEND")
	flagx.EnvString(&c.MetricsNamespace, "LEDGER_METRICS_NAMESPACE")
}

func envFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}
