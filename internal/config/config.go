// Package config loads process-wide configuration from the environment,
// following the teacher's pattern (caarlos0/env struct tags over an
// optional .env file loaded by joho/godotenv).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the recognized option set of spec.md §6.3.
type Config struct {
	MaxBodyBytes                  int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RequestTimeout                time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	RateLimitRequestsPerMinute    int           `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"600"`
	MaxGatewayEventBytes          int           `env:"MAX_GATEWAY_EVENT_BYTES" envDefault:"65536"`
	OutboundQueueCapacity         int           `env:"OUTBOUND_QUEUE_CAPACITY" envDefault:"256"`
	IngressRateLimit              int           `env:"INGRESS_RATE_LIMIT" envDefault:"30"`
	IngressRateWindow             time.Duration `env:"INGRESS_RATE_WINDOW" envDefault:"1s"`
	VoiceMaxTrackedChannels       int           `env:"VOICE_MAX_TRACKED_CHANNELS" envDefault:"2000"`
	VoiceMaxParticipantsPerChan   int           `env:"VOICE_MAX_PARTICIPANTS_PER_CHANNEL" envDefault:"99"`
	VoiceParticipantTTL           time.Duration `env:"VOICE_PARTICIPANT_TTL" envDefault:"30s"`
	VoiceTTLSweepInterval         time.Duration `env:"VOICE_TTL_SWEEP_INTERVAL" envDefault:"15s"`
	SearchQueryTimeout            time.Duration `env:"SEARCH_QUERY_TIMEOUT" envDefault:"2s"`
	SearchQueryMaxChars           int           `env:"SEARCH_QUERY_MAX_CHARS" envDefault:"256"`
	SearchResultLimitMax          int           `env:"SEARCH_RESULT_LIMIT_MAX" envDefault:"100"`
	SearchReconcileMaxDocs        int           `env:"SEARCH_RECONCILE_MAX_DOCS" envDefault:"50000"`
	SearchBatchMax                int           `env:"SEARCH_BATCH_MAX" envDefault:"64"`
	DirectoryJoinPerMinutePerUser int           `env:"DIRECTORY_JOIN_REQUESTS_PER_MINUTE_PER_USER" envDefault:"5"`
	DirectoryJoinPerMinutePerIP   int           `env:"DIRECTORY_JOIN_REQUESTS_PER_MINUTE_PER_IP" envDefault:"20"`
	GuildIPBanMaxEntries          int           `env:"GUILD_IP_BAN_MAX_ENTRIES" envDefault:"10000"`
	AuditListLimitMax             int           `env:"AUDIT_LIST_LIMIT_MAX" envDefault:"200"`

	Addr            string `env:"GATEWAY_ADDR" envDefault:":8080"`
	NATSURL         string `env:"GATEWAY_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	KafkaBrokers    string `env:"GATEWAY_KAFKA_BROKERS" envDefault:"localhost:9092"`
	SearchIndexPath string `env:"GATEWAY_SEARCH_INDEX_PATH" envDefault:"./data/search.bleve"`
	ShardCount      int    `env:"GATEWAY_SHARD_COUNT" envDefault:"1"`
	ShardID         int    `env:"GATEWAY_SHARD_ID" envDefault:"0"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env (if present) then environment variables over it.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional: fine to run without a .env file

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
