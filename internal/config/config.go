// Package config loads the simulator's runtime configuration from the
// environment, the way the teacher's own internal/config package does:
// an optional .env file via godotenv, then envconfig.Process over a
// single struct tree (§6).
package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every environment-tunable setting the simulator reads at
// startup (§6).
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	TestSeed int64  `envconfig:"TEST_SEED" default:"0"`

	SMPP       SMPPConfig
	HTTP       HTTPConfig
	Lifecycle  LifecycleConfig
	MO         MOConfig
	Queue      QueueConfig
}

// SMPPConfig holds the wire-protocol listener's settings (§4.8, §5).
type SMPPConfig struct {
	Port             int           `envconfig:"SMPP_PORT"              default:"2775"`
	SystemID         string        `envconfig:"SMPP_SYSTEM_ID"         default:"smppsim"`
	Password         string        `envconfig:"SMPP_PASSWORD"          default:"password"`
	MaxSessions      int           `envconfig:"SMPP_MAX_SESSIONS"      default:"1024"`
	MailboxSize      int           `envconfig:"SMPP_MAILBOX_SIZE"      default:"1024"`
	IdleSoft         time.Duration `envconfig:"SMPP_IDLE_SOFT"         default:"30s"`
	IdleHard         time.Duration `envconfig:"SMPP_IDLE_HARD"         default:"90s"`
	MaxMissedEnquire int           `envconfig:"SMPP_MAX_MISSED_ENQUIRE" default:"3"`
	SubmitRatePerSec float64       `envconfig:"SMPP_SUBMIT_RATE"       default:"200"`
	SubmitBurst      int           `envconfig:"SMPP_SUBMIT_BURST"      default:"50"`
	ShutdownDrain    time.Duration `envconfig:"SMPP_SHUTDOWN_DRAIN"    default:"5s"`
}

// HTTPConfig holds the observability API's settings (§4.9, §6).
type HTTPConfig struct {
	Port int `envconfig:"SERVER_PORT" default:"8080"`
}

// LifecycleConfig holds the Lifecycle Scheduler's timing and discrete
// terminal-state distribution (§4.6, §6). The four percentages sum to 100
// by default (90/6/2/2, matching the original simulator's own defaults) so
// the residual Expired/Unknown split never fires unless an operator
// deliberately lowers one of them.
type LifecycleConfig struct {
	MaxTimeEnroute       time.Duration `envconfig:"LIFECYCLE_MAX_TIME_ENROUTE_MS" default:"5000ms"`
	PercentDelivered     int           `envconfig:"LIFECYCLE_PERCENT_DELIVERED"     default:"90"`
	PercentUndeliverable int           `envconfig:"LIFECYCLE_PERCENT_UNDELIVERABLE" default:"6"`
	PercentAccepted      int           `envconfig:"LIFECYCLE_PERCENT_ACCEPTED"      default:"2"`
	PercentRejected      int           `envconfig:"LIFECYCLE_PERCENT_REJECTED"      default:"2"`
}

// MOConfig holds the MO Injector's timing (§4.7, §6).
type MOConfig struct {
	IntervalMS time.Duration `envconfig:"MO_INTERVAL_MS" default:"10s"`
}

// QueueConfig holds the inbound queue's capacity (§4.5, §6).
type QueueConfig struct {
	InboundCapacity int `envconfig:"QUEUE_INBOUND_CAPACITY" default:"10000"`
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	var cfg Config
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, skipping: %v", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
