// Package config provides centralized, env-driven default values for
// Yggdrasil's server, persistence, and show-timing settings.
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("config override: %s=%g (default: %g)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Show identity and operator credentials
	ShowID            string
	OperatorSecret    string
	OperatorSecretIsHashed bool
	JWTSecret         string
	ControllerTokenTTL time.Duration

	// Persistence
	PersistenceDriver string // "sqlite3" or "libsql"
	PersistenceDSN    string

	// Websocket gateway
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	MaxMessageBytes  int64
	ReconnectGraceMs int

	// Row timing defaults, overridable per-show at creation but used to seed
	// the default config a fresh show is created with.
	AuditionPerOptionMs int
	VotingWindowMs      int
	RevealDurationMs    int
	CoupWindowMs        int
	CoupThreshold       float64
	CoupMultiplierBonus float64

	LogDirectory string
)

func init() {
	loadEnvFile()

	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	ShowID = getEnvString("SHOW_ID", "default-show")
	OperatorSecret = getEnvString("OPERATOR_SECRET", "")
	OperatorSecretIsHashed = getEnvString("OPERATOR_SECRET_IS_HASHED", "false") == "true"
	JWTSecret = getEnvString("JWT_SECRET", "")
	ControllerTokenTTL = getEnvDuration("CONTROLLER_TOKEN_TTL", 12*time.Hour)

	PersistenceDriver = getEnvString("PERSISTENCE_DRIVER", "sqlite3")
	PersistenceDSN = getEnvString("PERSISTENCE_DSN", "yggdrasil.db")

	PingInterval = getEnvDuration("WS_PING_INTERVAL", 10*time.Second)
	PongWait = getEnvDuration("WS_PONG_WAIT", 30*time.Second)
	WriteWait = getEnvDuration("WS_WRITE_WAIT", 10*time.Second)
	MaxMessageBytes = int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 4096))
	ReconnectGraceMs = getEnvInt("WS_RECONNECT_GRACE_MS", 5000)

	AuditionPerOptionMs = getEnvInt("AUDITION_PER_OPTION_MS", 8000)
	VotingWindowMs = getEnvInt("VOTING_WINDOW_MS", 15000)
	RevealDurationMs = getEnvInt("REVEAL_DURATION_MS", 6000)
	CoupWindowMs = getEnvInt("COUP_WINDOW_MS", 10000)
	CoupThreshold = getEnvFloat("COUP_THRESHOLD", 0.75)
	CoupMultiplierBonus = getEnvFloat("COUP_MULTIPLIER_BONUS", 0.5)

	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
}
