package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/modules/env"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	PortEnv        = "PORT"
	DatabaseUrlEnv = "DATABASE_URL"
	RootPathEnv    = "ROOT_PATH"
	LogLevelEnv    = "LOG_LEVEL"

	GameConfigPathEnv         = "GAME_CONFIG_PATH"
	MaxPlayersEnv             = "GAME_MAX_PLAYERS"
	SessionDurationEnv        = "GAME_SESSION_DURATION"
	MinPlayersToStartEnv      = "GAME_MIN_PLAYERS_TO_START"
	ResultsDisplayDurationEnv = "GAME_RESULTS_DISPLAY_DURATION"
	SchedulerIdlePollEnv      = "SCHEDULER_IDLE_POLL"

	NotifierBackendEnv = "NOTIFIER_BACKEND"
	NATSURLEnv         = "NATS_URL"

	AdminKeyEnv           = "ADMIN_KEY"
	CORSAllowedOriginsEnv = "CORS_ALLOWED_ORIGINS"
)

type NotifierBackend string

const (
	// NotifierMemory only reaches clients connected to this instance.
	NotifierMemory   NotifierBackend = "memory"
	NotifierPostgres NotifierBackend = "postgres"
	NotifierNATS     NotifierBackend = "nats"
)

type NotifierConfig struct {
	Backend NotifierBackend
	NATSURL string
}

type Config struct {
	Logger *zap.Logger

	Port           int
	DatabaseURL    string
	MigrationsPath string

	Game              domain.Policy
	SchedulerIdlePoll time.Duration

	Notifier NotifierConfig

	AdminKey       string
	AllowedOrigins []string
}

func Load() (Config, error) {
	logger, err := newLogger(env.GetStringOrDefault(LogLevelEnv, "info"))
	if err != nil {
		return Config{}, err
	}

	port := env.MustGetInt(PortEnv)
	dbURL := env.MustGetString(DatabaseUrlEnv)

	rootPath := env.MustGetString(RootPathEnv)

	policy, err := LoadPolicy(resolvePath(rootPath, env.GetStringOrDefault(GameConfigPathEnv, "")))
	if err != nil {
		return Config{}, err
	}

	idlePoll, err := env.GetDurationOrDefault(SchedulerIdlePollEnv, 5*time.Second)
	if err != nil {
		return Config{}, err
	}

	notifier := NotifierConfig{
		Backend: NotifierBackend(env.GetStringOrDefault(NotifierBackendEnv, string(NotifierPostgres))),
		NATSURL: env.GetStringOrDefault(NATSURLEnv, "nats://localhost:4222"),
	}

	switch notifier.Backend {
	case NotifierMemory, NotifierPostgres, NotifierNATS:
	default:
		return Config{}, fmt.Errorf("invalid %s - '%s'", NotifierBackendEnv, notifier.Backend)
	}

	return Config{
		Logger:            logger,
		Port:              port,
		DatabaseURL:       dbURL,
		MigrationsPath:    path.Join(rootPath, "db", "migrations"),
		Game:              policy,
		SchedulerIdlePoll: idlePoll,
		Notifier:          notifier,
		AdminKey:          env.GetStringOrDefault(AdminKeyEnv, ""),
		AllowedOrigins:    splitList(env.GetStringOrDefault(CORSAllowedOriginsEnv, "*")),
	}, nil
}

// resolvePath makes a relative file path relative to the root directory
// instead of the working directory.
func resolvePath(rootPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(rootPath, p)
}

// LoadPolicy layers the optional YAML file and then the environment on
// top of the default policy.
func LoadPolicy(configPath string) (domain.Policy, error) {
	policy := domain.DefaultPolicy()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("failed to read game config: %w", err)
		}

		var file struct {
			Game domain.Policy `yaml:"game"`
		}
		file.Game = policy

		if err := yaml.Unmarshal(data, &file); err != nil {
			return domain.Policy{}, fmt.Errorf("failed to parse game config: %w", err)
		}

		policy = file.Game
	}

	var err error

	if policy.MaxPlayers, err = env.GetIntOrDefault(MaxPlayersEnv, policy.MaxPlayers); err != nil {
		return domain.Policy{}, err
	}

	if policy.SessionDuration, err = env.GetDurationOrDefault(SessionDurationEnv, policy.SessionDuration); err != nil {
		return domain.Policy{}, err
	}

	if policy.MinPlayersToStart, err = env.GetIntOrDefault(MinPlayersToStartEnv, policy.MinPlayersToStart); err != nil {
		return domain.Policy{}, err
	}

	policy.ResultsDisplayDuration, err = env.GetDurationOrDefault(ResultsDisplayDurationEnv, policy.ResultsDisplayDuration)
	if err != nil {
		return domain.Policy{}, err
	}

	if err := policy.Validate(); err != nil {
		return domain.Policy{}, errors.Join(errors.New("invalid game policy"), err)
	}

	return policy, nil
}

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid %s - '%s': %w", LogLevelEnv, level, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = atomicLevel

	return zapConfig.Build()
}

func splitList(raw string) []string {
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
