// Package config loads settings from defaults, an optional .env file and
// COURSECLASH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "COURSECLASH"

type Settings struct {
	Env        string `mapstructure:"env"`
	Debug      bool   `mapstructure:"debug"`
	UserID     string `mapstructure:"user_id"`
	AuthToken  string `mapstructure:"auth_token"`
	GraphQLURL string `mapstructure:"graphql_url"`
	WSBaseURL  string `mapstructure:"ws_base_url"`

	Notify Notify `mapstructure:"notify"`
	Duel   Duel   `mapstructure:"duel"`
	Sim    Sim    `mapstructure:"sim"`
}

type Notify struct {
	GracePeriod          time.Duration `mapstructure:"grace_period"`
	ErrorAttempts        int           `mapstructure:"error_attempts"`
	ReconnectInitial     time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax         time.Duration `mapstructure:"reconnect_max"`
	ReconnectMaxAttempts int           `mapstructure:"reconnect_max_attempts"`
}

type Duel struct {
	DefaultTotalQuestions int           `mapstructure:"default_total_questions"`
	ResumeAttempts        int           `mapstructure:"resume_attempts"`
	WriteTimeout          time.Duration `mapstructure:"write_timeout"`
}

type Sim struct {
	Addr             string        `mapstructure:"addr"`
	DatabaseDSN      string        `mapstructure:"database_dsn"`
	QuestionsPerDuel int           `mapstructure:"questions_per_duel"`
	TimeLimit        time.Duration `mapstructure:"time_limit"`
}

// New returns a viper instance with defaults and env binding, without
// touching the filesystem.
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("env", "dev")
	v.SetDefault("debug", false)
	v.SetDefault("user_id", "")
	v.SetDefault("auth_token", "")
	v.SetDefault("graphql_url", "http://localhost:8000/graphql")
	v.SetDefault("ws_base_url", "ws://localhost:8002")

	v.SetDefault("notify.grace_period", 5*time.Second)
	v.SetDefault("notify.error_attempts", 2)
	v.SetDefault("notify.reconnect_initial", 3*time.Second)
	v.SetDefault("notify.reconnect_max", time.Minute)
	v.SetDefault("notify.reconnect_max_attempts", 0)

	v.SetDefault("duel.default_total_questions", 5)
	v.SetDefault("duel.resume_attempts", 3)
	v.SetDefault("duel.write_timeout", 3*time.Second)

	v.SetDefault("sim.addr", ":8002")
	v.SetDefault("sim.database_dsn", "")
	v.SetDefault("sim.questions_per_duel", 5)
	v.SetDefault("sim.time_limit", 20*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the given .env files into the process environment (missing
// files are skipped) and returns the configured viper instance.
func Load(envFiles ...string) (*viper.Viper, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return New(), nil
}

// Decode unmarshals v into Settings and checks the values that have no
// usable zero.
func Decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	switch {
	case s.GraphQLURL == "":
		return Settings{}, errors.New("config: graphql_url is empty")
	case s.WSBaseURL == "":
		return Settings{}, errors.New("config: ws_base_url is empty")
	case s.Notify.ReconnectInitial <= 0 || s.Notify.ReconnectMax < s.Notify.ReconnectInitial:
		return Settings{}, errors.New("config: notify reconnect delays must be positive and max >= initial")
	}
	return s, nil
}
