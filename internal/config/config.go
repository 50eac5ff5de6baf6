package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Validator is implemented by configs that check themselves once loaded.
type Validator interface {
	Validate() error
}

type Option func(v *viper.Viper)

// WithEnvPrefix only reads environment variables starting with prefix,
// e.g. QUIZARENA_GAME_QUESTIONSECONDS for game.questionSeconds.
func WithEnvPrefix(prefix string) Option {
	return func(v *viper.Viper) {
		v.SetEnvPrefix(prefix)
	}
}

// Load reads file into config, which must be a pointer to a struct. Values
// already set on config act as defaults, and every key can be overridden
// through the environment with dots replaced by underscores.
func Load(file string, config any, opts ...Option) error {
	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %w", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %w", err)
	}

	for _, opt := range opts {
		opt(v)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %w", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if val, ok := config.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	return nil
}
