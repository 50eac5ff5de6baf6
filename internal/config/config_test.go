package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizarena/internal/config"
)

type testConfig struct {
	Name string
	Game struct {
		QuestionSeconds int
		QuestionBreak   time.Duration
	}
	Addrs []string
}

type validatedConfig struct {
	Port int
}

func (c *validatedConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	p := writeFile(t, `
name: quizarena
game:
  questionBreak: 3s
addrs: ["a:6379", "b:6379"]
`)

	var c testConfig
	c.Game.QuestionSeconds = 60

	require.NoError(t, config.Load(p, &c))
	assert.Equal(t, "quizarena", c.Name)
	assert.Equal(t, 60, c.Game.QuestionSeconds, "default kept when the file does not set it")
	assert.Equal(t, 3*time.Second, c.Game.QuestionBreak)
	assert.Equal(t, []string{"a:6379", "b:6379"}, c.Addrs)
}

func TestLoad_Env(t *testing.T) {
	p := writeFile(t, `
name: quizarena
game:
  questionSeconds: 30
`)
	t.Setenv("QUIZARENA_GAME_QUESTIONSECONDS", "15")

	var c testConfig
	require.NoError(t, config.Load(p, &c, config.WithEnvPrefix("QUIZARENA")))
	assert.Equal(t, 15, c.Game.QuestionSeconds)
	assert.Equal(t, "quizarena", c.Name)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]struct {
		file    string
		wantErr string
	}{
		"missing file": {
			file:    filepath.Join(t.TempDir(), "nope.yaml"),
			wantErr: "read config from file",
		},
		"validation": {
			file:    writeFile(t, "port: 0\n"),
			wantErr: "invalid config: port must be positive",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var c validatedConfig
			err := config.Load(tc.file, &c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
