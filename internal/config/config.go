package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	IdentityConfig
	ProviderConfig
	StoreConfig
	SessionConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFolder() string
}

type mainConfig struct {
	EnvVars
	Identity
	Providers
	Store
	Session
}

func New() Config {
	return mainConfig{}
}

// Load reads a .env file into the process environment when it exists. Variables
// already set in the environment win.
func Load(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrap(err, "[config.Load] godotenv.Load")
	}
	return nil
}
