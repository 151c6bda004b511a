package assetcache

import (
	"fmt"
	"strings"

	"github.com/karstlight/assetcache/internal/platform/config"
)

// Config holds asset cache settings. Zero values fall back to the documented
// defaults; ParseConfig fills them from the process environment.
type Config struct {
	// OriginURL is the base URL of the content service. Required.
	OriginURL string `env:"ASSETCACHE_ORIGIN_URL"`
	// Region selects the regional asset namespace on the origin.
	Region string `env:"ASSETCACHE_REGION" envDefault:"en"`
	// Version selects the content version on the origin.
	Version string `env:"ASSETCACHE_VERSION" envDefault:"latest"`
	// StorePath locates the durable cache database. Empty disables the
	// durable tier; the cache then runs on memory and network alone.
	StorePath string `env:"ASSETCACHE_STORE_PATH"`
	// StoreMaxBytes caps the durable database size. Zero means uncapped.
	StoreMaxBytes int64 `env:"ASSETCACHE_STORE_MAX_BYTES"`
	// MemoryCapacity caps entries held in memory per category. Zero means
	// unlimited.
	MemoryCapacity int `env:"ASSETCACHE_MEMORY_CAPACITY"`
	// PreloadParallelism bounds concurrent fetches during PreloadMany.
	PreloadParallelism int `env:"ASSETCACHE_PRELOAD_PARALLELISM" envDefault:"8"`
}

// ParseConfig loads a Config from environment variables.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.OriginURL) == "" {
		return fmt.Errorf("origin url is required")
	}
	return nil
}
