package normalizedeal

import (
	"time"

	"deal-engine/internal/workers/deals/dealjob"
)

type Config = dealjob.Config

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 10,
		Timeout:       30 * time.Second,
	}
}
