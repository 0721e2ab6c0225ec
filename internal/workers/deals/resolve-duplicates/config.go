package resolveduplicates

import (
	"time"

	"deal-engine/internal/workers/deals/dealjob"
)

type Config = dealjob.Config

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 20,
		Timeout:       10 * time.Second,
	}
}
