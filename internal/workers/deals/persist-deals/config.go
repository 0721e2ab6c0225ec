package persistdeals

import (
	"time"

	"deal-engine/internal/workers/deals/dealjob"
)

type Config = dealjob.Config

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       60 * time.Second,
	}
}
