package processmessage

import "time"

type Config struct {
	// Timeout bounds one turn, retries included.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 2 * time.Minute,
	}
}
