package config

import "fmt"

// ServerConfig is the listener of the status API
type ServerConfig struct {
	Host        string
	Port        int
	RateLimits  RateLimits
	AllowOrigin []string
}

type RateLimits struct {
	Enabled bool
	Rate    float64
	Burst   int
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("the %s port has to be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func (c ServerConfig) Validate() error {
	err := validatePort("server", c.Port)
	if err != nil {
		return err
	}
	if c.RateLimits.Enabled && (c.RateLimits.Rate <= 0 || c.RateLimits.Burst <= 0) {
		return fmt.Errorf("the rate limits need a positive rate and burst when enabled")
	}
	return nil
}
