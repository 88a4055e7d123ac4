package config

import "fmt"

type RunningEnvironment string

const (
	Development RunningEnvironment = "development"
	Production  RunningEnvironment = "production"
)

type Config struct {
	RunningEnvironment RunningEnvironment
	DebugMode          bool
	Auth               AuthConfig
	TokenEncryption    TokenEncryptionConfig
	Lock               LockConfig
	Redis              RedisConfig
	Server             ServerConfig
	Monitoring         MonitoringConfig
}

func (c *Config) Validate() error {
	if c.RunningEnvironment != Development && c.RunningEnvironment != Production {
		return fmt.Errorf("unknown running environment %q (must be one of development, production)", c.RunningEnvironment)
	}
	err := c.Auth.Validate(c.RunningEnvironment)
	if err != nil {
		return err
	}
	err = c.TokenEncryption.Validate()
	if err != nil {
		return err
	}
	err = c.Lock.Validate()
	if err != nil {
		return err
	}
	err = c.Redis.Validate(c.RunningEnvironment)
	if err != nil {
		return err
	}
	err = c.Server.Validate()
	if err != nil {
		return err
	}
	err = c.Monitoring.Validate()
	if err != nil {
		return err
	}
	if c.Lock.Scope == LockScopeShared && c.Redis.Type != DBTypeRedis && c.RunningEnvironment == Production {
		return fmt.Errorf("a shared pending flag needs a redis persistence backend")
	}
	return nil
}
