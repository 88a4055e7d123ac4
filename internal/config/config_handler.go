package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix string = "AUTHSESSION"

// envOnlyKeys can be set from the environment even though they have no default value
var envOnlyKeys = []string{"auth.provider"}

var defaults = map[string]any{
	"runningEnvironment":            string(Production),
	"debugMode":                     false,
	"auth.clientId":                 "",
	"auth.redirectUri":              "",
	"auth.autoRefresh":              false,
	"auth.requestTimeoutMs":         10000,
	"auth.verifierLength":           128,
	"tokenEncryption.enabled":       false,
	"tokenEncryption.secretKey":     "",
	"lock.mode":                     string(LockModeAdvisory),
	"lock.scope":                    string(LockScopeLocal),
	"lock.leaseTTLSeconds":          60,
	"redis.type":                    DBTypeRedis,
	"redis.addresses":               []string{"127.0.0.1:6379"},
	"redis.isSentinel":              false,
	"redis.password":                "",
	"redis.masterName":              "",
	"redis.dbIndex":                 0,
	"redis.namespace":               "authsession",
	"server.host":                   "127.0.0.1",
	"server.port":                   8085,
	"server.rateLimits.enabled":     false,
	"server.rateLimits.rate":        10.0,
	"server.rateLimits.burst":       20,
	"server.allowOrigin":            []string{},
	"monitoring.sentry.enabled":     false,
	"monitoring.sentry.dsn":         "",
	"monitoring.sentry.environment": "",
	"monitoring.sentry.sampleRate":  0.0,
	"monitoring.prometheus.enabled": false,
	"monitoring.prometheus.port":    8765,
}

type ConfigHandler struct {
	mainViper   *viper.Viper
	secretViper *viper.Viper
	lock        *sync.Mutex
}

func (c *ConfigHandler) HandleChanges(callback func(Config, error)) {
	c.mainViper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("CONFIG", "message", "main config file changed", "path", e.Name)
		callback(c.Config())
	})
	c.secretViper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("CONFIG", "message", "secret config file changed", "path", e.Name)
		callback(c.Config())
	})
}

// NewConfigHandler creates a configuration handler that reads the configuration files, merges them and can watch
// them for changes. Please note that the merges replace whole arrays - they do not merge arrays.
// The secret file will always overwrite anything in the non-secret / regular file. And any environment
// variables will always rewrite stuff in the secret config, so the order of preference from most
// preferred to least is environment variables, secret config, non-secret config, defaults.
func NewConfigHandler() *ConfigHandler {
	main := viper.New()
	main.SetConfigType("yaml")
	main.SetConfigName("config")
	for key, value := range defaults {
		main.SetDefault(key, value)
	}
	secret := viper.New()
	secret.SetConfigType("yaml")
	secret.SetConfigName("secret_config")
	// Viper will look through the list of paths and use the first one where there is a file
	// so the path specified in the env variable will always take precedence over the rest
	configPaths := []string{}
	configPathEnv := os.Getenv("CONFIG_LOCATION")
	if configPathEnv != "" {
		configPaths = append(configPaths, configPathEnv)
	}
	configPaths = append(configPaths, "/etc/authsession", ".")
	for _, path := range configPaths {
		main.AddConfigPath(path)
		secret.AddConfigPath(path)
	}
	return &ConfigHandler{secretViper: secret, mainViper: main, lock: &sync.Mutex{}}
}

func (c *ConfigHandler) merge() error {
	err := c.secretViper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		slog.Info(
			"CONFIG",
			"message",
			"could not find any secret config files - only the public file and environment variables will be used",
		)
	}
	var cm map[string]any
	err = c.secretViper.Unmarshal(&cm, viper.DecodeHook(decodeHooks()))
	if err != nil {
		return err
	}
	return c.mainViper.MergeConfigMap(cm)
}

func (c *ConfigHandler) getConfig() (Config, error) {
	var output Config
	err := c.mainViper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
		slog.Info("CONFIG", "message", "could not find the main config file - defaults and environment variables will be used")
	}
	// the env variables will overwrite stuff in the secret config if set
	for _, key := range append(c.mainViper.AllKeys(), envOnlyKeys...) {
		envKey := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		err := c.secretViper.BindEnv(key, envKey)
		if err != nil {
			return Config{}, fmt.Errorf("unable to bind env variable %s: %w", envKey, err)
		}
	}
	// here the secret config (with any env variables merged) will overwrite anything from the non-secret configuration
	err = c.merge()
	if err != nil {
		return Config{}, err
	}
	err = c.mainViper.Unmarshal(&output, viper.DecodeHook(decodeHooks()))
	if err != nil {
		return Config{}, err
	}
	err = output.Validate()
	if err != nil {
		return Config{}, err
	}
	return output, nil
}

func (c *ConfigHandler) Config() (Config, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.getConfig()
}

func (c *ConfigHandler) Watch() {
	c.mainViper.WatchConfig()
	c.secretViper.WatchConfig()
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		parseStringAsURL(),
	)
}

func parseStringAsURL() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (interface{}, error) {
		// Check that the data is string
		if f.Kind() != reflect.String {
			return data, nil
		}

		// Check that the target type is our custom type
		if t != reflect.TypeOf(url.URL{}) {
			return data, nil
		}

		// Return the parsed value
		dataStr, ok := data.(string)
		if !ok {
			return nil, fmt.Errorf("cannot cast URL value to string")
		}
		if dataStr == "" {
			return nil, fmt.Errorf("empty values are not allowed for URLs")
		}
		url, err := url.Parse(dataStr)
		if err != nil {
			return nil, err
		}
		return url, nil
	}
}
