package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// RedisConfig points the token metadata cache at Redis. An empty Addr
// keeps the cache in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ContractsConfig lists the statically known protocol contracts.
type ContractsConfig struct {
	TroveManager         string
	StabilityPoolManager string
	PriceFeed            string
	TokenManager         string
	SwapFactory          string
	DebtTokens           []string
	Pairs                []string
}

// RangeConfig holds the block range runner settings shared by run and sync.
type RangeConfig struct {
	FromBlock     uint64
	ToBlock       uint64
	BatchSize     uint64
	Confirmations uint64
	Follow        bool
	PollInterval  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Config holds configuration for the run command.
type Config struct {
	RPCURL            string
	Range             RangeConfig
	Addresses         []string
	Topic0            []string
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	Log               LogConfig
}

// SyncConfig holds configuration for the sync command.
type SyncConfig struct {
	RPCURL    string
	In        string
	Range     RangeConfig
	Contracts ContractsConfig
	PGDSN     string
	Redis     RedisConfig
	// Checkpoint is a file path; empty stores progress in the entity store.
	Checkpoint     string
	CheckpointName string
	CallAtLatest   bool
	Namespace      string
	// MetricsListen serves /metrics while syncing when set.
	MetricsListen string
	Log           LogConfig
}

// AddrSyncConfig holds configuration for the addrsync command.
type AddrSyncConfig struct {
	RPCURL     string
	Contracts  ContractsConfig
	Tokens     []string
	DebtTokens []string
	Pairs      []string
	Out        string
	Log        LogConfig
}

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen          string
	PGDSN           string
	Namespace       string
	ShutdownTimeout time.Duration
	Log             LogConfig
}

// MigrateConfig holds configuration for the migrate command.
type MigrateConfig struct {
	PGDSN string
	Log   LogConfig
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setRangeDefaults(v)
		v.SetDefault("out", "./data/logs.jsonl")
		v.SetDefault("checkpoint", "./data/checkpoint.json")
		v.SetDefault("checkpoint-enabled", true)
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		Range:             rangeConfig(v),
		Addresses:         getStringSlice(v, "address"),
		Topic0:            getStringSlice(v, "topic0"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		Log:               logConfig(v),
	}

	return cfg, nil
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setRangeDefaults(v)
		v.SetDefault("checkpoint-name", "sync")
		v.SetDefault("redis-db", 0)
		v.SetDefault("namespace", "trovescope")
	})
	if err != nil {
		return SyncConfig{}, err
	}

	cfg := SyncConfig{
		RPCURL:    v.GetString("rpc"),
		In:        v.GetString("in"),
		Range:     rangeConfig(v),
		Contracts: contractsConfig(v),
		PGDSN:     v.GetString("pg-dsn"),
		Redis: RedisConfig{
			Addr:     v.GetString("redis-addr"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
			TTL:      v.GetDuration("redis-ttl"),
		},
		Checkpoint:     v.GetString("checkpoint"),
		CheckpointName: v.GetString("checkpoint-name"),
		CallAtLatest:   v.GetBool("call-at-latest"),
		Namespace:      v.GetString("namespace"),
		MetricsListen:  v.GetString("metrics-listen"),
		Log:            logConfig(v),
	}

	return cfg, nil
}

// LoadAddrSync merges config file, environment variables, and flags into AddrSyncConfig.
func LoadAddrSync(cfgFile string, flags *pflag.FlagSet) (AddrSyncConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setLogDefaults(v)
		v.SetDefault("addrbook.out", "./frontend/src/constants.ts")
	})
	if err != nil {
		return AddrSyncConfig{}, err
	}

	cfg := AddrSyncConfig{
		RPCURL:     v.GetString("rpc"),
		Contracts:  contractsConfig(v),
		Tokens:     getStringSlice(v, "addrbook.tokens"),
		DebtTokens: getStringSlice(v, "addrbook.debt-tokens"),
		Pairs:      getStringSlice(v, "addrbook.pairs"),
		Out:        v.GetString("addrbook.out"),
		Log:        logConfig(v),
	}

	return cfg, nil
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setLogDefaults(v)
		v.SetDefault("listen", ":8080")
		v.SetDefault("namespace", "trovescope")
		v.SetDefault("shutdown-timeout", 10*time.Second)
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:          v.GetString("listen"),
		PGDSN:           v.GetString("pg-dsn"),
		Namespace:       v.GetString("namespace"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		Log:             logConfig(v),
	}

	return cfg, nil
}

// LoadMigrate merges config file, environment variables, and flags into MigrateConfig.
func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := newViper(cfgFile, flags, setLogDefaults)
	if err != nil {
		return MigrateConfig{}, err
	}
	return MigrateConfig{
		PGDSN: v.GetString("pg-dsn"),
		Log:   logConfig(v),
	}, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func setLogDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("log-max-size-mb", 100)
	v.SetDefault("log-max-backups", 5)
}

func setRangeDefaults(v *viper.Viper) {
	setLogDefaults(v)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
}

func logConfig(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:      v.GetString("log-level"),
		File:       v.GetString("log-file"),
		MaxSizeMB:  v.GetInt("log-max-size-mb"),
		MaxBackups: v.GetInt("log-max-backups"),
	}
}

func rangeConfig(v *viper.Viper) RangeConfig {
	return RangeConfig{
		FromBlock:     v.GetUint64("from"),
		ToBlock:       v.GetUint64("to"),
		BatchSize:     v.GetUint64("batch-size"),
		Confirmations: v.GetUint64("confirmations"),
		Follow:        v.GetBool("follow"),
		PollInterval:  v.GetDuration("poll-interval"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
	}
}

func contractsConfig(v *viper.Viper) ContractsConfig {
	return ContractsConfig{
		TroveManager:         v.GetString("contracts.trove-manager"),
		StabilityPoolManager: v.GetString("contracts.stability-pool-manager"),
		PriceFeed:            v.GetString("contracts.price-feed"),
		TokenManager:         v.GetString("contracts.token-manager"),
		SwapFactory:          v.GetString("contracts.swap-factory"),
		DebtTokens:           getStringSlice(v, "contracts.debt-tokens"),
		Pairs:                getStringSlice(v, "contracts.pairs"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
