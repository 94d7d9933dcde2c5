package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Escrow   EscrowConfig   `mapstructure:"escrow"`
	IPFS     IPFSConfig     `mapstructure:"ipfs"`
	Bounty   BountyConfig   `mapstructure:"bounty"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

type ChainConfig struct {
	ID                 string `mapstructure:"id"`
	Name               string `mapstructure:"name"`
	RPCURL             string `mapstructure:"rpc_url"`
	ChainID            uint64 `mapstructure:"chain_id"`
	StartBlock         int64  `mapstructure:"start_block"`
	ConfirmationBlocks int    `mapstructure:"confirmation_blocks"`
	PullInterval       int    `mapstructure:"pull_interval"`
	BatchSize          int    `mapstructure:"batch_size"`
	Enabled            bool   `mapstructure:"enabled"`
}

type EscrowConfig struct {
	ContractAddress string `mapstructure:"contract_address"`
	WorkerPoolSize  int    `mapstructure:"worker_pool_size"`
	QueueSize       int    `mapstructure:"queue_size"`
}

type IPFSConfig struct {
	NodeURL    string `mapstructure:"node_url"`
	GatewayURL string `mapstructure:"gateway_url"`
	Timeout    int    `mapstructure:"timeout"`
}

type BountyConfig struct {
	// 赏金金额区间（人类可读单位），超出视为INVALID_REWARD
	MinReward string `mapstructure:"min_reward"`
	MaxReward string `mapstructure:"max_reward"`
	// 过期清理任务的cron表达式
	ExpiryCron string `mapstructure:"expiry_cron"`
}

type AuthConfig struct {
	// API key -> 主体钱包地址
	APIKeys map[string]string `mapstructure:"api_keys"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Bounty.MinReward == "" {
		config.Bounty.MinReward = "1"
	}
	if config.Bounty.MaxReward == "" {
		config.Bounty.MaxReward = "1000"
	}
	if config.Bounty.ExpiryCron == "" {
		config.Bounty.ExpiryCron = "0 * * * * *"
	}

	return &config, nil
}
