package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Monitor  MonitorConfig
	Checker  CheckerConfig
	State    StateConfig
	Telegram TelegramConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type MonitorConfig struct {
	PollInterval       time.Duration
	CycleDeadline      time.Duration
	Concurrency        int64
	MinCallSpacing     time.Duration
	StatusReportCycles int
}

type CheckerConfig struct {
	RDAPTimeout  time.Duration
	WHOISTimeout time.Duration
	DNSTimeout   time.Duration
	DNSPrescreen bool
	DNSResolver  string
}

type StateConfig struct {
	FilePath string
}

type TelegramConfig struct {
	BotToken          string
	AvailableChatID   string
	ReportChatID      string
	AuthorizedChatIDs []string
	PollTimeout       time.Duration
	SendRetries       int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("TRACKER")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("monitor.pollinterval", "60s")
	viper.SetDefault("monitor.cycledeadline", "5m")
	viper.SetDefault("monitor.concurrency", 5)
	viper.SetDefault("monitor.mincallspacing", "500ms")
	viper.SetDefault("monitor.statusreportcycles", 120)
	viper.SetDefault("checker.rdaptimeout", "10s")
	viper.SetDefault("checker.whoistimeout", "25s")
	viper.SetDefault("checker.dnstimeout", "5s")
	viper.SetDefault("checker.dnsprescreen", true)
	viper.SetDefault("checker.dnsresolver", "8.8.8.8:53")
	viper.SetDefault("state.filepath", "domain_state.json")
	viper.SetDefault("telegram.polltimeout", "30s")
	viper.SetDefault("telegram.sendretries", 3)

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
	}
	if id := os.Getenv("TELEGRAM_AVAILABLE_CHAT_ID"); id != "" {
		cfg.Telegram.AvailableChatID = id
	}
	if id := os.Getenv("TELEGRAM_REPORT_CHAT_ID"); id != "" {
		cfg.Telegram.ReportChatID = id
	}

	// Commands are accepted from both notification chats unless an explicit
	// allow-list is configured.
	if len(cfg.Telegram.AuthorizedChatIDs) == 0 {
		for _, id := range []string{cfg.Telegram.AvailableChatID, cfg.Telegram.ReportChatID} {
			if id != "" {
				cfg.Telegram.AuthorizedChatIDs = append(cfg.Telegram.AuthorizedChatIDs, id)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.pollinterval must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.Concurrency <= 0 {
		return fmt.Errorf("monitor.concurrency must be positive, got %d", c.Monitor.Concurrency)
	}
	if c.Monitor.CycleDeadline < c.Checker.WHOISTimeout {
		return fmt.Errorf("monitor.cycledeadline %s is shorter than checker.whoistimeout %s",
			c.Monitor.CycleDeadline, c.Checker.WHOISTimeout)
	}
	if c.State.FilePath == "" {
		return fmt.Errorf("state.filepath must not be empty")
	}
	return nil
}
