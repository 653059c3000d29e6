package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReminderConfig tunes the payment-reminder dispatcher. It lives in an
// optional kasira.yml so operators can adjust cadence without redeploying.
type ReminderConfig struct {
	// DispatchInterval is how often the dispatcher scans for due reminders.
	DispatchInterval time.Duration `mapstructure:"dispatchInterval"`

	// DueAfterDays is how many days after the invoice due date the first
	// reminder becomes eligible.
	DueAfterDays int `mapstructure:"dueAfterDays"`

	// MaxPerScan caps how many reminders one scan dispatches.
	MaxPerScan int `mapstructure:"maxPerScan"`
}

func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		DispatchInterval: time.Minute,
		DueAfterDays:     3,
		MaxPerScan:       50,
	}
}

type ReminderConfigHolder struct {
	current atomic.Value // holds ReminderConfig
}

func NewReminderConfigHolder() (*ReminderConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("kasira")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kasira/config") // Volume-mounted config
	v.AddConfigPath("/etc/kasira")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("KASIRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultReminderConfig()
		v.SetDefault("reminder.dispatchInterval", defaults.DispatchInterval)
		v.SetDefault("reminder.dueAfterDays", defaults.DueAfterDays)
		v.SetDefault("reminder.maxPerScan", defaults.MaxPerScan)
	}

	var cfg ReminderConfig
	if err := v.UnmarshalKey("reminder", &cfg); err != nil {
		return nil, err
	}
	if err := validateReminderConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ReminderConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReminderConfig
		if err := v.UnmarshalKey("reminder", &updated); err != nil {
			log.Printf("[reminder-config] reload failed: %v", err)
			return
		}
		if err := validateReminderConfig(updated); err != nil {
			log.Printf("[reminder-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reminder-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ReminderConfigHolder) Get() ReminderConfig {
	return h.current.Load().(ReminderConfig)
}

func validateReminderConfig(cfg ReminderConfig) error {
	if cfg.DispatchInterval < time.Second {
		return errors.New("reminder.dispatchInterval must be at least 1s")
	}
	if cfg.DueAfterDays < 0 {
		return errors.New("reminder.dueAfterDays cannot be negative")
	}
	if cfg.MaxPerScan <= 0 {
		return errors.New("reminder.maxPerScan must be positive")
	}
	return nil
}
