package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Loader 配置加载器
type Loader struct {
	v *viper.Viper
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load 从指定路径加载配置，后面的文件覆盖前面的
// 文件不存在时使用默认配置
func (l *Loader) Load(paths ...string) (*Config, error) {
	l.v.SetConfigType("yaml")

	// 环境变量: FSG_GUARD_ROOT, FSG_LOG_LEVEL ...
	l.v.SetEnvPrefix("FSG")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	l.setDefaults()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		l.v.SetConfigFile(path)
		if err := l.v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setDefaults() {
	def := Default()

	l.v.SetDefault("guard.root", def.Guard.Root)
	l.v.SetDefault("guard.allow", def.Guard.Allow)
	l.v.SetDefault("guard.reserved_pids", def.Guard.ReservedPIDs)
	l.v.SetDefault("session.notify_buffer", def.Session.NotifyBuffer)
	l.v.SetDefault("session.read_buffer", def.Session.ReadBuffer)
	l.v.SetDefault("log.level", def.Log.Level)
	l.v.SetDefault("log.output", def.Log.Output)
	l.v.SetDefault("log.file_path", def.Log.FilePath)
	l.v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	l.v.SetDefault("log.max_backups", def.Log.MaxBackups)
	l.v.SetDefault("log.max_age_days", def.Log.MaxAgeDays)
	l.v.SetDefault("ui.headless", def.UI.Headless)
}

// LoadAndValidate 加载并验证配置
func LoadAndValidate(paths ...string) (*Config, error) {
	cfg, err := NewLoader().Load(paths...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
