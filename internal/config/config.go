// Package config 提供 folderSentry 的配置管理
package config

import (
	"errors"
	"path/filepath"
)

// Config 完整配置
type Config struct {
	Guard   GuardConfig   `mapstructure:"guard"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
	UI      UIConfig      `mapstructure:"ui"`
}

// GuardConfig 保护策略
type GuardConfig struct {
	Root         string   `mapstructure:"root"`          // 受保护目录 (为空时交互式选择)
	Allow        []string `mapstructure:"allow"`         // 豁免的进程名 (大小写不敏感)
	ReservedPIDs []int32  `mapstructure:"reserved_pids"` // 永不终止的 PID
}

// SessionConfig 会话缓冲
type SessionConfig struct {
	NotifyBuffer int `mapstructure:"notify_buffer"` // 通知展示层的缓冲大小
	ReadBuffer   int `mapstructure:"read_buffer"`   // fanotify 读缓冲字节数
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // debug, info, warn, error
	Output     string `mapstructure:"output"`       // console, file, both
	FilePath   string `mapstructure:"file_path"`    // 日志文件路径
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单文件最大大小(MB)
	MaxBackups int    `mapstructure:"max_backups"`  // 最大保留文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 最大保留天数
}

// UIConfig 展示层
type UIConfig struct {
	Headless bool `mapstructure:"headless"` // 不启动终端界面，只写日志
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Guard.Root != "" && !filepath.IsAbs(c.Guard.Root) {
		return errors.New("guard.root must be an absolute path")
	}

	if c.Session.NotifyBuffer <= 0 {
		return errors.New("session.notify_buffer must be greater than 0")
	}
	if c.Session.ReadBuffer < 4096 {
		return errors.New("session.read_buffer must be at least 4096")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return errors.New("log.level must be one of: debug, info, warn, error")
	}

	validOutputs := map[string]bool{
		"console": true,
		"file":    true,
		"both":    true,
	}
	if c.Log.Output != "" && !validOutputs[c.Log.Output] {
		return errors.New("log.output must be one of: console, file, both")
	}
	if c.Log.Output != "console" && c.Log.Output != "" && c.Log.FilePath == "" {
		return errors.New("log.file_path is required when log.output is file or both")
	}

	return nil
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Guard: GuardConfig{
			Root:         "",
			Allow:        []string{"Notepad"},
			ReservedPIDs: []int32{0, 4},
		},
		Session: SessionConfig{
			NotifyBuffer: 256,
			ReadBuffer:   64 * 1024,
		},
		Log: LogConfig{
			Level:      "info",
			Output:     "console",
			FilePath:   "/var/log/foldersentry/agent.log",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		UI: UIConfig{
			Headless: false,
		},
	}
}
