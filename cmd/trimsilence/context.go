package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gwlsn/trimsilence/internal/config"
	"github.com/gwlsn/trimsilence/internal/ffmpeg"
	"github.com/gwlsn/trimsilence/internal/jobs"
	"github.com/gwlsn/trimsilence/internal/logger"
	"github.com/gwlsn/trimsilence/internal/store"
)

const (
	defaultConfigPath = "config/trimsilence.yaml"
	lockFileName      = "trimsilence.lock"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

// resolveConfigPath picks the flag, then $CONFIG_PATH, then the default.
func resolveConfigPath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

func (c *commandContext) ensureConfig(logOut io.Writer) (*config.Config, error) {
	c.configOnce.Do(func() {
		var flag string
		if c.configFlag != nil {
			flag = *c.configFlag
		}
		c.configPath = resolveConfigPath(flag)

		cfg, err := config.Load(c.configPath)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		cfg.ApplyEnv()
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.LogLevel = *c.logLevelFlag
		}

		adjusted, err := cfg.Validate()
		if err != nil {
			c.configErr = fmt.Errorf("invalid config %s: %w", c.configPath, err)
			return
		}

		logger.InitWithWriter(cfg.LogLevel, logOut)
		for _, msg := range adjusted {
			logger.Warn("Config value adjusted", "path", c.configPath, "detail", msg)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig(os.Stderr)
	return cfg
}

// dataDir returns the directory for the history database and the job lock,
// creating it if needed.
func (c *commandContext) dataDir() (string, error) {
	cfg := c.configValue()
	if cfg == nil {
		return "", c.configErr
	}
	dir := cfg.GetDataDir(c.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

func (c *commandContext) openHistory() (*store.SQLiteStore, error) {
	dir, err := c.dataDir()
	if err != nil {
		return nil, err
	}
	return store.InitStore(dir)
}

// newController probes the encoders once and wires a controller. history
// may be nil.
func (c *commandContext) newController(ctx context.Context, history jobs.History) (*jobs.Controller, error) {
	cfg := c.configValue()
	dir, err := c.dataDir()
	if err != nil {
		return nil, err
	}
	extra, err := ffmpeg.SplitExtraArgs(cfg.ExtraEncodeArgs)
	if err != nil {
		return nil, err
	}

	policy := ffmpeg.DetectEncoders(ctx, cfg.FFmpegPath)
	opts := jobs.Options{
		Policy:    policy,
		TempDir:   cfg.GetTempDir(),
		LockPath:  filepath.Join(dir, lockFileName),
		Threads:   ffmpeg.ThreadCount(cfg.Threads),
		ExtraArgs: extra,
		History:   history,
	}
	return jobs.NewController(ffmpeg.NewEngine(cfg.FFmpegPath), ffmpeg.NewProber(cfg.FFprobePath), opts), nil
}
