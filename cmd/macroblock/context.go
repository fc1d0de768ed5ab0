package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"macroblock/internal/api"
	"macroblock/internal/config"
)

// healthProbeTimeout bounds the availability check withClient runs before
// handing the client to a command.
const healthProbeTimeout = 2 * time.Second

type commandContext struct {
	addressFlag *string
	configFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addressFlag, configFlag *string) *commandContext {
	return &commandContext{
		addressFlag: addressFlag,
		configFlag:  configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// apiAddress resolves the daemon API address from the flag, then config,
// then the built-in default.
func (c *commandContext) apiAddress() string {
	if c.addressFlag != nil {
		if addr := strings.TrimSpace(*c.addressFlag); addr != "" {
			return addr
		}
	}
	if cfg := c.configValue(); cfg != nil {
		if addr := strings.TrimSpace(cfg.Daemon.Listen); addr != "" {
			return addr
		}
	}
	return config.Default().Daemon.Listen
}

// apiClient builds a daemon client without probing reachability.
func (c *commandContext) apiClient() *api.Client {
	var opts []api.ClientOption
	if cfg := c.configValue(); cfg != nil && strings.TrimSpace(cfg.Daemon.APIToken) != "" {
		opts = append(opts, api.WithToken(cfg.Daemon.APIToken))
	}
	return api.NewClient(c.apiAddress(), opts...)
}

// daemonAvailable reports whether the daemon liveness probe answers.
func (c *commandContext) daemonAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	return c.apiClient().Health(probeCtx) == nil
}

// withClient verifies the daemon is reachable, then runs fn against it.
func (c *commandContext) withClient(ctx context.Context, fn func(*api.Client) error) error {
	client := c.apiClient()
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	err := client.Health(probeCtx)
	cancel()
	if err != nil {
		return wrapConnectError(err, client.BaseURL())
	}
	return fn(client)
}

func wrapConnectError(err error, address string) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start the daemon with `macroblock daemon start`", address)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("connect to daemon: %s did not respond; verify the daemon is running", address)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
