// Command corelink drives a core device from the shell: identity check,
// clock selection, log retrieval, flash storage operations, and kernel
// load/run with the RPC serve loop attached.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"corelink/registry"
	"corelink/session"
	"corelink/transport"
)

var (
	configPath string
	flagAddr   string
	flagDevice string
	flagDebug  bool
)

const defaultConfigPath = "corelink.toml"

var rootCmd = &cobra.Command{
	Use:           "corelink",
	Short:         "Host-side control of a real-time core device",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to TOML config")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "Device address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDevice, "device", "", "Device name resolved via the registry")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging of every frame")
}

func main() {
	rootCmd.AddCommand(newIdentCmd())
	rootCmd.AddCommand(newLogCmd())
	rootCmd.AddCommand(newClockCmd())
	rootCmd.AddCommand(newFlashCmd())
	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newRunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration, builds the logger and opens a session to
// the selected device. The returned cleanup closes both.
func setup() (*session.Session, *zap.Logger, func(), error) {
	cfg, err := LoadConfig(configPath, rootCmd.PersistentFlags().Changed("config"))
	if err != nil {
		return nil, nil, nil, err
	}
	if flagAddr != "" {
		cfg.Device.Address = flagAddr
	}
	if flagDevice != "" {
		cfg.Device.Name = flagDevice
		cfg.Device.Address = ""
	}
	if flagDebug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	logger, err := buildLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}

	addr, err := resolveAddr(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	sess := session.New(transport.NewTCP(addr), logger)
	cleanup := func() {
		sess.Close()
		_ = logger.Sync()
	}
	return sess, logger, cleanup, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// resolveAddr turns the configured device selection into a dialable
// address, consulting the etcd registry when only a name is given.
func resolveAddr(cfg Config, logger *zap.Logger) (string, error) {
	if cfg.Device.Address != "" {
		return cfg.Device.Address, nil
	}

	reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, logger)
	if err != nil {
		return "", fmt.Errorf("connect registry: %w", err)
	}
	defer reg.Close()

	eps, err := reg.Discover(cfg.Device.Name)
	if err != nil {
		return "", fmt.Errorf("resolve device %q: %w", cfg.Device.Name, err)
	}
	if len(eps) == 0 {
		return "", fmt.Errorf("device %q is not registered", cfg.Device.Name)
	}
	logger.Debug("resolved device",
		zap.String("device", cfg.Device.Name),
		zap.String("addr", eps[0].Addr))
	return eps[0].Addr, nil
}
