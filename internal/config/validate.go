package config

import (
	"fmt"

	"github.com/Silencehuliang/spectrometer-gui/internal/transport"
)

// Validate 校验配置正确性
// 只做声明式检查，不修改配置
func Validate(cfg *Config) error {
	switch cfg.Device.Type {
	case transport.TypeSerial:
		if cfg.Device.Port == "" {
			return fmt.Errorf("device: 串口模式必须指定 port")
		}
		if cfg.Device.BaudRate < 0 {
			return fmt.Errorf("device: 波特率非法: %d", cfg.Device.BaudRate)
		}
	case transport.TypeTCP:
		if cfg.Device.Host == "" {
			return fmt.Errorf("device: TCP模式必须指定 host")
		}
		if cfg.Device.TCPPort < 0 || cfg.Device.TCPPort > 65535 {
			return fmt.Errorf("device: TCP端口非法: %d", cfg.Device.TCPPort)
		}
	default:
		return fmt.Errorf("device: 未知接口类型 %q", cfg.Device.Type)
	}

	// 扫描配置只在自动启动时强制校验，手动启动在 Start 时再校验
	if cfg.Scan.AutoStart {
		if err := cfg.Scan.ScannerConfig().Validate(); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis: 启用时必须指定 addr")
	}
	if cfg.Redis.Enabled && cfg.Redis.Channel == "" {
		return fmt.Errorf("redis: 启用时必须指定 channel")
	}

	if cfg.Monitor.Enabled && (cfg.Monitor.MetricsPort <= 0 || cfg.Monitor.MetricsPort > 65535) {
		return fmt.Errorf("monitor: metrics端口非法: %d", cfg.Monitor.MetricsPort)
	}

	return nil
}
