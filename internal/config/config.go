package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Silencehuliang/spectrometer-gui/internal/scanner"
	"github.com/Silencehuliang/spectrometer-gui/internal/transport"
)

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Scan    ScanConfig    `yaml:"scan"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type DeviceConfig struct {
	Type string `yaml:"type"` // serial 或 tcp

	// 串口参数
	Port     string `yaml:"port"` // 如 COM3 或 /dev/ttyUSB0
	BaudRate int    `yaml:"baud_rate"`

	// TCP参数
	Host           string        `yaml:"host"`
	TCPPort        int           `yaml:"tcp_port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// 指令响应超时
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

type ScanConfig struct {
	AutoStart       bool          `yaml:"auto_start"` // 启动后是否自动开始扫描
	StartWavelength float64       `yaml:"start_wavelength"`
	EndWavelength   float64       `yaml:"end_wavelength"`
	StepSize        float64       `yaml:"step_size"`
	Mode            string        `yaml:"mode"` // single/repeat/auto
	RepeatCount     int           `yaml:"repeat_count"`
	Interval        time.Duration `yaml:"interval"`
	Acquisition     string        `yaml:"acquisition"` // intensity/spectrum
	PeakThreshold   float64       `yaml:"peak_threshold"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Type:           transport.TypeTCP,
			BaudRate:       transport.DefaultBaudRate,
			Host:           "127.0.0.1",
			TCPPort:        transport.DefaultTCPPort,
			ConnectTimeout: transport.DefaultConnectTimeout,
			ReplyTimeout:   time.Second,
		},
		Scan: ScanConfig{
			StartWavelength: 400,
			EndWavelength:   700,
			StepSize:        1,
			Mode:            string(scanner.ModeSingle),
			RepeatCount:     1,
			Interval:        time.Second,
			Acquisition:     string(scanner.AcquireIntensity),
			PeakThreshold:   0.1,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 100,
			Channel:  "spectrometer_spectra",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			MetricsPort: 9090,
		},
	}
}

// TransportConfig 转换为链路连接参数
func (c DeviceConfig) TransportConfig() transport.Config {
	return transport.Config{
		Type:           c.Type,
		Port:           c.Port,
		BaudRate:       c.BaudRate,
		Host:           c.Host,
		TCPPort:        c.TCPPort,
		ConnectTimeout: c.ConnectTimeout,
	}
}

// ScannerConfig 转换为扫描配置
func (c ScanConfig) ScannerConfig() scanner.Config {
	return scanner.Config{
		StartWavelength: c.StartWavelength,
		EndWavelength:   c.EndWavelength,
		StepSize:        c.StepSize,
		Mode:            scanner.Mode(c.Mode),
		RepeatCount:     c.RepeatCount,
		Interval:        c.Interval,
		Acquisition:     scanner.Acquisition(c.Acquisition),
		PeakThreshold:   c.PeakThreshold,
	}
}
