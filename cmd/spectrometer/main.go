package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Silencehuliang/spectrometer-gui/internal/config"
	"github.com/Silencehuliang/spectrometer-gui/internal/events"
	"github.com/Silencehuliang/spectrometer-gui/internal/monitor"
	"github.com/Silencehuliang/spectrometer-gui/internal/scanner"
	"github.com/Silencehuliang/spectrometer-gui/internal/session"
	"github.com/Silencehuliang/spectrometer-gui/internal/storage"
	"github.com/Silencehuliang/spectrometer-gui/pkg/protocol"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configFile := flag.String("config", "configs/config.yaml", "配置文件路径")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	// 显示版本
	if *showVersion {
		fmt.Printf("Spectrometer Controller v%s (Build: %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		cfg = config.GetDefaultConfig()
		fmt.Println("使用默认配置")
	}

	// 初始化日志
	log := setupLogger(cfg.Log)
	log.Infof("Spectrometer Controller v%s 启动中...", Version)
	log.Infof("配置文件: %s", *configFile)

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	// 启动监控
	mon := monitor.NewMonitor(log)
	if cfg.Monitor.Enabled {
		mon.StartMetricsServer(cfg.Monitor.MetricsPort)
		mon.StartRuntimeMonitor()
	}

	// 创建消息队列（可选）
	var mq *storage.MessageQueue
	if cfg.Redis.Enabled {
		mq, err = storage.NewMessageQueue(
			cfg.Redis.Addr,
			cfg.Redis.Password,
			cfg.Redis.Channel,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			log,
		)
		if err != nil {
			log.Fatalf("创建消息队列失败: %v", err)
		}
	}

	// 建立设备会话
	sess := session.New(log, cfg.Device.ReplyTimeout)
	if err := sess.Open(cfg.Device.TransportConfig()); err != nil {
		log.Fatalf("连接设备失败: %v", err)
	}

	ctrl := scanner.New(sess, log)

	// 事件分发
	sessCh, unsubSess := sess.Subscribe(0)
	scanCh, unsubScan := ctrl.Subscribe(0)
	go consumeSessionEvents(log, sessCh)
	go consumeScanEvents(log, mq, scanCh)

	// 启动时查询固件版本与设备状态
	if err := sess.Enqueue(protocol.Command{Type: protocol.CmdGetVersion}); err != nil {
		log.Errorf("查询固件版本失败: %v", err)
	}
	if err := sess.Enqueue(protocol.Command{Type: protocol.CmdGetStatus}); err != nil {
		log.Errorf("查询设备状态失败: %v", err)
	}

	// 按配置自动开始扫描
	if cfg.Scan.AutoStart {
		if err := ctrl.Start(cfg.Scan.ScannerConfig()); err != nil {
			log.Fatalf("启动扫描失败: %v", err)
		}
	}

	// 优雅退出
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("收到信号: %v, 开始优雅关闭...", sig)

	ctrl.Close()
	sess.Close()
	unsubSess()
	unsubScan()
	if mq != nil {
		if err := mq.Close(); err != nil {
			log.Errorf("关闭消息队列失败: %v", err)
		}
	}
	log.Info("已退出")
}

// consumeSessionEvents 处理会话事件：记录关键响应与链路故障
func consumeSessionEvents(log *logrus.Logger, ch chan events.Event) {
	for ev := range ch {
		switch ev.Kind {
		case events.KindResponse:
			resp := ev.Response
			if !resp.Valid {
				continue // 会话内部已记录告警
			}
			switch resp.Kind {
			case protocol.KindVersion:
				log.Infof("设备固件版本: %s", resp.Version)
			case protocol.KindStatus:
				log.Infof("设备状态: ready=%v error=%v calibrating=%v measuring=%v",
					resp.Status.Ready, resp.Status.Error,
					resp.Status.Calibrating, resp.Status.Measuring)
			case protocol.KindCalibration:
				log.Infof("校准结果: success=%v", resp.CalOK)
			}
		case events.KindError:
			log.Errorf("会话已断开: %s，需重新连接", ev.Err)
		}
	}
}

// consumeScanEvents 处理扫描事件：发布光谱与峰值
func consumeScanEvents(log *logrus.Logger, mq *storage.MessageQueue, ch chan events.Event) {
	ctx := context.Background()
	for ev := range ch {
		switch ev.Kind {
		case events.KindScanProgress:
			log.Debugf("扫描进度: %.1f%%", ev.Progress*100)
		case events.KindScanState:
			log.Infof("扫描状态: %s", ev.State)
		case events.KindScanCompleted:
			if mq == nil {
				continue
			}
			if err := mq.Publish(ctx, ev.Spectrum); err != nil {
				log.Errorf("发布光谱失败: %v", err)
			}
		case events.KindPeakDetected:
			log.Infof("峰值: 波长=%.2fnm 强度=%.2f 半高宽=%.2f",
				ev.Peak.Wavelength, ev.Peak.Intensity, ev.Peak.FWHM)
			if mq != nil {
				if err := mq.PublishPeak(ctx, ev.Peak); err != nil {
					log.Errorf("发布峰值失败: %v", err)
				}
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	// 设置日志级别
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// 设置日志格式
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// 设置输出
	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("打开日志文件失败: %v, 使用标准输出", err)
		}
	}

	return log
}
