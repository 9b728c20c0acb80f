package scanner

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Silencehuliang/spectrometer-gui/internal/analysis"
	"github.com/Silencehuliang/spectrometer-gui/internal/events"
	"github.com/Silencehuliang/spectrometer-gui/internal/monitor"
	"github.com/Silencehuliang/spectrometer-gui/pkg/protocol"
	"github.com/Silencehuliang/spectrometer-gui/pkg/spectrum"
)

// Device 控制器依赖的会话能力
// 只依赖指令入队与事件订阅，便于注入与测试
type Device interface {
	Enqueue(cmd protocol.Command) error
	Subscribe(buffer int) (chan events.Event, func())
}

// Controller 波长扫描控制器
//
// 扫描状态仅由控制器自身转换，外部只通过事件观察。
// 逐点下发 设置波长+读取 指令对，进度在每对指令下发后广播，
// 取消在点边界生效，不打断已下发的指令
type Controller struct {
	device Device
	log    *logrus.Logger
	events *events.Listener

	mu               sync.Mutex
	state            State
	cfg              Config
	scanning         bool
	capturing        bool // 有未完成的采集批次，响应继续聚合（即使点循环已结束）
	repeatsCompleted int
	pointsEmitted    int
	grid             []float64
	collected        []float64
	stopCh           chan struct{}
	done             chan struct{} // 扫描goroutine退出后关闭

	unsubscribe func()
}

// New 创建扫描控制器并开始消费会话事件
func New(device Device, log *logrus.Logger) *Controller {
	c := &Controller{
		device: device,
		log:    log,
		events: events.NewListener(),
		state:  StateIdle,
	}

	ch, unsubscribe := device.Subscribe(0)
	c.unsubscribe = unsubscribe
	go c.consume(ch)

	return c
}

// Subscribe 订阅扫描事件流
func (c *Controller) Subscribe(buffer int) (chan events.Event, func()) {
	return c.events.Subscribe(buffer)
}

// State 当前扫描状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start 启动扫描
// 配置非法时同步拒绝，不产生任何指令；
// 已在扫描中时为无操作（与设备端原有行为一致）
func (c *Controller) Start(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		c.log.Warn("扫描已在进行中，忽略本次启动")
		return nil
	}
	prev := c.done
	c.mu.Unlock()

	// 等待上一轮扫描goroutine完全退出，其收尾不得覆盖新扫描的状态
	if prev != nil {
		<-prev
	}

	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		c.log.Warn("扫描已在进行中，忽略本次启动")
		return nil
	}
	c.cfg = cfg
	c.scanning = true
	c.state = StateScanning
	c.repeatsCompleted = 0
	c.pointsEmitted = 0
	c.grid = buildGrid(cfg)
	c.collected = nil
	c.capturing = false
	stopCh := make(chan struct{})
	done := make(chan struct{})
	c.stopCh = stopCh
	c.done = done
	numPoints := len(c.grid)
	c.mu.Unlock()

	monitor.ScansStarted.Inc()
	c.log.Infof("启动扫描: %g-%gnm 步长=%g 模式=%s 点数=%d",
		cfg.StartWavelength, cfg.EndWavelength, cfg.StepSize, cfg.Mode, numPoints)
	c.events.Broadcast(events.Event{Kind: events.KindScanState, State: string(StateScanning)})

	go c.run(cfg, stopCh, done)
	return nil
}

// Stop 停止扫描并取消未下发的剩余点
// 幂等，任何状态下调用后状态均为 Stopped
func (c *Controller) Stop() {
	c.mu.Lock()
	wasScanning := c.scanning
	alreadyStopped := c.state == StateStopped
	c.scanning = false
	c.state = StateStopped
	var stopCh chan struct{}
	if wasScanning {
		stopCh = c.stopCh
	}
	c.mu.Unlock()

	if stopCh != nil {
		// 取消自动扫描的待触发定时及点循环
		close(stopCh)
		return // 状态事件由扫描goroutine结束时广播
	}
	if !alreadyStopped {
		c.events.Broadcast(events.Event{Kind: events.KindScanState, State: string(StateStopped)})
	}
}

// Close 停止扫描并退出事件消费
func (c *Controller) Close() {
	c.Stop()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// run 扫描主循环：执行点循环后按模式分派
// cfg与stopCh随goroutine启动传入，后续Start不影响本轮
func (c *Controller) run(cfg Config, stop chan struct{}, done chan struct{}) {
	started := time.Now()
	defer close(done)
	defer c.finish(started)

	var ticker *time.Ticker
	if cfg.Mode == ModeAuto {
		ticker = time.NewTicker(cfg.Interval)
		defer ticker.Stop()
	}

	for {
		c.runPointLoop(cfg)

		switch cfg.Mode {
		case ModeSingle:
			return

		case ModeRepeat:
			c.mu.Lock()
			c.repeatsCompleted++
			finished := c.repeatsCompleted >= cfg.RepeatCount || !c.scanning
			c.mu.Unlock()
			if finished {
				return
			}

		case ModeAuto:
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
			if c.cancelled() {
				return
			}
		}
	}
}

// runPointLoop 执行一轮点循环
// 每个点依次下发 设置波长+读取 指令对并广播进度
func (c *Controller) runPointLoop(cfg Config) {
	c.mu.Lock()
	grid := c.grid
	c.collected = nil
	c.pointsEmitted = 0
	c.capturing = true
	c.mu.Unlock()

	readCmd := protocol.CmdReadIntensity
	if cfg.acquisition() == AcquireSpectrum {
		readCmd = protocol.CmdReadSpectrum
	}

	total := len(grid)
	for i, wl := range grid {
		// 取消在点边界生效
		if c.cancelled() {
			return
		}

		if err := c.device.Enqueue(protocol.Command{Type: protocol.CmdSetWavelength, Value: wl}); err != nil {
			c.log.Errorf("下发设置波长指令失败: %v", err)
			c.cancel()
			return
		}
		if err := c.device.Enqueue(protocol.Command{Type: readCmd}); err != nil {
			c.log.Errorf("下发读取指令失败: %v", err)
			c.cancel()
			return
		}

		c.mu.Lock()
		c.pointsEmitted = i + 1
		c.mu.Unlock()

		c.events.Broadcast(events.Event{
			Kind:     events.KindScanProgress,
			Progress: float64(i+1) / float64(total),
		})
	}
}

// consume 消费会话事件，扫描期间聚合采集数据
func (c *Controller) consume(ch chan events.Event) {
	for ev := range ch {
		if ev.Kind == events.KindResponse && ev.Response != nil && ev.Response.Valid {
			c.handleResponse(ev.Response)
		}
	}
}

// handleResponse 处理扫描驱动的响应
// 点循环结束后（单次模式已转入Stopped）在途的读取仍继续聚合，
// 直到凑满本批次的采样点数
func (c *Controller) handleResponse(resp *protocol.Response) {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	acquisition := c.cfg.acquisition()
	threshold := c.cfg.PeakThreshold
	grid := c.grid

	switch {
	case acquisition == AcquireIntensity && resp.Kind == protocol.KindIntensity:
		c.collected = append(c.collected, resp.Value)
		if len(c.collected) < len(grid) {
			c.mu.Unlock()
			return
		}
		sp := &spectrum.SpectrumData{
			Wavelengths: append([]float64(nil), grid...),
			Intensities: append([]float64(nil), c.collected...),
			Timestamp:   time.Now(),
		}
		c.collected = nil
		c.capturing = false
		c.mu.Unlock()
		c.emitSpectrum(sp, threshold)

	case acquisition == AcquireSpectrum && resp.Kind == protocol.KindSpectrum:
		// 设备不传波长轴：长度与扫描网格一致时使用网格，否则按采样序号
		wavelengths := make([]float64, len(resp.Spectrum))
		if len(resp.Spectrum) == len(grid) {
			copy(wavelengths, grid)
		} else {
			for i := range wavelengths {
				wavelengths[i] = float64(i)
			}
		}
		sp := &spectrum.SpectrumData{
			Wavelengths: wavelengths,
			Intensities: append([]float64(nil), resp.Spectrum...),
			Timestamp:   time.Now(),
		}
		c.mu.Unlock()
		c.emitSpectrum(sp, threshold)

	default:
		c.mu.Unlock()
	}
}

// emitSpectrum 广播完成的光谱，按需执行峰值检测
func (c *Controller) emitSpectrum(sp *spectrum.SpectrumData, peakThreshold float64) {
	c.events.Broadcast(events.Event{Kind: events.KindScanCompleted, Spectrum: sp})
	c.log.Infof("扫描光谱完成: %d 个采样点", sp.Len())

	if peakThreshold <= 0 {
		return
	}
	for i, peak := range analysis.DetectPeaks(sp, peakThreshold) {
		monitor.PeaksDetected.Inc()
		p := peak
		c.events.Broadcast(events.Event{Kind: events.KindPeakDetected, Peak: &p})
		c.log.Debugf("检测到峰值 #%d: 波长=%.2fnm 强度=%.2f 半高宽=%.2f",
			i+1, peak.Wavelength, peak.Intensity, peak.FWHM)
	}
}

func (c *Controller) cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.scanning
}

// cancel 会话不可用时从扫描goroutine内部取消
func (c *Controller) cancel() {
	c.mu.Lock()
	c.scanning = false
	c.mu.Unlock()
}

// finish 扫描goroutine结束时的收尾
func (c *Controller) finish(started time.Time) {
	c.mu.Lock()
	c.scanning = false
	c.state = StateStopped
	c.mu.Unlock()

	monitor.ScansCompleted.Inc()
	monitor.ScanDuration.Observe(time.Since(started).Seconds())
	c.events.Broadcast(events.Event{Kind: events.KindScanState, State: string(StateStopped)})
	c.log.Info("扫描结束")
}
