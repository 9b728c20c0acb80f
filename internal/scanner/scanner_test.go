package scanner

import (
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Silencehuliang/spectrometer-gui/internal/events"
	"github.com/Silencehuliang/spectrometer-gui/pkg/protocol"
)

const waitTimeout = 2 * time.Second

// fakeDevice 记录入队指令并可注入响应事件
type fakeDevice struct {
	mu       sync.Mutex
	cmds     []protocol.Command
	listener *events.Listener
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{listener: events.NewListener()}
}

func (f *fakeDevice) Enqueue(cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeDevice) Subscribe(buffer int) (chan events.Event, func()) {
	return f.listener.Subscribe(buffer)
}

func (f *fakeDevice) commands() []protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Command(nil), f.cmds...)
}

// pushIntensity 模拟设备返回一条光强响应
func (f *fakeDevice) pushIntensity(v float64) {
	f.listener.Broadcast(events.Event{
		Kind: events.KindResponse,
		Response: &protocol.Response{
			Valid:   true,
			Command: protocol.RespIntensity,
			Kind:    protocol.KindIntensity,
			Value:   v,
		},
	})
}

func (f *fakeDevice) pushSpectrum(values []float64) {
	f.listener.Broadcast(events.Event{
		Kind: events.KindResponse,
		Response: &protocol.Response{
			Valid:    true,
			Command:  protocol.RespSpectrum,
			Kind:     protocol.KindSpectrum,
			Spectrum: values,
		},
	})
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// waitFor 在限定时间内等待满足条件的事件
func waitFor(t *testing.T, ch chan events.Event, match func(events.Event) bool) events.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("等待事件超时")
		}
	}
}

func waitStopped(t *testing.T, ch chan events.Event) {
	t.Helper()
	waitFor(t, ch, func(ev events.Event) bool {
		return ev.Kind == events.KindScanState && ev.State == string(StateStopped)
	})
}

func singleConfig() Config {
	return Config{
		StartWavelength: 500,
		EndWavelength:   510,
		StepSize:        5,
		Mode:            ModeSingle,
	}
}

func TestSingleScanCommandOrder(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	ch, unsub := c.Subscribe(0)
	defer unsub()

	var progress []float64
	if err := c.Start(singleConfig()); err != nil {
		t.Fatalf("Start() err=%v", err)
	}

	deadline := time.After(waitTimeout)
	for stopped := false; !stopped; {
		select {
		case ev := <-ch:
			switch ev.Kind {
			case events.KindScanProgress:
				progress = append(progress, ev.Progress)
			case events.KindScanState:
				stopped = ev.State == string(StateStopped)
			}
		case <-deadline:
			t.Fatal("等待扫描结束超时")
		}
	}

	// 3个点 x (设置波长+读取光强)
	cmds := dev.commands()
	if len(cmds) != 6 {
		t.Fatalf("指令数量 = %d, 期望 6", len(cmds))
	}
	wantWL := []float64{500, 505, 510}
	for i, wl := range wantWL {
		set := cmds[i*2]
		read := cmds[i*2+1]
		if set.Type != protocol.CmdSetWavelength || set.Value != wl {
			t.Fatalf("第%d个设置指令 = %+v, 期望波长 %v", i, set, wl)
		}
		if read.Type != protocol.CmdReadIntensity {
			t.Fatalf("第%d个读取指令 = %+v", i, read)
		}
	}

	wantProgress := []float64{1.0 / 3, 2.0 / 3, 1}
	if len(progress) != len(wantProgress) {
		t.Fatalf("进度事件数量 = %d, 期望 %d", len(progress), len(wantProgress))
	}
	for i, want := range wantProgress {
		if math.Abs(progress[i]-want) > 1e-9 {
			t.Fatalf("progress[%d] = %v, 期望 %v", i, progress[i], want)
		}
	}

	if got := c.State(); got != StateStopped {
		t.Fatalf("State = %v, 期望 Stopped", got)
	}
}

func TestStartInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"起始不小于终止", Config{StartWavelength: 510, EndWavelength: 500, StepSize: 5, Mode: ModeSingle}},
		{"起始等于终止", Config{StartWavelength: 500, EndWavelength: 500, StepSize: 5, Mode: ModeSingle}},
		{"步长为0", Config{StartWavelength: 500, EndWavelength: 510, StepSize: 0, Mode: ModeSingle}},
		{"超出设备范围", Config{StartWavelength: 100, EndWavelength: 510, StepSize: 5, Mode: ModeSingle}},
		{"重复次数非法", Config{StartWavelength: 500, EndWavelength: 510, StepSize: 5, Mode: ModeRepeat}},
		{"自动间隔非法", Config{StartWavelength: 500, EndWavelength: 510, StepSize: 5, Mode: ModeAuto}},
		{"未知模式", Config{StartWavelength: 500, EndWavelength: 510, StepSize: 5, Mode: "bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			c := New(dev, testLogger())
			defer c.Close()

			err := c.Start(tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, 期望 ErrInvalidConfig", err)
			}
			if len(dev.commands()) != 0 {
				t.Fatalf("非法配置不应产生指令, 实际 %d 条", len(dev.commands()))
			}
		})
	}
}

func TestRepeatScan(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	ch, unsub := c.Subscribe(0)
	defer unsub()

	cfg := singleConfig()
	cfg.Mode = ModeRepeat
	cfg.RepeatCount = 2

	if err := c.Start(cfg); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	waitStopped(t, ch)

	// 两轮点循环
	if got := len(dev.commands()); got != 12 {
		t.Fatalf("指令数量 = %d, 期望 12", got)
	}
}

func TestAutoScanStop(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	ch, unsub := c.Subscribe(0)
	defer unsub()

	cfg := singleConfig()
	cfg.Mode = ModeAuto
	cfg.Interval = time.Hour // 不应等到第二轮

	if err := c.Start(cfg); err != nil {
		t.Fatalf("Start() err=%v", err)
	}

	// 第一轮结束（进度1.0）后控制器在等待下次触发
	waitFor(t, ch, func(ev events.Event) bool {
		return ev.Kind == events.KindScanProgress && ev.Progress == 1
	})

	c.Stop()
	waitStopped(t, ch)

	if got := len(dev.commands()); got != 6 {
		t.Fatalf("指令数量 = %d, 期望 6", got)
	}
	if got := c.State(); got != StateStopped {
		t.Fatalf("State = %v, 期望 Stopped", got)
	}
}

// 扫描进行中再次Start为无操作
func TestStartWhileScanningNoOp(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	ch, unsub := c.Subscribe(0)
	defer unsub()

	cfg := singleConfig()
	cfg.Mode = ModeAuto
	cfg.Interval = time.Hour

	if err := c.Start(cfg); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	waitFor(t, ch, func(ev events.Event) bool {
		return ev.Kind == events.KindScanProgress && ev.Progress == 1
	})

	if err := c.Start(cfg); err != nil {
		t.Fatalf("重复Start应为无操作, err=%v", err)
	}
	if got := len(dev.commands()); got != 6 {
		t.Fatalf("重复Start不应产生新指令, 实际 %d 条", got)
	}

	c.Stop()
	waitStopped(t, ch)
}

// 停止后立即重启：新扫描必须完整执行，不被上一轮goroutine的收尾取消
func TestStopThenRestart(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	ch, unsub := c.Subscribe(0)
	defer unsub()

	cfg := singleConfig()
	cfg.Mode = ModeAuto
	cfg.Interval = time.Hour

	if err := c.Start(cfg); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	waitFor(t, ch, func(ev events.Event) bool {
		return ev.Kind == events.KindScanProgress && ev.Progress == 1
	})

	// 不等待旧goroutine退出，立即重启
	c.Stop()
	if err := c.Start(singleConfig()); err != nil {
		t.Fatalf("重启 Start() err=%v", err)
	}

	// 第一个stopped来自被取消的auto扫描，第二个来自重启的single扫描
	waitStopped(t, ch)
	waitStopped(t, ch)

	if got := len(dev.commands()); got != 12 {
		t.Fatalf("重启后指令总数 = %d, 期望 12", got)
	}
	if got := c.State(); got != StateStopped {
		t.Fatalf("State = %v, 期望 Stopped", got)
	}
}

// 步长不整除区间时波长均匀分布，末点落在终止波长上
func TestBuildGridEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []float64
	}{
		{"整除", Config{StartWavelength: 500, EndWavelength: 510, StepSize: 5}, []float64{500, 505, 510}},
		{"不整除", Config{StartWavelength: 500, EndWavelength: 512, StepSize: 5}, []float64{500, 506, 512}},
		{"步长大于区间", Config{StartWavelength: 500, EndWavelength: 503, StepSize: 5}, []float64{500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildGrid(tt.cfg)
			if len(got) != len(tt.want) {
				t.Fatalf("点数 = %d, 期望 %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Fatalf("grid[%d] = %v, 期望 %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// Stop幂等：任何状态下调用后均为Stopped
func TestStopIdempotent(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	c.Stop()
	if got := c.State(); got != StateStopped {
		t.Fatalf("State = %v, 期望 Stopped", got)
	}
	c.Stop() // 第二次为无操作
	if got := c.State(); got != StateStopped {
		t.Fatalf("State = %v, 期望 Stopped", got)
	}
}

// 逐点光强聚合为完整扫描光谱
func TestIntensityAccumulation(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	ch, unsub := c.Subscribe(0)
	defer unsub()

	if err := c.Start(singleConfig()); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	waitStopped(t, ch)

	// 在途的读取在点循环结束后返回
	dev.pushIntensity(10)
	dev.pushIntensity(20)
	dev.pushIntensity(30)

	ev := waitFor(t, ch, func(ev events.Event) bool {
		return ev.Kind == events.KindScanCompleted
	})

	sp := ev.Spectrum
	wantWL := []float64{500, 505, 510}
	wantIn := []float64{10, 20, 30}
	if sp.Len() != 3 {
		t.Fatalf("采样点数 = %d, 期望 3", sp.Len())
	}
	for i := range wantWL {
		if sp.Wavelengths[i] != wantWL[i] || sp.Intensities[i] != wantIn[i] {
			t.Fatalf("光谱[%d] = (%v, %v), 期望 (%v, %v)",
				i, sp.Wavelengths[i], sp.Intensities[i], wantWL[i], wantIn[i])
		}
	}
}

// 整谱采集模式直接转发设备光谱，长度匹配时使用扫描网格作为波长轴
func TestSpectrumAcquisition(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	ch, unsub := c.Subscribe(0)
	defer unsub()

	cfg := singleConfig()
	cfg.Acquisition = AcquireSpectrum

	if err := c.Start(cfg); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	waitStopped(t, ch)

	dev.pushSpectrum([]float64{1, 2, 3})
	ev := waitFor(t, ch, func(ev events.Event) bool {
		return ev.Kind == events.KindScanCompleted
	})

	if ev.Spectrum.Wavelengths[0] != 500 || ev.Spectrum.Wavelengths[2] != 510 {
		t.Fatalf("波长轴 = %v, 期望扫描网格", ev.Spectrum.Wavelengths)
	}

	// 读取指令应为SPT?
	for _, cmd := range dev.commands() {
		if cmd.Type == protocol.CmdReadIntensity {
			t.Fatalf("整谱模式不应下发INT?指令")
		}
	}
}

// 光谱完成后按阈值检测峰值并广播
func TestPeakEvents(t *testing.T) {
	dev := newFakeDevice()
	c := New(dev, testLogger())
	defer c.Close()

	ch, unsub := c.Subscribe(0)
	defer unsub()

	cfg := Config{
		StartWavelength: 500,
		EndWavelength:   520,
		StepSize:        5,
		Mode:            ModeSingle,
		PeakThreshold:   0.1,
	}

	if err := c.Start(cfg); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	waitStopped(t, ch)

	for _, v := range []float64{0, 1, 5, 1, 0} {
		dev.pushIntensity(v)
	}

	ev := waitFor(t, ch, func(ev events.Event) bool {
		return ev.Kind == events.KindPeakDetected
	})
	if ev.Peak.Wavelength != 510 || ev.Peak.Intensity != 5 {
		t.Fatalf("峰值 = %+v, 期望波长510强度5", ev.Peak)
	}
}
