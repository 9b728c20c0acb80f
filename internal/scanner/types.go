package scanner

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Silencehuliang/spectrometer-gui/pkg/protocol"
)

// Mode 扫描模式
type Mode string

const (
	ModeSingle Mode = "single" // 单次扫描
	ModeRepeat Mode = "repeat" // 重复扫描
	ModeAuto   Mode = "auto"   // 自动扫描，按间隔重复直到手动停止
)

// Acquisition 采集方式
type Acquisition string

const (
	AcquireIntensity Acquisition = "intensity" // 逐点读取光强，聚合为扫描光谱
	AcquireSpectrum  Acquisition = "spectrum"  // 逐点读取设备整谱
)

// State 扫描状态
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateStopped  State = "stopped"
)

// ErrInvalidConfig 扫描配置非法，拒绝时不产生任何指令
var ErrInvalidConfig = errors.New("扫描配置非法")

// Config 扫描配置，一次扫描运行期间不可变
type Config struct {
	StartWavelength float64
	EndWavelength   float64
	StepSize        float64
	Mode            Mode
	RepeatCount     int           // 仅 repeat 模式有效
	Interval        time.Duration // 仅 auto 模式有效
	Acquisition     Acquisition   // 默认 intensity
	PeakThreshold   float64       // >0 时对完成的光谱执行峰值检测
}

// Validate 校验扫描配置
func (c Config) Validate() error {
	if math.IsNaN(c.StartWavelength) || math.IsNaN(c.EndWavelength) ||
		math.IsInf(c.StartWavelength, 0) || math.IsInf(c.EndWavelength, 0) {
		return fmt.Errorf("%w: 波长必须为有限数值", ErrInvalidConfig)
	}
	if c.StartWavelength >= c.EndWavelength {
		return fmt.Errorf("%w: 起始波长 %g 必须小于终止波长 %g",
			ErrInvalidConfig, c.StartWavelength, c.EndWavelength)
	}
	if c.StartWavelength < protocol.MinWavelength || c.EndWavelength > protocol.MaxWavelength {
		return fmt.Errorf("%w: 波长范围 [%g, %g] 超出设备有效范围 [%g, %g]",
			ErrInvalidConfig, c.StartWavelength, c.EndWavelength,
			protocol.MinWavelength, protocol.MaxWavelength)
	}
	if c.StepSize <= 0 || math.IsNaN(c.StepSize) || math.IsInf(c.StepSize, 0) {
		return fmt.Errorf("%w: 步长必须大于0", ErrInvalidConfig)
	}

	switch c.Mode {
	case ModeSingle:
	case ModeRepeat:
		if c.RepeatCount < 1 {
			return fmt.Errorf("%w: 重复次数必须不小于1", ErrInvalidConfig)
		}
	case ModeAuto:
		if c.Interval <= 0 {
			return fmt.Errorf("%w: 自动扫描间隔必须大于0", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: 未知扫描模式 %q", ErrInvalidConfig, c.Mode)
	}

	switch c.Acquisition {
	case "", AcquireIntensity, AcquireSpectrum:
	default:
		return fmt.Errorf("%w: 未知采集方式 %q", ErrInvalidConfig, c.Acquisition)
	}
	return nil
}

// acquisition 采集方式，默认逐点光强
func (c Config) acquisition() Acquisition {
	if c.Acquisition == "" {
		return AcquireIntensity
	}
	return c.Acquisition
}

// buildGrid 生成波长序列: numPoints = floor((end-start)/step) + 1
// 点在 [start, end] 上均匀分布，末点落在终止波长上；
// 步长不整除区间时实际间隔大于配置步长
func buildGrid(c Config) []float64 {
	numPoints := int(math.Floor((c.EndWavelength-c.StartWavelength)/c.StepSize)) + 1
	grid := make([]float64, numPoints)
	if numPoints == 1 {
		grid[0] = c.StartWavelength
		return grid
	}
	spacing := (c.EndWavelength - c.StartWavelength) / float64(numPoints-1)
	for i := range grid {
		grid[i] = c.StartWavelength + float64(i)*spacing
	}
	grid[numPoints-1] = c.EndWavelength
	return grid
}
