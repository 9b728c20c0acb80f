package protocol

// CommandType 指令类型
type CommandType string

const (
	CmdSetWavelength   CommandType = "set_wavelength"
	CmdReadWavelength  CommandType = "read_wavelength"
	CmdReadSpectrum    CommandType = "read_spectrum"
	CmdReadIntensity   CommandType = "read_intensity"
	CmdSetIntegration  CommandType = "set_integration"
	CmdReadIntegration CommandType = "read_integration"
	CmdCalibration     CommandType = "calibration"
	CmdGetStatus       CommandType = "get_status"
	CmdSetAverage      CommandType = "set_average"
	CmdReadAverage     CommandType = "read_average"
	CmdResetDevice     CommandType = "reset_device"
	CmdGetVersion      CommandType = "get_version"
)

// Command 待编码的设备指令
type Command struct {
	Type  CommandType
	Value float64 // WL/INTTIME/AVG 设置类指令的数值参数
	Mode  string  // CAL 指令的校准模式
}

// 协议常量
const (
	// 帧定界符
	FrameStart     = '$'
	ChecksumMarker = '*'
	FrameEnd       = "\r\n"

	// 校准模式
	CalibrationDark = "DARK" // 暗校准
	CalibrationRef  = "REF"  // 参考校准

	// 参数范围
	MinWavelength  = 200.0 // nm
	MaxWavelength  = 1000.0
	MinIntegration = 1 // ms
	MaxIntegration = 65535
	MinAverage     = 1
	MaxAverage     = 100

	// STAT 状态位
	StatusBitReady       = 0x01
	StatusBitError       = 0x02
	StatusBitCalibrating = 0x04
	StatusBitMeasuring   = 0x08
)

// 响应指令标签
const (
	RespWavelength  = "WL"
	RespSpectrum    = "SPT"
	RespIntensity   = "INT"
	RespIntegration = "INTTIME"
	RespCalibration = "CAL"
	RespStatus      = "STAT"
	RespAverage     = "AVG"
	RespVersion     = "VER"
)

// ResponseKind 响应数据类别
type ResponseKind int

const (
	KindInvalid     ResponseKind = iota
	KindScalar                   // WL/INTTIME/AVG
	KindSpectrum                 // SPT
	KindIntensity                // INT
	KindStatus                   // STAT
	KindVersion                  // VER
	KindCalibration              // CAL
	KindRaw                      // 格式正确但指令未知
)

// StatusFlags STAT 位掩码解码结果
type StatusFlags struct {
	Ready       bool `json:"ready"`
	Error       bool `json:"error"`
	Calibrating bool `json:"calibrating"`
	Measuring   bool `json:"measuring"`
}

// Response 设备响应解析结果
// Valid=false 时只有 Err 有效，部分解析的数据不会外泄
type Response struct {
	Valid   bool
	Command string // 响应指令标签，如 WL/SPT/STAT
	Kind    ResponseKind

	Value    float64   // KindScalar/KindIntensity
	Spectrum []float64 // KindSpectrum
	Status   StatusFlags
	Version  string
	CalOK    bool   // KindCalibration
	Raw      string // KindRaw 时的原始负载

	Err string // Valid=false 时的失败原因
}
