package protocol

import (
	"fmt"
	"math"
	"strconv"
)

// commandSet 指令集定义，与 AE8600 协议文档一致
// %s 为参数占位符，无占位符的指令不带参数
var commandSet = map[CommandType]string{
	CmdSetWavelength:   "WL %s",      // 设置波长，范围200-1000nm
	CmdReadWavelength:  "WL?",        // 读取当前波长
	CmdReadSpectrum:    "SPT?",       // 读取光谱数据
	CmdReadIntensity:   "INT?",       // 读取光强度
	CmdSetIntegration:  "INTTIME %s", // 设置积分时间，范围1-65535ms
	CmdReadIntegration: "INTTIME?",   // 读取积分时间
	CmdCalibration:     "CAL %s",     // 校准，mode: DARK=暗校准, REF=参考校准
	CmdGetStatus:       "STAT?",      // 读取设备状态
	CmdSetAverage:      "AVG %s",     // 设置平均次数，范围1-100
	CmdReadAverage:     "AVG?",       // 读取平均次数
	CmdResetDevice:     "RST",        // 设备复位
	CmdGetVersion:      "VER?",       // 读取固件版本
}

// ParameterError 指令参数不满足协议约束
type ParameterError struct {
	Command CommandType
	Reason  string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("指令 %s 参数非法: %s", e.Command, e.Reason)
}

// Checksum 计算负载校验和：字节值累加 mod 256
func Checksum(payload string) byte {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return sum
}

// WrapFrame 将负载封装为完整帧 $<payload>*<CC>\r\n
// 校验和固定由负载字节重新计算
func WrapFrame(payload string) []byte {
	return []byte(fmt.Sprintf("%c%s%c%02X%s",
		FrameStart, payload, ChecksumMarker, Checksum(payload), FrameEnd))
}

// Encode 校验参数并构造带校验和的完整指令帧
func (c Command) Encode() ([]byte, error) {
	payload, err := c.Payload()
	if err != nil {
		return nil, err
	}
	return WrapFrame(payload), nil
}

// Payload 构造帧负载（不含定界符与校验和）
func (c Command) Payload() (string, error) {
	template, ok := commandSet[c.Type]
	if !ok {
		return "", &ParameterError{Command: c.Type, Reason: "未知指令类型"}
	}

	switch c.Type {
	case CmdSetWavelength:
		if err := c.checkRange(MinWavelength, MaxWavelength, "波长"); err != nil {
			return "", err
		}
		return fmt.Sprintf(template, formatNumber(c.Value)), nil

	case CmdSetIntegration:
		if err := c.checkRange(MinIntegration, MaxIntegration, "积分时间"); err != nil {
			return "", err
		}
		return fmt.Sprintf(template, formatNumber(c.Value)), nil

	case CmdSetAverage:
		if err := c.checkRange(MinAverage, MaxAverage, "平均次数"); err != nil {
			return "", err
		}
		return fmt.Sprintf(template, formatNumber(c.Value)), nil

	case CmdCalibration:
		if c.Mode != CalibrationDark && c.Mode != CalibrationRef {
			return "", &ParameterError{
				Command: c.Type,
				Reason:  fmt.Sprintf("校准模式必须为 %s 或 %s", CalibrationDark, CalibrationRef),
			}
		}
		return fmt.Sprintf(template, c.Mode), nil

	default:
		// 查询类指令不带参数
		return template, nil
	}
}

func (c Command) checkRange(min, max float64, name string) error {
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return &ParameterError{Command: c.Type, Reason: name + "必须为有限数值"}
	}
	if c.Value < min || c.Value > max {
		return &ParameterError{
			Command: c.Type,
			Reason:  fmt.Sprintf("%s %s 超出范围 [%s, %s]", name, formatNumber(c.Value), formatNumber(min), formatNumber(max)),
		}
	}
	return nil
}

// formatNumber 数值的最短十进制表示，整数值不带小数点
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
