package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Silencehuliang/spectrometer-gui/pkg/protocol"
)

// Parser 设备响应解析器
// 解析失败一律返回 Valid=false 的 Response，不向上抛错，
// 单条响应解析失败不影响后续响应
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse 解析一行设备响应
// 帧格式: $<payload>*<CC>\r\n
func (p *Parser) Parse(line string) *protocol.Response {
	line = strings.TrimRight(line, "\r\n")

	if len(line) == 0 || line[0] != protocol.FrameStart {
		return invalid("帧格式错误: 缺少起始符 $")
	}

	star := strings.LastIndexByte(line, protocol.ChecksumMarker)
	if star < 0 {
		return invalid("帧格式错误: 缺少校验和分隔符 *")
	}

	payload := line[1:star]
	checksum := line[star+1:]

	if len(checksum) != 2 {
		return invalid(fmt.Sprintf("校验和长度错误: %q", checksum))
	}
	want, err := strconv.ParseUint(checksum, 16, 8)
	if err != nil {
		return invalid(fmt.Sprintf("校验和不是十六进制: %q", checksum))
	}
	if got := protocol.Checksum(payload); got != byte(want) {
		return invalid(fmt.Sprintf("校验和不匹配: 期望 %02X, 实际 %02X", want, got))
	}

	return p.parsePayload(payload)
}

// parsePayload 根据指令标签解析负载数据
func (p *Parser) parsePayload(payload string) *protocol.Response {
	cmd, data, _ := strings.Cut(payload, " ")

	resp := &protocol.Response{Valid: true, Command: cmd}

	switch cmd {
	case protocol.RespWavelength, protocol.RespIntegration, protocol.RespAverage:
		v, err := parseNumber(data)
		if err != nil {
			return invalid(fmt.Sprintf("%s 数值解析失败: %q", cmd, data))
		}
		resp.Kind = protocol.KindScalar
		resp.Value = v

	case protocol.RespSpectrum:
		values, err := parseSpectrum(data)
		if err != nil {
			return invalid(fmt.Sprintf("SPT 光谱数据解析失败: %v", err))
		}
		resp.Kind = protocol.KindSpectrum
		resp.Spectrum = values

	case protocol.RespIntensity:
		v, err := strconv.ParseFloat(data, 64)
		if err != nil {
			return invalid(fmt.Sprintf("INT 强度解析失败: %q", data))
		}
		resp.Kind = protocol.KindIntensity
		resp.Value = v

	case protocol.RespStatus:
		code, err := strconv.ParseUint(data, 16, 32)
		if err != nil {
			return invalid(fmt.Sprintf("STAT 状态码解析失败: %q", data))
		}
		resp.Kind = protocol.KindStatus
		resp.Status = protocol.StatusFlags{
			Ready:       code&protocol.StatusBitReady != 0,
			Error:       code&protocol.StatusBitError != 0,
			Calibrating: code&protocol.StatusBitCalibrating != 0,
			Measuring:   code&protocol.StatusBitMeasuring != 0,
		}

	case protocol.RespVersion:
		resp.Kind = protocol.KindVersion
		resp.Version = strings.TrimSpace(data)

	case protocol.RespCalibration:
		resp.Kind = protocol.KindCalibration
		resp.CalOK = data == "OK"

	default:
		// 格式正确但指令未知的帧不视为错误，保留原始负载
		resp.Kind = protocol.KindRaw
		resp.Raw = payload
	}

	return resp
}

// parseNumber 设备协议约定：含小数点按浮点解析，否则按整数解析
func parseNumber(data string) (float64, error) {
	if strings.Contains(data, ".") {
		return strconv.ParseFloat(data, 64)
	}
	n, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

// parseSpectrum 解析逗号分隔的光谱数组
func parseSpectrum(data string) ([]float64, error) {
	if data == "" {
		return nil, fmt.Errorf("数据为空")
	}
	fields := strings.Split(data, ",")
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("非法数值 %q", f)
		}
		values = append(values, v)
	}
	return values, nil
}

func invalid(reason string) *protocol.Response {
	return &protocol.Response{Valid: false, Err: reason}
}
