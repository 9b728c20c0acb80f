package transport

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout 读取超时，表示暂无数据，不是链路故障
var ErrTimeout = errors.New("读取超时")

// 接口类型
const (
	TypeSerial = "serial"
	TypeTCP    = "tcp"
)

// 默认连接参数
const (
	DefaultBaudRate       = 9600
	DefaultTCPPort        = 5000
	DefaultConnectTimeout = 3 * time.Second
)

// Transport 设备字节流抽象
// 核心只依赖该接口，不关心底层是串口还是网络
type Transport interface {
	// Write 写入完整帧
	Write(data []byte) error

	// ReadLine 在 timeout 内读取一行（以 \n 结尾，返回值不含行尾）
	// 超时返回 ErrTimeout，其他错误视为链路故障
	ReadLine(timeout time.Duration) (string, error)

	Close() error
}

// Config 连接参数
type Config struct {
	Type string // serial 或 tcp

	// 串口参数
	Port     string
	BaudRate int

	// TCP参数
	Host           string
	TCPPort        int
	ConnectTimeout time.Duration
}

// Open 根据配置建立设备连接
func Open(cfg Config) (Transport, error) {
	switch cfg.Type {
	case TypeSerial:
		baud := cfg.BaudRate
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		return OpenSerial(cfg.Port, baud)
	case TypeTCP:
		port := cfg.TCPPort
		if port <= 0 {
			port = DefaultTCPPort
		}
		timeout := cfg.ConnectTimeout
		if timeout <= 0 {
			timeout = DefaultConnectTimeout
		}
		return DialTCP(cfg.Host, port, timeout)
	default:
		return nil, fmt.Errorf("未知接口类型: %q", cfg.Type)
	}
}

// lineBuffer 按 \n 切分增量字节流
// 半包保留在缓冲区，等待后续读取补齐
type lineBuffer struct {
	buf bytes.Buffer
}

func (lb *lineBuffer) append(p []byte) {
	lb.buf.Write(p)
}

// next 取出一个完整行（不含行尾 \r\n），无完整行时 ok=false
func (lb *lineBuffer) next() (string, bool) {
	data := lb.buf.Bytes()
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", false
	}
	line := string(data[:i])
	lb.buf.Next(i + 1)
	return strings.TrimRight(line, "\r"), true
}
