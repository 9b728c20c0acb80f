package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// 底层串口单次读取的轮询超时，ReadLine 在此之上实现总超时
const serialPollTimeout = 50 * time.Millisecond

// SerialTransport 串口链路实现
type SerialTransport struct {
	port *serial.Port

	mu    sync.Mutex
	lines lineBuffer
}

// OpenSerial 打开串口
func OpenSerial(name string, baudRate int) (*SerialTransport, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baudRate,
		ReadTimeout: serialPollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("打开串口 %s 失败: %w", name, err)
	}
	return &SerialTransport{port: port}, nil
}

func (t *SerialTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.port.Write(data); err != nil {
		return fmt.Errorf("串口写入失败: %w", err)
	}
	return nil
}

// ReadLine 在 timeout 内组装一个完整行
// 串口以 serialPollTimeout 为步长轮询，半包保留到下次调用
func (t *SerialTransport) ReadLine(timeout time.Duration) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 256)

	for {
		if line, ok := t.lines.next(); ok {
			return line, nil
		}
		if !time.Now().Before(deadline) {
			return "", ErrTimeout
		}

		n, err := t.port.Read(chunk)
		if n > 0 {
			t.lines.append(chunk[:n])
			continue
		}
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("串口读取失败: %w", err)
		}
		// n==0 且无错误表示本次轮询超时，继续等待
	}
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}
