package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPTransport 网络型光谱仪链路实现
type TCPTransport struct {
	conn net.Conn

	mu    sync.Mutex
	lines lineBuffer
}

// DialTCP 建立到设备的TCP连接
func DialTCP(host string, port int, connectTimeout time.Duration) (*TCPTransport, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", addr, err)
	}
	return &TCPTransport{conn: conn}, nil
}

// newTCPTransport 从已建立的连接构造，供测试使用
func newTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn}
}

func (t *TCPTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := t.conn.Write(data); err != nil {
		return fmt.Errorf("发送数据失败: %w", err)
	}
	return nil
}

// ReadLine 在 timeout 内组装一个完整行，半包保留到下次调用
func (t *TCPTransport) ReadLine(timeout time.Duration) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 1024)

	for {
		if line, ok := t.lines.next(); ok {
			return line, nil
		}

		t.conn.SetReadDeadline(deadline)
		n, err := t.conn.Read(chunk)
		if n > 0 {
			t.lines.append(chunk[:n])
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// 截止前未凑齐完整行
				if line, ok := t.lines.next(); ok {
					return line, nil
				}
				return "", ErrTimeout
			}
			return "", fmt.Errorf("连接读取失败: %w", err)
		}
	}
}

func (t *TCPTransport) Close() error {
	return t.conn.Close()
}
