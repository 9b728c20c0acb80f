package events

import (
	"sync"

	"github.com/Silencehuliang/spectrometer-gui/pkg/protocol"
	"github.com/Silencehuliang/spectrometer-gui/pkg/spectrum"
)

// Kind 事件类型
type Kind int

const (
	KindConnected     Kind = iota // 链路已建立
	KindDisconnected              // 链路已关闭
	KindResponse                  // 设备响应（含解析失败的无效响应）
	KindError                     // 链路级故障，会话已终止
	KindScanState                 // 扫描状态变化
	KindScanProgress              // 扫描进度
	KindScanCompleted             // 一次扫描完成，携带光谱
	KindPeakDetected              // 峰值检测结果
)

// Event 总线事件，按 Kind 取对应字段
type Event struct {
	Kind Kind

	Response *protocol.Response     // KindResponse
	Err      string                 // KindError
	State    string                 // KindScanState
	Progress float64                // KindScanProgress, 0.0-1.0
	Spectrum *spectrum.SpectrumData // KindScanCompleted
	Peak     *spectrum.PeakData     // KindPeakDetected
}

const defaultBuffer = 100

// Listener 管理事件订阅和广播
// 事件按广播顺序送达每个订阅者（FIFO）
type Listener struct {
	pool map[chan Event]struct{}
	sync.RWMutex
}

func NewListener() *Listener {
	return &Listener{pool: make(map[chan Event]struct{})}
}

// Broadcast 非阻塞地向所有订阅者发送事件
// 订阅者通道已满时跳过该订阅者
func (el *Listener) Broadcast(ev Event) {
	el.RLock()
	defer el.RUnlock()

	for ch := range el.pool {
		select {
		case ch <- ev:
		default:
			// 通道已满，跳过
		}
	}
}

// Subscribe 创建一个新的订阅通道
// 返回接收事件的通道和取消订阅的函数
func (el *Listener) Subscribe(buffer int) (chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	el.Lock()
	el.pool[ch] = struct{}{}
	el.Unlock()

	return ch, func() {
		el.Lock()
		defer el.Unlock()
		if _, ok := el.pool[ch]; ok {
			delete(el.pool, ch)
			close(ch)
		}
	}
}
