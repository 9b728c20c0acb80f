package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Silencehuliang/spectrometer-gui/internal/events"
	"github.com/Silencehuliang/spectrometer-gui/internal/monitor"
	"github.com/Silencehuliang/spectrometer-gui/internal/parser"
	"github.com/Silencehuliang/spectrometer-gui/internal/transport"
	"github.com/Silencehuliang/spectrometer-gui/pkg/protocol"
)

const (
	// 发送指令后等待响应的默认超时
	defaultReplyTimeout = 1 * time.Second

	// 主动推送数据的轮询超时，兼作循环让步
	pollTimeout = 20 * time.Millisecond
)

// ErrNotConnected 会话未连接时入队指令返回
var ErrNotConnected = errors.New("会话未连接")

type queuedCommand struct {
	cmd   protocol.CommandType
	frame []byte
}

// Session 设备通信会话
//
// 每个已打开的会话持有一条链路和一个后台goroutine：
// 指令按FIFO入队顺序发送，响应按读取顺序广播。
// 协议不提供请求/响应关联，严格配对依赖FIFO顺序。
// 链路故障终止循环并广播错误事件，须显式重新 Open，不做自动重连。
type Session struct {
	log    *logrus.Logger
	parser *parser.Parser
	events *events.Listener

	replyTimeout time.Duration

	mu        sync.Mutex
	tr        transport.Transport
	queue     []queuedCommand
	connected bool
	stopCh    chan struct{}
	done      chan struct{}
}

// New 创建会话，replyTimeout<=0 时使用默认值1秒
func New(log *logrus.Logger, replyTimeout time.Duration) *Session {
	if replyTimeout <= 0 {
		replyTimeout = defaultReplyTimeout
	}
	return &Session{
		log:          log,
		parser:       parser.NewParser(),
		events:       events.NewListener(),
		replyTimeout: replyTimeout,
	}
}

// Subscribe 订阅会话事件流
func (s *Session) Subscribe(buffer int) (chan events.Event, func()) {
	return s.events.Subscribe(buffer)
}

// Connected 返回会话连接状态
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Open 建立设备连接并启动收发循环
func (s *Session) Open(cfg transport.Config) error {
	tr, err := transport.Open(cfg)
	if err != nil {
		return fmt.Errorf("建立连接失败: %w", err)
	}
	if err := s.attach(tr); err != nil {
		tr.Close()
		return err
	}
	s.log.Infof("会话已建立: type=%s", cfg.Type)
	return nil
}

// attach 在已建立的链路上启动会话循环
func (s *Session) attach(tr transport.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return errors.New("会话已连接")
	}

	s.tr = tr
	s.queue = nil
	s.connected = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	monitor.SessionConnected.Set(1)
	go s.loop(tr, s.stopCh, s.done)

	s.events.Broadcast(events.Event{Kind: events.KindConnected})
	return nil
}

// Close 停止收发循环并关闭链路，等待循环退出
// 可重复调用
func (s *Session) Close() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
}

// Enqueue 校验并编码指令后加入发送队列
//
// 参数校验失败同步返回错误，不产生任何I/O。
// 队列无上限：持续入队快于设备应答会无限积压，
// 队列深度通过 spectrometer_queue_depth 指标暴露
func (s *Session) Enqueue(cmd protocol.Command) error {
	frame, err := cmd.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}
	s.queue = append(s.queue, queuedCommand{cmd: cmd.Type, frame: frame})
	monitor.QueueDepth.Set(float64(len(s.queue)))
	return nil
}

func (s *Session) dequeue() (queuedCommand, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return queuedCommand{}, false
	}
	q := s.queue[0]
	s.queue = s.queue[1:]
	monitor.QueueDepth.Set(float64(len(s.queue)))
	return q, true
}

// loop 收发循环，每个会话一个goroutine
// 链路超时不是错误，仅表示设备暂无回复；其他I/O错误终止循环
func (s *Session) loop(tr transport.Transport, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.teardown(tr)

	for {
		select {
		case <-stop:
			return
		default:
		}

		// 发送队头指令并在限定时间内等待一条响应
		if q, ok := s.dequeue(); ok {
			if err := tr.Write(q.frame); err != nil {
				s.fail(err)
				return
			}
			monitor.CommandsSent.WithLabelValues(string(q.cmd)).Inc()
			monitor.BytesWritten.Add(float64(len(q.frame)))
			s.log.Debugf("发送指令 [%s]: %q", q.cmd, q.frame)

			line, err := tr.ReadLine(s.replyTimeout)
			if err == nil {
				s.dispatch(line)
			} else if !errors.Is(err, transport.ErrTimeout) {
				s.fail(err)
				return
			}
			// 超时的指令直接丢弃，不重发，由调用方决定是否重试
		}

		// 轮询设备主动推送的数据
		line, err := tr.ReadLine(pollTimeout)
		if err == nil {
			s.dispatch(line)
		} else if !errors.Is(err, transport.ErrTimeout) {
			s.fail(err)
			return
		}
	}
}

// dispatch 解析一行响应并广播
func (s *Session) dispatch(line string) {
	if line == "" {
		return
	}
	monitor.BytesRead.Add(float64(len(line)))

	resp := s.parser.Parse(line)
	if resp.Valid {
		monitor.ResponsesReceived.WithLabelValues(resp.Command).Inc()
		s.log.Debugf("收到响应 [%s]: %q", resp.Command, line)
	} else {
		monitor.ProtocolErrors.Inc()
		s.log.Warnf("响应解析失败: %s, 数据: %q", resp.Err, line)
	}

	s.events.Broadcast(events.Event{Kind: events.KindResponse, Response: resp})
}

// fail 链路级故障：广播错误事件，循环随后退出
func (s *Session) fail(err error) {
	monitor.IOErrors.Inc()
	s.log.Errorf("链路故障: %v", err)
	s.events.Broadcast(events.Event{Kind: events.KindError, Err: err.Error()})
}

// teardown 循环退出时的清理：关闭链路并转入断开状态
func (s *Session) teardown(tr transport.Transport) {
	tr.Close()

	s.mu.Lock()
	s.connected = false
	s.queue = nil
	s.mu.Unlock()

	monitor.SessionConnected.Set(0)
	monitor.QueueDepth.Set(0)
	s.events.Broadcast(events.Event{Kind: events.KindDisconnected})
	s.log.Info("会话已关闭")
}
