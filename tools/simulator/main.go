package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/Silencehuliang/spectrometer-gui/pkg/protocol"
)

// 模拟光谱仪设备端，监听TCP并应答完整指令集，用于联调
// 光谱为532nm处的高斯峰加随机噪声

var (
	peakCenter = flag.Float64("peak", 532.0, "高斯峰中心波长(nm)")
	peakWidth  = flag.Float64("sigma", 10.0, "高斯峰标准差(nm)")
	amplitude  = flag.Float64("amp", 1000.0, "峰值强度")
	noise      = flag.Float64("noise", 5.0, "噪声幅度")
)

type deviceState struct {
	mu          sync.Mutex
	wavelength  float64
	integration float64
	average     float64
}

func main() {
	addr := flag.String("addr", ":5000", "监听地址")
	flag.Parse()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("监听失败: %v", err)
	}
	log.Printf("模拟设备启动: %s", *addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("接受连接错误: %v", err)
			continue
		}
		log.Printf("新连接: %s", conn.RemoteAddr())
		go handleConnection(conn)
	}
}

func handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		log.Printf("连接关闭: %s", conn.RemoteAddr())
	}()

	state := &deviceState{wavelength: 500, integration: 100, average: 1}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		payload, ok := unwrap(line)
		if !ok {
			log.Printf("坏帧: %q", line)
			continue
		}

		reply := state.handle(payload)
		if reply == "" {
			continue // RST 等无响应指令
		}
		if _, err := conn.Write(protocol.WrapFrame(reply)); err != nil {
			log.Printf("发送响应失败: %v", err)
			return
		}
	}
}

// unwrap 校验帧格式与校验和，返回负载
func unwrap(line string) (string, bool) {
	if len(line) < 4 || line[0] != protocol.FrameStart {
		return "", false
	}
	star := strings.LastIndexByte(line, protocol.ChecksumMarker)
	if star < 0 {
		return "", false
	}
	payload := line[1:star]
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil || protocol.Checksum(payload) != byte(want) {
		return "", false
	}
	return payload, true
}

// handle 按指令生成响应负载
func (d *deviceState) handle(payload string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd, arg, _ := strings.Cut(payload, " ")

	switch cmd {
	case "WL":
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			d.wavelength = v
		}
		return fmt.Sprintf("WL %s", arg)
	case "WL?":
		return fmt.Sprintf("WL %s", formatNumber(d.wavelength))
	case "INT?":
		return fmt.Sprintf("INT %.2f", d.intensityAt(d.wavelength))
	case "SPT?":
		return "SPT " + d.spectrum()
	case "INTTIME":
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			d.integration = v
		}
		return fmt.Sprintf("INTTIME %s", arg)
	case "INTTIME?":
		return fmt.Sprintf("INTTIME %s", formatNumber(d.integration))
	case "AVG":
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			d.average = v
		}
		return fmt.Sprintf("AVG %s", arg)
	case "AVG?":
		return fmt.Sprintf("AVG %s", formatNumber(d.average))
	case "CAL":
		if arg == protocol.CalibrationDark || arg == protocol.CalibrationRef {
			return "CAL OK"
		}
		return "CAL ERR"
	case "STAT?":
		return fmt.Sprintf("STAT %02X", protocol.StatusBitReady)
	case "VER?":
		return "VER SIM-1.0.0"
	case "RST":
		d.wavelength, d.integration, d.average = 500, 100, 1
		return ""
	default:
		log.Printf("未知指令: %q", payload)
		return ""
	}
}

// intensityAt 指定波长处的模拟强度
func (d *deviceState) intensityAt(wl float64) float64 {
	delta := wl - *peakCenter
	v := *amplitude*math.Exp(-delta*delta/(2*(*peakWidth)*(*peakWidth))) + rand.Float64()*(*noise)
	return v
}

// spectrum 固定波段400-700nm的整谱
func (d *deviceState) spectrum() string {
	var b strings.Builder
	for wl := 400.0; wl <= 700.0; wl += 5 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%.2f", d.intensityAt(wl))
	}
	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
