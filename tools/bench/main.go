package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

// -------------------- 系统监控 --------------------

type SystemStats struct {
	Timestamp   time.Time
	CPUUsage    float64
	MemoryUsage float64
	MemoryTotal uint64
	MemoryUsed  uint64
	ServerCPU   float64
	ServerRSS   uint64
	Connections int64
}

type Monitor struct {
	mu       sync.Mutex
	stats    []SystemStats
	interval time.Duration
	server   *process.Process // 被压测的服务进程，可为空
	conns    *int64
	stopChan chan struct{}
	done     chan struct{}
}

func NewMonitor(interval time.Duration, serverPID int, conns *int64) *Monitor {
	m := &Monitor{
		stats:    make([]SystemStats, 0, 512),
		interval: interval,
		conns:    conns,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if serverPID > 0 {
		p, err := process.NewProcess(int32(serverPID))
		if err != nil {
			fmt.Printf("找不到服务进程 %d: %v\n", serverPID, err)
		} else {
			m.server = p
		}
	}
	return m
}

func (m *Monitor) collectStats() SystemStats {
	s := SystemStats{
		Timestamp:   time.Now(),
		Connections: atomic.LoadInt64(m.conns),
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.CPUUsage = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsage = vm.UsedPercent
		s.MemoryTotal = vm.Total
		s.MemoryUsed = vm.Used
	}
	if m.server != nil {
		if v, err := m.server.CPUPercent(); err == nil {
			s.ServerCPU = v
		}
		if info, err := m.server.MemoryInfo(); err == nil {
			s.ServerRSS = info.RSS
		}
	}

	m.mu.Lock()
	m.stats = append(m.stats, s)
	m.mu.Unlock()
	return s
}

func (m *Monitor) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.printStats(m.collectStats())
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *Monitor) Stop() {
	close(m.stopChan)
	<-m.done
}

func (m *Monitor) printStats(s SystemStats) {
	fmt.Printf("[%s] CPU: %.1f%% | 内存: %.1f%% (%.1fMB/%.1fMB) | 服务CPU: %.1f%% | 服务RSS: %.1fMB | 连接: %d\n",
		s.Timestamp.Format("15:04:05"), s.CPUUsage, s.MemoryUsage,
		float64(s.MemoryUsed)/1024/1024, float64(s.MemoryTotal)/1024/1024,
		s.ServerCPU, float64(s.ServerRSS)/1024/1024, s.Connections,
	)
}

func (m *Monitor) GenerateReport() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stats) == 0 {
		fmt.Println("没有监控数据")
		return
	}
	var sumCPU, sumMem, maxCPU, maxMem, maxServerCPU float64
	var maxRSS uint64
	for _, s := range m.stats {
		sumCPU += s.CPUUsage
		sumMem += s.MemoryUsage
		maxCPU = max(maxCPU, s.CPUUsage)
		maxMem = max(maxMem, s.MemoryUsage)
		maxServerCPU = max(maxServerCPU, s.ServerCPU)
		maxRSS = max(maxRSS, s.ServerRSS)
	}
	n := float64(len(m.stats))
	fmt.Println("\n=== 系统监控报告 ===")
	fmt.Printf("持续: %v\n", m.stats[len(m.stats)-1].Timestamp.Sub(m.stats[0].Timestamp))
	fmt.Printf("平均CPU: %.1f%%, 峰值CPU: %.1f%%\n", sumCPU/n, maxCPU)
	fmt.Printf("平均内存: %.1f%%, 峰值内存: %.1f%%\n", sumMem/n, maxMem)
	if m.server != nil {
		fmt.Printf("服务峰值CPU: %.1f%%, 服务峰值RSS: %.1fMB\n", maxServerCPU, float64(maxRSS)/1024/1024)
	}
}

func (m *Monitor) SaveToFile(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _ = f.WriteString("Timestamp,CPUUsage,MemoryUsage,MemoryTotal,MemoryUsed,ServerCPU,ServerRSS,Connections\n")
	for _, s := range m.stats {
		line := fmt.Sprintf("%s,%.2f,%.2f,%d,%d,%.2f,%d,%d\n",
			s.Timestamp.Format("2006-01-02 15:04:05"), s.CPUUsage, s.MemoryUsage,
			s.MemoryTotal, s.MemoryUsed, s.ServerCPU, s.ServerRSS, s.Connections,
		)
		_, _ = f.WriteString(line)
	}
	return nil
}

// -------------------- Hub 广播压测 --------------------

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type receivedMessage struct {
	Content string `json:"content"`
}

// LatencyStats 广播延迟：从发送方写出到接收方读到
type LatencyStats struct {
	mu        sync.Mutex
	latencies []time.Duration
	sent      int64
	failed    int64
}

func (s *LatencyStats) Add(latency time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, latency)
	s.mu.Unlock()
}

func (s *LatencyStats) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latencies)
}

func (s *LatencyStats) Report(took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Println("\n=== Hub 广播测试结果 ===")
	fmt.Printf("耗时: %v\n", took)
	fmt.Printf("发送: %d 失败: %d 投递: %d\n", atomic.LoadInt64(&s.sent), atomic.LoadInt64(&s.failed), len(s.latencies))
	if len(s.latencies) == 0 {
		return
	}

	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
	var sum time.Duration
	for _, l := range s.latencies {
		sum += l
	}
	pct := func(p float64) time.Duration {
		return s.latencies[int(float64(len(s.latencies)-1)*p)]
	}
	fmt.Printf("延迟 平均: %v P50: %v P99: %v 最大: %v\n",
		sum/time.Duration(len(s.latencies)), pct(0.5), pct(0.99), s.latencies[len(s.latencies)-1])
	if took > 0 {
		fmt.Printf("投递速率: %.2f 条/秒\n", float64(len(s.latencies))/took.Seconds())
	}
}

// registerUser 注册一个压测用户并返回token
func registerUser(base, name string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"username": name,
		"email":    name + "@bench.local",
		"password": "bench-password",
	})
	client := &http.Client{Timeout: 8 * time.Second}
	resp, err := client.Post(base+"/api/v1/users/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Code != 0 {
		return "", fmt.Errorf("注册失败: %s", out.Message)
	}
	return out.Data.AccessToken, nil
}

// hubURL 将 http(s) 基地址转换为 ws(s) 的Hub地址
func hubURL(base, path, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path
	u.RawQuery = url.Values{"access_token": {token}}.Encode()
	return u.String(), nil
}

// 消息内容格式: bench:<发送时间纳秒>:<序号>
func benchContent(seq int) string {
	return "bench:" + strconv.FormatInt(time.Now().UnixNano(), 10) + ":" + strconv.Itoa(seq)
}

func parseSentAt(content string) (time.Time, bool) {
	parts := strings.Split(content, ":")
	if len(parts) != 3 || parts[0] != "bench" {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

func runHubBench(base, path string, clients, perClient int, interval, wait time.Duration, conns *int64) {
	fmt.Println("\n=== Hub 广播测试开始 ===")
	fmt.Printf("目标: %s%s 客户端: %d 每客户端消息: %d\n", base, path, clients, perClient)

	runID := uuid.NewString()[:8]
	sockets := make([]*websocket.Conn, 0, clients)
	for i := 0; i < clients; i++ {
		token, err := registerUser(base, fmt.Sprintf("bench_%s_%d", runID, i))
		if err != nil {
			fmt.Printf("注册用户 %d 失败: %v\n", i, err)
			continue
		}
		target, err := hubURL(base, path, token)
		if err != nil {
			fmt.Printf("无效地址: %v\n", err)
			return
		}
		conn, _, err := websocket.DefaultDialer.Dial(target, nil)
		if err != nil {
			fmt.Printf("客户端 %d 连接失败: %v\n", i, err)
			continue
		}
		sockets = append(sockets, conn)
		atomic.AddInt64(conns, 1)
	}
	if len(sockets) == 0 {
		fmt.Println("没有可用的连接")
		return
	}

	stats := &LatencyStats{}
	var readers sync.WaitGroup
	for _, conn := range sockets {
		readers.Add(1)
		go func(conn *websocket.Conn) {
			defer readers.Done()
			defer atomic.AddInt64(conns, -1)
			for {
				var env envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				if env.Type != "ReceiveMessage" {
					continue
				}
				var msg receivedMessage
				if err := json.Unmarshal(env.Data, &msg); err != nil {
					continue
				}
				if sentAt, ok := parseSentAt(msg.Content); ok {
					stats.Add(time.Since(sentAt))
				}
			}
		}(conn)
	}

	start := time.Now()
	var writers sync.WaitGroup
	for _, conn := range sockets {
		writers.Add(1)
		go func(conn *websocket.Conn) {
			defer writers.Done()
			for j := 0; j < perClient; j++ {
				data, _ := json.Marshal(map[string]string{"content": benchContent(j)})
				if err := conn.WriteJSON(envelope{Type: "SendMessage", Data: data}); err != nil {
					atomic.AddInt64(&stats.failed, 1)
					return
				}
				atomic.AddInt64(&stats.sent, 1)
				time.Sleep(interval)
			}
		}(conn)
	}
	writers.Wait()

	// 每条消息应投递给所有连接（包括发送方）
	expected := int(atomic.LoadInt64(&stats.sent)) * len(sockets)
	deadline := time.Now().Add(wait)
	for stats.Delivered() < expected && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	took := time.Since(start)

	for _, conn := range sockets {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	readers.Wait()

	stats.Report(took)
	if expected > 0 {
		fmt.Printf("投递率: %.2f%%\n", float64(stats.Delivered())/float64(expected)*100)
	}
}

// -------------------- 入口 --------------------

func main() {
	base := flag.String("base", "http://localhost:8080", "server base url")
	path := flag.String("path", "/chathub", "hub path")
	clients := flag.Int("clients", 20, "number of hub connections")
	perClient := flag.Int("messages", 10, "messages sent per connection")
	interval := flag.Duration("interval", 20*time.Millisecond, "delay between messages of one connection")
	wait := flag.Duration("wait", 10*time.Second, "max time to wait for deliveries")
	serverPID := flag.Int("pid", 0, "server process id to sample (optional)")
	csvFile := flag.String("csv", "system_monitor.csv", "monitor output file")
	flag.Parse()

	fmt.Println("=== 聊天 Hub 并发与监控测试 ===")
	fmt.Printf("开始时间: %s\n", time.Now().Format("2006-01-02 15:04:05"))

	var conns int64
	mon := NewMonitor(time.Second, *serverPID, &conns)
	mon.Start()

	runHubBench(*base, *path, *clients, *perClient, *interval, *wait, &conns)

	mon.Stop()
	mon.GenerateReport()
	if err := mon.SaveToFile(*csvFile); err != nil {
		fmt.Println("保存监控数据失败:", err)
	} else {
		fmt.Println("监控数据已保存:", *csvFile)
	}

	fmt.Println("\n=== 测试完成 ===")
}
