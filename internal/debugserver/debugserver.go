// Package debugserver exposes a small REST+WS telemetry surface over the VM
// orchestrator's observer hooks, grounded on the teacher's les/probeapi
// JSON-RPC surface: a lightweight HTTP mux in front of backend state,
// generalized here from Ethereum JSON-RPC methods to a REST snapshot
// endpoint and a websocket push stream of VM step events.
package debugserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/cockpitvm/hypervisor/internal/log"
	"github.com/cockpitvm/hypervisor/internal/vm"
)

var srvLog = log.NewContext("module", "debugserver")

// StepEvent is one VM step notification pushed to websocket subscribers.
type StepEvent struct {
	PC      int       `json:"pc"`
	Opcode  string    `json:"opcode"`
	Operand uint32    `json:"operand"`
	At      time.Time `json:"at"`
}

// HostStats is a point-in-time snapshot of the host machine alongside the
// guest VM's own metrics, so an operator can correlate guest behavior with
// host resource pressure during a long-running simulation.
type HostStats struct {
	CPUPercent float64    `json:"cpu_percent"`
	MemUsedPct float64    `json:"mem_used_percent"`
	VMMetrics  vm.Metrics `json:"vm_metrics"`
	SampledAt  time.Time  `json:"sampled_at"`
}

// Server serves /status (REST) and /stream (websocket) over an
// Orchestrator's observer hooks.
type Server struct {
	orch     *vm.Orchestrator
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*websocket.Conn]chan StepEvent
}

// New builds a Server subscribed to orch's step events; completion and
// reset events are not forwarded.
func New(orch *vm.Orchestrator) *Server {
	s := &Server{
		orch: orch,
		subs: make(map[*websocket.Conn]chan StepEvent),
	}
	orch.Subscribe(vm.ObserverFuncs{
		Step: func(pc int, opcode vm.Opcode, operand uint32) {
			s.broadcast(StepEvent{PC: pc, Opcode: opcode.String(), Operand: operand, At: time.Now()})
		},
	})
	return s
}

func (s *Server) broadcast(ev StepEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			srvLog.Debug("dropping step event for slow subscriber", "remote", conn.RemoteAddr())
		}
	}
}

// Handler builds the HTTP handler: httprouter mux wrapped in a permissive
// CORS policy suitable for a local lab-bench debug tool, matching the
// teacher's RPC surface being reachable from a browser-based console.
func (s *Server) Handler() http.Handler {
	r := httprouter.New()
	r.GET("/status", s.handleStatus)
	r.GET("/stream", s.handleStream)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := HostStats{VMMetrics: s.orch.GetMetrics(), SampledAt: time.Now()}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		stats.MemUsedPct = vmStat.UsedPercent
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srvLog.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := make(chan StepEvent, 64)
	s.mu.Lock()
	s.subs[conn] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, conn)
		s.mu.Unlock()
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
