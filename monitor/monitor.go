// Package monitor exposes a read-only HTTP introspection server over a
// running simulator: current stats, host resource usage, a CPU profile,
// and recent telemetry. It carries no route that would mutate or step a
// live simulation — this monitor only ever reads.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"

	"github.com/edujime23/warden/telemetry"
)

// SnapshotFunc returns a JSON-serializable snapshot of whatever the caller
// wants exposed at /api/stats. It must not mutate simulator state.
type SnapshotFunc func() any

// Monitor serves read-only introspection endpoints over HTTP.
type Monitor struct {
	snapshot   SnapshotFunc
	recorder   *telemetry.Recorder
	portNumber int

	profileDuration time.Duration
}

// Config configures a Monitor.
type Config struct {
	Snapshot SnapshotFunc
	Recorder *telemetry.Recorder // optional; powers /api/recent.
	Port     int                 // 0 or <=1000 picks a random port.

	// ProfileDuration is how long /api/profile samples the CPU profile for.
	// Defaults to one second.
	ProfileDuration time.Duration
}

// New constructs a Monitor from cfg.
func New(cfg Config) *Monitor {
	if cfg.ProfileDuration <= 0 {
		cfg.ProfileDuration = time.Second
	}
	return &Monitor{
		snapshot:        cfg.Snapshot,
		recorder:        cfg.Recorder,
		portNumber:      cfg.Port,
		profileDuration: cfg.ProfileDuration,
	}
}

// StartServer binds a listener and serves in the background, returning the
// address it bound to.
func (m *Monitor) StartServer() (string, error) {
	r := mux.NewRouter()
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/resources", m.resources)
	r.HandleFunc("/api/profile", m.profile)
	r.HandleFunc("/api/recent", m.recent)

	actualAddr := "127.0.0.1:0"
	if m.portNumber > 1000 {
		actualAddr = "127.0.0.1:" + strconv.Itoa(m.portNumber)
	} else if m.portNumber != 0 {
		fmt.Fprintf(os.Stderr,
			"monitor: port %d is not allowed, using a random port instead\n", m.portNumber)
	}

	listener, err := net.Listen("tcp", actualAddr)
	if err != nil {
		return "", fmt.Errorf("monitor.start_server: %w", err)
	}

	addr := listener.Addr().String()
	go func() {
		if err := http.Serve(listener, r); err != nil {
			log.Printf("monitor: server stopped: %v", err)
		}
	}()
	return addr, nil
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	if m.snapshot == nil {
		writeJSON(w, map[string]string{"error": "no snapshot configured"})
		return
	}
	writeJSON(w, m.snapshot())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) resources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		writeError(w, err)
		return
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		writeError(w, err)
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: mem.RSS})
}

func (m *Monitor) profile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)
	if err := pprof.StartCPUProfile(buf); err != nil {
		writeError(w, err)
		return
	}
	time.Sleep(m.profileDuration)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, prof)
}

func (m *Monitor) recent(w http.ResponseWriter, r *http.Request) {
	if m.recorder == nil {
		writeJSON(w, []telemetry.Record{})
		return
	}
	n := 50
	if q := r.URL.Query().Get("n"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			n = parsed
		}
	}
	writeJSON(w, m.recorder.Recent(n))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("monitor: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	writeJSON(w, map[string]string{"error": err.Error()})
}
