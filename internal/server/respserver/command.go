package respserver

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/redistill/redistill/internal/storage/memory"
)

// compatVersion is the Redis version advertised through INFO so client
// libraries and monitoring scrapers that sniff versions keep working.
const compatVersion = "7.0.0"

// ConnState is the per-connection dispatcher state.
type ConnState struct {
	Authenticated bool
}

// Handler maps decoded command frames to store operations and encodes
// the reply. One Handler is shared by every connection; all mutable
// state lives in the store, the stats, and the per-connection
// ConnState.
type Handler struct {
	store    *memory.Store
	stats    *Stats
	password []byte
	logger   *slog.Logger
}

// NewHandler creates a command handler. An empty password disables the
// authentication gate.
func NewHandler(store *memory.Store, stats *Stats, password string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    store,
		stats:    stats,
		password: []byte(password),
		logger:   logger,
	}
}

// NewConnState returns the initial state for a fresh connection. With
// no password configured every connection starts authenticated.
func (h *Handler) NewConnState() *ConnState {
	return &ConnState{Authenticated: len(h.password) == 0}
}

// Now returns the current second on the server's monotonic clock.
func (h *Handler) Now() int64 {
	return h.stats.MonotonicSeconds()
}

// Handle executes one command and appends its reply to w. It reports
// whether the connection should close (QUIT). Callers credit the
// processed command to Stats in batches.
func (h *Handler) Handle(st *ConnState, args [][]byte, w *Writer, now int64) (closeConn bool) {
	if len(args) == 0 {
		return false
	}

	verb := normalizeVerb(args[0])

	// Commands allowed before authentication.
	switch verb {
	case "PING":
		h.handlePing(args, w)
		return false
	case "AUTH":
		h.handleAuth(st, args, w)
		return false
	case "QUIT":
		w.SimpleString("OK")
		return true
	}

	if !st.Authenticated {
		w.Error("NOAUTH Authentication required")
		return false
	}

	switch verb {
	case "SET":
		h.handleSet(args, w, now)
	case "GET":
		h.handleGet(args, w, now)
	case "DEL":
		h.handleDel(args, w)
	case "EXISTS":
		h.handleExists(args, w, now)
	case "KEYS":
		h.handleKeys(args, w, now)
	case "DBSIZE":
		w.Integer(h.store.Len())
	case "FLUSHDB":
		h.store.Clear()
		w.SimpleString("OK")
	case "INFO":
		h.handleInfo(args, w)
	case "CONFIG":
		h.handleConfig(args, w)
	case "COMMAND":
		// Compatibility stub for clients that introspect at connect.
		w.ArrayHeader(0)
	default:
		w.Error("ERR unknown command '" + verb + "'")
	}
	return false
}

func (h *Handler) handlePing(args [][]byte, w *Writer) {
	switch len(args) {
	case 1:
		w.SimpleString("PONG")
	case 2:
		w.Bulk(args[1])
	default:
		w.Error("ERR wrong number of arguments for 'ping' command")
	}
}

func (h *Handler) handleAuth(st *ConnState, args [][]byte, w *Writer) {
	if len(args) != 2 {
		w.Error("ERR wrong number of arguments for 'auth' command")
		return
	}
	if len(h.password) == 0 {
		w.Error("ERR Client sent AUTH, but no password is set")
		return
	}
	if subtle.ConstantTimeCompare(args[1], h.password) == 1 {
		st.Authenticated = true
		w.SimpleString("OK")
		return
	}
	w.Error("ERR invalid password")
}

// SET key value [EX seconds]
func (h *Handler) handleSet(args [][]byte, w *Writer, now int64) {
	if len(args) != 3 && len(args) != 5 {
		if len(args) < 3 {
			w.Error("ERR wrong number of arguments for 'set' command")
		} else {
			w.Error("ERR syntax error")
		}
		return
	}

	var ttl int64
	if len(args) == 5 {
		if !strings.EqualFold(string(args[3]), "EX") {
			w.Error("ERR syntax error")
			return
		}
		seconds, err := strconv.ParseInt(string(args[4]), 10, 64)
		if err != nil {
			w.Error("ERR value is not an integer or out of range")
			return
		}
		if seconds <= 0 {
			w.Error("ERR syntax error")
			return
		}
		ttl = seconds
	}

	key, value := args[1], args[2]
	size := memory.EntrySize(len(key), len(value))
	if !h.store.EnsureCapacity(size, now) {
		w.Error("OOM command not allowed when used memory > 'maxmemory'")
		return
	}

	h.store.Set(key, value, ttl, now)
	w.SimpleString("OK")
}

func (h *Handler) handleGet(args [][]byte, w *Writer, now int64) {
	if len(args) != 2 {
		w.Error("ERR wrong number of arguments for 'get' command")
		return
	}
	v, ok := h.store.Get(args[1], now)
	if !ok {
		w.Null()
		return
	}
	w.Bulk(v)
}

func (h *Handler) handleDel(args [][]byte, w *Writer) {
	if len(args) < 2 {
		w.Error("ERR wrong number of arguments for 'del' command")
		return
	}
	w.Integer(int64(h.store.Del(args[1:])))
}

func (h *Handler) handleExists(args [][]byte, w *Writer, now int64) {
	if len(args) < 2 {
		w.Error("ERR wrong number of arguments for 'exists' command")
		return
	}
	w.Integer(int64(h.store.Exists(args[1:], now)))
}

func (h *Handler) handleKeys(args [][]byte, w *Writer, now int64) {
	if len(args) != 2 {
		w.Error("ERR wrong number of arguments for 'keys' command")
		return
	}
	pattern := args[1]
	if !patternSupported(pattern) {
		w.Error("ERR unsupported pattern")
		return
	}

	keys := h.store.Keys(now)
	matched := keys[:0]
	for _, k := range keys {
		if matchKey(pattern, k) {
			matched = append(matched, k)
		}
	}
	w.ArrayHeader(len(matched))
	for _, k := range matched {
		w.Bulk(k)
	}
}

// handleConfig answers the probes real clients issue at startup.
// Known keys get a [key, value] pair, anything else an empty array;
// never an error, so client handshakes survive.
func (h *Handler) handleConfig(args [][]byte, w *Writer) {
	if len(args) == 3 && strings.EqualFold(string(args[1]), "GET") {
		key := strings.ToLower(string(args[2]))
		var value string
		switch key {
		case "maxmemory":
			value = strconv.FormatInt(h.store.MaxMemory(), 10)
		case "maxmemory-policy":
			value = h.store.Policy().String()
		case "save":
			value = ""
		case "appendonly":
			value = "no"
		default:
			w.ArrayHeader(0)
			return
		}
		w.ArrayHeader(2)
		w.BulkString(key)
		w.BulkString(value)
		return
	}
	w.ArrayHeader(0)
}

// handleInfo renders the Redis-style sectioned key:value report. An
// optional argument filters to a single section.
func (h *Handler) handleInfo(args [][]byte, w *Writer) {
	if len(args) > 2 {
		w.Error("ERR wrong number of arguments for 'info' command")
		return
	}
	section := ""
	if len(args) == 2 {
		section = strings.ToLower(string(args[1]))
	}

	var b strings.Builder
	want := func(name string) bool { return section == "" || section == name }

	if want("server") {
		fmt.Fprintf(&b, "# Server\r\n")
		fmt.Fprintf(&b, "redis_version:%s\r\n", compatVersion)
		fmt.Fprintf(&b, "redis_mode:standalone\r\n")
		fmt.Fprintf(&b, "os:Redistill\r\n")
		fmt.Fprintf(&b, "arch_bits:64\r\n")
		fmt.Fprintf(&b, "process_id:%d\r\n", os.Getpid())
		fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(h.stats.Uptime().Seconds()))
		b.WriteString("\r\n")
	}
	if want("clients") {
		fmt.Fprintf(&b, "# Clients\r\n")
		fmt.Fprintf(&b, "connected_clients:%d\r\n", h.stats.ActiveConnections())
		b.WriteString("\r\n")
	}
	if want("memory") {
		// INFO is rare; converge the batched counter before reporting.
		h.store.SyncCounters()
		used := h.store.UsedMemory()
		maxMem := h.store.MaxMemory()
		maxHuman := "unlimited"
		if maxMem > 0 {
			maxHuman = formatBytes(uint64(maxMem))
		}
		fmt.Fprintf(&b, "# Memory\r\n")
		fmt.Fprintf(&b, "used_memory:%d\r\n", used)
		fmt.Fprintf(&b, "used_memory_human:%s\r\n", formatBytes(uint64(max(used, 0))))
		fmt.Fprintf(&b, "maxmemory:%d\r\n", maxMem)
		fmt.Fprintf(&b, "maxmemory_human:%s\r\n", maxHuman)
		fmt.Fprintf(&b, "maxmemory_policy:%s\r\n", h.store.Policy())
		fmt.Fprintf(&b, "evicted_keys:%d\r\n", h.store.EvictedKeys())
		b.WriteString("\r\n")
	}
	if want("stats") {
		fmt.Fprintf(&b, "# Stats\r\n")
		fmt.Fprintf(&b, "total_connections_received:%d\r\n", h.stats.TotalConnections())
		fmt.Fprintf(&b, "total_commands_processed:%d\r\n", h.stats.TotalCommands())
		fmt.Fprintf(&b, "rejected_connections:%d\r\n", h.stats.RejectedConnections())
		b.WriteString("\r\n")
	}
	if want("keyspace") {
		fmt.Fprintf(&b, "# Keyspace\r\n")
		fmt.Fprintf(&b, "db0:keys=%d,expires=0,avg_ttl=0\r\n", h.store.Len())
	}

	w.BulkString(b.String())
}

// formatBytes renders a byte count the way INFO's *_human fields do.
func formatBytes(n uint64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2fGB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.2fMB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.2fKB", float64(n)/kb)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
