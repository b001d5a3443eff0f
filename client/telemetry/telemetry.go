// Package telemetry logs client events and counts them.
// Counts are summarized in the log on request and exported to prometheus.
package telemetry

import (
	"fmt"
	"io"
	"log"
	"maps"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Logger is anything that prints a line, like *log.Logger
type Logger interface {
	Println(v ...any)
}

type counts struct {
	sync.Mutex
	byName map[string]int
}

var (
	outputLock sync.RWMutex
	output     Logger = log.New(utcWriter{os.Stderr}, "", 0)

	tracing atomic.Bool
	tally   = counts{byName: make(map[string]int)}

	registry = prometheus.NewRegistry()
	events   = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_events_total",
		Help: "Count of client events by name.",
	}, []string{"name"})
)

func init() {
	registry.MustRegister(events)
}

// utcWriter stamps each line with the UTC time
type utcWriter struct {
	w io.Writer
}

func (u utcWriter) Write(b []byte) (int, error) {
	return fmt.Fprint(u.w, time.Now().UTC().Format(time.DateTime)+" "+string(b))
}

func logger() Logger {
	outputLock.RLock()
	defer outputLock.RUnlock()
	return output
}

// SetLogger replaces the output and returns the previous one
func SetLogger(l Logger) Logger {
	outputLock.Lock()
	defer outputLock.Unlock()
	prev := output
	output = l
	return prev
}

func SetTrace(on bool) {
	tracing.Store(on)
}

func Log(format string, args ...any) {
	logger().Println(fmt.Sprintf(format, args...))
}

// Trace logs only when tracing is on
func Trace(format string, args ...any) {
	if tracing.Load() {
		Log(format, args...)
	}
}

func Error(err error, format string, args ...any) {
	logger().Println(fmt.Sprintf("ERROR %s: %v", fmt.Sprintf(format, args...), err))
	Increment("errors", 1)
}

// Request logs the method and url of an incoming request
func Request(r *http.Request, format string, args ...any) {
	logger().Println(fmt.Sprintf("%s %s %s", fmt.Sprintf(format, args...), r.Method, r.URL))
}

func Increment(name string, n int) {
	tally.Lock()
	tally.byName[name] += n
	tally.Unlock()
	events.WithLabelValues(name).Add(float64(n))
}

func GetCounter(name string) int {
	tally.Lock()
	defer tally.Unlock()
	return tally.byName[name]
}

// LogCounters writes every counter on one line, sorted by name
func LogCounters() {
	tally.Lock()
	names := slices.Sorted(maps.Keys(tally.byName))
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, fmt.Sprintf("%s=%d", name, tally.byName[name]))
	}
	tally.Unlock()
	if len(pairs) == 0 {
		Log("no counters were recorded")
		return
	}
	Log("%s", strings.Join(pairs, ", "))
}

// Handler serves the counters in prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
