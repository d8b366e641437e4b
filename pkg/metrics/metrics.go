package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Direction labels which leg a relayed frame was written to.
type Direction string

const (
	DirectionToAgent     Direction = "to_agent"
	DirectionToTelephony Direction = "to_telephony"
)

// Metrics holds process-wide bridge and API metrics
type Metrics struct {
	mu sync.RWMutex

	// Request metrics
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64

	// Endpoint metrics
	EndpointRequests map[string]int64
	EndpointErrors   map[string]int64
	EndpointLatency  map[string][]time.Duration

	// Bridge metrics
	SessionsStarted int64
	SessionsClosed  int64
	ActiveSessions  int64
	FramesRelayed   map[Direction]int64
	FrameErrors     int64

	// Upstream service metrics
	ServiceCalls   map[string]int64
	ServiceErrors  map[string]int64
	ServiceLatency map[string][]time.Duration

	// Circuit breaker metrics
	CircuitBreakerState    map[string]string
	CircuitBreakerFailures map[string]int64

	// Start time
	StartTime time.Time
}

var globalMetrics = &Metrics{
	EndpointRequests:       make(map[string]int64),
	EndpointErrors:         make(map[string]int64),
	EndpointLatency:        make(map[string][]time.Duration),
	FramesRelayed:          make(map[Direction]int64),
	ServiceCalls:           make(map[string]int64),
	ServiceErrors:          make(map[string]int64),
	ServiceLatency:         make(map[string][]time.Duration),
	CircuitBreakerState:    make(map[string]string),
	CircuitBreakerFailures: make(map[string]int64),
	StartTime:              time.Now(),
}

// RecordRequest records a request
func RecordRequest(endpoint string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.TotalRequests++
	if success {
		globalMetrics.SuccessfulRequests++
	} else {
		globalMetrics.FailedRequests++
		globalMetrics.EndpointErrors[endpoint]++
	}

	globalMetrics.EndpointRequests[endpoint]++

	// Keep only last 100 latency measurements per endpoint
	if len(globalMetrics.EndpointLatency[endpoint]) >= 100 {
		globalMetrics.EndpointLatency[endpoint] = globalMetrics.EndpointLatency[endpoint][1:]
	}
	globalMetrics.EndpointLatency[endpoint] = append(globalMetrics.EndpointLatency[endpoint], latency)
}

// SessionStarted records a new bridge session and bumps the active gauge.
func SessionStarted() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.SessionsStarted++
	globalMetrics.ActiveSessions++
}

// SessionClosed records a finished bridge session.
func SessionClosed() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.SessionsClosed++
	if globalMetrics.ActiveSessions > 0 {
		globalMetrics.ActiveSessions--
	}
}

// FrameRelayed records one audio frame written to the given leg.
func FrameRelayed(dir Direction) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.FramesRelayed[dir]++
}

// FrameError records a frame that failed conversion and was dropped.
func FrameError() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.FrameErrors++
}

// RecordServiceCall records an upstream service call
func RecordServiceCall(service string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.ServiceCalls[service]++
	if !success {
		globalMetrics.ServiceErrors[service]++
	}

	// Keep only last 100 latency measurements per service
	if len(globalMetrics.ServiceLatency[service]) >= 100 {
		globalMetrics.ServiceLatency[service] = globalMetrics.ServiceLatency[service][1:]
	}
	globalMetrics.ServiceLatency[service] = append(globalMetrics.ServiceLatency[service], latency)
}

// UpdateCircuitBreaker updates circuit breaker metrics
func UpdateCircuitBreaker(service, state string, failures int64) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.CircuitBreakerState[service] = state
	globalMetrics.CircuitBreakerFailures[service] = failures
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	// Calculate average latencies
	endpointAvgLatency := make(map[string]float64)
	for endpoint, latencies := range globalMetrics.EndpointLatency {
		if len(latencies) > 0 {
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			endpointAvgLatency[endpoint] = sum.Seconds() / float64(len(latencies))
		}
	}

	serviceAvgLatency := make(map[string]float64)
	for service, latencies := range globalMetrics.ServiceLatency {
		if len(latencies) > 0 {
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			serviceAvgLatency[service] = sum.Seconds() / float64(len(latencies))
		}
	}

	framesRelayed := make(map[string]int64, len(globalMetrics.FramesRelayed))
	for dir, count := range globalMetrics.FramesRelayed {
		framesRelayed[string(dir)] = count
	}

	uptime := time.Since(globalMetrics.StartTime)

	return map[string]interface{}{
		"uptime_seconds": uptime.Seconds(),
		"requests": map[string]interface{}{
			"total":      globalMetrics.TotalRequests,
			"successful": globalMetrics.SuccessfulRequests,
			"failed":     globalMetrics.FailedRequests,
		},
		"endpoints": map[string]interface{}{
			"requests":            globalMetrics.EndpointRequests,
			"errors":              globalMetrics.EndpointErrors,
			"latency_avg_seconds": endpointAvgLatency,
		},
		"sessions": map[string]interface{}{
			"started":        globalMetrics.SessionsStarted,
			"closed":         globalMetrics.SessionsClosed,
			"active":         globalMetrics.ActiveSessions,
			"frames_relayed": framesRelayed,
			"frame_errors":   globalMetrics.FrameErrors,
		},
		"services": map[string]interface{}{
			"calls":               globalMetrics.ServiceCalls,
			"errors":              globalMetrics.ServiceErrors,
			"latency_avg_seconds": serviceAvgLatency,
		},
		"circuit_breakers": map[string]interface{}{
			"state":    globalMetrics.CircuitBreakerState,
			"failures": globalMetrics.CircuitBreakerFailures,
		},
	}
}

// GetPrometheusMetrics returns metrics in Prometheus format
func GetPrometheusMetrics() string {
	metrics := GetMetrics()
	var output string

	// Uptime
	output += "# HELP bridge_uptime_seconds Process uptime in seconds\n"
	output += "# TYPE bridge_uptime_seconds gauge\n"
	output += fmt.Sprintf("bridge_uptime_seconds %.2f\n", metrics["uptime_seconds"].(float64))

	// Requests
	reqs := metrics["requests"].(map[string]interface{})
	output += "# HELP bridge_requests_total Total number of requests\n"
	output += "# TYPE bridge_requests_total counter\n"
	output += fmt.Sprintf("bridge_requests_total{status=\"total\"} %d\n", reqs["total"].(int64))
	output += fmt.Sprintf("bridge_requests_total{status=\"successful\"} %d\n", reqs["successful"].(int64))
	output += fmt.Sprintf("bridge_requests_total{status=\"failed\"} %d\n", reqs["failed"].(int64))

	// Endpoint requests
	endpoints := metrics["endpoints"].(map[string]interface{})
	endpointReqs := endpoints["requests"].(map[string]int64)
	output += "# HELP bridge_endpoint_requests_total Total requests per endpoint\n"
	output += "# TYPE bridge_endpoint_requests_total counter\n"
	for endpoint, count := range endpointReqs {
		output += fmt.Sprintf("bridge_endpoint_requests_total{endpoint=\"%s\"} %d\n", endpoint, count)
	}

	// Endpoint errors
	endpointErrs := endpoints["errors"].(map[string]int64)
	output += "# HELP bridge_endpoint_errors_total Total errors per endpoint\n"
	output += "# TYPE bridge_endpoint_errors_total counter\n"
	for endpoint, count := range endpointErrs {
		output += fmt.Sprintf("bridge_endpoint_errors_total{endpoint=\"%s\"} %d\n", endpoint, count)
	}

	// Sessions
	sessions := metrics["sessions"].(map[string]interface{})
	output += "# HELP bridge_sessions_started_total Bridge sessions opened\n"
	output += "# TYPE bridge_sessions_started_total counter\n"
	output += fmt.Sprintf("bridge_sessions_started_total %d\n", sessions["started"].(int64))
	output += "# HELP bridge_sessions_active Bridge sessions currently open\n"
	output += "# TYPE bridge_sessions_active gauge\n"
	output += fmt.Sprintf("bridge_sessions_active %d\n", sessions["active"].(int64))
	output += "# HELP bridge_frames_relayed_total Audio frames relayed per direction\n"
	output += "# TYPE bridge_frames_relayed_total counter\n"
	for dir, count := range sessions["frames_relayed"].(map[string]int64) {
		output += fmt.Sprintf("bridge_frames_relayed_total{direction=\"%s\"} %d\n", dir, count)
	}
	output += "# HELP bridge_frame_errors_total Audio frames dropped on conversion failure\n"
	output += "# TYPE bridge_frame_errors_total counter\n"
	output += fmt.Sprintf("bridge_frame_errors_total %d\n", sessions["frame_errors"].(int64))

	// Service calls
	services := metrics["services"].(map[string]interface{})
	serviceCalls := services["calls"].(map[string]int64)
	output += "# HELP bridge_service_calls_total Total calls per upstream service\n"
	output += "# TYPE bridge_service_calls_total counter\n"
	for service, count := range serviceCalls {
		output += fmt.Sprintf("bridge_service_calls_total{service=\"%s\"} %d\n", service, count)
	}

	return output
}
