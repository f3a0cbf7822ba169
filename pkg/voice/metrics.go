package voice

import (
	"sync"
	"time"
)

// Metrics tracks session latency and counters.
// Latency is measured from the last request sent (text turn or tool
// response) to the first audio chunk of the model's reply.
type Metrics struct {
	RequestTime    time.Time `json:"request_time"`
	FirstAudioTime time.Time `json:"first_audio_time"`
	TurnDoneTime   time.Time `json:"turn_done_time"`

	FirstAudioLatency time.Duration `json:"first_audio_latency"`
	TurnLatency       time.Duration `json:"turn_latency"`

	AudioChunksIn  int `json:"audio_chunks_in"`
	AudioChunksOut int `json:"audio_chunks_out"`
	ToolCalls      int `json:"tool_calls"`
	Interruptions  int `json:"interruptions"`
	Turns          int `json:"turns"`
}

// MetricsCollector collects session metrics. It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []time.Duration // recent first-audio latencies
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]time.Duration, 0, 100),
	}
}

// MarkRequest records a text turn or tool response being sent.
func (m *MetricsCollector) MarkRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.RequestTime = time.Now()
	m.current.FirstAudioTime = time.Time{}
}

// MarkFirstAudio records the first audio chunk after a request.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current.FirstAudioTime.IsZero() {
		return
	}
	m.current.FirstAudioTime = time.Now()
	if !m.current.RequestTime.IsZero() {
		m.current.FirstAudioLatency = m.current.FirstAudioTime.Sub(m.current.RequestTime)
		m.history = append(m.history, m.current.FirstAudioLatency)
		if len(m.history) > 100 {
			m.history = m.history[1:]
		}
	}
}

// MarkTurnComplete records the end of a model turn.
func (m *MetricsCollector) MarkTurnComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TurnDoneTime = time.Now()
	if !m.current.RequestTime.IsZero() {
		m.current.TurnLatency = m.current.TurnDoneTime.Sub(m.current.RequestTime)
	}
	m.current.Turns++
	m.current.FirstAudioTime = time.Time{}
}

// IncrementAudioIn counts an audio chunk sent to the model.
func (m *MetricsCollector) IncrementAudioIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksIn++
}

// IncrementAudioOut counts an audio chunk received from the model.
func (m *MetricsCollector) IncrementAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksOut++
}

// AddToolCalls counts tool invocations.
func (m *MetricsCollector) AddToolCalls(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ToolCalls += n
}

// IncrementInterrupted counts barge-ins.
func (m *MetricsCollector) IncrementInterrupted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Interruptions++
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// AverageFirstAudio returns the mean first-audio latency over recent turns.
func (m *MetricsCollector) AverageFirstAudio() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range m.history {
		sum += d
	}
	return sum / time.Duration(len(m.history))
}

// FormatLatency returns a formatted string of current latencies.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.FirstAudioLatency) + " FIRST AUDIO | " +
		formatDuration(m.TurnLatency) + " TURN"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
