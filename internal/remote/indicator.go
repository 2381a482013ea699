package remote

import (
	"sync"
	"time"
)

// Status is the health reported by the connection indicator.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOK         Status = "ok"
	StatusWarning    Status = "warning"
	StatusError      Status = "error"
)

// IndicatorState is a snapshot of the connection indicator.
type IndicatorState struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Indicator is the shared view of the remote scanner connection. Writes
// are last-write-wins.
type Indicator struct {
	mu    sync.RWMutex
	state IndicatorState
}

func NewIndicator() *Indicator {
	return &Indicator{state: IndicatorState{
		Status:    StatusConnecting,
		Message:   "not contacted yet",
		UpdatedAt: time.Now().UTC(),
	}}
}

func (i *Indicator) Set(status Status, msg string) {
	i.mu.Lock()
	i.state = IndicatorState{Status: status, Message: msg, UpdatedAt: time.Now().UTC()}
	i.mu.Unlock()
}

func (i *Indicator) Snapshot() IndicatorState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}
