// Package messaging queues outbound packets for clients and drains them over
// a Server-Sent Events connection.
package messaging

import "time"

// PacketType names the SSE event a packet is sent as.
type PacketType string

const (
	PacketJob     PacketType = "job"
	PacketWeights PacketType = "weights"
	PacketStatus  PacketType = "status"
)

// Packet is a message queued for clients.
type Packet interface {
	Type() PacketType
}

// JobPacket identifies the job a client session belongs to.
type JobPacket struct {
	JobID     string    `json:"job_id"`
	Owner     string    `json:"owner,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns PacketJob.
func (p *JobPacket) Type() PacketType { return PacketJob }

// WeightsPacket carries the weights of a finished optimization run.
type WeightsPacket struct {
	RunID     string    `json:"run_id"`
	Solver    string    `json:"solver"`
	Symbols   []string  `json:"symbols,omitempty"`
	Weights   []float64 `json:"weights"`
	Sharpe    float64   `json:"sharpe"`
	Fallback  bool      `json:"fallback"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns PacketWeights.
func (p *WeightsPacket) Type() PacketType { return PacketWeights }

// StatusPacket reports a state change of the optimizer.
type StatusPacket struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns PacketStatus.
func (p *StatusPacket) Type() PacketType { return PacketStatus }
