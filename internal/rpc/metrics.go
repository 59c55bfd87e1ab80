package rpc

import (
	"time"

	"github.com/luciancaetano/wadash"
)

// Call outcomes reported to Metrics.
const (
	OutcomeOK            = "ok"
	OutcomeRPCError      = "rpc_error"
	OutcomeTimeout       = "timeout"
	OutcomeSendError     = "send_error"
	OutcomeDisconnected  = "disconnected"
	OutcomeCanceled      = "canceled"
	OutcomeNotConnected  = "not_connected"
	OutcomeProtocolError = "protocol_error"
)

// Reasons an inbound frame was dropped.
const (
	DropParse      = "parse"
	DropUnroutable = "unroutable"
	DropIgnored    = "ignored"
	DropSubscriber = "subscriber_full"
)

// Metrics receives session instrumentation.
type Metrics interface {
	CallFinished(method, outcome string, d time.Duration)
	SetPendingCalls(n int)
	EventReceived(name string)
	FrameDropped(reason string)
	StateChanged(state wadash.State)
	ConnectAttempt(success bool)
}

// NoopMetrics discards everything (default).
type NoopMetrics struct{}

func (NoopMetrics) CallFinished(method, outcome string, d time.Duration) {}
func (NoopMetrics) SetPendingCalls(n int)                                {}
func (NoopMetrics) EventReceived(name string)                            {}
func (NoopMetrics) FrameDropped(reason string)                           {}
func (NoopMetrics) StateChanged(state wadash.State)                      {}
func (NoopMetrics) ConnectAttempt(success bool)                          {}
