package main

// Poll loop configuration
const (
	defaultPollHz     = 1000 // Poll loop frequency (Hz)
	maxPollHz         = 10000
	defaultFilterSize = 4 // Samples that must agree before a contact changes state

	// Velocity table bounds
	maxVelocityThresholdMS = 3_600_000
	maxVelocityScale       = 1000

	// Event fan-out buffers
	defaultEventBuf   = 256 // Poll loop -> broadcaster queue
	defaultRequestBuf = 16  // IPC/WS -> poll loop queue
)

// Default endpoints
const (
	defaultDriver     = "periph"
	defaultWSListen   = "127.0.0.1:8088"
	defaultWSPath     = "/events"
	defaultSocketPath = "/tmp/surfaced.sock"
)

// Wire event types
const (
	msgStateInit      = "state_init"
	msgButtonPressed  = "button_pressed"
	msgButtonReleased = "button_released"
	msgEncoderTurned  = "encoder_turned"
)
