package gvcp

import "fmt"

// FramingError means the datagram could not even be parsed as a GVCP packet.
// It is never replied to — spec §4.1, §7: "Rejection produces no reply for
// malformed framing."
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string { return fmt.Sprintf("gvcp: framing: %s", e.Reason) }

// CommandError carries one of the status codes in §6 and is turned into a
// NACK datagram by the engine.
type CommandError struct {
	Status uint16
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("gvcp: command error 0x%04x: %s", e.Status, e.Reason)
}

func newCommandError(status uint16, reason string) *CommandError {
	return &CommandError{Status: status, Reason: reason}
}

// TransportError wraps a platform Send failure. It never escalates past the
// engine; it only feeds the should-recreate-socket threshold (spec §5, §7).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("gvcp: transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ConfigError describes a rejected configuration value. The engine does not
// return it: an invalid CCP privilege write surfaces as a CommandError with
// INVALID_PARAMETER, and discovery interval writes are not validated.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("gvcp: config: %s", e.Reason) }
