// Package device provides the peripheral model shared by the discovery,
// connection and telemetry packages.
//
// It covers:
//   - Peripheral identity and session-local state
//   - Device class inference from advertised names
//   - Deterministic display colour assignment
//   - The error taxonomy used across the core (AdapterUnavailable,
//     PermissionDenied, IOFailure, ParseFailure, RegistrationFailure)
//   - The fixed serial port profile service identifier
package device
