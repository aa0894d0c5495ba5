// Package bluetooth provides the adapter layer between the node and the
// host's Bluetooth stack.
//
// The package talks to BlueZ through the bluetoothctl command-line tool
// rather than D-Bus. This matches how the node is deployed: a minimal
// embedded image where bluetoothctl is guaranteed present and the stack
// is occasionally restarted underneath us. Every call shells out, parses
// the tool's output, and reports failure as an error the caller can
// retry; nothing in this package assumes the daemon stays up.
//
// Two interaction styles are used:
//
//   - One-shot commands (pair, trust, connect, disconnect, info) run with
//     a bounded timeout and return parsed results.
//   - A long-lived "bluetoothctl --monitor" subprocess, supervised by the
//     process package, streams property changes. Parsed lines surface on
//     the Events channel as discovery, connect and disconnect events.
//
// The Adapter interface is what the node manager consumes; Ctl is the
// production implementation. Tests substitute a fake Adapter, so nothing
// above this package ever forks a process.
package bluetooth
