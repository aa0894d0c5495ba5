// Package audio provides the backend layer between the node and the
// host's audio server.
//
// The production backend drives PipeWire through its command-line tools:
// pw-dump for topology inspection, pw-link for creating and destroying
// per-channel links between a Bluetooth source and an output sink, and
// wpctl for volume. The tools are forked per call with a bounded timeout,
// so a wedged audio server degrades into errors the caller can retry
// instead of hangs.
//
// Output topology is polled rather than subscribed. A background loop
// re-reads the sink list on an interval and emits OutputAdded and
// OutputRemoved events when the set changes. Polling survives audio
// server restarts for free: whatever state the new server reports simply
// becomes the next snapshot.
//
// The Backend interface is what the node manager consumes; PipeWire is
// the production implementation. Tests substitute a fake Backend.
package audio
