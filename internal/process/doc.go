// Package process provides generic subprocess lifecycle management.
//
// This package is designed for long-running child processes the node
// depends on, such as the Bluetooth monitor stream that feeds device
// events into the adapter layer.
//
// Features:
//   - Start/stop subprocess with graceful shutdown
//   - Automatic restart on failure with exponential backoff
//   - Health monitoring and status reporting
//   - Line-oriented output capture via the OnLine callback
//   - Context-based cancellation for clean shutdown
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "bluetoothctl-monitor",
//	    Binary:           "/usr/bin/bluetoothctl",
//	    Args:             []string{"--monitor"},
//	    RestartOnFailure: true,
//	    OnLine: func(stream, line string) {
//	        // parse monitor events
//	    },
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
