// Package routing persists output assignments: which outputs a Bluetooth
// device should be linked to when it connects, and the preferred volume
// for each device/output pair.
//
// Assignments are preferences, not live state. The node manager owns the
// in-memory picture of what is actually linked right now; this package
// only remembers what should be restored after a reconnect or restart.
package routing
