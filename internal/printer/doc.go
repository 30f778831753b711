// Package printer drives the receipt printer attached to the agent.
//
// The hardware is reached through a Driver, which knows how to probe for
// the device and push bytes to it. Adapter wraps a Driver with the rules
// the rest of the agent relies on:
//
//   - Availability is probed once at construction and cached. IsAvailable
//     never touches the hardware. RunProbeLoop refreshes the cache on an
//     interval when one is configured; by default it never changes after
//     start-up.
//   - Print fails fast with ErrUnavailable when the cached probe failed and
//     never calls the driver in that case.
//   - Every driver call is bounded by the adapter timeout and runs on its own
//     goroutine, so a hung device cannot hold up the caller. Only one driver
//     call runs at a time; waiting for the printer counts against the same
//     timeout.
//
// Renderer produces the receipt text. Drivers wrap it in a minimal ESC/POS
// envelope (initialise, text, feed and cut).
package printer
