// Package dispatch provides coordinator.Dispatcher implementations.
//
// Queue publishes a JSON message per due entry to a Redis list, for an
// external worker fleet to consume. Pool runs registered Go handlers on a
// bounded in-process worker pool. Neither reports execution results back to
// the scheduler: a due entry is advanced once it has been handed off.
package dispatch
