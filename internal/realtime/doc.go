// Package realtime pushes queue and job events to websocket clients.
package realtime
