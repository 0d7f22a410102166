// Package api serves the HTTP and websocket interface.
package api
