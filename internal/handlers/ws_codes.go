// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError = 3000 // Client offered subprotocols, none of them "memory".
	JoinFailedError     = 3004 // The room could not be joined, usually a store outage.
)
