// Package websocket implements driven.Dialer and driven.Conn over
// gorilla/websocket. Each document gets its own connection to
// /ws/documents/{id} on the relay.
package websocket
