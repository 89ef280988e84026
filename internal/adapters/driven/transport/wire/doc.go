// Package wire defines the JSON shapes exchanged between the formsync client
// and relay server: the per-document message envelope carried over the
// websocket, and the REST payloads of the document API.
package wire
