// ABOUTME: Level feed wire protocol package
// ABOUTME: Defines feed messages and the WebSocket watcher client
// Package protocol implements the level feed protocol.
//
// A capture client publishes its negotiated format and per-channel peaks
// over a websocket at LevelsPath. Every frame is a JSON Message with a type
// and a payload.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "host:8928", Name: "watcher"})
//	err := client.Connect(ctx)
//	for levels := range client.Levels {
//		...
//	}
package protocol
