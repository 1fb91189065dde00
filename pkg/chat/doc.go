// Package chat implements the per-session conversation core.
//
// Invariants:
// - All requests for the same session id are serialized by a per-session lock.
// - The persisted transcript grows by exactly two turns per successful request.
// - Nothing is persisted when generation or storage fails mid-request.
// - Only the most recent MaxTurns turns feed the prompt and the response history.
//
// Usage:
//
//	mgr := chat.NewManager(store, gen, chat.Options{}, logger, nil)
//	reply, history, _ := mgr.HandleMessage(ctx, "session:1", "hello")
//	_ = reply
//	_ = history
package chat
