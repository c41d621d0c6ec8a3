// Package swcache implements offline cache gatekeeper of a client-side web application.
// Focused on serving application assets without network and keeping them fresh.
//
// Features:
//
//   - Versioned cache generations, stale generations are removed on activation.
//   - Manifest assets are populated on install, install is all-or-nothing.
//   - Cache-first serving with background refresh of documents.
//   - Network responses are stored asynchronously, storage failures never affect the caller.
//   - Offline document fallback for navigation requests.
//   - Control messages, background sync and push notification hooks.
//   - Explicit event dispatch table, decision functions are pure and testable without host.
//   - Allows logging, stats collection.
//   - Pluggable storage: sharded in-memory maps with gob snapshots, or SQLite (see sqlitestore).
package swcache
