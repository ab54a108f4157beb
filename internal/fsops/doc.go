// Package fsops implements the sandboxed filesystem core: path validation
// against a single storage root, stat-derived metadata records, and the
// directory/item operations built on top of them.
//
// Every operation resolves user paths through the Sandbox before any I/O.
// The metadata catalog is a best-effort write-through cache; its failures
// are logged and never surface to callers.
package fsops
