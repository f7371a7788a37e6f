// Package stores provides persistence layer implementations for
// cloudmast. It includes SQLite-based storage with WAL mode, connection
// pooling, and CRUD operations for resources, lifecycle operations,
// alerts, vendor catalogs, billing plans, agreements, events, and audit
// logs.
package stores
