// Package postgres implements outbox.OutboxStore and outbox.IntentStore
// against PostgreSQL: Repository claims work with SELECT ... FOR UPDATE SKIP
// LOCKED and keeps the outbox_entries/domain_entities tables in sync within
// single transactions per the cross-table update requirement. See
// migrations/ for the schema this package assumes.
package postgres
