// Package ormlite maps Go record types onto SQLite tables: it derives
// table schema from a TableDescriptor, migrates an existing database
// additively, and provides a prepared-statement-backed CRUD pipeline with
// nested savepoint transactions and synchronous change notification.
//
// Callers build a TableDescriptor once per record type (by hand or with
// generated code; this package never inspects a type via reflection for
// schema purposes) and register it with RegisterType. Insert, Upsert,
// Update, Delete, Query, and FindByPK are generic over the registered type;
// Migrate takes the TableDescriptor itself.
package ormlite
