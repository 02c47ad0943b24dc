// Package userstore persists otcAuth accounts in SQL through sqlx.
//
// SQLite (modernc.org/sqlite), Postgres (lib/pq) and Postgres through pgx
// are supported. [Migrate] applies the embedded golang-migrate schema for
// the chosen driver.
package userstore
