//go:build sqlite_vec && cgo

package embedcache

import (
	_ "github.com/mattn/go-sqlite3"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// driverName is the database/sql driver registered for this build.
// Under the sqlite_vec+cgo tag combination, cv links the real
// sqlite-vec extension against mattn/go-sqlite3, mirroring the
// teacher's internal/store/init_vec.go.
const driverName = "sqlite3"

func init() {
	vec.Auto()
}
