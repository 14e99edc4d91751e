//go:build !(sqlite_vec && cgo)

package embedcache

import (
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver registered for this build. The
// embedding cache only needs key/value lookups (similarity search lives
// in internal/vectorstore), so the pure-Go modernc.org/sqlite driver is
// sufficient whenever the cgo sqlite-vec extension isn't built in,
// mirroring the teacher's vec_compat.go fallback split.
const driverName = "sqlite"
