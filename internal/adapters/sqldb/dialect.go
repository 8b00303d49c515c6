package sqldb

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect captures the differences between the supported databases.
type dialect struct {
	driver   string
	blobType string
	numbered bool // $1, $2 placeholders instead of ?
}

var dialects = map[string]dialect{
	"sqlite3":  {driver: "sqlite3", blobType: "BLOB"},
	"sqlite":   {driver: "sqlite3", blobType: "BLOB"},
	"postgres": {driver: "pgx", blobType: "BYTEA", numbered: true},
	"pgx":      {driver: "pgx", blobType: "BYTEA", numbered: true},
}

func lookupDialect(name string) (dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported sql driver %q (use sqlite3 or postgres)", name)
	}
	return d, nil
}

// rebind rewrites ? placeholders for databases that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
