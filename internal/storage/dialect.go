package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect covers the few places where PostgreSQL and MySQL/TiDB SQL differ.
// Queries are written with ? placeholders and rebound for PostgreSQL.
type dialect struct {
	name string
	// driverName is the database/sql driver registered for this dialect
	driverName string
	numbered   bool
	returning  bool
}

var (
	postgresDialect = dialect{name: "postgres", driverName: "pgx", numbered: true, returning: true}
	mysqlDialect    = dialect{name: "mysql", driverName: "mysql"}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return postgresDialect, nil
	case "mysql", "tidb":
		return mysqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// rebind rewrites ? placeholders to $1, $2, ... when the dialect needs it.
// Queries here never contain a literal question mark.
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

func (d dialect) text(expr string) string {
	if d.numbered {
		return "CAST(" + expr + " AS TEXT)"
	}
	return "CAST(" + expr + " AS CHAR)"
}

// joinNames aggregates material names into one comma separated string
func (d dialect) joinNames() string {
	if d.numbered {
		return "string_agg(name, ',' ORDER BY id)"
	}
	return "GROUP_CONCAT(name ORDER BY id SEPARATOR ',')"
}
