package isolevel

import "database/sql"

// Resolve maps a client-supplied isolation level name to the
// database/sql token. Names must match exactly; anything else
// falls back to READ COMMITTED, which is also what the engine
// defaults to when no level is requested.
func Resolve(name string) sql.IsolationLevel {
	switch name {
	case "READ UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ COMMITTED":
		return sql.LevelReadCommitted
	case "REPEATABLE READ":
		return sql.LevelRepeatableRead
	case "SNAPSHOT":
		return sql.LevelSnapshot
	case "SERIALIZABLE":
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}

// Name renders the level the way Resolve expects it back.
func Name(lvl sql.IsolationLevel) string {
	switch lvl {
	case sql.LevelReadUncommitted:
		return "READ UNCOMMITTED"
	case sql.LevelReadCommitted:
		return "READ COMMITTED"
	case sql.LevelRepeatableRead:
		return "REPEATABLE READ"
	case sql.LevelSnapshot:
		return "SNAPSHOT"
	case sql.LevelSerializable:
		return "SERIALIZABLE"
	default:
		return lvl.String()
	}
}
