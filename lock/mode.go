package lock

// Mode is a PostgreSQL table lock mode. See
// https://www.postgresql.org/docs/current/explicit-locking.html#LOCKING-TABLES.
type Mode string

// Table lock modes, from the weakest to the strongest.
const (
	// DefaultMode omits the IN ... MODE clause. The server then uses
	// ACCESS EXCLUSIVE.
	DefaultMode          Mode = ""
	AccessShare          Mode = "ACCESS SHARE"
	RowShare             Mode = "ROW SHARE"
	RowExclusive         Mode = "ROW EXCLUSIVE"
	ShareUpdateExclusive Mode = "SHARE UPDATE EXCLUSIVE"
	Share                Mode = "SHARE"
	ShareRowExclusive    Mode = "SHARE ROW EXCLUSIVE"
	Exclusive            Mode = "EXCLUSIVE"
	AccessExclusive      Mode = "ACCESS EXCLUSIVE"
)

var modes = map[Mode]struct{}{
	DefaultMode:          {},
	AccessShare:          {},
	RowShare:             {},
	RowExclusive:         {},
	ShareUpdateExclusive: {},
	Share:                {},
	ShareRowExclusive:    {},
	Exclusive:            {},
	AccessExclusive:      {},
}

// Valid reports whether m is a known lock mode.
func (m Mode) Valid() bool {
	_, ok := modes[m]
	return ok
}

// String returns the mode keyword, or "DEFAULT" for DefaultMode.
func (m Mode) String() string {
	if m == DefaultMode {
		return "DEFAULT"
	}
	return string(m)
}

// clause returns the IN ... MODE clause of a LOCK statement.
func (m Mode) clause() string {
	if m == DefaultMode {
		return ""
	}
	return " IN " + string(m) + " MODE"
}
