package spool

import "fmt"

// DumpType selects the on-disk record format a Spooler writes, matching the
// --client_dumptype / --subscribe_dumptype CLI values in spec.md §6.
type DumpType uint8

const (
	// Binary is the tagged [magic][flags][size][payload] record format
	// (spec.md §3). It is the only format Read/Truncate support.
	Binary DumpType = iota
	// PlainText writes payload + newline only.
	PlainText
	// PlainTime prefixes each record with "[YYYY-MM-DD HH:MM:SS] ".
	PlainTime
	// PlainFlags prefixes each record with "[flags] ".
	PlainFlags
	// PlainTimeFlags prefixes each record with both the timestamp and the
	// flags value, timestamp first. "plain-flags-time" is the same format
	// (spec.md §6 treats the two CLI spellings as equivalent).
	PlainTimeFlags
)

func (t DumpType) String() string {
	switch t {
	case Binary:
		return "binary"
	case PlainText:
		return "plain-text"
	case PlainTime:
		return "plain-time"
	case PlainFlags:
		return "plain-flags"
	case PlainTimeFlags:
		return "plain-time-flags"
	default:
		return "unknown"
	}
}

// ParseDumpType parses a --*_dumptype CLI/YAML value.
func ParseDumpType(s string) (DumpType, error) {
	switch s {
	case "binary":
		return Binary, nil
	case "plain-text":
		return PlainText, nil
	case "plain-time":
		return PlainTime, nil
	case "plain-flags":
		return PlainFlags, nil
	case "plain-time-flags", "plain-flags-time":
		return PlainTimeFlags, nil
	default:
		return 0, fmt.Errorf("spool: unknown dump type %q", s)
	}
}

func (t DumpType) binary() bool { return t == Binary }
func (t DumpType) withTime() bool {
	return t == PlainTime || t == PlainTimeFlags
}
func (t DumpType) withFlags() bool {
	return t == PlainFlags || t == PlainTimeFlags
}
