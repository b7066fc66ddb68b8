package tools

// Output caps for tools that can produce unbounded output.
const (
	// ShellOutputCap limits combined stdout+stderr of shell commands.
	ShellOutputCap = 50000

	// GrepOutputCap limits aggregate grep output.
	GrepOutputCap = 50000
)

// TruncationNotice is the sentinel line appended to truncated output.
const TruncationNotice = "\n... [output truncated]"

// Truncate caps s at max characters, appending the truncation sentinel when
// anything was cut. The returned bool reports whether truncation happened.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max] + TruncationNotice, true
}
