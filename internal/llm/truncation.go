package llm

// IsTruncated reports whether candidate is still structurally incomplete: a
// string or structure left open, or closers that do not match their openers.
//
// It runs the same scanner Extract uses and is meant for warnings only. A true
// result after Extract has already repaired the candidate means the repair could
// not restore a consistent structure.
func IsTruncated(candidate string) bool {
	var sc scanner
	for i := 0; i < len(candidate); i++ {
		sc.feed(candidate[i])
	}
	return sc.inString || sc.depth() > 0 || sc.mismatched
}
