package llm

// scanner walks JSON text one byte at a time, tracking string state and the
// stack of open brackets and braces. Extract and IsTruncated share it so both
// agree on what counts as structure.
type scanner struct {
	inString bool
	escaped  bool

	stack []byte

	// mismatched is set when a closer does not match the innermost opener.
	mismatched bool

	// lastString is the index at which the most recent string literal began.
	lastString int
	pos        int
}

func (s *scanner) feed(c byte) {
	pos := s.pos
	s.pos++

	if s.inString {
		switch {
		case s.escaped:
			s.escaped = false
		case c == '\\':
			s.escaped = true
		case c == '"':
			s.inString = false
		}
		return
	}

	switch c {
	case '"':
		s.inString = true
		s.lastString = pos
	case '{', '[':
		s.push(c)
	case '}':
		s.pop('{')
	case ']':
		s.pop('[')
	}
}

func (s *scanner) push(c byte) {
	s.stack = append(s.stack, c)
}

func (s *scanner) pop(opener byte) {
	if len(s.stack) == 0 {
		s.mismatched = true
		return
	}
	if s.stack[len(s.stack)-1] != opener {
		s.mismatched = true
	}
	s.stack = s.stack[:len(s.stack)-1]
}

// closed reports whether every structure opened so far has been closed.
func (s *scanner) closed() bool {
	return !s.inString && len(s.stack) == 0
}

// depth is the number of structures still open.
func (s *scanner) depth() int {
	return len(s.stack)
}

// innermost returns the innermost open structure, or 0 when none is open.
func (s *scanner) innermost() byte {
	if len(s.stack) == 0 {
		return 0
	}
	return s.stack[len(s.stack)-1]
}
