package protocol

// Mode is the access mode a file is opened under.
type Mode string

const (
	ReadOnly  Mode = "READ_ONLY"
	WriteOnly Mode = "WRITE_ONLY"
	ReadWrite Mode = "READ_WRITE"
)

// ParseMode accepts exactly the three wire spellings.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ReadOnly, WriteOnly, ReadWrite:
		return Mode(s), nil
	default:
		return "", ErrInvalidMode
	}
}

func (m Mode) String() string { return string(m) }

// ReadCapable reports whether READ is allowed under m.
func (m Mode) ReadCapable() bool {
	return m == ReadOnly || m == ReadWrite
}

// WriteCapable reports whether m requires an exclusive claim.
func (m Mode) WriteCapable() bool {
	return m == WriteOnly || m == ReadWrite
}
