package fieldcrypt

// Status is how a stored value was opened.
type Status int

const (
	StatusEmpty Status = iota
	StatusCurrent
	StatusPrevious
	StatusFailed
)

// Result is the outcome of Decrypt. Every call site chooses one of the
// accessors below; there is no implicit fallback.
type Result struct {
	plaintext string
	status    Status
	stored    Sealed
}

func (r Result) Status() Status { return r.status }

// Failed reports the DecryptFailed case.
func (r Result) Failed() bool { return r.status == StatusFailed }

// Value is the strict policy: a failed field is an error.
func (r Result) Value() (string, error) {
	if r.status == StatusFailed {
		return "", ErrDecryptFailed
	}
	return r.plaintext, nil
}

// OrLegacy is the passthrough policy for rows written before encryption was
// introduced: a failed value that is not sealed-shaped is returned as the
// plaintext it is. A sealed-shaped failure still yields "" so ciphertext is
// never shown as if it were data.
func (r Result) OrLegacy() string {
	if r.status != StatusFailed {
		return r.plaintext
	}
	if r.stored.LooksSealed() {
		return ""
	}
	return string(r.stored)
}

// OrEmpty is the omit policy: failed fields are dropped.
func (r Result) OrEmpty() string {
	if r.status == StatusFailed {
		return ""
	}
	return r.plaintext
}

// NeedsRotation reports values not sealed under the current key.
func (r Result) NeedsRotation() bool {
	return r.status == StatusPrevious || r.status == StatusFailed
}
