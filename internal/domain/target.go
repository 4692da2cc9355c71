package domain

import "fmt"

// Target identifies the recipient of an individual send: either a
// stored contact or a raw phone number, never both. Construct with
// ByContact or ByPhone; the zero Target is invalid.
type Target struct {
	contactID int64
	phone     string
}

func ByContact(id int64) Target { return Target{contactID: id} }
func ByPhone(number string) Target {
	return Target{phone: number}
}

func (t Target) ContactID() (int64, bool) {
	return t.contactID, t.contactID != 0
}

func (t Target) Phone() (string, bool) {
	return t.phone, t.phone != ""
}

// Validate enforces exactly one populated variant.
func (t Target) Validate() error {
	ids := t.contactID != 0
	ph := t.phone != ""
	switch {
	case ids && ph:
		return fmt.Errorf("%w: both contact id and phone set", ErrInvalidInput)
	case !ids && !ph:
		return fmt.Errorf("%w: neither contact id nor phone set", ErrInvalidInput)
	}
	return nil
}

func (t Target) String() string {
	if t.contactID != 0 {
		return fmt.Sprintf("contact:%d", t.contactID)
	}
	if t.phone != "" {
		return "phone:" + t.phone
	}
	return "target:empty"
}
