package domain

import "github.com/google/uuid"

// ProvisionalID tags an entity that has not been confirmed by the durable
// store yet. It is never compared with, or stored in place of, a durable id.
type ProvisionalID string

// NewProvisionalID returns a fresh random provisional id.
func NewProvisionalID() ProvisionalID {
	return ProvisionalID(uuid.NewString())
}

func (p ProvisionalID) String() string { return string(p) }
