package service

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// AccountNumberGenerator produces candidate account numbers. Candidates may
// collide; the store rejects duplicates and the ledger retries.
type AccountNumberGenerator interface {
	Next() string
}

// accountNumberSpace is 10^10: ten digits after the ACC prefix.
const accountNumberSpace = 10_000_000_000

// RandomAccountNumbers draws ten digits from a random UUID.
type RandomAccountNumbers struct{}

func (RandomAccountNumbers) Next() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[8:]) % accountNumberSpace
	return fmt.Sprintf("ACC%010d", n)
}
