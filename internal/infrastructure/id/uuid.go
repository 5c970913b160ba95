package id

import "github.com/google/uuid"

// UUIDGenerator issues random version 4 UUIDs, optionally with a prefix such as "ord_".
type UUIDGenerator struct {
	prefix string
}

func NewUUIDGenerator(prefix string) *UUIDGenerator {
	return &UUIDGenerator{prefix: prefix}
}

func (g *UUIDGenerator) NewID() string {
	return g.prefix + uuid.NewString()
}
