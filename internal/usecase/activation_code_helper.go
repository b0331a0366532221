package usecase

import (
	"crypto/rand"
	"io"
	mrand "math/rand/v2"
)

const (
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeRandomLength  = 8
	DefaultCodePrefix = "RY"
)

// CodeGenerator produces candidate activation codes. Collision checks are the
// caller's job.
type CodeGenerator interface {
	Generate() (string, error)
}

type randomCodeGenerator struct {
	prefix string
	src    io.Reader
}

// NewCodeGenerator returns a generator of prefix + 8 characters drawn
// uniformly from A-Z0-9.
func NewCodeGenerator(prefix string) CodeGenerator {
	if prefix == "" {
		prefix = DefaultCodePrefix
	}
	return &randomCodeGenerator{prefix: prefix, src: rand.Reader}
}

func (g *randomCodeGenerator) Generate() (string, error) {
	buf := make([]byte, codeRandomLength)
	if err := g.fill(buf); err != nil {
		// the system source failed; a non-crypto draw is still usable here
		for i := range buf {
			buf[i] = codeAlphabet[mrand.IntN(len(codeAlphabet))]
		}
		return g.prefix + string(buf), nil
	}
	return g.prefix + string(buf), nil
}

// fill draws unbiased alphabet indices by rejecting bytes >= 252 (7*36).
func (g *randomCodeGenerator) fill(dst []byte) error {
	const limit = 256 - 256%len(codeAlphabet)
	var one [1]byte
	for i := 0; i < len(dst); {
		if _, err := io.ReadFull(g.src, one[:]); err != nil {
			return err
		}
		if int(one[0]) >= limit {
			continue
		}
		dst[i] = codeAlphabet[int(one[0])%len(codeAlphabet)]
		i++
	}
	return nil
}
