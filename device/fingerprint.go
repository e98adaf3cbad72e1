// Package device derives a stable hash identifying the machine the client is
// running on. The hash binds sessions to a browsing context; it is an
// identity hint, not a secret, and is not guaranteed globally unique.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// componentDelimiter joins sampled signals into the digest input.
const componentDelimiter = "|"

// Fingerprint is the result of one sampling pass. The caller is responsible
// for persisting it; the generator performs no I/O beyond sampling.
type Fingerprint struct {
	Hash       string    `json:"hash"`
	Components []string  `json:"components"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Probe samples one environment signal. Probes are independent and
// individually failable: a probe that cannot run in the current environment
// is simply omitted from the digest input.
type Probe struct {
	Name   string
	Sample func() (string, error)
}

// DigestFunc hashes the joined component string into a fixed-length hex value.
type DigestFunc func([]byte) string

// SHA256Digest is the preferred digest.
func SHA256Digest(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// FNVDigest is the deterministic fallback for environments without a
// cryptographic digest primitive.
func FNVDigest(input []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(input)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Generator runs an ordered list of probes and digests the result.
type Generator struct {
	probes  []Probe
	digest  DigestFunc
	nowTime func() time.Time
}

// Option modifies a Generator instance.
type Option func(*Generator)

// WithProbes replaces the default probe list.
func WithProbes(probes ...Probe) Option {
	return func(g *Generator) {
		g.probes = probes
	}
}

// WithDigest replaces the digest function.
func WithDigest(digest DigestFunc) Option {
	return func(g *Generator) {
		g.digest = digest
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *Generator) {
		g.nowTime = nowFunc
	}
}

// NewGenerator creates a Generator with the default probe set and SHA-256
// digest.
func NewGenerator(options ...Option) *Generator {
	g := &Generator{
		probes:  DefaultProbes(),
		digest:  SHA256Digest,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	if g.digest == nil {
		g.digest = FNVDigest
	}
	return g
}

// Generate samples every probe in order and digests the joined components.
// Missing signals shrink the input but never abort the computation.
func (g *Generator) Generate() *Fingerprint {
	components := make([]string, 0, len(g.probes))
	for _, probe := range g.probes {
		value, err := probe.Sample()
		if err != nil {
			log.Debug().Str("probe", probe.Name).Err(err).Msg("fingerprint probe unavailable")
			continue
		}
		components = append(components, value)
	}

	return &Fingerprint{
		Hash:       g.digest([]byte(strings.Join(components, componentDelimiter))),
		Components: components,
		CapturedAt: g.nowTime(),
	}
}
