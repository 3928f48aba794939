package orders

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NumberGenerator issues human-facing order numbers of the form
// PREFIX-<base36 ms>-<4 hex>. Timestamps never repeat within a process.
type NumberGenerator struct {
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	last int64
}

func NewNumberGenerator(prefix string, now func() time.Time) *NumberGenerator {
	if now == nil {
		now = time.Now
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "ORD"
	}
	return &NumberGenerator{prefix: prefix, now: now}
}

func (g *NumberGenerator) Next() string {
	g.mu.Lock()
	ms := g.now().UTC().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()

	var suffix [2]byte
	_, _ = rand.Read(suffix[:])
	return g.prefix + "-" + strings.ToUpper(strconv.FormatInt(ms, 36)) + "-" + strings.ToUpper(hex.EncodeToString(suffix[:]))
}
