package correlation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// HeaderName is the request header carrying the correlation ID to the backend
const HeaderName = "X-Correlation-ID"

// IDGenerator generates correlation IDs for outgoing requests
type IDGenerator struct {
	prefix string
	mu     sync.Mutex
	rng    *rand.Rand
	now    func() time.Time
}

// NewIDGenerator creates a generator whose IDs start with prefix
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{
		prefix: prefix,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// Generate creates a new correlation ID
// Format: {prefix}-{unix seconds}-{6 hex digits}
// Example: console-1699564823-a3f9c2
func (g *IDGenerator) Generate() string {
	g.mu.Lock()
	random := g.rng.Intn(0xFFFFFF)
	g.mu.Unlock()
	return fmt.Sprintf("%s-%d-%06x", g.prefix, g.now().Unix(), random)
}

type contextKey string

const idKey contextKey = "correlation_id"

// WithID stores a correlation ID in ctx
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// FromContext returns the correlation ID stored in ctx, if any
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey).(string)
	return id, ok && id != ""
}

// Ensure returns the ID already carried by ctx, or generates one and
// returns a derived context carrying it.
func Ensure(ctx context.Context, g *IDGenerator) (string, context.Context) {
	if id, ok := FromContext(ctx); ok {
		return id, ctx
	}
	id := g.Generate()
	return id, WithID(ctx, id)
}
