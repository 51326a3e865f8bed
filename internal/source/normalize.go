package source

import (
	"context"
	"strings"
)

// Normalizer turns a raw message into searchable text. ok is false when the
// message carries nothing worth indexing.
type Normalizer interface {
	Normalize(ctx context.Context, msg Message) (text string, ok bool)
}

// TextNormalizer indexes the message text prefixed with a bracketed media
// label, e.g. "[photo] caption".
type TextNormalizer struct{}

// Normalize implements Normalizer.
func (TextNormalizer) Normalize(_ context.Context, msg Message) (string, bool) {
	var parts []string
	if media := strings.TrimSpace(msg.Media); media != "" {
		parts = append(parts, "["+media+"]")
	}
	if text := strings.TrimSpace(msg.Text); text != "" {
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// Phase labels the crawl stage a store write belongs to. It only feeds log
// attributes.
type Phase string

const (
	PhaseProbe    Phase = "probe"
	PhaseForward  Phase = "forward"
	PhaseBackward Phase = "backward"
)

type phaseKey struct{}

// WithPhase returns a context carrying the crawl phase.
func WithPhase(ctx context.Context, p Phase) context.Context {
	return context.WithValue(ctx, phaseKey{}, p)
}

// PhaseFromContext returns the crawl phase stored in ctx, or "" if none.
func PhaseFromContext(ctx context.Context) Phase {
	p, _ := ctx.Value(phaseKey{}).(Phase)
	return p
}
