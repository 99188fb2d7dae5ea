package usecase

import (
	"context"
	"strings"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

// eventSink is the single exit point for events in a turn. It dedupes
// against everything already seen, including events replayed from
// thread history, so a client that resends history never renders the
// same tool card or paragraph twice.
type eventSink struct {
	ctx          context.Context
	out          chan<- domain.EmittedEvent
	seen         map[string]struct{}
	emitted      int
	suppressed   int
	disconnected bool
}

func newEventSink(ctx context.Context, out chan<- domain.EmittedEvent) *eventSink {
	return &eventSink{ctx: ctx, out: out, seen: make(map[string]struct{})}
}

// seedFromHistory registers the dedup keys of prior-turn events so
// replays are suppressed rather than re-emitted.
func (s *eventSink) seedFromHistory(messages []domain.Message) {
	for _, m := range messages {
		switch m.Role {
		case domain.RoleAssistant:
			text := strings.TrimSpace(StripContextMarker(m.Content))
			if text == "" {
				continue
			}
			// A stored assistant turn may hold several emitted texts
			// joined by blank lines, and any emitted text may itself
			// span paragraphs. Seeding every contiguous paragraph run
			// covers both shapes.
			parts := strings.Split(text, "\n\n")
			for i := range parts {
				for j := i; j < len(parts); j++ {
					frag := strings.TrimSpace(strings.Join(parts[i:j+1], "\n\n"))
					if frag != "" {
						s.seen["text:"+frag] = struct{}{}
					}
				}
			}
		case domain.RoleTool:
			if m.ToolCallID != "" {
				s.seen["in:"+m.ToolCallID] = struct{}{}
				s.seen["out:"+m.ToolCallID] = struct{}{}
			}
		}
	}
}

// emit sends one event unless it is a duplicate or empty. It returns
// false only when the client has gone away, so callers can stop
// producing early.
func (s *eventSink) emit(ev domain.EmittedEvent) bool {
	if s.disconnected {
		return false
	}
	if ev.Type == domain.EventTextDelta {
		ev.Text = strings.TrimSpace(StripContextMarker(ev.Text))
		if ev.Text == "" {
			return true
		}
	}

	key := ev.Key()
	if _, dup := s.seen[key]; dup {
		s.suppressed++
		return true
	}
	s.seen[key] = struct{}{}

	select {
	case s.out <- ev:
		s.emitted++
		return true
	case <-s.ctx.Done():
		s.disconnected = true
		return false
	}
}
