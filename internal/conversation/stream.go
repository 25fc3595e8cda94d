// internal/conversation/stream.go
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/axiomos/internal/command"
	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/types"
)

// RespondStream runs one turn and streams the reply. The returned channel is
// unbuffered and always closed. Cancelling ctx stops generation and
// suppresses every memory write of the turn.
func (o *Orchestrator) RespondStream(ctx context.Context, req Request) (<-chan Fragment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	out := make(chan Fragment)
	go func() {
		started := false
		err := o.schedule(ctx, req.SessionToken, func(ctx context.Context) error {
			started = true
			defer close(out)
			o.stream(ctx, req, out)
			return nil
		})
		if started {
			return
		}
		if err != nil {
			send(ctx, out, Fragment{Err: err})
		}
		close(out)
	}()
	return out, nil
}

// send delivers f unless ctx is done. It reports whether f was delivered.
func send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) stream(ctx context.Context, req Request, out chan<- Fragment) {
	st := o.prepare(ctx, req)
	sess := st.Session()
	logger := o.logger.With("session", sess.Token, "user_id", sess.UserID)

	if kind := st.Command().Kind; kind.Immediate() {
		// Clear only wipes session memory once the consumer took the reply.
		if send(ctx, out, Fragment{Token: immediateText(kind)}) &&
			send(ctx, out, Fragment{Done: true, SessionToken: sess.Token}) {
			st = o.immediate(context.WithoutCancel(ctx), st)
		}
		logger.Debug("stream complete", "command", kind, "trail", st.Advance(Done).Trail())
		return
	}

	user := o.userMessage(req)
	st = o.buildContext(st, user).Advance(Generating)

	deltas, err := o.provider.Stream(ctx, toLLM(st.Context()), st.Params())
	if err != nil {
		logger.Error("generation failed", "error", err)
		send(ctx, out, Fragment{Err: fmt.Errorf("%w: %w", ErrBackend, err), SessionToken: sess.Token})
		return
	}

	var sb strings.Builder
	for d := range deltas {
		if d.Err != nil {
			logger.Error("generation failed mid-stream", "error", d.Err)
			send(ctx, out, Fragment{Err: fmt.Errorf("%w: %w", ErrBackend, d.Err), SessionToken: sess.Token})
			return
		}
		if d.Content == "" {
			continue
		}
		if !send(ctx, out, Fragment{Token: d.Content}) {
			logger.Info("stream cancelled by consumer", "stage", st.Stage())
			return
		}
		sb.WriteString(d.Content)
	}
	if ctx.Err() != nil {
		logger.Info("stream cancelled by consumer", "stage", st.Stage())
		return
	}
	st = st.WithResponse(sb.String())

	// A remember entry is announced before the terminal fragment but only
	// written after the consumer accepted it.
	var pending *types.MemoryEntry
	switch st.Command().Kind {
	case command.Remember:
		entry := o.rememberEntry(st, user)
		if o.memory.LongTermAvailable() {
			pending = &entry
			st = rememberOutcome(st, entry, nil)
		} else {
			st = rememberOutcome(st, types.MemoryEntry{}, memory.ErrLongTermUnavailable)
		}
	case command.Recall:
		st = st.WithAnnotation(recallNote(st))
	}
	if note := st.Annotation(); note != "" {
		if !send(ctx, out, Fragment{Token: note}) {
			logger.Info("stream cancelled by consumer", "stage", st.Stage())
			return
		}
	}
	if !send(ctx, out, Fragment{Done: true, SessionToken: sess.Token}) {
		logger.Info("stream cancelled by consumer", "stage", st.Stage())
		return
	}

	// The turn is complete from here on; writes must not be cut short by a
	// later disconnect.
	wctx := context.WithoutCancel(ctx)
	if pending != nil {
		if _, err := o.memory.SaveLongTerm(wctx, *pending); err != nil {
			logger.Error("remember write failed after reply was sent", "error", err)
			st = st.WithHealth(types.Degraded)
		}
	}
	st = o.persist(wctx, st, user).Advance(Done)
	logger.Debug("stream complete", "command", st.Command().Kind, "trail", st.Trail(), "health", st.Health())
}

// Collect drains a fragment stream into the reply text. It returns the
// session token from the terminal fragment and the first error seen.
func Collect(frags <-chan Fragment) (string, types.SessionToken, error) {
	var sb strings.Builder
	var token types.SessionToken
	var err error
	for f := range frags {
		switch {
		case f.Err != nil:
			if err == nil {
				err = f.Err
			}
		case f.Done:
			token = f.SessionToken
		default:
			sb.WriteString(f.Token)
		}
	}
	return sb.String(), token, err
}
