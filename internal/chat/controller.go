// Package chat keeps the conversation and drives the session on behalf of a
// single user.
package chat

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"gemmachat/internal/session"
	"gemmachat/pkg/types"
)

var (
	// ErrProcessing rejects a message while the previous reply is streaming.
	ErrProcessing = errors.New("already processing a message")
	// ErrEmptyPrompt rejects a blank message.
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// Generator is the slice of session.Manager the controller drives.
type Generator interface {
	Generate(prompt string, l session.Listener) error
	IsReady() bool
	LastError() error
}

// Observer is notified as the assistant reply for one Send streams in.
// Callbacks run on the session's dispatcher after the store is updated.
// Nil funcs are skipped.
type Observer struct {
	OnToken func(messageID, token string)
	OnDone  func(msg types.Message)
	OnError func(msg types.Message, err error)
}

// Controller turns user messages into session generations and keeps the
// conversation store in step with the reply stream.
type Controller struct {
	gen   Generator
	store *Store
	log   zerolog.Logger

	mu         sync.Mutex
	processing bool
	errMsg     string
}

// NewController wires gen to store. log may be nil.
func NewController(gen Generator, store *Store, log *zerolog.Logger) *Controller {
	c := &Controller{gen: gen, store: store, log: zerolog.Nop()}
	if log != nil {
		c.log = log.With().Str("component", "chat").Logger()
	}
	if c.store == nil {
		c.store = NewStore()
	}
	return c
}

// InitWaiter returns a waiter for session.Manager.RequestInit that records an
// initialization failure in the conversation.
func (c *Controller) InitWaiter() func(session.Outcome) {
	return func(o session.Outcome) {
		if o.Ready {
			c.log.Info().Str("event", "model_ready").Msg("model ready")
			return
		}
		if errors.Is(o.Err, session.ErrShutDown) {
			return
		}
		reason := "unknown error"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		c.setError(reason)
		c.store.Append(types.RoleAssistant, "Model initialization failed: "+reason)
		c.log.Error().Str("event", "model_failed").Str("reason", reason).Msg("model initialization failed")
	}
}

// Send appends prompt as a user message, opens an empty assistant message and
// starts a generation that streams into it. It returns the assistant message
// as created. Only one Send may be in progress.
func (c *Controller) Send(prompt string, obs Observer) (types.Message, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return types.Message{}, ErrEmptyPrompt
	}
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return types.Message{}, ErrProcessing
	}
	c.processing = true
	c.errMsg = ""
	c.mu.Unlock()

	c.store.Append(types.RoleUser, prompt)
	reply := c.store.Append(types.RoleAssistant, "")
	id := reply.ID

	// The session reports busy through OnError as well; the listener below
	// is the single place that ends processing.
	_ = c.gen.Generate(prompt, session.Listener{
		OnToken: func(tok string) {
			c.store.AppendContent(id, tok)
			if obs.OnToken != nil {
				obs.OnToken(id, tok)
			}
		},
		OnDone: func() {
			c.finish("")
			msg, _ := c.store.Get(id)
			if obs.OnDone != nil {
				obs.OnDone(msg)
			}
		},
		OnError: func(err error) {
			// Listener callbacks are serialized, so nothing writes id between Get and Patch.
			msg, _ := c.store.Get(id)
			msg.Content += " [Error: " + err.Error() + "]"
			c.store.Patch(id, msg.Content)
			c.finish(err.Error())
			c.log.Warn().Err(err).Str("event", "reply_failed").Str("message_id", id).Msg("generation failed")
			if obs.OnError != nil {
				obs.OnError(msg, err)
			}
		},
	})
	return reply, nil
}

func (c *Controller) finish(errMsg string) {
	c.mu.Lock()
	c.processing = false
	if errMsg != "" {
		c.errMsg = errMsg
	}
	c.mu.Unlock()
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

// Processing reports whether a reply is streaming.
func (c *Controller) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// ErrorMessage returns the last user-visible error, if any.
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

func (c *Controller) ClearError() { c.setError("") }

func (c *Controller) Messages() []types.Message { return c.store.Messages() }

// Snapshot builds the /messages payload.
func (c *Controller) Snapshot() types.MessagesResponse {
	c.mu.Lock()
	processing, errMsg := c.processing, c.errMsg
	c.mu.Unlock()
	return types.MessagesResponse{
		Messages:   c.store.Messages(),
		Processing: processing,
		Error:      errMsg,
	}
}

// Ready reports whether replies come from the model rather than the fallback text.
func (c *Controller) Ready() bool { return c.gen.IsReady() }
