package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"gemmachat/internal/chat"
	"gemmachat/pkg/types"
)

// StatusSource reports the session state; *session.Manager satisfies it.
type StatusSource interface {
	Status() types.StatusResponse
	IsReady() bool
}

// ChatService serves one conversation over HTTP.
type ChatService struct {
	ctrl    *chat.Controller
	sess    StatusSource
	models  []types.Model
	started time.Time
}

// NewChatService builds the Service backing NewMux.
func NewChatService(ctrl *chat.Controller, sess StatusSource, models []types.Model) *ChatService {
	return &ChatService{
		ctrl:    ctrl,
		sess:    sess,
		models:  append([]types.Model(nil), models...),
		started: time.Now(),
	}
}

func (s *ChatService) ListModels() []types.Model { return append([]types.Model(nil), s.models...) }

func (s *ChatService) Status() types.StatusResponse {
	st := s.sess.Status()
	st.UptimeSeconds = int64(time.Since(s.started) / time.Second)
	return st
}

func (s *ChatService) Messages() types.MessagesResponse { return s.ctrl.Snapshot() }

func (s *ChatService) Ready() bool { return s.sess.IsReady() }

// chunkBuffer sizes the queue between dispatcher callbacks and the response writer.
const chunkBuffer = 64

// ErrSlowClient ends a stream whose reader fell more than chunkBuffer tokens behind.
var ErrSlowClient = errors.New("client too slow; stream ended")

// Chat sends req through the controller and writes the reply as it streams.
// Observer callbacks run on the session dispatcher and never block: when the
// writer falls behind, tokens are dropped and the stream ends with an error
// chunk. If ctx ends first the stream stops; either way the generation runs
// on and still lands in the conversation.
func (s *ChatService) Chat(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) error {
	chunks := make(chan types.ChatChunk, chunkBuffer)
	end := make(chan types.ChatChunk, 1)
	overflow := make(chan struct{})
	var once sync.Once
	push := func(c types.ChatChunk) {
		select {
		case <-overflow:
			return
		default:
		}
		select {
		case chunks <- c:
		default:
			once.Do(func() { close(overflow) })
		}
	}
	terminal := func(c types.ChatChunk) {
		select {
		case end <- c:
		default:
		}
	}
	reply, err := s.ctrl.Send(req.Prompt, chat.Observer{
		OnToken: func(_, tok string) { push(types.ChatChunk{Token: tok}) },
		OnDone:  func(m types.Message) { terminal(types.ChatChunk{Done: true, MessageID: m.ID}) },
		OnError: func(m types.Message, err error) {
			terminal(types.ChatChunk{Error: err.Error(), MessageID: m.ID})
		},
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	write := func(c types.ChatChunk) error {
		if err := enc.Encode(c); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	}
	slow := func() error {
		IncrementBackpressure("slow_client")
		return write(types.ChatChunk{Error: ErrSlowClient.Error(), MessageID: reply.ID})
	}
	for {
		select {
		case <-overflow:
			return slow()
		case c := <-chunks:
			if err := write(c); err != nil {
				return err
			}
		case c := <-end:
			for drained := false; !drained; {
				select {
				case tok := <-chunks:
					if err := write(tok); err != nil {
						return err
					}
				default:
					drained = true
				}
			}
			select {
			case <-overflow:
				return slow()
			default:
			}
			return write(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
