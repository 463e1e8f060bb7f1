package gemini

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/vango-go/vibevote/pkg/core/live"
)

// liveSession adapts a genai live session to live.VendorSession.
type liveSession struct {
	session   *genai.Session
	inputMIME string

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *liveSession) SendAudio(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: s.inputMIME, Data: frame},
	})
}

func (s *liveSession) Receive() (live.Event, error) {
	msg, err := s.session.Receive()
	if err != nil {
		return live.Event{}, err
	}
	return eventFromMessage(msg), nil
}

func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.session.Close()
	})
	return s.closeErr
}

// eventFromMessage collects the audio parts of a server message in order.
func eventFromMessage(msg *genai.LiveServerMessage) live.Event {
	var ev live.Event
	if msg == nil || msg.ServerContent == nil {
		return ev
	}
	sc := msg.ServerContent
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			if mt := part.InlineData.MIMEType; mt != "" && !strings.HasPrefix(mt, "audio/") {
				continue
			}
			ev.Audio = append(ev.Audio, part.InlineData.Data...)
		}
	}
	ev.Interrupted = sc.Interrupted
	ev.TurnComplete = sc.TurnComplete
	return ev
}
