package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	providerDialTimeout   = 10 * time.Second
	providerReconnectBase = 5 * time.Second
	providerMaxReconnects = 10
	sessionEndAckTimeout  = 500 * time.Millisecond
	longSessionThreshold  = time.Minute
)

// providerClient streams PCM frames to the speech provider over a
// websocket and feeds decoded utterance messages to the pipeline.
type providerClient struct {
	url    string
	token  string
	log    *slog.Logger
	frames <-chan []byte
	handle func(providerMsg)
}

func newProviderClient(url, token string, frames <-chan []byte, handle func(providerMsg), log *slog.Logger) *providerClient {
	return &providerClient{
		url:    url,
		token:  token,
		log:    log.With("component", "provider"),
		frames: frames,
		handle: handle,
	}
}

// run maintains the provider connection until the context is cancelled or
// the audio source is exhausted. Transport errors trigger a jittered
// reconnect; the back-off resets after any session that lasted a while.
func (p *providerClient) run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = providerReconnectBase
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0

	attempts := 0
	for {
		start := time.Now()
		err := p.runSession(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > longSessionThreshold {
			bo.Reset()
			attempts = 0
		}
		attempts++
		if attempts > providerMaxReconnects {
			return fmt.Errorf("provider unreachable after %d attempts: %w", attempts, err)
		}
		wait := bo.NextBackOff()
		p.log.Warn("provider session failed, reconnecting", "err", err, "attempt", attempts, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// runSession runs one websocket session. It returns nil on a clean end of
// session (audio exhausted and provider acknowledged, or context done).
func (p *providerClient) runSession(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: providerDialTimeout}
	header := http.Header{}
	if p.token != "" {
		header.Set("Authorization", "Bearer "+p.token)
	}
	conn, _, err := dialer.DialContext(ctx, p.url, header)
	if err != nil {
		return fmt.Errorf("dial provider: %w", err)
	}
	defer conn.Close()
	p.log.Info("provider connected", "url", p.url)

	sessionEnd := make(chan struct{})
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msg, err := parseProviderMsg(data)
			if err != nil {
				// Protocol errors never take down the session.
				p.log.Warn("discarding provider message", "err", err)
				continue
			}
			if msg.Kind == msgSessionEnd {
				select {
				case sessionEnd <- struct{}{}:
				default:
				}
			}
			p.handle(msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErr:
			return fmt.Errorf("provider read: %w", err)
		case frame, ok := <-p.frames:
			if !ok {
				return p.endSession(conn, sessionEnd, readErr)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return fmt.Errorf("send audio frame: %w", err)
			}
		}
	}
}

// endSession tells the provider the audio is finished and waits briefly
// for the final transcript acknowledgement.
func (p *providerClient) endSession(conn *websocket.Conn, sessionEnd <-chan struct{}, readErr <-chan error) error {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"end_of_session"}`)); err != nil {
		return fmt.Errorf("send end of session: %w", err)
	}
	select {
	case <-sessionEnd:
		p.log.Info("provider session ended")
	case err := <-readErr:
		if !errors.Is(err, context.Canceled) {
			p.log.Warn("provider closed before session end ack", "err", err)
		}
	case <-time.After(sessionEndAckTimeout):
		p.log.Warn("no session end ack from provider")
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}
