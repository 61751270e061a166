package characterai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alienxp03/rpgen/internal/chat"
)

const (
	originID   = "web-next"
	writeWait  = 10 * time.Second
	visibility = "VISIBILITY_PRIVATE"
	chatType   = "TYPE_ONE_ON_ONE"
)

var errNoMessage = errors.New("no message before deadline")

type session struct {
	conn         *websocket.Conn
	account      Account
	characterID  string
	chatID       string
	greeting     string
	timeout      time.Duration
	greetingWait time.Duration
	closed       bool

	msgs      chan *response
	done      chan struct{}
	quit      chan struct{}
	readErr   error
	closeOnce sync.Once
}

var _ chat.Session = (*session)(nil)

func newSession(conn *websocket.Conn, acct Account, characterID string, timeout, greetingWait time.Duration) *session {
	s := &session{
		conn:         conn,
		account:      acct,
		characterID:  characterID,
		timeout:      timeout,
		greetingWait: greetingWait,
		msgs:         make(chan *response),
		done:         make(chan struct{}),
		quit:         make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *session) Greeting() string {
	return s.greeting
}

// Send posts the user's message and waits for the character's final reply.
// A reply that does not arrive within the timeout is a transient failure;
// the connection stays open for the retry.
func (s *session) Send(ctx context.Context, text string) (string, error) {
	if s.closed {
		return "", chat.ErrSessionExpired
	}
	s.drain()

	candidateID := uuid.New().String()
	req := request{
		Command:   cmdCreateAndGenerate,
		RequestID: uuid.New().String(),
		OriginID:  originID,
		Payload: generateTurnPayload{
			NumCandidates: 1,
			CharacterID:   s.characterID,
			UserName:      s.account.Username,
			Turn: turn{
				TurnKey: turnKey{ChatID: s.chatID, TurnID: uuid.New().String()},
				Author: author{
					AuthorID: s.account.ID,
					Name:     s.account.Username,
					IsHuman:  true,
				},
				Candidates:         []candidate{{CandidateID: candidateID, RawContent: text}},
				PrimaryCandidateID: candidateID,
			},
		},
	}
	if err := s.write(ctx, req); err != nil {
		return "", err
	}

	deadline := time.Now().Add(s.timeout)
	for {
		msg, err := s.next(ctx, deadline)
		if errors.Is(err, errNoMessage) {
			return "", fmt.Errorf("%w: no reply within %s", chat.ErrTransient, s.timeout)
		}
		if err != nil {
			return "", err
		}
		if !sameRequest(msg, req.RequestID) {
			continue
		}
		switch msg.Command {
		case cmdNeoError:
			return "", &APIError{Command: cmdCreateAndGenerate, Comment: msg.Comment}
		case cmdAddTurn, cmdUpdateTurn:
			if reply, ok := s.characterReply(msg); ok {
				return reply, nil
			}
		}
	}
}

// Close ends the websocket connection.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed = true
		close(s.quit)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

// createChat opens the chat and collects the character's greeting. The
// chat exists once create_chat_response arrives; the greeting turn is
// optional and only waited for briefly after that.
func (s *session) createChat(ctx context.Context) error {
	s.chatID = uuid.New().String()
	req := request{
		Command:   cmdCreateChat,
		RequestID: uuid.New().String(),
		OriginID:  originID,
		Payload: createChatPayload{
			Chat: chatInfo{
				ChatID:      s.chatID,
				CreatorID:   s.account.ID,
				Visibility:  visibility,
				CharacterID: s.characterID,
				Type:        chatType,
			},
			WithGreeting: true,
		},
	}
	if err := s.write(ctx, req); err != nil {
		return err
	}

	deadline := time.Now().Add(s.timeout)
	created := false
	for !created || s.greeting == "" {
		msg, err := s.next(ctx, deadline)
		if errors.Is(err, errNoMessage) {
			if created {
				slog.Debug("No greeting from character", "character_id", s.characterID)
				return nil
			}
			return fmt.Errorf("%w: no create_chat_response within %s", chat.ErrTransient, s.timeout)
		}
		if err != nil {
			return err
		}
		if !sameRequest(msg, req.RequestID) {
			continue
		}
		switch msg.Command {
		case cmdNeoError:
			return &APIError{Command: cmdCreateChat, Comment: msg.Comment}
		case cmdCreateChatResponse:
			created = true
			if msg.Chat != nil && msg.Chat.ChatID != "" {
				s.chatID = msg.Chat.ChatID
			}
			if s.greeting == "" {
				if d := time.Now().Add(s.greetingWait); d.Before(deadline) {
					deadline = d
				}
			}
		case cmdAddTurn, cmdUpdateTurn:
			if reply, ok := s.characterReply(msg); ok {
				s.greeting = reply
			}
		}
	}
	return nil
}

// sameRequest reports whether msg answers the request with the given id.
// Messages without a request id are accepted.
func sameRequest(msg *response, requestID string) bool {
	return msg.RequestID == "" || msg.RequestID == requestID
}

// characterReply extracts the final text of a character turn in this chat.
func (s *session) characterReply(msg *response) (string, bool) {
	if msg.Turn == nil || msg.Turn.Author.IsHuman {
		return "", false
	}
	if id := msg.Turn.TurnKey.ChatID; id != "" && id != s.chatID {
		return "", false
	}
	c, ok := msg.Turn.primary()
	if !ok || !c.IsFinal {
		return "", false
	}
	return c.RawContent, true
}

func (s *session) write(ctx context.Context, req request) error {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return s.expire(err)
	}
	if err := s.conn.WriteJSON(req); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.expire(err)
	}
	return nil
}

// readLoop pumps decoded messages to next until the connection fails or
// the session is closed.
func (s *session) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr = err
			return
		}
		var msg response
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Skipping undecodable websocket message", "error", err)
			continue
		}
		select {
		case s.msgs <- &msg:
		case <-s.quit:
			return
		}
	}
}

// next waits for the next message until deadline. A failed connection
// expires the session; running out of time returns errNoMessage.
func (s *session) next(ctx context.Context, deadline time.Time) (*response, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case msg := <-s.msgs:
		return msg, nil
	case <-s.done:
		return nil, s.expire(s.readErr)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errNoMessage
	}
}

// drain discards replies to earlier requests that arrived after they
// timed out.
func (s *session) drain() {
	for {
		select {
		case msg := <-s.msgs:
			slog.Debug("Discarding late websocket message", "command", msg.Command)
		default:
			return
		}
	}
}

func (s *session) expire(err error) error {
	_ = s.Close()
	if err == nil {
		err = errors.New("connection closed")
	}
	return fmt.Errorf("%w: %w", chat.ErrSessionExpired, err)
}
