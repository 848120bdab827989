package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"chat-system/config"
	"chat-system/internal/model"
	"chat-system/internal/repository"
	"chat-system/internal/service"
	"chat-system/pkg/jwt"

	"github.com/stretchr/testify/require"
)

// recordingSink 记录收到的帧
type recordingSink struct {
	mu     sync.Mutex
	frames []Envelope
	closed bool
	reject bool
}

func (s *recordingSink) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.reject {
		return false
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return false
	}
	s.frames = append(s.frames, env)
	return true
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSink) ofType(eventType string) []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Envelope
	for _, env := range s.frames {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (s *recordingSink) count(eventType string) int {
	return len(s.ofType(eventType))
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// stringPayloads 解出 UserConnected / UserDisconnected 的用户名
func (s *recordingSink) stringPayloads(t *testing.T, eventType string) []string {
	var out []string
	for _, env := range s.ofType(eventType) {
		var name string
		require.NoError(t, json.Unmarshal(env.Data, &name))
		out = append(out, name)
	}
	return out
}

type fakeVerifier struct {
	identities map[string]jwt.Identity
}

func (v *fakeVerifier) VerifyToken(token string) (jwt.Identity, error) {
	identity, ok := v.identities[token]
	if !ok {
		return jwt.Identity{}, jwt.ErrInvalidToken
	}
	return identity, nil
}

type statusCall struct {
	userID uint
	online bool
}

type fakeStatusStore struct {
	mu    sync.Mutex
	calls []statusCall
	err   error
}

func (s *fakeStatusStore) SaveUserOnlineStatus(_ context.Context, userID uint, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, statusCall{userID: userID, online: online})
	return s.err
}

func (s *fakeStatusStore) callsFor(userID uint) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bool
	for _, c := range s.calls {
		if c.userID == userID {
			out = append(out, c.online)
		}
	}
	return out
}

// memoryStore 内存版消息/回应存储，唯一约束与数据库一致
type memoryStore struct {
	mu        sync.Mutex
	nextID    uint
	messages  map[uint]*model.Message
	reactions map[string]*model.MessageReaction
	inserts   int
	failWith  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		messages:  make(map[uint]*model.Message),
		reactions: make(map[string]*model.MessageReaction),
	}
}

func reactionKey(messageID, userID uint, emoji string) string {
	return fmt.Sprintf("%d/%d/%s", messageID, userID, emoji)
}

func (m *memoryStore) InsertMessage(_ context.Context, message *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failWith != nil {
		return m.failWith
	}
	m.nextID++
	message.ID = m.nextID
	m.messages[message.ID] = message
	return nil
}

func (m *memoryStore) FindReaction(_ context.Context, messageID, userID uint, emoji string) (*model.MessageReaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	r, ok := m.reactions[reactionKey(messageID, userID, emoji)]
	if !ok {
		return nil, repository.ErrReactionNotFound
	}
	return r, nil
}

func (m *memoryStore) InsertReaction(_ context.Context, reaction *model.MessageReaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.messages[reaction.MessageID]; !ok {
		return repository.ErrMessageNotFound
	}
	key := reactionKey(reaction.MessageID, reaction.UserID, reaction.Emoji)
	if _, ok := m.reactions[key]; ok {
		return repository.ErrDuplicateReaction
	}
	m.reactions[key] = reaction
	return nil
}

func (m *memoryStore) DeleteReaction(_ context.Context, messageID, userID uint, emoji string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	key := reactionKey(messageID, userID, emoji)
	if _, ok := m.reactions[key]; !ok {
		return false, nil
	}
	delete(m.reactions, key)
	return true, nil
}

func (m *memoryStore) reactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reactions)
}

func (m *memoryStore) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

func (m *memoryStore) fail(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

var errStoreDown = errors.New("store unavailable")

var (
	alice = jwt.Identity{UserID: 1, Username: "alice"}
	bob   = jwt.Identity{UserID: 2, Username: "bob"}
	carol = jwt.Identity{UserID: 3, Username: "carol"}
)

type testHub struct {
	*Hub
	store  *memoryStore
	status *fakeStatusStore
}

func newTestHub() *testHub {
	return newTestHubWithMirror(nil)
}

func newTestHubWithMirror(mirror PresenceMirror) *testHub {
	store := newMemoryStore()
	status := &fakeStatusStore{}
	chatCfg := config.ChatConfig{MaxContentLength: 1000, MaxEmojiLength: 10}

	h := New(Options{
		Verifier: &fakeVerifier{identities: map[string]jwt.Identity{
			"token-alice":  alice,
			"token-bob":    bob,
			"token-carol":  carol,
			"token-noname": {UserID: 9},
		}},
		Messages:  service.NewMessageService(store, chatCfg),
		Reactions: service.NewReactionService(store, chatCfg),
		Status:    status,
		Mirror:    mirror,
	})
	return &testHub{Hub: h, store: store, status: status}
}

// connect 完成认证与激活，返回会话及其出站记录
func (h *testHub) connect(t *testing.T, token string) (*Session, *recordingSink) {
	t.Helper()
	s, err := h.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.Authenticate(context.Background(), token))

	sink := &recordingSink{}
	require.NoError(t, s.Activate(context.Background(), sink))
	return s, sink
}

// seedMessage 通过服务写入一条消息，返回其ID
func (h *testHub) seedMessage(t *testing.T, s *Session) uint {
	t.Helper()
	require.NoError(t, s.SendMessage(context.Background(), "seed"))
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.nextID
}
