package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/mindloom/backend/pkg/ai"
	"github.com/mindloom/backend/pkg/crypto"
	"github.com/mindloom/backend/pkg/store"
)

type fakeChatStore struct {
	users      map[int64]store.User
	sessions   map[int64]store.TherapySession
	chats      []store.Chat
	embeddings map[int64]pgvector.Vector
	relevant   []store.RelevantChat
	nextID     int64
}

func newFakeChatStore(t *testing.T) *fakeChatStore {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return &fakeChatStore{
		users:      map[int64]store.User{1: {ID: 1, Username: "sam", EncryptionKey: key}},
		sessions:   map[int64]store.TherapySession{7: {ID: 7, UserID: 1, TherapistName: "Dr. Ellis"}},
		embeddings: map[int64]pgvector.Vector{},
		nextID:     100,
	}
}

func (f *fakeChatStore) GetUser(_ context.Context, userID int64) (store.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeChatStore) CreateUser(_ context.Context, username string, encryptionKey string) (store.User, error) {
	f.nextID++
	user := store.User{ID: f.nextID, Username: username, EncryptionKey: encryptionKey}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeChatStore) CreateSession(_ context.Context, userID int64, therapistName string) (store.TherapySession, error) {
	f.nextID++
	session := store.TherapySession{ID: f.nextID, UserID: userID, TherapistName: therapistName, CreatedAt: time.Now()}
	f.sessions[session.ID] = session
	return session, nil
}

func (f *fakeChatStore) GetSession(_ context.Context, sessionID int64) (store.TherapySession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return store.TherapySession{}, store.ErrNotFound
	}
	return session, nil
}

func (f *fakeChatStore) ListUserSessions(_ context.Context, userID int64) ([]store.TherapySession, error) {
	var out []store.TherapySession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeChatStore) InsertChat(_ context.Context, chat store.Chat) (store.Chat, error) {
	f.nextID++
	chat.ID = f.nextID
	chat.CreatedAt = time.Now()
	f.chats = append(f.chats, chat)
	return chat, nil
}

func (f *fakeChatStore) UpdateChatEmbedding(_ context.Context, chatID int64, embedding pgvector.Vector) error {
	f.embeddings[chatID] = embedding
	return nil
}

func (f *fakeChatStore) GetSessionChats(_ context.Context, sessionID int64) ([]store.Chat, error) {
	var out []store.Chat
	for _, c := range f.chats {
		if c.TherapySessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChatStore) FindRelevantChats(_ context.Context, _ int64, _ pgvector.Vector, _ float64, _ int) ([]store.RelevantChat, error) {
	return f.relevant, nil
}

// scriptedClient answers completions and chats with a fixed reply and embeds
// every input as a fixed vector. failEmbed simulates an unavailable embedding
// service.
type scriptedClient struct {
	reply           string
	chatCalls       [][]ai.ChatMessage
	completionCalls []string
	sysPrompts      [][]string
	failEmbed       bool
}

func (c *scriptedClient) GenerateChat(_ context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	c.chatCalls = append(c.chatCalls, messages)
	var o ai.GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	c.sysPrompts = append(c.sysPrompts, o.SystemPrompts)
	return c.reply, nil
}

func (c *scriptedClient) GenerateCompletion(_ context.Context, prompt string, _ ...ai.GenerateOption) (string, error) {
	c.completionCalls = append(c.completionCalls, prompt)
	return c.reply, nil
}

func (c *scriptedClient) GenerateCompletionWithFormat(_ context.Context, _, _, _ string, _ any, _ ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (c *scriptedClient) GenerateEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	if c.failEmbed {
		return nil, errors.New("embedding service down")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (c *scriptedClient) GenerateEmbeddings(_ context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (c *scriptedClient) ResetMetrics()               {}
func (c *scriptedClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestStartSession_GeneratesOpeningMessage(t *testing.T) {
	chats := newFakeChatStore(t)
	client := &scriptedClient{reply: "Hello, I'm glad you're here. What's on your mind today?"}
	service := NewService(NewServiceParams{Chats: chats, Client: client})

	session, opening, err := service.StartSession(context.Background(), 1, "Dr. Ellis")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if session.TherapistName != "Dr. Ellis" {
		t.Errorf("therapist name = %q", session.TherapistName)
	}
	if opening.Sender != SenderTherapist || opening.Text != client.reply {
		t.Errorf("opening message = %+v, want scripted therapist reply", opening)
	}
	if len(client.completionCalls) != 1 {
		t.Fatalf("completion called %d times, want 1", len(client.completionCalls))
	}
	if len(chats.chats) != 1 {
		t.Fatalf("persisted %d chats, want the opening message", len(chats.chats))
	}
}

func TestAddChatMessage_EncryptsAtRest(t *testing.T) {
	chats := newFakeChatStore(t)
	service := NewService(NewServiceParams{Chats: chats, Client: &scriptedClient{}})

	session := chats.sessions[7]
	msg, err := service.AddChatMessage(context.Background(), session, SenderUser, "I met Alice in London.")
	if err != nil {
		t.Fatalf("AddChatMessage() error = %v", err)
	}
	if msg.Text != "I met Alice in London." {
		t.Errorf("returned text = %q, want plaintext", msg.Text)
	}

	stored := chats.chats[0]
	if stored.Text == "I met Alice in London." {
		t.Error("chat text stored in plaintext")
	}
	decrypted, err := crypto.DecryptString(chats.users[1].EncryptionKey, stored.Text)
	if err != nil {
		t.Fatalf("DecryptString() error = %v", err)
	}
	if decrypted != "I met Alice in London." {
		t.Errorf("decrypted text = %q", decrypted)
	}
	if _, ok := chats.embeddings[stored.ID]; !ok {
		t.Error("embedding was not stored")
	}
}

func TestAddChatMessage_EmbeddingFailureKeepsChat(t *testing.T) {
	chats := newFakeChatStore(t)
	service := NewService(NewServiceParams{Chats: chats, Client: &scriptedClient{failEmbed: true}})

	_, err := service.AddChatMessage(context.Background(), chats.sessions[7], SenderUser, "hello")
	if err != nil {
		t.Fatalf("AddChatMessage() error = %v", err)
	}
	if len(chats.chats) != 1 {
		t.Fatalf("chat was not persisted")
	}
	if len(chats.embeddings) != 0 {
		t.Error("embedding stored despite failure")
	}
}

func TestGenerateResponse(t *testing.T) {
	chats := newFakeChatStore(t)
	client := &scriptedClient{reply: "That sounds difficult. Tell me more about Alice."}
	service := NewService(NewServiceParams{Chats: chats, Client: client})

	userMsg, therapistMsg, err := service.GenerateResponse(context.Background(), 7, "I met Alice in London.")
	if err != nil {
		t.Fatalf("GenerateResponse() error = %v", err)
	}
	if userMsg.Sender != SenderUser || therapistMsg.Sender != SenderTherapist {
		t.Errorf("senders = %q, %q", userMsg.Sender, therapistMsg.Sender)
	}
	if therapistMsg.Text != client.reply {
		t.Errorf("therapist text = %q, want scripted reply", therapistMsg.Text)
	}
	if len(chats.chats) != 2 {
		t.Fatalf("persisted %d chats, want 2", len(chats.chats))
	}

	if len(client.chatCalls) != 1 {
		t.Fatalf("model called %d times, want 1", len(client.chatCalls))
	}
	prompt := client.chatCalls[0]
	if prompt[len(prompt)-1].Message != "I met Alice in London." {
		t.Errorf("last prompt message = %q, want user input", prompt[len(prompt)-1].Message)
	}
	if len(client.sysPrompts[0]) == 0 {
		t.Error("therapist system prompt missing")
	}
}

func TestGenerateResponse_IncludesHistory(t *testing.T) {
	chats := newFakeChatStore(t)
	client := &scriptedClient{reply: "ok"}
	service := NewService(NewServiceParams{Chats: chats, Client: client})

	if _, err := service.AddChatMessage(context.Background(), chats.sessions[7], SenderTherapist, "Hello, what's on your mind?"); err != nil {
		t.Fatalf("AddChatMessage() error = %v", err)
	}
	if _, _, err := service.GenerateResponse(context.Background(), 7, "Work has been stressful."); err != nil {
		t.Fatalf("GenerateResponse() error = %v", err)
	}

	prompt := client.chatCalls[0]
	if len(prompt) != 2 {
		t.Fatalf("prompt has %d messages, want history plus input", len(prompt))
	}
	if prompt[0].Role != "assistant" || prompt[0].Message != "Hello, what's on your mind?" {
		t.Errorf("history message = %+v", prompt[0])
	}
}

func TestSessionMessages_Decrypts(t *testing.T) {
	chats := newFakeChatStore(t)
	service := NewService(NewServiceParams{Chats: chats, Client: &scriptedClient{}})

	if _, err := service.AddChatMessage(context.Background(), chats.sessions[7], SenderUser, "first"); err != nil {
		t.Fatalf("AddChatMessage() error = %v", err)
	}
	if _, err := service.AddChatMessage(context.Background(), chats.sessions[7], SenderTherapist, "second"); err != nil {
		t.Fatalf("AddChatMessage() error = %v", err)
	}

	messages, err := service.SessionMessages(context.Background(), 7)
	if err != nil {
		t.Fatalf("SessionMessages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Text != "first" || messages[1].Text != "second" {
		t.Errorf("messages = %q, %q", messages[0].Text, messages[1].Text)
	}
}
