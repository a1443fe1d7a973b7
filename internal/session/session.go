// Package session implements the therapy-session logic: chat persistence
// with per-user encryption, embedding-backed relevant-history retrieval,
// therapist response generation, and the handoff of user messages to the
// graph-processing queue.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/mindloom/backend/pkg/ai"
	"github.com/mindloom/backend/pkg/crypto"
	"github.com/mindloom/backend/pkg/graph"
	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/store"
)

const (
	SenderUser      = "user"
	SenderTherapist = "therapist"
)

const (
	// Cosine-similarity cutoff for pulling past chats into the prompt.
	relevanceThreshold = 0.75
	relevantChatLimit  = 5

	// Token budget for the recent-history window of the therapist prompt.
	historyTokenBudget = 3000
)

const firstMessagePrompt = "Please greet the user and open the session by asking what is on their mind."

// Message is one decrypted chat turn as exposed to the API.
type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Service carries the collaborators of the therapy-session logic. The
// graph queue is fed after persistence, so a slow or absent extraction
// service never delays the reply path.
type Service struct {
	chats  store.ChatStore
	client ai.GraphAIClient
	queue  *graph.Queue
	model  string
}

// NewServiceParams defines the configuration for creating a Service.
// Model overrides the AI client's default chat model when set.
type NewServiceParams struct {
	Chats  store.ChatStore
	Client ai.GraphAIClient
	Queue  *graph.Queue
	Model  string
}

// NewService creates a Service.
func NewService(params NewServiceParams) *Service {
	return &Service{
		chats:  params.Chats,
		client: params.Client,
		queue:  params.Queue,
		model:  params.Model,
	}
}

// StartSession creates a therapy session and generates the therapist's
// opening message.
func (s *Service) StartSession(ctx context.Context, userID int64, therapistName string) (store.TherapySession, Message, error) {
	session, err := s.chats.CreateSession(ctx, userID, therapistName)
	if err != nil {
		return store.TherapySession{}, Message{}, err
	}

	reply, err := s.client.GenerateCompletion(ctx, firstMessagePrompt,
		s.generateOpts(session.TherapistName)...,
	)
	if err != nil {
		return store.TherapySession{}, Message{}, fmt.Errorf("failed to generate opening message: %w", err)
	}

	opening, err := s.AddChatMessage(ctx, session, SenderTherapist, reply)
	if err != nil {
		return store.TherapySession{}, Message{}, err
	}
	return session, opening, nil
}

// AddChatMessage encrypts and persists one chat turn, attaches its
// embedding, and hands user messages to the graph queue. An embedding
// failure is logged and the chat kept; graph processing happens later and
// never blocks this path.
func (s *Service) AddChatMessage(ctx context.Context, session store.TherapySession, sender string, text string) (Message, error) {
	var embedding []float32
	if vec, err := s.client.GenerateEmbedding(ctx, []byte(text)); err != nil {
		logger.Warn("failed to embed chat message", "session_id", session.ID, "err", err)
	} else {
		embedding = vec
	}
	return s.addChat(ctx, session, sender, text, embedding)
}

func (s *Service) addChat(ctx context.Context, session store.TherapySession, sender string, text string, embedding []float32) (Message, error) {
	user, err := s.chats.GetUser(ctx, session.UserID)
	if err != nil {
		return Message{}, err
	}
	ciphertext, err := crypto.EncryptString(user.EncryptionKey, text)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encrypt chat message: %w", err)
	}

	chat, err := s.chats.InsertChat(ctx, store.Chat{
		TherapySessionID: session.ID,
		UserID:           session.UserID,
		Sender:           sender,
		Text:             ciphertext,
	})
	if err != nil {
		return Message{}, err
	}

	if embedding != nil {
		if err := s.chats.UpdateChatEmbedding(ctx, chat.ID, pgvector.NewVector(embedding)); err != nil {
			logger.Warn("failed to store chat embedding", "chat_id", chat.ID, "err", err)
		}
	}

	if sender == SenderUser && s.queue != nil {
		s.queue.Enqueue(graph.Task{ChatID: chat.ID, UserID: session.UserID, Text: text})
	}

	return Message{ID: chat.ID, Sender: sender, Text: text, CreatedAt: chat.CreatedAt}, nil
}

// GenerateResponse persists the user's message and produces the therapist's
// reply over the session history plus any relevant older chats. The user
// embedding and the history load run concurrently.
func (s *Service) GenerateResponse(ctx context.Context, sessionID int64, userInput string) (Message, Message, error) {
	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		return Message{}, Message{}, err
	}
	user, err := s.chats.GetUser(ctx, session.UserID)
	if err != nil {
		return Message{}, Message{}, err
	}

	var (
		embedding []float32
		relevant  []store.RelevantChat
		history   []ai.ChatMessage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := s.client.GenerateEmbedding(gctx, []byte(userInput))
		if err != nil {
			logger.Warn("failed to embed user input", "session_id", sessionID, "err", err)
			return nil
		}
		embedding = vec
		hits, err := s.chats.FindRelevantChats(gctx, session.UserID, pgvector.NewVector(vec), relevanceThreshold, relevantChatLimit)
		if err != nil {
			logger.Warn("relevant chat search failed", "session_id", sessionID, "err", err)
			return nil
		}
		relevant = hits
		return nil
	})
	g.Go(func() error {
		chats, err := s.chats.GetSessionChats(gctx, sessionID)
		if err != nil {
			return err
		}
		history = s.buildHistory(chats, user.EncryptionKey)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Message{}, Message{}, err
	}

	userMessage, err := s.addChat(ctx, session, SenderUser, userInput, embedding)
	if err != nil {
		return Message{}, Message{}, err
	}

	messages := append(history, ai.ChatMessage{Role: "user", Message: userInput})
	opts := s.generateOpts(session.TherapistName)
	if prompt := relevantContextPrompt(relevant, user.EncryptionKey); prompt != "" {
		opts = append(opts, ai.WithSystemPrompts(therapistSystemPrompt(session.TherapistName), prompt))
	}

	reply, err := s.client.GenerateChat(ctx, messages, opts...)
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("failed to generate therapist response: %w", err)
	}

	therapistMessage, err := s.AddChatMessage(ctx, session, SenderTherapist, reply)
	if err != nil {
		return Message{}, Message{}, err
	}
	return userMessage, therapistMessage, nil
}

// SessionMessages returns the decrypted chat history of one session.
func (s *Service) SessionMessages(ctx context.Context, sessionID int64) ([]Message, error) {
	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	user, err := s.chats.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	chats, err := s.chats.GetSessionChats(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(chats))
	for _, chat := range chats {
		text, err := crypto.DecryptString(user.EncryptionKey, chat.Text)
		if err != nil {
			logger.Error("failed to decrypt chat", "chat_id", chat.ID, "err", err)
			continue
		}
		messages = append(messages, Message{ID: chat.ID, Sender: chat.Sender, Text: text, CreatedAt: chat.CreatedAt})
	}
	return messages, nil
}

// buildHistory converts the newest session chats into AI messages, bounded
// by the history token budget so long sessions do not blow up the prompt.
func (s *Service) buildHistory(chats []store.Chat, encryptionKey string) []ai.ChatMessage {
	var window []ai.ChatMessage
	for i := len(chats) - 1; i >= 0; i-- {
		text, err := crypto.DecryptString(encryptionKey, chats[i].Text)
		if err != nil {
			logger.Error("failed to decrypt chat for history", "chat_id", chats[i].ID, "err", err)
			continue
		}
		role := "user"
		if chats[i].Sender == SenderTherapist {
			role = "assistant"
		}
		candidate := append([]ai.ChatMessage{{Role: role, Message: text}}, window...)
		tokens, err := ai.NumTokensForMessages(candidate, s.model)
		if err != nil {
			logger.Warn("failed to count history tokens", "err", err)
			window = candidate
			continue
		}
		if tokens > historyTokenBudget {
			break
		}
		window = candidate
	}
	return window
}

func (s *Service) generateOpts(therapistName string) []ai.GenerateOption {
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(therapistSystemPrompt(therapistName)),
		ai.WithTemperature(0.7),
	}
	if s.model != "" {
		opts = append(opts, ai.WithModel(s.model))
	}
	return opts
}

func therapistSystemPrompt(therapistName string) string {
	name := strings.TrimSpace(therapistName)
	if name == "" {
		name = "a therapist"
	}
	return fmt.Sprintf(
		"You are %s, a warm and attentive therapist. Listen carefully, ask open questions, "+
			"and keep your responses short and conversational. Never give medical diagnoses.",
		name,
	)
}

// relevantContextPrompt renders similarity-search hits into an extra system
// prompt. Hits that fail to decrypt are skipped.
func relevantContextPrompt(relevant []store.RelevantChat, encryptionKey string) string {
	if len(relevant) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant moments from earlier conversations with this user:\n")
	count := 0
	for _, hit := range relevant {
		text, err := crypto.DecryptString(encryptionKey, hit.Chat.Text)
		if err != nil {
			logger.Error("failed to decrypt relevant chat", "chat_id", hit.Chat.ID, "err", err)
			continue
		}
		fmt.Fprintf(&b, "- %s\n", text)
		count++
	}
	if count == 0 {
		return ""
	}
	return b.String()
}
