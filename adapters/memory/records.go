package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// Records is an in-memory implementation of the record repositories,
// used for development runs without MongoDB and in handler tests.
type Records struct {
	mu            sync.RWMutex
	audio         map[string]*entities.AudioRecord
	messages      map[string]*entities.Message
	conversations map[string]*entities.Conversation
	feedback      map[string]*entities.Feedback
	users         map[string]*entities.User
	mistakes      map[string]*entities.Mistake
}

// NewRecords creates an empty in-memory record store
func NewRecords() *Records {
	return &Records{
		audio:         make(map[string]*entities.AudioRecord),
		messages:      make(map[string]*entities.Message),
		conversations: make(map[string]*entities.Conversation),
		feedback:      make(map[string]*entities.Feedback),
		users:         make(map[string]*entities.User),
		mistakes:      make(map[string]*entities.Mistake),
	}
}

// Audio returns the audio repository view
func (r *Records) Audio() repositories.AudioRepository { return (*audioRepo)(r) }

// Messages returns the message repository view
func (r *Records) Messages() repositories.MessageRepository { return (*messageRepo)(r) }

// Conversations returns the conversation repository view
func (r *Records) Conversations() repositories.ConversationRepository { return (*conversationRepo)(r) }

// Feedback returns the feedback repository view
func (r *Records) Feedback() repositories.FeedbackRepository { return (*feedbackRepo)(r) }

// Users returns the user repository view
func (r *Records) Users() repositories.UserRepository { return (*userRepo)(r) }

// Mistakes returns the mistake repository view
func (r *Records) Mistakes() repositories.MistakeRepository { return (*mistakeRepo)(r) }

type audioRepo Records

func (r *audioRepo) Create(ctx context.Context, audio *entities.AudioRecord) error {
	if audio == nil {
		return errors.New("audio record cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if audio.ID.IsZero() {
		audio.ID = primitive.NewObjectID()
	}
	cp := *audio
	r.audio[audio.ID.Hex()] = &cp
	return nil
}

func (r *audioRepo) GetByID(ctx context.Context, id string) (*entities.AudioRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.audio[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *audioRepo) AttachTranscription(ctx context.Context, id string, transcription string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.audio[id]
	if !ok {
		return fmt.Errorf("audio record %s not found", id)
	}
	return rec.SetTranscription(transcription)
}

func (r *audioRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.audio[id]; !ok {
		return fmt.Errorf("audio record %s not found", id)
	}
	delete(r.audio, id)
	return nil
}

type messageRepo Records

func (r *messageRepo) Create(ctx context.Context, message *entities.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	cp := *message
	r.messages[message.ID.Hex()] = &cp
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id string) (*entities.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (r *messageRepo) GetByConversationID(ctx context.Context, conversationID string, limit int) ([]*entities.Message, error) {
	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation ID format: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Message
	for _, msg := range r.messages {
		if msg.ConversationID == convID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *messageRepo) LinkFeedback(ctx context.Context, messageID, feedbackID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return fmt.Errorf("message %s not found", messageID)
	}
	return msg.LinkFeedback(feedbackID)
}

type conversationRepo Records

func (r *conversationRepo) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversation.ID.IsZero() {
		conversation.ID = primitive.NewObjectID()
	}
	cp := *conversation
	r.conversations[conversation.ID.Hex()] = &cp
	return nil
}

func (r *conversationRepo) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *conv
	cp.MessageIDs = append([]primitive.ObjectID(nil), conv.MessageIDs...)
	return &cp, nil
}

func (r *conversationRepo) GetByUserID(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entities.Conversation
	for _, conv := range r.conversations {
		if conv.UserID == userID {
			cp := *conv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (r *conversationRepo) AppendMessage(ctx context.Context, conversationID, messageID string) error {
	msgID, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return fmt.Errorf("invalid message ID format: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s not found", conversationID)
	}
	conv.AppendMessage(msgID)
	return nil
}

func (r *conversationRepo) End(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	now := time.Now().UTC()
	conv.EndedAt = &now
	return nil
}

type feedbackRepo Records

func (r *feedbackRepo) Create(ctx context.Context, feedback *entities.Feedback) error {
	if feedback == nil {
		return errors.New("feedback cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if feedback.ID.IsZero() {
		feedback.ID = primitive.NewObjectID()
	}
	cp := *feedback
	r.feedback[feedback.ID.Hex()] = &cp
	return nil
}

func (r *feedbackRepo) GetByID(ctx context.Context, id string) (*entities.Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fb, ok := r.feedback[id]
	if !ok {
		return nil, nil
	}
	cp := *fb
	return &cp, nil
}

func (r *feedbackRepo) GetByTargetID(ctx context.Context, targetID string) (*entities.Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fb := range r.feedback {
		if fb.TargetID == targetID {
			cp := *fb
			return &cp, nil
		}
	}
	return nil, nil
}

type userRepo Records

func (r *userRepo) Create(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return fmt.Errorf("email %s already registered", user.Email)
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	cp := *user
	r.users[user.ID.Hex()] = &cp
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	email = entities.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

type mistakeRepo Records

func (r *mistakeRepo) Upsert(ctx context.Context, mistake *entities.Mistake) error {
	if mistake == nil {
		return errors.New("mistake cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.mistakes {
		if existing.Matches(mistake) {
			existing.RecordOccurrence(mistake.Explanation, mistake.Context)
			mistake.ID = existing.ID
			return nil
		}
	}
	if mistake.ID.IsZero() {
		mistake.ID = primitive.NewObjectID()
	}
	cp := *mistake
	r.mistakes[mistake.ID.Hex()] = &cp
	return nil
}

func (r *mistakeRepo) GetByID(ctx context.Context, id string) (*entities.Mistake, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mistakes[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *mistakeRepo) GetByUserID(ctx context.Context, userID string) ([]*entities.Mistake, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entities.Mistake
	for _, m := range r.mistakes {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *mistakeRepo) DueForPractice(ctx context.Context, userID string, now time.Time, limit int) ([]*entities.Mistake, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entities.Mistake
	for _, m := range r.mistakes {
		if m.UserID == userID && m.DueForPractice(now) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextPracticeAt.Before(out[j].NextPracticeAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *mistakeRepo) Update(ctx context.Context, mistake *entities.Mistake) error {
	if mistake == nil {
		return errors.New("mistake cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mistakes[mistake.ID.Hex()]; !ok {
		return fmt.Errorf("mistake %s not found", mistake.ID.Hex())
	}
	cp := *mistake
	r.mistakes[mistake.ID.Hex()] = &cp
	return nil
}
