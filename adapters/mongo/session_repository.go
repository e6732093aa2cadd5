package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

const sessionsCollection = "sessions"

// ErrSessionNotFound is returned when an archived session does not exist
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository archives conversations in the sessions collection
type SessionRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates the repository and ensures its indexes
func NewSessionRepository(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*SessionRepository, error) {
	r := &SessionRepository{
		collection: db.Collection(sessionsCollection),
		logger:     logger,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SessionRepository) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "last_active_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		// expired archives are removed by MongoDB a week after expiry
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32((7 * 24 * time.Hour).Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	r.logger.Info("Session indexes created successfully")
	return nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info("Session created",
		zap.String("sessionID", session.ID.Hex()),
		zap.String("clientID", session.ClientID))
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*entities.Session, error) {
	var session entities.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id.Hex(), err)
	}
	return &session, nil
}

// GetLastByClientID implements repositories.SessionRepository
func (r *SessionRepository) GetLastByClientID(ctx context.Context, clientID string) (*entities.Session, error) {
	if clientID == "" {
		return nil, errors.New("client ID cannot be empty")
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "last_active_at", Value: -1}})
	var session entities.Session
	err := r.collection.FindOne(ctx, bson.M{"client_id": clientID}, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last session for client %s: %w", clientID, err)
	}
	return &session, nil
}

// GetByClientID implements repositories.SessionRepository, most recent first
func (r *SessionRepository) GetByClientID(ctx context.Context, clientID string, limit int) ([]*entities.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"client_id": clientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := make([]*entities.Session, 0)
	for cursor.Next(ctx) {
		var session entities.Session
		if err := cursor.Decode(&session); err != nil {
			r.logger.Error("Failed to decode session", zap.Error(err))
			continue
		}
		sessions = append(sessions, &session)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// AddMessage implements repositories.SessionRepository
func (r *SessionRepository) AddMessage(ctx context.Context, sessionID primitive.ObjectID, message entities.ChatMessage) error {
	now := time.Now()
	if message.Timestamp.IsZero() {
		message.Timestamp = now
	}

	set := bson.M{
		"last_message_at": message.Timestamp,
		"last_active_at":  now,
		"expires_at":      now.Add(24 * time.Hour),
	}
	update := bson.M{
		"$push": bson.M{"messages": message},
		"$set":  set,
	}
	if message.IsUser() {
		update["$inc"] = bson.M{"metadata.question_count": 1}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": sessionID}, update)
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}

	r.logger.Debug("Message added to session",
		zap.String("sessionID", sessionID.Hex()),
		zap.String("sender", string(message.Sender)))
	return nil
}

// Update implements repositories.SessionRepository
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": session.ID}, bson.M{"$set": session})
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ExpireSessions implements repositories.SessionRepository
func (r *SessionRepository) ExpireSessions(ctx context.Context) error {
	filter := bson.M{
		"status":     entities.SessionStatusActive,
		"expires_at": bson.M{"$lt": time.Now()},
	}
	update := bson.M{"$set": bson.M{"status": entities.SessionStatusExpired}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to expire sessions: %w", err)
	}
	if result.ModifiedCount > 0 {
		r.logger.Info("Expired sessions", zap.Int64("count", result.ModifiedCount))
	}
	return nil
}
