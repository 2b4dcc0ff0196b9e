package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/khariha/ferris-wheel/internal/calendar"
	"github.com/khariha/ferris-wheel/internal/llm"
	"github.com/khariha/ferris-wheel/internal/memory"
)

const conversationsCollection = "conversations"

// EventsCollection returns the MongoDB collection holding a client's
// events.
func EventsCollection(clientID string) string {
	return "events::" + clientID
}

// Mongo stores each client's events in its own collection and all
// conversations in one collection keyed by clientUUID.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger

	indexed sync.Map // collection name -> struct{}
}

var (
	_ calendar.Store           = (*Mongo)(nil)
	_ memory.ConversationStore = (*Mongo)(nil)
)

// OpenMongo connects to uri and verifies the connection.
func OpenMongo(ctx context.Context, uri, database string, logger *slog.Logger) (*Mongo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("document store connected", "driver", "mongo", "database", database)
	return &Mongo{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}, nil
}

// Ping checks that the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) events(ctx context.Context, clientID string) (*mongo.Collection, error) {
	name := EventsCollection(clientID)
	col := m.db.Collection(name)
	if _, done := m.indexed.Load(name); done {
		return col, nil
	}
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "uuid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}
	m.indexed.Store(name, struct{}{})
	return col, nil
}

// List implements [calendar.Store].
func (m *Mongo) List(ctx context.Context, clientID string) ([]calendar.Event, error) {
	col, err := m.events(ctx, clientID)
	if err != nil {
		return nil, err
	}
	cursor, err := col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	events := []calendar.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// Get implements [calendar.Store].
func (m *Mongo) Get(ctx context.Context, clientID, id string) (calendar.Event, error) {
	col, err := m.events(ctx, clientID)
	if err != nil {
		return calendar.Event{}, err
	}
	var e calendar.Event
	err = col.FindOne(ctx, bson.M{"uuid": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return calendar.Event{}, &calendar.NotFoundError{ID: id}
	}
	if err != nil {
		return calendar.Event{}, fmt.Errorf("find event %s: %w", id, err)
	}
	return e, nil
}

// Insert implements [calendar.Store].
func (m *Mongo) Insert(ctx context.Context, clientID string, e calendar.Event) error {
	col, err := m.events(ctx, clientID)
	if err != nil {
		return err
	}
	if _, err := col.InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("event with UUID %s: %w", e.ID, calendar.ErrDuplicate)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Update implements [calendar.Store].
func (m *Mongo) Update(ctx context.Context, clientID string, e calendar.Event) error {
	col, err := m.events(ctx, clientID)
	if err != nil {
		return err
	}
	res, err := col.UpdateOne(ctx, bson.M{"uuid": e.ID}, bson.M{"$set": e})
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if res.MatchedCount == 0 {
		return &calendar.NotFoundError{ID: e.ID}
	}
	return nil
}

// Delete implements [calendar.Store].
func (m *Mongo) Delete(ctx context.Context, clientID, id string) error {
	col, err := m.events(ctx, clientID)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"uuid": id})
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if res.DeletedCount == 0 {
		return &calendar.NotFoundError{ID: id}
	}
	return nil
}

type messageDoc struct {
	Role    string `bson:"role"`
	Content string `bson:"content"`
}

type conversationDoc struct {
	ID         string       `bson:"_id"`
	ClientUUID string       `bson:"clientUUID"`
	Messages   []messageDoc `bson:"messages"`
	CreatedAt  time.Time    `bson:"createdAt"`
}

func toConversationDoc(rec memory.ConversationRecord) conversationDoc {
	msgs := make([]messageDoc, 0, len(rec.Messages))
	for _, m := range rec.Messages {
		msgs = append(msgs, messageDoc{Role: m.Role, Content: m.Content})
	}
	return conversationDoc{
		ID:         rec.ID,
		ClientUUID: rec.ClientID,
		Messages:   msgs,
		CreatedAt:  rec.CreatedAt.UTC(),
	}
}

func (d conversationDoc) record() memory.ConversationRecord {
	msgs := make([]llm.Message, 0, len(d.Messages))
	for _, m := range d.Messages {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return memory.ConversationRecord{
		ID:        d.ID,
		ClientID:  d.ClientUUID,
		Messages:  msgs,
		CreatedAt: d.CreatedAt,
	}
}

// InsertConversation implements [memory.ConversationStore].
func (m *Mongo) InsertConversation(ctx context.Context, rec memory.ConversationRecord) error {
	if _, err := m.db.Collection(conversationsCollection).InsertOne(ctx, toConversationDoc(rec)); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Conversations implements [memory.ConversationStore].
func (m *Mongo) Conversations(ctx context.Context, clientID string) ([]memory.ConversationRecord, error) {
	cursor, err := m.db.Collection(conversationsCollection).Find(ctx,
		bson.M{"clientUUID": clientID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}
	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	recs := make([]memory.ConversationRecord, 0, len(docs))
	for _, d := range docs {
		recs = append(recs, d.record())
	}
	return recs, nil
}
