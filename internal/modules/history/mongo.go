package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/briefly-app/core/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "histories"

// historyDoc is the Mongo shape of a history entry.
type historyDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user"`
	Content      string    `bson:"content"`
	Summary      string    `bson:"summary"`
	Tags         []string  `bson:"tags"`
	TotalWords   int       `bson:"totalWord"`
	SummaryWords int       `bson:"summaryWord"`
	Reduction    int       `bson:"reduction"`
	SavedTime    int       `bson:"savedTime"`
	Style        string    `bson:"type"`
	Fingerprint  string    `bson:"fingerprint,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func toDoc(m *models.HistoryModel) historyDoc {
	tags := []string(m.Tags)
	if tags == nil {
		tags = []string{}
	}
	return historyDoc{
		ID:           m.ID,
		UserID:       m.UserID,
		Content:      m.Content,
		Summary:      m.Summary,
		Tags:         tags,
		TotalWords:   m.TotalWords,
		SummaryWords: m.SummaryWords,
		Reduction:    m.Reduction,
		SavedTime:    m.SavedTime,
		Style:        m.Style,
		Fingerprint:  m.Fingerprint,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func (d historyDoc) model() models.HistoryModel {
	m := models.HistoryModel{
		UserID:       d.UserID,
		Content:      d.Content,
		Summary:      d.Summary,
		Tags:         models.StringArray(d.Tags),
		TotalWords:   d.TotalWords,
		SummaryWords: d.SummaryWords,
		Reduction:    d.Reduction,
		SavedTime:    d.SavedTime,
		Style:        d.Style,
		Fingerprint:  d.Fingerprint,
	}
	m.ID = d.ID
	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt
	return m
}

// listFilter matches the owner (when set) and a case-insensitive search over
// summary and tags.
func listFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user"] = f.UserID
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"summary": bson.M{"$regex": re}},
			bson.M{"tags": bson.M{"$regex": re}},
		}
	}
	return filter
}

// MongoStore keeps history in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// NewMongoStore connects to uri and prepares the collection indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	coll := client.Database(database).Collection(mongoCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "fingerprint", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return &MongoStore{client: client, coll: coll, now: time.Now}, nil
}

// Ping checks connectivity.
func (s *MongoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *MongoStore) Record(ctx context.Context, entry *models.HistoryModel) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := s.now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, toDoc(entry)); err != nil {
		return "", err
	}
	return entry.ID, nil
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]models.HistoryModel, int64, error) {
	filter := listFilter(f)
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	entries := []models.HistoryModel{}
	if total == 0 {
		return entries, 0, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Size))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	for _, d := range docs {
		entries = append(entries, d.model())
	}
	return entries, total, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.HistoryModel, error) {
	var doc historyDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m := doc.model()
	return &m, nil
}

func (s *MongoStore) Update(ctx context.Context, id string, p Patch) (*models.HistoryModel, error) {
	set := bson.M{"updatedAt": s.now()}
	if p.Summary != nil {
		set["summary"] = *p.Summary
	}
	if p.Tags != nil {
		set["tags"] = []string(models.NormalizeTags(*p.Tags))
	}

	var doc historyDoc
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m := doc.model()
	return &m, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Stats(ctx context.Context, userID string, since time.Time) (*Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"count":        bson.M{"$sum": 1},
			"savedTime":    bson.M{"$sum": "$savedTime"},
			"avgReduction": bson.M{"$avg": "$reduction"},
			"totalWords":   bson.M{"$sum": "$totalWord"},
			"summaryWords": bson.M{"$sum": "$summaryWord"},
			"lastWeek": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$gte": bson.A{"$createdAt", since}}, 1, 0},
			}},
		}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Count        int64   `bson:"count"`
		SavedTime    int64   `bson:"savedTime"`
		AvgReduction float64 `bson:"avgReduction"`
		TotalWords   int64   `bson:"totalWords"`
		SummaryWords int64   `bson:"summaryWords"`
		LastWeek     int64   `bson:"lastWeek"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Stats{}, nil
	}
	r := rows[0]
	return &Stats{
		TotalSavedTime:   int(r.SavedTime),
		TotalReduction:   int(math.Round(r.AvgReduction)),
		TotalWordProcess: int(r.TotalWords),
		TotalSummaryWord: int(r.SummaryWords),
		TotalSummary:     r.Count,
		LastWeekSummary:  r.LastWeek,
	}, nil
}

func (s *MongoStore) Each(ctx context.Context, from, to time.Time, fn func(*models.HistoryModel) error) error {
	filter := bson.M{"createdAt": bson.M{"$gte": from, "$lt": to}}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc historyDoc
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		m := doc.model()
		if err := fn(&m); err != nil {
			return err
		}
	}
	return cur.Err()
}
