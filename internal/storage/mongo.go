package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jobhound/internal/models"
)

// MongoStore keeps jobs, aliases and sessions in three collections.
type MongoStore struct {
	client   *mongo.Client
	jobs     *mongo.Collection
	aliases  *mongo.Collection
	sessions *mongo.Collection
	now      func() time.Time
}

type mongoJob struct {
	URL               string              `bson:"url"`
	Title             string              `bson:"title"`
	Company           string              `bson:"company"`
	Location          string              `bson:"location"`
	CanonicalLocation string              `bson:"canonical_location"`
	SalaryText        string              `bson:"salary_text"`
	Salary            *models.SalaryRange `bson:"salary,omitempty"`
	Description       string              `bson:"description"`
	ContractType      string              `bson:"contract_type"`
	Source            string              `bson:"source"`
	Remote            bool                `bson:"remote"`
	DedupKey          string              `bson:"dedup_key"`
	MatchScore        float64             `bson:"match_score"`
	Subscores         models.Subscores    `bson:"subscores"`
	SessionID         string              `bson:"session_id"`
	DiscoveredAt      time.Time           `bson:"discovered_at"`
	CreatedAt         time.Time           `bson:"created_at"`
	UpdatedAt         time.Time           `bson:"updated_at"`
}

type mongoSession struct {
	ID             string               `bson:"_id"`
	StartTime      time.Time            `bson:"start_time"`
	EndTime        *time.Time           `bson:"end_time,omitempty"`
	Status         models.SessionStatus `bson:"status"`
	Counts         models.SessionCounts `bson:"counts"`
	ErrorMessage   string               `bson:"error_message"`
	ConfigSnapshot string               `bson:"config_snapshot,omitempty"`
}

// NewMongoStore connects, pings and ensures the indexes.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		jobs:     db.Collection("jobs"),
		aliases:  db.Collection("job_aliases"),
		sessions: db.Collection("scraping_sessions"),
		now:      time.Now,
	}
	if err := s.createIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("can't create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.jobs, mongo.IndexModel{Keys: bson.D{{Key: "url", Value: 1}}, Options: unique}},
		{s.jobs, mongo.IndexModel{Keys: bson.D{{Key: "dedup_key", Value: 1}}}},
		{s.jobs, mongo.IndexModel{Keys: bson.D{{Key: "match_score", Value: -1}}}},
		{s.aliases, mongo.IndexModel{Keys: bson.D{{Key: "url", Value: 1}}, Options: unique}},
		{s.sessions, mongo.IndexModel{Keys: bson.D{{Key: "start_time", Value: -1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoStore) UpsertJob(ctx context.Context, job *models.ScoredJob) (UpsertOutcome, error) {
	outcome, err := s.upsertJob(ctx, job)
	if err != nil {
		return 0, &models.PersistenceError{Op: "upsert job", Key: job.URL, Err: err}
	}
	return outcome, nil
}

func (s *MongoStore) upsertJob(ctx context.Context, job *models.ScoredJob) (UpsertOutcome, error) {
	now := s.now()
	doc := mongoJob{
		URL:               job.URL,
		Title:             job.Title,
		Company:           job.Company,
		Location:          job.Location,
		CanonicalLocation: job.CanonicalLocation,
		SalaryText:        job.SalaryText,
		Salary:            job.Salary,
		Description:       job.Description,
		ContractType:      job.ContractType,
		Source:            job.Source,
		Remote:            job.Remote,
		DedupKey:          job.DedupKey,
		MatchScore:        job.MatchScore,
		Subscores:         job.Subscores,
		SessionID:         job.SessionID,
		DiscoveredAt:      job.DiscoveredAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if doc.DiscoveredAt.IsZero() {
		doc.DiscoveredAt = now
	}

	n, err := s.jobs.CountDocuments(ctx, bson.M{"url": job.URL})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		update := bson.M{"$set": bson.M{
			"title": doc.Title, "company": doc.Company, "location": doc.Location,
			"canonical_location": doc.CanonicalLocation, "salary_text": doc.SalaryText, "salary": doc.Salary,
			"description": doc.Description, "contract_type": doc.ContractType, "source": doc.Source,
			"remote": doc.Remote, "dedup_key": doc.DedupKey, "match_score": doc.MatchScore,
			"subscores": doc.Subscores, "session_id": doc.SessionID, "updated_at": now,
		}}
		if _, err := s.jobs.UpdateOne(ctx, bson.M{"url": job.URL}, update); err != nil {
			return 0, err
		}
		return UpsertUpdated, nil
	}

	if n, err := s.aliases.CountDocuments(ctx, bson.M{"url": job.URL}); err != nil {
		return 0, err
	} else if n > 0 {
		return UpsertAliased, nil
	}

	var primary mongoJob
	err = s.jobs.FindOne(ctx, bson.M{"dedup_key": job.DedupKey},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetProjection(bson.M{"url": 1})).Decode(&primary)
	switch {
	case err == nil:
		alias := bson.M{"url": job.URL, "job_url": primary.URL, "source": job.Source, "session_id": job.SessionID, "discovered_at": doc.DiscoveredAt}
		if _, err := s.aliases.InsertOne(ctx, alias); err != nil {
			return 0, err
		}
		return UpsertAliased, nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return 0, err
	}

	if _, err := s.jobs.InsertOne(ctx, doc); err != nil {
		return 0, err
	}
	return UpsertInserted, nil
}

func (s *MongoStore) QueryJobs(ctx context.Context, q JobQuery) (*JobPage, error) {
	q = q.Normalize()
	filter := jobFilter(q)

	total, err := s.jobs.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	sort := bson.D{{Key: "match_score", Value: -1}, {Key: "discovered_at", Value: -1}}
	if q.Sort == SortByDate {
		sort = bson.D{{Key: "discovered_at", Value: -1}, {Key: "match_score", Value: -1}}
	}
	opts := options.Find().SetSort(sort).SetSkip(int64(q.Offset())).SetLimit(int64(q.PerPage))

	cursor, err := s.jobs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer cursor.Close(ctx)

	page := &JobPage{Page: q.Page, PerPage: q.PerPage, Total: int(total), Jobs: []models.ScoredJob{}}
	for cursor.Next(ctx) {
		var doc mongoJob
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		page.Jobs = append(page.Jobs, doc.toScoredJob())
	}
	return page, cursor.Err()
}

// jobFilter translates a JobQuery into a find filter. Source matches exactly,
// location as a substring, both case-insensitively and with regex metacharacters quoted.
func jobFilter(q JobQuery) bson.M {
	filter := bson.M{"match_score": bson.M{"$gte": q.MinScore}}
	if q.Source != "" {
		filter["source"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(q.Source) + "$", Options: "i"}
	}
	if q.Location != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q.Location), Options: "i"}
		filter["$or"] = bson.A{bson.M{"location": re}, bson.M{"canonical_location": re}}
	}
	return filter
}

// Stats aggregates in memory over a projection of the jobs collection.
func (s *MongoStore) Stats(ctx context.Context) (*JobStats, error) {
	opts := options.Find().SetProjection(bson.M{"company": 1, "source": 1, "match_score": 1})
	cursor, err := s.jobs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("aggregating jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var jobs []models.ScoredJob
	for cursor.Next(ctx) {
		var doc mongoJob
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		jobs = append(jobs, doc.toScoredJob())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return jobStats(jobs), nil
}

func (d mongoJob) toScoredJob() models.ScoredJob {
	return models.ScoredJob{
		NormalizedJob: models.NormalizedJob{
			RawPosting: models.RawPosting{
				URL:          d.URL,
				Title:        d.Title,
				Company:      d.Company,
				Location:     d.Location,
				SalaryText:   d.SalaryText,
				Description:  d.Description,
				ContractType: d.ContractType,
				Source:       d.Source,
				DiscoveredAt: d.DiscoveredAt,
			},
			Salary:            d.Salary,
			CanonicalLocation: d.CanonicalLocation,
			DedupKey:          d.DedupKey,
			Remote:            d.Remote,
		},
		MatchScore: d.MatchScore,
		Subscores:  d.Subscores,
		SessionID:  d.SessionID,
	}
}

func (s *MongoStore) RecordSession(ctx context.Context, sess *models.ScrapingSession) error {
	doc := mongoSession{
		ID:             sess.ID,
		StartTime:      sess.StartTime,
		EndTime:        sess.EndTime,
		Status:         sess.Status,
		Counts:         sess.Counts,
		ErrorMessage:   sess.ErrorMessage,
		ConfigSnapshot: string(sess.ConfigSnapshot),
	}
	_, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": sess.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return &models.PersistenceError{Op: "record session", Key: sess.ID, Err: err}
	}
	return nil
}

func (s *MongoStore) GetSession(ctx context.Context, id string) (*models.ScrapingSession, error) {
	var doc mongoSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess := doc.toSession()
	return &sess, nil
}

func (s *MongoStore) ListSessions(ctx context.Context, limit int) ([]models.ScrapingSession, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.sessions.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sessions := []models.ScrapingSession{}
	for cursor.Next(ctx) {
		var doc mongoSession
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		sessions = append(sessions, doc.toSession())
	}
	return sessions, cursor.Err()
}

func (d mongoSession) toSession() models.ScrapingSession {
	sess := models.ScrapingSession{
		ID:           d.ID,
		StartTime:    d.StartTime,
		EndTime:      d.EndTime,
		Status:       d.Status,
		Counts:       d.Counts,
		ErrorMessage: d.ErrorMessage,
	}
	if d.ConfigSnapshot != "" {
		sess.ConfigSnapshot = []byte(d.ConfigSnapshot)
	}
	return sess
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		slog.Warn("mongo disconnect", "error", err)
		return err
	}
	return nil
}
