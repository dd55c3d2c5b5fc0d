package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestJobFilter(t *testing.T) {
	filter := jobFilter(JobQuery{MinScore: 60})
	assert.Equal(t, bson.M{"match_score": bson.M{"$gte": 60.0}}, filter)

	filter = jobFilter(JobQuery{Source: "jobs.ch", Location: "Genève (GE)"})
	assert.Equal(t, primitive.Regex{Pattern: `^jobs\.ch$`, Options: "i"}, filter["source"])

	or, ok := filter["$or"].(bson.A)
	require.True(t, ok)
	re := primitive.Regex{Pattern: `Genève \(GE\)`, Options: "i"}
	assert.Equal(t, bson.A{bson.M{"location": re}, bson.M{"canonical_location": re}}, or)
}

func TestMongoJob_ToScoredJob(t *testing.T) {
	job := testJob("https://a.example/1", "k1", 72.5, testTime)
	doc := mongoJob{
		URL: job.URL, Title: job.Title, Company: job.Company, Location: job.Location,
		CanonicalLocation: job.CanonicalLocation, SalaryText: job.SalaryText, Salary: job.Salary,
		Source: job.Source, DedupKey: job.DedupKey, MatchScore: job.MatchScore,
		Subscores: job.Subscores, SessionID: job.SessionID, DiscoveredAt: job.DiscoveredAt,
	}
	assert.Equal(t, *job, doc.toScoredJob())
}
