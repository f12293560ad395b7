package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func setupTestJournal(t *testing.T) (*MongoJournal, func()) {
	if testing.Short() {
		t.Skip("skipping mongodb integration test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	j := NewMongoJournal(db)
	require.NoError(t, j.CreateIndexes(ctx))

	cleanup := func() {
		_ = j.Close(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return j, cleanup
}

// deliveries reads back a provider's journal entries, newest first.
func deliveries(t *testing.T, j *MongoJournal, provider string) []Entry {
	t.Helper()
	ctx := context.Background()
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	cur, err := j.collection.Find(ctx, bson.M{"provider": provider}, opts)
	require.NoError(t, err)
	defer cur.Close(ctx)

	var entries []Entry
	require.NoError(t, cur.All(ctx, &entries))
	return entries
}

func TestMongoJournal_Record(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, j.Record(ctx, Entry{
		Provider:   "mobile_money",
		Payload:    `{"transactionId":"ATPid_1","status":"Success"}`,
		Outcome:    OutcomeApplied,
		ReceivedAt: base,
	}))
	require.NoError(t, j.Record(ctx, Entry{
		Provider:   "mobile_money",
		Payload:    `{"transactionId":"ATPid_1","status":"Success"}`,
		Outcome:    OutcomeIgnored,
		ReceivedAt: base.Add(time.Second),
	}))
	require.NoError(t, j.Record(ctx, Entry{
		Provider: "card",
		Payload:  `not json`,
		Outcome:  OutcomeRejected,
		Error:    "malformed webhook payload",
	}))

	entries := deliveries(t, j, "mobile_money")
	require.Len(t, entries, 2)
	assert.Equal(t, OutcomeIgnored, entries[0].Outcome)
	assert.Equal(t, OutcomeApplied, entries[1].Outcome)

	card := deliveries(t, j, "card")
	require.Len(t, card, 1)
	assert.Equal(t, "malformed webhook payload", card[0].Error)
	assert.False(t, card[0].ReceivedAt.IsZero())
}

func TestNop(t *testing.T) {
	var j Journal = Nop{}
	assert.NoError(t, j.Record(context.Background(), Entry{Provider: "card"}))
}
