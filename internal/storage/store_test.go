package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// StoreIntegrationTestSuite exercises the Store against a real Postgres
// instance, the same integration-test shape the teacher uses for its
// reliability suite (connect once in SetupSuite, reuse across tests).
type StoreIntegrationTestSuite struct {
	suite.Suite
	db    *gorm.DB
	store *Store
}

func (s *StoreIntegrationTestSuite) SetupSuite() {
	dsn := os.Getenv("IPASSIST_TEST_DATABASE_URL")
	if dsn == "" {
		s.T().Skip("IPASSIST_TEST_DATABASE_URL not set, skipping storage integration tests")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(s.T(), err)
	s.db = db
	s.store = New(db)
	require.NoError(s.T(), s.store.Migrate())
}

func (s *StoreIntegrationTestSuite) TestRecordExecutionUpdatesUsageStats() {
	ctx := context.Background()
	exec := &QueryExecution{
		QueryText:      "fiducial marker placement requirements",
		Classification: "clinical",
		IsEmergency:    false,
		LatencyMs:      120,
	}
	require.NoError(s.T(), s.store.RecordExecution(ctx, exec))

	stats, err := s.store.GetUsageStats(ctx, "clinical")
	require.NoError(s.T(), err)
	s.GreaterOrEqual(stats.TotalQueries, 1)
}

func (s *StoreIntegrationTestSuite) TestUpsertSession() {
	ctx := context.Background()
	require.NoError(s.T(), s.store.UpsertSession(ctx, "sess-1", 2, "clinical"))
	require.NoError(s.T(), s.store.UpsertSession(ctx, "sess-1", 3, "coding"))
}

func (s *StoreIntegrationTestSuite) TestSessionCRUD() {
	ctx := context.Background()

	created, err := s.store.CreateSession(ctx, "sess-crud-1", nil)
	require.NoError(s.T(), err)
	s.Equal("sess-crud-1", created.SessionID)
	s.Nil(created.ClosedAt)

	got, err := s.store.GetSession(ctx, "sess-crud-1")
	require.NoError(s.T(), err)
	s.Equal(created.SessionID, got.SessionID)

	sessions, err := s.store.ListSessions(ctx, 10)
	require.NoError(s.T(), err)
	s.NotEmpty(sessions)

	updated, err := s.store.UpdateSessionClassification(ctx, "sess-crud-1", "coding_billing")
	require.NoError(s.T(), err)
	s.Equal("coding_billing", updated.LastClassification)

	closed, err := s.store.CloseSession(ctx, "sess-crud-1")
	require.NoError(s.T(), err)
	s.NotNil(closed.ClosedAt)

	_, err = s.store.GetSession(ctx, "sess-does-not-exist")
	s.ErrorIs(err, ErrSessionNotFound)
}

func TestStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(StoreIntegrationTestSuite))
}
