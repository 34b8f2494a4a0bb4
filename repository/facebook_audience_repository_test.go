package repository_test

import (
	"testing"
	"time"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	testingutil "github.com/amirphl/audience-orchestrator/testing"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func audienceRecord(fetchDate string, estimate int64) *models.FacebookAudience {
	return &models.FacebookAudience{
		CampaignID:         "C1",
		FacebookAccountID:  "A1",
		AudienceCategoryID: "K1",
		GeolocationID:      "G1",
		FetchDate:          fetchDate,
		Estimate:           estimate,
		Total:              estimate * 10,
		LocationEstimate:   estimate * 2,
		LocationTotal:      estimate * 20,
	}
}

func TestFacebookAudienceRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewFacebookAudienceRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("UpsertOverwritesSameDay", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			require.NoError(t, repo.Upsert(ctx, audienceRecord("2026-10-16", 100)))
			require.NoError(t, repo.Upsert(ctx, audienceRecord("2026-10-16", 250)))

			count, err := repo.Count(ctx, models.FacebookAudienceFilter{})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			latest, err := repo.Latest(ctx, "C1", "A1", "K1", "G1")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, int64(250), latest.Estimate)
			assert.Equal(t, int64(2500), latest.Total)
			assert.Equal(t, int64(500), latest.LocationEstimate)
			assert.Equal(t, int64(5000), latest.LocationTotal)
		})

		t.Run("NewDayAddsRecord", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			older := audienceRecord("2026-10-15", 80)
			older.CreatedAt = utils.UTCNowAdd(-24 * time.Hour)
			require.NoError(t, repo.Upsert(ctx, older))
			require.NoError(t, repo.Upsert(ctx, audienceRecord("2026-10-16", 90)))

			count, err := repo.Count(ctx, models.FacebookAudienceFilter{})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			latest, err := repo.Latest(ctx, "C1", "A1", "K1", "G1")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, "2026-10-16", latest.FetchDate)
		})

		t.Run("LatestMissingReturnsNil", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			latest, err := repo.Latest(ctx, "C1", "A1", "K1", "G1")
			require.NoError(t, err)
			assert.Nil(t, latest)
		})

		t.Run("LatestByCampaignKeepsNewestPerTuple", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			old := audienceRecord("2026-10-14", 10)
			old.CreatedAt = utils.UTCNowAdd(-48 * time.Hour)
			require.NoError(t, repo.Upsert(ctx, old))
			require.NoError(t, repo.Upsert(ctx, audienceRecord("2026-10-16", 20)))

			other := audienceRecord("2026-10-16", 30)
			other.FacebookAccountID = "A2"
			require.NoError(t, repo.Upsert(ctx, other))

			all, err := repo.LatestByCampaign(ctx, "C1", nil)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			scoped, err := repo.LatestByCampaign(ctx, "C1", utils.ToPtr("A1"))
			require.NoError(t, err)
			require.Len(t, scoped, 1)
			assert.Equal(t, int64(20), scoped[0].Estimate)
		})

		t.Run("DeleteScopes", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			require.NoError(t, repo.Upsert(ctx, audienceRecord("2026-10-16", 1)))
			other := audienceRecord("2026-10-16", 2)
			other.FacebookAccountID = "A2"
			require.NoError(t, repo.Upsert(ctx, other))
			foreign := audienceRecord("2026-10-16", 3)
			foreign.CampaignID = "C2"
			require.NoError(t, repo.Upsert(ctx, foreign))

			removed, err := repo.DeleteByCampaignAccount(ctx, "C1", "A1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			removed, err = repo.DeleteByCampaign(ctx, "C1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			count, err := repo.Count(ctx, models.FacebookAudienceFilter{})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		return nil
	})
	require.NoError(t, err)
}
