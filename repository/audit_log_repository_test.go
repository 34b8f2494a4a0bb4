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

func TestAuditLogRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewAuditLogRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()
		require.NoError(t, testDB.ClearAllTables())

		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		entries := []*models.AuditLog{
			{OperatorID: utils.ToPtr("op-1"), Action: "POST /api/v1/campaigns/:id/suspend", CampaignID: utils.ToPtr("C1"), StatusCode: 200, Success: true, CreatedAt: base},
			{OperatorID: utils.ToPtr("op-2"), Action: "POST /api/v1/campaigns/:id/suspend", CampaignID: utils.ToPtr("C1"), StatusCode: 403, Success: false, CreatedAt: base.Add(time.Minute)},
			{OperatorID: utils.ToPtr("op-1"), Action: "POST /api/v1/jobs/:jobId/cancel", Target: utils.ToPtr("job-1"), StatusCode: 200, Success: true, CreatedAt: base.Add(2 * time.Minute)},
		}
		for _, entry := range entries {
			require.NoError(t, repo.Save(ctx, entry))
		}

		t.Run("NewestFirst", func(t *testing.T) {
			rows, err := repo.ByFilter(ctx, models.AuditLogFilter{}, "", 0, 0)
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.Equal(t, "POST /api/v1/jobs/:jobId/cancel", rows[0].Action)
		})

		t.Run("Filters", func(t *testing.T) {
			count, err := repo.Count(ctx, models.AuditLogFilter{OperatorID: utils.ToPtr("op-1")})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			count, err = repo.Count(ctx, models.AuditLogFilter{CampaignID: utils.ToPtr("C1"), Success: utils.ToPtr(false)})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			count, err = repo.Count(ctx, models.AuditLogFilter{CreatedAfter: utils.ToPtr(base.Add(30 * time.Second))})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})

		t.Run("SaveStampsCreatedAt", func(t *testing.T) {
			entry := &models.AuditLog{Action: "DELETE /api/v1/campaigns/:id", StatusCode: 200, Success: true}
			require.NoError(t, repo.Save(ctx, entry))
			assert.False(t, entry.CreatedAt.IsZero())
			assert.NotZero(t, entry.ID)
		})

		return nil
	})
	require.NoError(t, err)
}
