package businessflow_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/app/scheduler"
	businessflow "github.com/amirphl/audience-orchestrator/business_flow"
	"github.com/amirphl/audience-orchestrator/config"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	testingutil "github.com/amirphl/audience-orchestrator/testing"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func seedAudiences(t *testing.T, audiences repository.FacebookAudienceRepository) {
	t.Helper()
	ctx := context.Background()
	for _, r := range []*models.FacebookAudience{
		{CampaignID: "C1", FacebookAccountID: "A1", AudienceCategoryID: "K1", GeolocationID: "G1", FetchDate: "2024-03-01", Estimate: 10},
		{CampaignID: "C1", FacebookAccountID: "A1", AudienceCategoryID: "K1", GeolocationID: "G1", FetchDate: "2024-03-02", Estimate: 12},
		{CampaignID: "C1", FacebookAccountID: "A2", AudienceCategoryID: "K1", GeolocationID: "G1", FetchDate: "2024-03-02", Estimate: 30},
	} {
		require.NoError(t, audiences.Upsert(ctx, r))
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAudienceExportFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		campaigns := repository.NewCampaignRepository(testDB.DB)
		audiences := repository.NewFacebookAudienceRepository(testDB.DB)
		exports := repository.NewAudienceExportRepository(testDB.DB)
		jobs := repository.NewJobRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)

		setup := func(t *testing.T) *businessflow.AudienceExportFlowImpl {
			require.NoError(t, testDB.ClearAllTables())
			_, err := fixtures.CreateTargetingContext("X1", 1, 1)
			require.NoError(t, err)
			_, err = fixtures.CreateTestCampaign("C1", "X1", "act_1")
			require.NoError(t, err)
			return businessflow.NewAudienceExportFlow(campaigns, audiences, exports, scheduler.NewJobScheduler(jobs, nil),
				config.ExportConfig{Dir: t.TempDir(), TTL: 2 * time.Hour}, nil)
		}

		t.Run("WritesLatestRecordsAndSchedulesExpiry", func(t *testing.T) {
			flow := setup(t)
			seedAudiences(t, audiences)

			resp, err := flow.Export(ctx, &dto.CreateExportRequest{CampaignID: "C1"}, nil)
			require.NoError(t, err)
			assert.Equal(t, string(models.AudienceExportStatusReady), resp.Status)
			assert.Equal(t, 2, resp.Rows)

			path, filename, err := flow.ExportFile(ctx, resp.ID)
			require.NoError(t, err)
			assert.Regexp(t, `^audiences_C1_\d+\.xlsx$`, filename)

			xl, err := excelize.OpenFile(path)
			require.NoError(t, err)
			defer xl.Close()
			rows, err := xl.GetRows("audiences")
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.Equal(t, "campaign_id", rows[0][0])
			estimates := []string{rows[1][5], rows[2][5]}
			assert.ElementsMatch(t, []string{"12", "30"}, estimates)

			expiry, err := jobs.ByFilter(ctx, models.JobFilter{ExportID: utils.ToPtr(resp.ID)}, "", 0, 0)
			require.NoError(t, err)
			require.Len(t, expiry, 1)
			assert.Equal(t, models.JobTypeExpireExport, expiry[0].Type)
			assert.WithinDuration(t, resp.ExpiresAt, expiry[0].RunAt, time.Second)
		})

		t.Run("NarrowsToOneAccount", func(t *testing.T) {
			flow := setup(t)
			seedAudiences(t, audiences)

			resp, err := flow.Export(ctx, &dto.CreateExportRequest{CampaignID: "C1", FacebookAccountID: "A2"}, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, resp.Rows)
		})

		t.Run("NothingToExport", func(t *testing.T) {
			flow := setup(t)
			_, err := flow.Export(ctx, &dto.CreateExportRequest{CampaignID: "C1"}, nil)
			assert.ErrorIs(t, err, businessflow.ErrNothingToExport)
		})

		t.Run("ExpireDeletesFileAndIsIdempotent", func(t *testing.T) {
			flow := setup(t)
			seedAudiences(t, audiences)
			resp, err := flow.Export(ctx, &dto.CreateExportRequest{CampaignID: "C1"}, nil)
			require.NoError(t, err)
			path, _, err := flow.ExportFile(ctx, resp.ID)
			require.NoError(t, err)

			require.NoError(t, flow.ExpireExport(ctx, resp.ID))
			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr))

			stored, err := exports.ByID(ctx, resp.ID)
			require.NoError(t, err)
			assert.Equal(t, models.AudienceExportStatusExpired, stored.Status)

			require.NoError(t, flow.ExpireExport(ctx, resp.ID))
			require.NoError(t, flow.ExpireExport(ctx, "unknown"))

			_, _, err = flow.ExportFile(ctx, resp.ID)
			assert.ErrorIs(t, err, businessflow.ErrExportExpired)
		})

		t.Run("ExpireHandlerDelegates", func(t *testing.T) {
			flow := setup(t)
			seedAudiences(t, audiences)
			resp, err := flow.Export(ctx, &dto.CreateExportRequest{CampaignID: "C1"}, nil)
			require.NoError(t, err)

			handler := scheduler.NewExpireExportHandler(flow)
			result, err := handler.Handle(ctx, &models.Job{ID: "expiry"}, &models.ExpireExportPayload{CampaignID: "C1", ExportID: resp.ID})
			require.NoError(t, err)
			assert.Nil(t, result.RescheduleAt)

			listed, err := flow.ListExports(ctx, "C1")
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, string(models.AudienceExportStatusExpired), listed[0].Status)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestRemoveCampaignCascade(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		env := newLifecycleEnv(t, testDB)
		_, err := env.fixtures.AttachTestAccount("C1", "A1", true)
		require.NoError(t, err)
		_, err = env.fixtures.AttachTestAccount("C1", "A2", false)
		require.NoError(t, err)
		_, err = env.fixtures.CreateTestCampaign("C2", "X1", "act_1")
		require.NoError(t, err)
		_, err = env.fixtures.AttachTestAccount("C2", "A2", true)
		require.NoError(t, err)

		_, err = env.flow.RefreshCampaignJobs(ctx, "C1", nil)
		require.NoError(t, err)
		_, err = env.flow.RefreshCampaignJobs(ctx, "C2", nil)
		require.NoError(t, err)
		seedAudiences(t, env.audiences)
		require.NoError(t, testDB.DB.Create(&models.Person{CampaignID: "C1", FacebookID: "P1", Name: "Ana"}).Error)
		require.NoError(t, testDB.DB.Create(&models.Canvas{CampaignID: "C1", SectionKey: "identity", Value: "x"}).Error)
		require.NoError(t, testDB.DB.Create(&models.MapFeature{CampaignID: "C1", Title: "office", Geometry: "{}"}).Error)
		require.NoError(t, testDB.DB.Create(&models.CampaignUser{CampaignID: "C1", UserID: "U1"}).Error)

		export, err := env.exporter.Export(ctx, &dto.CreateExportRequest{CampaignID: "C1"}, nil)
		require.NoError(t, err)
		path, _, err := env.exporter.ExportFile(ctx, export.ID)
		require.NoError(t, err)

		env.client.On("UnsubscribeApp", mock.Anything, "A1", "long-token-A1").Return(nil).Once()

		resp, err := env.flow.RemoveCampaign(ctx, "C1", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.ExpiredExports)
		assert.Equal(t, 1, resp.DeprovisionedAccounts)
		assert.Equal(t, int64(3), resp.RemovedAudiences)

		campaign, err := env.campaigns.ByID(ctx, "C1")
		require.NoError(t, err)
		assert.Nil(t, campaign)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
		assert.Equal(t, int64(0), countCampaignJobs(t, env.jobs, "C1"))

		for _, model := range []any{&models.Person{}, &models.Canvas{}, &models.MapFeature{}, &models.AudienceExport{}, &models.CampaignUser{}, &models.CampaignAccount{}} {
			var n int64
			require.NoError(t, testDB.DB.Model(model).Where("campaign_id = ?", "C1").Count(&n).Error)
			assert.Zero(t, n, "%T", model)
		}

		// The shared account and the other campaign are untouched.
		assert.NotEmpty(t, jobSet(t, env.jobs, "C2"))
		shared, err := env.accounts.ByFacebookID(ctx, "A2")
		require.NoError(t, err)
		assert.NotNil(t, shared)
		gone, err := env.accounts.ByFacebookID(ctx, "A1")
		require.NoError(t, err)
		assert.Nil(t, gone)
		env.client.AssertExpectations(t)

		_, err = env.flow.RemoveCampaign(ctx, "C1", nil)
		assert.True(t, businessflow.IsCampaignNotFound(err))
		return nil
	})
	require.NoError(t, err)
}
