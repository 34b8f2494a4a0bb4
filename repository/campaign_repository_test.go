package repository_test

import (
	"testing"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	testingutil "github.com/amirphl/audience-orchestrator/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCampaignRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ByIDLoadsAccountsMainFirst", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, err := fixtures.CreateTestCampaign("C1", "X1", "act_1")
			require.NoError(t, err)
			_, err = fixtures.AttachTestAccount("C1", "A1", false)
			require.NoError(t, err)
			_, err = fixtures.AttachTestAccount("C1", "A2", true)
			require.NoError(t, err)

			campaign, err := repo.ByID(ctx, "C1")
			require.NoError(t, err)
			require.NotNil(t, campaign)
			require.Len(t, campaign.Accounts, 2)
			assert.Equal(t, "A2", campaign.Accounts[0].FacebookID)

			main := campaign.MainAccount()
			require.NotNil(t, main)
			assert.Equal(t, "A2", main.FacebookID)

			missing, err := repo.ByID(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("AttachAccountDemotesPreviousMain", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, err := fixtures.CreateTestCampaign("C1", "X1", "act_1")
			require.NoError(t, err)
			_, err = fixtures.AttachTestAccount("C1", "A1", true)
			require.NoError(t, err)

			require.NoError(t, repo.AttachAccount(ctx, &models.CampaignAccount{
				CampaignID: "C1", FacebookID: "A2", AccessToken: "tok-2", IsMain: true,
			}))

			campaign, err := repo.ByID(ctx, "C1")
			require.NoError(t, err)
			main := campaign.MainAccount()
			require.NotNil(t, main)
			assert.Equal(t, "A2", main.FacebookID)
			assert.False(t, campaign.Account("A1").IsMain)
		})

		t.Run("AttachExistingAccountRefreshesToken", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, err := fixtures.CreateTestCampaign("C1", "X1", "act_1")
			require.NoError(t, err)
			_, err = fixtures.AttachTestAccount("C1", "A1", false)
			require.NoError(t, err)

			require.NoError(t, repo.AttachAccount(ctx, &models.CampaignAccount{
				CampaignID: "C1", FacebookID: "A1", AccessToken: "fresh",
			}))

			campaign, err := repo.ByID(ctx, "C1")
			require.NoError(t, err)
			require.Len(t, campaign.Accounts, 1)
			assert.Equal(t, "fresh", campaign.Accounts[0].AccessToken)
		})

		t.Run("CountCampaignsWithAccount", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			for _, id := range []string{"C1", "C2"} {
				_, err := fixtures.CreateTestCampaign(id, "X1", "act_1")
				require.NoError(t, err)
				_, err = fixtures.AttachTestAccount(id, "A1", false)
				require.NoError(t, err)
			}

			count, err := repo.CountCampaignsWithAccount(ctx, "A1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			removed, err := repo.DetachAccount(ctx, "C1", "A1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			count, err = repo.CountCampaignsWithAccount(ctx, "A1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		t.Run("ClearAdAccountInvalidatesCampaign", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, err := fixtures.CreateTestCampaign("C1", "X1", "act_1")
			require.NoError(t, err)
			require.NoError(t, repo.ClearAdAccount(ctx, "C1"))

			campaign, err := repo.ByID(ctx, "C1")
			require.NoError(t, err)
			assert.Nil(t, campaign.AdAccountID)
			assert.Equal(t, models.CampaignStatusInvalidAdAccount, campaign.Status)
		})

		return nil
	})
	require.NoError(t, err)
}
