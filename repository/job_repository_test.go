package repository_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	testingutil "github.com/amirphl/audience-orchestrator/testing"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func audienceFetchPayload(token string) *models.AudienceFetchPayload {
	return &models.AudienceFetchPayload{
		CampaignID:         "C1",
		AdAccountID:        "act_1",
		Tokens:             []string{token},
		FacebookAccountID:  "A1",
		GeolocationID:      "G1",
		AudienceCategoryID: "K1",
		Spec:               map[string]any{"interests": []any{"6003"}},
	}
}

func TestJobIdentityKey(t *testing.T) {
	t.Run("TokensAndSpecAreNotIdentity", func(t *testing.T) {
		a := audienceFetchPayload("token-a")
		b := audienceFetchPayload("token-b")
		b.Spec = map[string]any{"interests": []any{"1"}}
		b.AdAccountID = "act_2"
		assert.Equal(t, models.IdentityKey(a), models.IdentityKey(b))
	})

	t.Run("IdentityFieldsChangeKey", func(t *testing.T) {
		a := audienceFetchPayload("token")
		b := audienceFetchPayload("token")
		b.GeolocationID = "G2"
		assert.NotEqual(t, models.IdentityKey(a), models.IdentityKey(b))
	})

	t.Run("TypeIsPartOfIdentity", func(t *testing.T) {
		fetch := &models.AccountEntriesPayload{CampaignID: "C1", FacebookID: "A1", AccessToken: "t"}
		refetch := &models.AccountEntriesPayload{CampaignID: "C1", FacebookID: "A1", AccessToken: "t", Refetch: true}
		assert.NotEqual(t, models.IdentityKey(fetch), models.IdentityKey(refetch))
	})
}

func TestJobRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewJobRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("EnqueueTwiceKeepsOneLiveJob", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			first, err := repo.Enqueue(ctx, audienceFetchPayload("t1"), models.EnqueueOptions{})
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusReady, first.Status)
			assert.Equal(t, "C1", first.CampaignID)
			assert.Equal(t, "A1", first.FacebookAccountID)

			_, err = repo.Enqueue(ctx, audienceFetchPayload("t2"), models.EnqueueOptions{})
			assert.ErrorIs(t, err, repository.ErrDuplicateJob)

			count, err := repo.Count(ctx, models.JobFilter{})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		t.Run("ConcurrentEnqueueYieldsOneLiveJob", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			const attempts = 12
			var wg sync.WaitGroup
			var mu sync.Mutex
			created, duplicates := 0, 0
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C-concurrent"}, models.EnqueueOptions{})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						created++
					case errors.Is(err, repository.ErrDuplicateJob):
						duplicates++
					default:
						t.Errorf("unexpected enqueue error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, created)
			assert.Equal(t, attempts-1, duplicates)
		})

		t.Run("TerminalJobsDoNotBlockEnqueue", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			job, err := repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C2"}, models.EnqueueOptions{})
			require.NoError(t, err)
			ok, err := repo.Transition(ctx, job.ID, models.JobStatusReady, models.JobStatusCancelled, models.JobChange{})
			require.NoError(t, err)
			require.True(t, ok)

			again, err := repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C2"}, models.EnqueueOptions{})
			require.NoError(t, err)
			assert.NotEqual(t, job.ID, again.ID)

			pending, err := repo.FindPending(ctx, again.Type, again.IdentityKey)
			require.NoError(t, err)
			require.NotNil(t, pending)
			assert.Equal(t, again.ID, pending.ID)
		})

		t.Run("TransitionIsCompareAndSet", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			job, err := repo.Enqueue(ctx, &models.FacebookUsersPayload{CampaignID: "C3", FacebookAccountID: "A3"}, models.EnqueueOptions{Waiting: true})
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusWaiting, job.Status)

			ok, err := repo.Transition(ctx, job.ID, models.JobStatusReady, models.JobStatusActive, models.JobChange{})
			require.NoError(t, err)
			assert.False(t, ok, "a waiting job must not be claimed as ready")

			now := utils.UTCNow()
			ok, err = repo.Transition(ctx, job.ID, models.JobStatusWaiting, models.JobStatusReady, models.JobChange{RunAt: &now})
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = repo.Transition(ctx, job.ID, models.JobStatusWaiting, models.JobStatusReady, models.JobChange{})
			require.NoError(t, err)
			assert.False(t, ok)

			stored, err := repo.ByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusReady, stored.Status)
		})

		t.Run("TransitionSetsAndClearsError", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			job, err := repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C4"}, models.EnqueueOptions{})
			require.NoError(t, err)

			ok, err := repo.Transition(ctx, job.ID, models.JobStatusReady, models.JobStatusFailed, models.JobChange{Error: utils.ToPtr("upstream rejected")})
			require.NoError(t, err)
			require.True(t, ok)

			stored, err := repo.ByID(ctx, job.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.Error)
			assert.Equal(t, "upstream rejected", *stored.Error)
			assert.NotNil(t, stored.FinishedAt)

			ok, err = repo.Transition(ctx, job.ID, models.JobStatusFailed, models.JobStatusWaiting, models.JobChange{ClearError: true})
			require.NoError(t, err)
			require.True(t, ok)

			stored, err = repo.ByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Nil(t, stored.Error)
			assert.Equal(t, models.JobStatusWaiting, stored.Status)
		})

		t.Run("ClaimNextSkipsForeverAndForeignTypes", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, err := repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C5"}, models.EnqueueOptions{RunAt: &models.ForeverDate})
			require.NoError(t, err)
			_, err = repo.Enqueue(ctx, &models.FacebookUsersPayload{CampaignID: "C5", FacebookAccountID: "A5"}, models.EnqueueOptions{})
			require.NoError(t, err)
			due, err := repo.Enqueue(ctx, audienceFetchPayload("t"), models.EnqueueOptions{})
			require.NoError(t, err)

			types := []models.JobType{models.JobTypeCampaignHealthCheck, models.JobTypeFetchAccountAudience}
			claimed, err := repo.ClaimNext(ctx, types, utils.UTCNow())
			require.NoError(t, err)
			require.NotNil(t, claimed)
			assert.Equal(t, due.ID, claimed.ID)
			assert.Equal(t, models.JobStatusActive, claimed.Status)
			assert.Equal(t, 1, claimed.Attempts)
			assert.NotNil(t, claimed.StartedAt)

			next, err := repo.ClaimNext(ctx, types, utils.UTCNow())
			require.NoError(t, err)
			assert.Nil(t, next)
		})

		t.Run("ConcurrentClaimsHaveOneWinner", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, err := repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C6"}, models.EnqueueOptions{})
			require.NoError(t, err)

			types := []models.JobType{models.JobTypeCampaignHealthCheck}
			var wg sync.WaitGroup
			var mu sync.Mutex
			winners := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					job, err := repo.ClaimNext(ctx, types, utils.UTCNow())
					if err != nil {
						t.Errorf("claim failed: %v", err)
						return
					}
					if job != nil {
						mu.Lock()
						winners++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, winners)
		})

		t.Run("RemoveByOwner", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, err := repo.Enqueue(ctx, audienceFetchPayload("t"), models.EnqueueOptions{})
			require.NoError(t, err)
			_, err = repo.Enqueue(ctx, &models.FacebookUsersPayload{CampaignID: "C1", FacebookAccountID: "A1"}, models.EnqueueOptions{})
			require.NoError(t, err)
			_, err = repo.Enqueue(ctx, &models.FacebookUsersPayload{CampaignID: "C1", FacebookAccountID: "A2"}, models.EnqueueOptions{})
			require.NoError(t, err)
			_, err = repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C9"}, models.EnqueueOptions{})
			require.NoError(t, err)

			removed, err := repo.RemoveByOwner(ctx, models.JobFilter{CampaignID: utils.ToPtr("C1"), FacebookAccountID: utils.ToPtr("A1")})
			require.NoError(t, err)
			assert.Equal(t, int64(2), removed)

			removed, err = repo.RemoveByOwner(ctx, models.JobFilter{CampaignID: utils.ToPtr("C1")})
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			_, err = repo.RemoveByOwner(ctx, models.JobFilter{})
			assert.Error(t, err)

			count, err := repo.Count(ctx, models.JobFilter{})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		t.Run("FailStaleAndPurgeCompleted", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			active, err := repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C7"}, models.EnqueueOptions{})
			require.NoError(t, err)
			ok, err := repo.Transition(ctx, active.ID, models.JobStatusReady, models.JobStatusActive, models.JobChange{})
			require.NoError(t, err)
			require.True(t, ok)

			done, err := repo.Enqueue(ctx, &models.HealthCheckPayload{CampaignID: "C8"}, models.EnqueueOptions{})
			require.NoError(t, err)
			ok, err = repo.Transition(ctx, done.ID, models.JobStatusReady, models.JobStatusCompleted, models.JobChange{})
			require.NoError(t, err)
			require.True(t, ok)

			future := utils.UTCNowAdd(time.Minute)
			failed, err := repo.FailStale(ctx, future)
			require.NoError(t, err)
			assert.Equal(t, int64(1), failed)

			stored, err := repo.ByID(ctx, active.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusFailed, stored.Status)
			require.NotNil(t, stored.Error)

			purged, err := repo.PurgeCompleted(ctx, future)
			require.NoError(t, err)
			assert.Equal(t, int64(1), purged)

			gone, err := repo.ByID(ctx, done.ID)
			require.NoError(t, err)
			assert.Nil(t, gone)
		})

		t.Run("DecodePayloadRoundTrip", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			job, err := repo.Enqueue(ctx, &models.AccountEntriesPayload{CampaignID: "C1", FacebookID: "A1", AccessToken: "tok", Refetch: true}, models.EnqueueOptions{})
			require.NoError(t, err)

			stored, err := repo.ByID(ctx, job.ID)
			require.NoError(t, err)
			payload, err := models.DecodePayload(stored)
			require.NoError(t, err)

			entries, ok := payload.(*models.AccountEntriesPayload)
			require.True(t, ok)
			assert.True(t, entries.Refetch)
			assert.Equal(t, "tok", entries.AccessToken)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewJobRepository(testDB.DB)
		_, err := repo.Enqueue(testingutil.CreateTestContext(), &models.AudienceFetchPayload{CampaignID: "C1"}, models.EnqueueOptions{})
		assert.ErrorIs(t, err, models.ErrInvalidPayload)
		return nil
	})
	require.NoError(t, err)
}
