package testing

import (
	"context"

	"github.com/amirphl/audience-orchestrator/app/services"
	"github.com/stretchr/testify/mock"
)

// MockFacebookClient is a mock implementation of services.FacebookClient
type MockFacebookClient struct {
	mock.Mock
}

func NewMockFacebookClient() *MockFacebookClient {
	return &MockFacebookClient{}
}

func (m *MockFacebookClient) ReachEstimate(ctx context.Context, adAccountID, accessToken string, spec map[string]any) (*services.ReachEstimate, error) {
	args := m.Called(ctx, adAccountID, accessToken, spec)
	if est, ok := args.Get(0).(*services.ReachEstimate); ok {
		return est, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFacebookClient) ExchangeToken(ctx context.Context, shortLivedToken string) (string, error) {
	args := m.Called(ctx, shortLivedToken)
	return args.String(0), args.Error(1)
}

func (m *MockFacebookClient) DebugToken(ctx context.Context, token string) (*services.TokenDebug, error) {
	args := m.Called(ctx, token)
	if debug, ok := args.Get(0).(*services.TokenDebug); ok {
		return debug, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFacebookClient) SubscribeApp(ctx context.Context, pageID, pageToken string) error {
	return m.Called(ctx, pageID, pageToken).Error(0)
}

func (m *MockFacebookClient) UnsubscribeApp(ctx context.Context, pageID, pageToken string) error {
	return m.Called(ctx, pageID, pageToken).Error(0)
}

func (m *MockFacebookClient) AdAccountStatus(ctx context.Context, adAccountID, accessToken string) (*services.AdAccountStatus, error) {
	args := m.Called(ctx, adAccountID, accessToken)
	if status, ok := args.Get(0).(*services.AdAccountStatus); ok {
		return status, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFacebookClient) UserPages(ctx context.Context, userToken string) ([]*services.Page, error) {
	args := m.Called(ctx, userToken)
	if pages, ok := args.Get(0).([]*services.Page); ok {
		return pages, args.Error(1)
	}
	return nil, args.Error(1)
}

// StaticTokenValidator accepts every token except the ones listed as invalid
type StaticTokenValidator struct {
	Invalid map[string]bool
}

func (v *StaticTokenValidator) Validate(_ context.Context, token string) (bool, error) {
	return token != "" && !v.Invalid[token], nil
}
