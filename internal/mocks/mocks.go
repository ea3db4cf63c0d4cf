package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync-client/internal/models"
)

type FetcherMock struct {
	mock.Mock
}

func (m *FetcherMock) Messages(ctx context.Context, roomID, page, size int, sort string) ([]models.Message, error) {
	args := m.Called(ctx, roomID, page, size, sort)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *FetcherMock) RoomDetail(ctx context.Context, roomID int) (models.RoomDetail, error) {
	args := m.Called(ctx, roomID)
	var detail models.RoomDetail
	if val := args.Get(0); val != nil {
		detail = val.(models.RoomDetail)
	}
	return detail, args.Error(1)
}

func (m *FetcherMock) MyRooms(ctx context.Context) ([]models.RoomSummary, error) {
	args := m.Called(ctx)
	var rooms []models.RoomSummary
	if val := args.Get(0); val != nil {
		rooms = val.([]models.RoomSummary)
	}
	return rooms, args.Error(1)
}

type CredentialProviderMock struct {
	mock.Mock
}

func (m *CredentialProviderMock) Token() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}
