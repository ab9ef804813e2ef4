package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/digest"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Summary(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error) {
	args := m.Called(ctx, guildID, windowHours)
	sum, _ := args.Get(0).(*digest.Summary)
	return sum, args.Error(1)
}

func (m *mockService) Run(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error) {
	args := m.Called(ctx, guildID, windowHours)
	sum, _ := args.Get(0).(*digest.Summary)
	return sum, args.Error(1)
}

func (m *mockService) Ingest(ctx context.Context, fields map[string]any) (bool, error) {
	args := m.Called(ctx, fields)
	return args.Bool(0), args.Error(1)
}

func newTestServer(svc Service) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, NewLog(svc, zap.NewNop()), zap.NewNop())
	return r
}

type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func TestHTTP_Summary(t *testing.T) {
	svc := &mockService{}
	svc.On("Summary", mock.Anything, "g1", 6).Return(&digest.Summary{
		GuildID:     "g1",
		WindowHours: 6,
		MintCount:   1,
		SaleCount:   2,
		TotalETH:    decimal.RequireFromString("4.5"),
		TotalUSD:    decimal.RequireFromString("9000"),
	}, nil).Once()

	rec := httptest.NewRecorder()
	newTestServer(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digest/g1/summary?hours=6", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "g1", got.GuildID)
	assert.Equal(t, 1, got.Mints)
	assert.Equal(t, 2, got.Sales)
	assert.Equal(t, "4.5", got.VolumeETH)
	assert.Equal(t, "9000.00", got.VolumeUSD)
	assert.Equal(t, digest.NotAvailable, got.TopSale)
	svc.AssertExpectations(t)
}

func TestHTTP_Summary_BadHours(t *testing.T) {
	svc := &mockService{}

	rec := httptest.NewRecorder()
	newTestServer(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digest/g1/summary?hours=abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var got errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "hours must be an integer", got.Error)
	svc.AssertNotCalled(t, "Summary", mock.Anything, mock.Anything, mock.Anything)
}

func TestHTTP_Run(t *testing.T) {
	svc := &mockService{}
	svc.On("Run", mock.Anything, "g1", 0).Return(&digest.Summary{GuildID: "g1", WindowHours: 24}, nil).Once()
	svc.On("Run", mock.Anything, "g2", 0).
		Return(nil, apperrors.ResourceNotFoundError(digest.ErrSettingsNotFound, "digest is not set up for this guild")).Once()

	h := newTestServer(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/digest/g1/run", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/digest/g2/run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var got errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "digest is not set up for this guild", got.Error)

	svc.AssertExpectations(t)
}

func TestHTTP_Ingest(t *testing.T) {
	svc := &mockService{}
	svc.On("Ingest", mock.Anything, mock.MatchedBy(func(f map[string]any) bool {
		return f["guildId"] == "g1" && f["type"] == "mint"
	})).Return(true, nil).Once()
	svc.On("Ingest", mock.Anything, mock.Anything).Return(false, nil).Once()

	h := newTestServer(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/digest/events",
		bytes.NewBufferString(`{"guildId":"g1","type":"mint","contract":"0xABC"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"inserted":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/digest/events", bytes.NewBufferString(`{"type":"mint"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"inserted":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/digest/events", bytes.NewBufferString("{broken")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertNumberOfCalls(t, "Ingest", 2)
}

func TestHTTP_IngestKeepsLargeNumbersExact(t *testing.T) {
	var got map[string]any
	svc := &mockService{}
	svc.On("Ingest", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(map[string]any)
	}).Return(true, nil).Once()

	rec := httptest.NewRecorder()
	newTestServer(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/digest/events",
		bytes.NewBufferString(`{"guildId":"g1","type":"sale","tokenId":123456789012345678901,"amountEth":0.1,"timestamp":1700000000123}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, json.Number("123456789012345678901"), got["tokenId"])
	in := digest.FromFields(got)
	assert.Equal(t, "123456789012345678901", in.TokenID)
	require.NotNil(t, in.AmountETH)
	assert.Equal(t, "0.1", in.AmountETH.String())
	assert.Equal(t, int64(1700000000123), in.Timestamp.UnixMilli())
	svc.AssertExpectations(t)
}

func TestHTTP_InternalErrorIsHidden(t *testing.T) {
	svc := &mockService{}
	svc.On("Summary", mock.Anything, "g1", 0).Return(nil, apperrors.GeneralError(errors.New("pq: password authentication failed"))).Once()

	rec := httptest.NewRecorder()
	newTestServer(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digest/g1/summary", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}
