package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/image-tracker/internal/database"
	"github.com/vadimbarashkov/image-tracker/internal/models"
	"github.com/vadimbarashkov/image-tracker/internal/relay"
)

const testImageURL = "https://cdn.example.com/a.png"

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// clock is a manually advanced time source.
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedTracker(ledger AccessLedger, fetcher ImageFetcher, opts ...TrackOption) (*TrackService, *clock) {
	c := &clock{t: time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)}

	svc := NewTrackService(ledger, fetcher, append([]TrackOption{WithLogger(discardLogger)}, opts...)...)
	svc.now = c.now

	return svc, c
}

func TestTrackService_NewEvent(t *testing.T) {
	svc, c := newClockedTracker(newMemLedger(), nil)

	t.Run("placeholders", func(t *testing.T) {
		e := svc.NewEvent(testImageURL, "", "", "")

		assert.Equal(t, models.AccessEvent{
			ImageURL:  testImageURL,
			IPAddress: models.UnknownValue,
			UserAgent: models.UnknownValue,
			Referrer:  models.DirectReferrer,
			Timestamp: c.t,
		}, e)
	})

	t.Run("values kept verbatim", func(t *testing.T) {
		e := svc.NewEvent(testImageURL, "10.0.0.1", " Mozilla/5.0 ", "https://blog.example.com/post")

		assert.Equal(t, "10.0.0.1", e.IPAddress)
		assert.Equal(t, " Mozilla/5.0 ", e.UserAgent)
		assert.Equal(t, "https://blog.example.com/post", e.Referrer)
	})
}

func TestTrackService_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("repeat within window is duplicate", func(t *testing.T) {
		ledger := newMemLedger()
		svc, c := newClockedTracker(ledger, nil)

		first := svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct"))
		firstAt := c.t

		c.advance(time.Second)
		second := svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct"))

		assert.Equal(t, models.OutcomeNew, first)
		assert.Equal(t, models.OutcomeDuplicate, second)
		assert.Len(t, ledger.history, 1)

		summary, err := ledger.GetSummary(ctx, testImageURL)
		require.NoError(t, err)
		assert.Equal(t, firstAt, summary.UpdatedAt)
		assert.EqualValues(t, 1, summary.AccessCount)
	})

	t.Run("repeat at window edge is duplicate", func(t *testing.T) {
		ledger := newMemLedger()
		svc, c := newClockedTracker(ledger, nil)

		svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct"))
		c.advance(DefaultWindow)

		assert.Equal(t, models.OutcomeDuplicate, svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct")))
	})

	t.Run("repeat after window is new", func(t *testing.T) {
		ledger := newMemLedger()
		svc, c := newClockedTracker(ledger, nil)

		svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct"))
		c.advance(4 * time.Second)
		outcome := svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct"))

		assert.Equal(t, models.OutcomeNew, outcome)
		assert.Len(t, ledger.history, 2)

		summary, err := ledger.GetSummary(ctx, testImageURL)
		require.NoError(t, err)
		assert.Equal(t, c.t, summary.UpdatedAt)
		assert.EqualValues(t, 2, summary.AccessCount)
	})

	t.Run("varying one field is new", func(t *testing.T) {
		variants := []struct {
			name             string
			ip, ua, referrer string
		}{
			{name: "ip", ip: "10.0.0.2", ua: "ua", referrer: "direct"},
			{name: "user agent", ip: "10.0.0.1", ua: "other-ua", referrer: "direct"},
			{name: "referrer", ip: "10.0.0.1", ua: "ua", referrer: "https://blog.example.com"},
		}

		for _, v := range variants {
			t.Run(v.name, func(t *testing.T) {
				ledger := newMemLedger()
				svc, c := newClockedTracker(ledger, nil)

				first := svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct"))
				c.advance(time.Second)
				second := svc.Record(ctx, svc.NewEvent(testImageURL, v.ip, v.ua, v.referrer))

				assert.Equal(t, models.OutcomeNew, first)
				assert.Equal(t, models.OutcomeNew, second)
				assert.Len(t, ledger.history, 2)
			})
		}
	})

	t.Run("internal referrer is never recorded", func(t *testing.T) {
		ledger := newMemLedger()
		svc, c := newClockedTracker(ledger, nil, WithInternalHost("app.example.com"))

		for i := 0; i < 3; i++ {
			outcome := svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "https://app.example.com/dashboard"))
			assert.Equal(t, models.OutcomeInternal, outcome)
			c.advance(5 * time.Second)
		}

		assert.Empty(t, ledger.history)
		_, err := ledger.GetSummary(ctx, testImageURL)
		assert.ErrorIs(t, err, database.ErrSummaryNotFound)
	})

	t.Run("empty internal host matches nothing", func(t *testing.T) {
		ledger := newMemLedger()
		svc, _ := newClockedTracker(ledger, nil, WithInternalHost(""))

		assert.Equal(t, models.OutcomeNew, svc.Record(ctx, svc.NewEvent(testImageURL, "", "", "")))
	})

	t.Run("custom window", func(t *testing.T) {
		ledger := newMemLedger()
		svc, c := newClockedTracker(ledger, nil, WithWindow(10*time.Second))

		svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct"))
		c.advance(4 * time.Second)

		assert.Equal(t, models.OutcomeDuplicate, svc.Record(ctx, svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct")))
	})
}

type TrackServiceTestSuite struct {
	suite.Suite
	errUnknown  error
	ledgerMock  *MockAccessLedger
	fetcherMock *MockImageFetcher
	svc         *TrackService
	clock       *clock
	event       models.AccessEvent
}

func (suite *TrackServiceTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
}

func (suite *TrackServiceTestSuite) SetupSubTest() {
	suite.ledgerMock = new(MockAccessLedger)
	suite.fetcherMock = new(MockImageFetcher)
	suite.svc, suite.clock = newClockedTracker(suite.ledgerMock, suite.fetcherMock)
	suite.event = suite.svc.NewEvent(testImageURL, "10.0.0.1", "ua", "direct")
}

func (suite *TrackServiceTestSuite) TearDownSubTest() {
	suite.ledgerMock.AssertExpectations(suite.T())
	suite.fetcherMock.AssertExpectations(suite.T())
}

func (suite *TrackServiceTestSuite) TestRecord() {
	suite.Run("lookup failure treated as new", func() {
		since := suite.event.Timestamp.Add(-DefaultWindow)
		suite.ledgerMock.On("FindRecent", mock.Anything, suite.event, since).Once().Return(nil, suite.errUnknown)
		suite.ledgerMock.On("TouchSummary", mock.Anything, testImageURL, suite.event.Timestamp).Once().Return(nil)
		suite.ledgerMock.On("AppendHistory", mock.Anything, suite.event).Once().Return(nil)

		suite.Equal(models.OutcomeNew, suite.svc.Record(context.Background(), suite.event))
	})

	suite.Run("summary failure still appends history", func() {
		suite.ledgerMock.On("FindRecent", mock.Anything, suite.event, mock.Anything).Once().Return(nil, database.ErrAccessNotFound)
		suite.ledgerMock.On("TouchSummary", mock.Anything, testImageURL, suite.event.Timestamp).Once().Return(suite.errUnknown)
		suite.ledgerMock.On("AppendHistory", mock.Anything, suite.event).Once().Return(nil)

		suite.Equal(models.OutcomeNew, suite.svc.Record(context.Background(), suite.event))
	})

	suite.Run("history failure is swallowed", func() {
		suite.ledgerMock.On("FindRecent", mock.Anything, suite.event, mock.Anything).Once().Return(nil, database.ErrAccessNotFound)
		suite.ledgerMock.On("TouchSummary", mock.Anything, testImageURL, suite.event.Timestamp).Once().Return(nil)
		suite.ledgerMock.On("AppendHistory", mock.Anything, suite.event).Once().Return(suite.errUnknown)

		suite.Equal(models.OutcomeNew, suite.svc.Record(context.Background(), suite.event))
	})

	suite.Run("duplicate writes nothing", func() {
		suite.ledgerMock.On("FindRecent", mock.Anything, suite.event, mock.Anything).Once().
			Return(&models.AccessHistoryEntry{ID: 1, ImageURL: testImageURL}, nil)

		suite.Equal(models.OutcomeDuplicate, suite.svc.Record(context.Background(), suite.event))
		suite.ledgerMock.AssertNotCalled(suite.T(), "TouchSummary", mock.Anything, mock.Anything, mock.Anything)
		suite.ledgerMock.AssertNotCalled(suite.T(), "AppendHistory", mock.Anything, mock.Anything)
	})
}

func (suite *TrackServiceTestSuite) TestServe() {
	suite.Run("fetch failure", func() {
		suite.ledgerMock.On("FindRecent", mock.Anything, suite.event, mock.Anything).Once().Return(nil, database.ErrAccessNotFound)
		suite.ledgerMock.On("TouchSummary", mock.Anything, testImageURL, mock.Anything).Once().Return(nil)
		suite.ledgerMock.On("AppendHistory", mock.Anything, suite.event).Once().Return(nil)
		suite.fetcherMock.On("Fetch", mock.Anything, testImageURL).Once().Return(nil, relay.ErrUpstreamFetchFailed)

		img, outcome, err := suite.svc.Serve(context.Background(), suite.event)

		suite.ErrorIs(err, relay.ErrUpstreamFetchFailed)
		suite.Nil(img)
		suite.Equal(models.OutcomeNew, outcome)
	})

	suite.Run("ledger failures do not block serving", func() {
		suite.ledgerMock.On("FindRecent", mock.Anything, suite.event, mock.Anything).Once().Return(nil, suite.errUnknown)
		suite.ledgerMock.On("TouchSummary", mock.Anything, testImageURL, mock.Anything).Once().Return(suite.errUnknown)
		suite.ledgerMock.On("AppendHistory", mock.Anything, suite.event).Once().Return(suite.errUnknown)
		suite.fetcherMock.On("Fetch", mock.Anything, testImageURL).Once().
			Return(&models.ImageContent{Data: []byte("png"), ContentType: "image/png"}, nil)

		img, outcome, err := suite.svc.Serve(context.Background(), suite.event)

		suite.NoError(err)
		suite.Equal(models.OutcomeNew, outcome)
		suite.Equal("image/png", img.ContentType)
		suite.Equal([]byte("png"), img.Data)
	})

	suite.Run("internal referrer still serves", func() {
		suite.svc.internalHost = "app.example.com"
		event := suite.svc.NewEvent(testImageURL, "10.0.0.1", "ua", "https://app.example.com/")
		suite.fetcherMock.On("Fetch", mock.Anything, testImageURL).Once().
			Return(&models.ImageContent{Data: []byte("png"), ContentType: "image/png"}, nil)

		img, outcome, err := suite.svc.Serve(context.Background(), event)

		suite.NoError(err)
		suite.NotNil(img)
		suite.Equal(models.OutcomeInternal, outcome)
	})
}

func (suite *TrackServiceTestSuite) TestSummary() {
	suite.Run("not found", func() {
		suite.ledgerMock.On("GetSummary", mock.Anything, testImageURL).Once().Return(nil, database.ErrSummaryNotFound)

		summary, err := suite.svc.Summary(context.Background(), testImageURL)

		suite.ErrorIs(err, database.ErrSummaryNotFound)
		suite.Nil(summary)
	})

	suite.Run("success", func() {
		suite.ledgerMock.On("GetSummary", mock.Anything, testImageURL).Once().
			Return(&models.AccessSummary{ImageURL: testImageURL, AccessCount: 3, UpdatedAt: suite.clock.t}, nil)

		summary, err := suite.svc.Summary(context.Background(), testImageURL)

		suite.NoError(err)
		suite.EqualValues(3, summary.AccessCount)
	})
}

func TestTrackService(t *testing.T) {
	suite.Run(t, new(TrackServiceTestSuite))
}
