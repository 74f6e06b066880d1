package webhook_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/testutil"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/stretchr/testify/suite"
)

type DispatcherSuite struct {
	testutil.BaseServiceTestSuite
}

func TestDispatcher(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.SetupApp()
}

func (s *DispatcherSuite) enqueue() string {
	ids, err := s.GetDispatcher().Enqueue(s.GetContext(), types.WebhookEventCustomerCreated, &webhook.CustomerEvent{
		Customer: &customer.Customer{ID: "cust_1", ExternalID: "ext_1"},
	})
	s.Require().NoError(err)
	s.Require().Len(ids, 1)
	return ids[0]
}

func (s *DispatcherSuite) delivery(id string) (status types.WebhookDeliveryStatus, attempts int, next *time.Time) {
	d, err := s.GetStores().DeliveryRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return d.DeliveryStatus, d.Attempts, d.NextRetryAt
}

func (s *DispatcherSuite) TestEnqueueStoresPayload() {
	id := s.enqueue()

	d, err := s.GetStores().DeliveryRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	s.Equal(types.WebhookDeliveryStatusPending, d.DeliveryStatus)
	s.Equal(testutil.TestWebhookURL, d.URL)

	var payload webhook.Payload
	s.Require().NoError(json.Unmarshal([]byte(d.Payload), &payload))
	s.Equal(types.WebhookEventCustomerCreated, payload.Event)
	s.Equal(testutil.TestTenantID, payload.AppID)
	s.Equal(s.GetNow().UnixMilli(), payload.Timestamp)
	s.Contains(string(payload.Data), "cust_1")

	s.GetDispatcher().Publish(s.GetContext(), id)
	msgs := s.GetPubSub().GetMessages(s.GetConfig().Webhook.Topic)
	s.Require().Len(msgs, 1)
	s.Equal(id, msgs[0].Metadata.Get("delivery_id"))
}

func (s *DispatcherSuite) TestDeliverSignsPayload() {
	s.GetHTTPClient().RegisterResponse("/hooks", testutil.MockResponse{StatusCode: http.StatusOK})
	id := s.enqueue()

	s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))

	status, attempts, _ := s.delivery(id)
	s.Equal(types.WebhookDeliveryStatusSuccess, status)
	s.Equal(1, attempts)

	reqs := s.GetHTTPClient().Requests()
	s.Require().Len(reqs, 1)
	req := reqs[0]
	s.Equal(http.MethodPost, req.Method)
	s.Equal(types.WebhookEventCustomerCreated, req.Headers[types.HeaderWebhookEvent])
	s.Equal(id, req.Headers[types.HeaderDeliveryID])
	s.True(security.VerifyHMACSHA256("whsec_test", req.Body, req.Headers[types.HeaderWebhookSignature]))

	// a delivered event is never sent again
	s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))
	s.Len(s.GetHTTPClient().Requests(), 1)
}

func (s *DispatcherSuite) TestRetryScheduleThenPermanentFailure() {
	s.GetHTTPClient().RegisterResponse("/hooks", testutil.MockResponse{StatusCode: http.StatusInternalServerError})
	id := s.enqueue()
	cfg := s.GetConfig().Webhook

	for attempt := 1; attempt < cfg.MaxAttempts; attempt++ {
		s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))

		status, attempts, next := s.delivery(id)
		s.Equal(types.WebhookDeliveryStatusPending, status)
		s.Equal(attempt, attempts)
		delay, ok := cfg.RetryDelay(attempt)
		s.Require().True(ok)
		s.Require().NotNil(next)
		s.True(next.Equal(s.GetNow().Add(delay)))

		// not due yet
		s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))
		_, attempts, _ = s.delivery(id)
		s.Equal(attempt, attempts)

		s.AdvanceTime(delay)
	}

	s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))
	status, attempts, next := s.delivery(id)
	s.Equal(types.WebhookDeliveryStatusFailed, status)
	s.Equal(cfg.MaxAttempts, attempts)
	s.Nil(next)
	s.Len(s.GetHTTPClient().Requests(), cfg.MaxAttempts)

	requeued, err := s.GetDispatcher().Requeue(s.GetContext(), id)
	s.Require().NoError(err)
	s.Equal(types.WebhookDeliveryStatusPending, requeued.DeliveryStatus)
	s.Equal(0, requeued.Attempts)
}

func (s *DispatcherSuite) TestTransportErrorIsRetried() {
	s.GetHTTPClient().RegisterResponse("/hooks", testutil.MockResponse{Err: errors.New("dial tcp: connection refused")})
	id := s.enqueue()

	s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))
	status, attempts, next := s.delivery(id)
	s.Equal(types.WebhookDeliveryStatusPending, status)
	s.Equal(1, attempts)
	s.NotNil(next)

	d, err := s.GetStores().DeliveryRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	s.Contains(d.LastError, "connection refused")
	s.Equal(0, d.LastResponseCode)
}

func (s *DispatcherSuite) TestRequeueOnlyFailed() {
	id := s.enqueue()
	_, err := s.GetDispatcher().Requeue(s.GetContext(), id)
	s.Error(err)
}

func (s *DispatcherSuite) TestSweepPublishesDueDeliveries() {
	s.GetHTTPClient().RegisterResponse("/hooks", testutil.MockResponse{StatusCode: http.StatusBadGateway})
	first := s.enqueue()
	s.enqueue()

	// the first one waits for its retry
	s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), first))

	n, err := s.GetDispatcher().SweepDue(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, n)

	s.AdvanceTime(time.Hour)
	n, err = s.GetDispatcher().SweepDue(s.GetContext())
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *DispatcherSuite) TestUnrecordedAttemptBecomesDueAgain() {
	s.GetHTTPClient().RegisterResponse("/hooks", testutil.MockResponse{StatusCode: http.StatusOK})
	id := s.enqueue()
	cfg := s.GetConfig().Webhook

	// a worker claims the attempt and dies before recording the result
	lease := s.GetNow().Add(cfg.Timeout)
	if delay, ok := cfg.RetryDelay(1); ok {
		lease = lease.Add(delay)
	}
	claimed, err := s.GetStores().DeliveryRepo.ClaimAttempt(s.GetContext(), id, 0, s.GetNow(), lease)
	s.Require().NoError(err)
	s.Require().True(claimed)

	status, attempts, next := s.delivery(id)
	s.Equal(types.WebhookDeliveryStatusPending, status)
	s.Equal(1, attempts)
	s.Require().NotNil(next)

	// leased: neither swept nor redelivered yet
	n, err := s.GetDispatcher().SweepDue(s.GetContext())
	s.Require().NoError(err)
	s.Equal(0, n)
	s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))
	s.Empty(s.GetHTTPClient().Requests())

	s.AdvanceTime(lease.Sub(s.GetNow()))
	n, err = s.GetDispatcher().SweepDue(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, n)

	s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))
	status, attempts, next = s.delivery(id)
	s.Equal(types.WebhookDeliveryStatusSuccess, status)
	s.Equal(2, attempts)
	s.Nil(next)
	s.Len(s.GetHTTPClient().Requests(), 1)
}

func (s *DispatcherSuite) TestEnqueueWithoutAppIsSkipped() {
	ctx := types.SetTenantID(s.GetContext(), "app_unknown")
	ids, err := s.GetDispatcher().Enqueue(ctx, types.WebhookEventCustomerCreated, &webhook.CustomerEvent{})
	s.Require().NoError(err)
	s.Empty(ids)
}
