package service

import (
	"net/http"
	"testing"

	"github.com/flexprice/flexbill/internal/domain/customer"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/testutil"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/stretchr/testify/suite"
)

type WebhookDeliveryServiceSuite struct {
	billingSuite
	service WebhookDeliveryService
}

func TestWebhookDeliveryService(t *testing.T) {
	suite.Run(t, new(WebhookDeliveryServiceSuite))
}

func (s *WebhookDeliveryServiceSuite) SetupTest() {
	s.billingSuite.SetupTest()
	s.service = NewWebhookDeliveryService(s.GetDispatcher(), s.GetLogger())
}

func (s *WebhookDeliveryServiceSuite) enqueue(eventName string) string {
	ids, err := s.GetDispatcher().Enqueue(s.GetContext(), eventName, &webhook.CustomerEvent{
		Customer: &customer.Customer{ID: "cust_1"},
	})
	s.Require().NoError(err)
	s.Require().Len(ids, 1)
	return ids[0]
}

func (s *WebhookDeliveryServiceSuite) TestListFiltersByEvent() {
	s.enqueue(types.WebhookEventCustomerCreated)
	s.enqueue(types.WebhookEventCustomerUpdated)

	all, err := s.service.ListDeliveries(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Len(all.Items, 2)
	s.Equal(types.DefaultFilterLimit, all.Pagination.Limit)

	updated, err := s.service.ListDeliveries(s.GetContext(), &types.WebhookDeliveryFilter{
		EventName: types.WebhookEventCustomerUpdated,
	})
	s.Require().NoError(err)
	s.Require().Len(updated.Items, 1)
	s.Equal(types.WebhookEventCustomerUpdated, updated.Items[0].EventName)
}

func (s *WebhookDeliveryServiceSuite) TestRetryOnlyFailedDeliveries() {
	id := s.enqueue(types.WebhookEventCustomerCreated)

	_, err := s.service.RetryDelivery(s.GetContext(), id)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	// exhaust the attempts against a broken endpoint
	s.GetHTTPClient().RegisterResponse("/hooks", testutil.MockResponse{StatusCode: http.StatusInternalServerError})
	for i := 0; i < s.GetConfig().Webhook.MaxAttempts; i++ {
		s.Require().NoError(s.GetDispatcher().Deliver(s.GetContext(), id))
		s.AdvanceTime(s.GetConfig().Webhook.RetryDelays[len(s.GetConfig().Webhook.RetryDelays)-1])
	}

	retried, err := s.service.RetryDelivery(s.GetContext(), id)
	s.Require().NoError(err)
	s.Equal(types.WebhookDeliveryStatusPending, retried.DeliveryStatus)
	s.Equal(0, retried.Attempts)
}
