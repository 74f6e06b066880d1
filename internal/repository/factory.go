package repository

import (
	"github.com/flexprice/flexbill/internal/domain/app"
	"github.com/flexprice/flexbill/internal/domain/cleanup"
	"github.com/flexprice/flexbill/internal/domain/connection"
	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/domain/plan"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	"github.com/flexprice/flexbill/internal/domain/usage"
	"github.com/flexprice/flexbill/internal/domain/webhookdelivery"
	"github.com/flexprice/flexbill/internal/domain/webhooklog"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	postgresRepo "github.com/flexprice/flexbill/internal/repository/postgres"
)

func NewAppRepository(db *postgres.DB, logger *logger.Logger) app.Repository {
	return postgresRepo.NewAppRepository(db, logger)
}

func NewConnectionRepository(db *postgres.DB, logger *logger.Logger) connection.Repository {
	return postgresRepo.NewConnectionRepository(db, logger)
}

func NewCustomerRepository(db *postgres.DB, logger *logger.Logger) customer.Repository {
	return postgresRepo.NewCustomerRepository(db, logger)
}

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return postgresRepo.NewPlanRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewInvoiceSequenceRepository(db *postgres.DB, logger *logger.Logger) invoice.SequenceRepository {
	return postgresRepo.NewInvoiceSequenceRepository(db, logger)
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return postgresRepo.NewPaymentRepository(db, logger)
}

func NewWebhookLogRepository(db *postgres.DB, logger *logger.Logger) webhooklog.Repository {
	return postgresRepo.NewWebhookLogRepository(db, logger)
}

func NewWebhookDeliveryRepository(db *postgres.DB, logger *logger.Logger) webhookdelivery.Repository {
	return postgresRepo.NewWebhookDeliveryRepository(db, logger)
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return postgresRepo.NewUsageRepository(db, logger)
}

func NewCleanupRepository(db *postgres.DB, logger *logger.Logger) cleanup.Repository {
	return postgresRepo.NewCleanupRepository(db, logger)
}
