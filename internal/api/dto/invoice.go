package dto

import "github.com/flexprice/flexbill/internal/domain/invoice"

type InvoiceResponse struct {
	*invoice.Invoice
}

type ListInvoicesResponse = ListResponse[*InvoiceResponse]
