package connection

import (
	"github.com/flexprice/flexbill/internal/types"
)

// Connection is the credential bundle a tenant configured for one payment provider.
// Secret fields hold ciphertext at rest and plaintext only after the
// connection service decrypted them.
type Connection struct {
	ID            string                `db:"id" json:"id"`
	Provider      types.PaymentProvider `db:"provider" json:"provider"`
	SecretKey     string                `db:"secret_key" json:"-"`
	PublicKey     string                `db:"public_key" json:"public_key,omitempty"`
	MerchantID    string                `db:"merchant_id" json:"merchant_id,omitempty"`
	APIBaseURL    string                `db:"api_base_url" json:"api_base_url,omitempty"`
	WebhookSecret string                `db:"webhook_secret" json:"-"`

	types.BaseModel
}
