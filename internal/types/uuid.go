package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inv_01JBQ3V5C8M2R0R8N2W7WQ0S1D
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

var (
	sidGenerator *shortid.Shortid
	once         sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateShortIDWithPrefix returns an upper-cased short ID with a prefix,
// capped at 16 characters, e.g. `REF_XYZ12A8Q`.
func GenerateShortIDWithPrefix(prefix string) string {
	once.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil {
		return ""
	}
	id = strings.ReplaceAll(id, "-", "")

	availableLen := 16 - len(prefix)
	if availableLen <= 0 {
		return ""
	}

	if len(id) > availableLen {
		id = id[:availableLen]
	}

	return strings.ToUpper(prefix + id)
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_APP              = "app"
	UUID_PREFIX_CONNECTION       = "conn"
	UUID_PREFIX_CUSTOMER         = "cust"
	UUID_PREFIX_PLAN             = "plan"
	UUID_PREFIX_SUBSCRIPTION     = "subs"
	UUID_PREFIX_INVOICE          = "inv"
	UUID_PREFIX_INVOICE_LINE     = "inv_line"
	UUID_PREFIX_PAYMENT          = "pay"
	UUID_PREFIX_USAGE_EVENT      = "usage"
	UUID_PREFIX_WEBHOOK_LOG      = "whlog"
	UUID_PREFIX_WEBHOOK_DELIVERY = "whdel"
)

const (
	// SHORT_ID_PREFIX_PAYMENT_REFERENCE prefixes the merchant reference sent to providers
	SHORT_ID_PREFIX_PAYMENT_REFERENCE = "REF_"
)
