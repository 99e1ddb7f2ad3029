package domain

import (
	"context"
	"time"

	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	"github.com/smallbiznis/freya/pkg/address"
)

// Tx is the transactional store surface the issuer writes through.
type Tx interface {
	GetReceiptByInvoice(ctx context.Context, invoiceID uint64) (*Receipt, error)
	AllocateReceiptID(ctx context.Context) (uint64, error)
	InsertReceipt(ctx context.Context, receipt *Receipt) error
}

// Metadata is the JSON document served for a receipt token.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Attributes  []Attribute `json:"attributes"`
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

type Issuer interface {
	Issue(ctx context.Context, tx Tx, invoice invoicedomain.Invoice, paidAt time.Time) (*Receipt, error)

	GetUserReceipts(ctx context.Context, owner address.Address) ([]uint64, error)
	GetReceiptData(ctx context.Context, tokenID uint64) (Receipt, error)
	OwnerOf(ctx context.Context, tokenID uint64) (address.Address, error)
	Metadata(ctx context.Context, tokenID uint64) (Metadata, error)
	// TokenURI encodes Metadata as a base64 JSON data URI.
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
	// Document renders the receipt as a standalone HTML page.
	Document(ctx context.Context, tokenID uint64) (string, error)
	DocumentPDF(ctx context.Context, tokenID uint64) ([]byte, error)
}
