package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/freya/internal/invoice/format"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
	"github.com/smallbiznis/freya/internal/receipt/render"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/address"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tokenURIPrefix = "data:application/json;base64,"

type Params struct {
	fx.In

	Log        *zap.Logger
	Store      store.Store
	Renderer   render.Renderer     `optional:"true"`
	PDF        render.PDFRenderer  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	store      store.Store
	renderer   render.Renderer
	pdf        render.PDFRenderer
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) receiptdomain.Issuer {
	renderer := p.Renderer
	if renderer == nil {
		renderer = render.NewRenderer()
	}
	pdf := p.PDF
	if pdf == nil {
		pdf = render.NewPDFRenderer()
	}
	return &Service{
		log:        p.Log.Named("receipt.service"),
		store:      p.Store,
		renderer:   renderer,
		pdf:        pdf,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Issue(ctx context.Context, tx receiptdomain.Tx, invoice invoicedomain.Invoice, paidAt time.Time) (*receiptdomain.Receipt, error) {
	existing, err := tx.GetReceiptByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Error("second receipt issuance rejected",
			zap.Uint64("invoice_id", invoice.ID),
			zap.Uint64("token_id", existing.TokenID),
		)
		return nil, fmt.Errorf("invoice %d: %w", invoice.ID, receiptdomain.ErrReceiptExists)
	}
	if invoice.Status != invoicedomain.InvoiceStatusCompleted || !invoice.FullyPaid() {
		return nil, receiptdomain.ErrInvoiceNotSettled
	}

	tokenID, err := tx.AllocateReceiptID(ctx)
	if err != nil {
		return nil, err
	}

	receipt := &receiptdomain.Receipt{
		TokenID:     tokenID,
		InvoiceID:   invoice.ID,
		Issuer:      invoice.Issuer,
		Owner:       invoice.Client,
		Token:       invoice.TokenAddress,
		Amount:      invoice.AmountPaid,
		PaidAt:      paidAt.UTC(),
		Description: invoice.Description,
	}
	if err := tx.InsertReceipt(ctx, receipt); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("invoice %d: %w", invoice.ID, receiptdomain.ErrReceiptExists)
		}
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordReceiptIssued(ctx)
	}
	s.log.Info("receipt issued",
		zap.Uint64("invoice_id", invoice.ID),
		zap.Uint64("token_id", tokenID),
		zap.String("owner", receipt.Owner.String()),
	)
	return receipt, nil
}

func (s *Service) GetUserReceipts(ctx context.Context, owner address.Address) ([]uint64, error) {
	ids, err := s.store.ListReceiptIDsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func (s *Service) GetReceiptData(ctx context.Context, tokenID uint64) (receiptdomain.Receipt, error) {
	receipt, err := s.store.GetReceipt(ctx, tokenID)
	if err != nil {
		return receiptdomain.Receipt{}, err
	}
	if receipt == nil {
		return receiptdomain.Receipt{}, receiptdomain.ErrReceiptNotFound
	}
	return *receipt, nil
}

func (s *Service) OwnerOf(ctx context.Context, tokenID uint64) (address.Address, error) {
	receipt, err := s.GetReceiptData(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return receipt.Owner, nil
}

func (s *Service) Metadata(ctx context.Context, tokenID uint64) (receiptdomain.Metadata, error) {
	receipt, err := s.GetReceiptData(ctx, tokenID)
	if err != nil {
		return receiptdomain.Metadata{}, err
	}

	return receiptdomain.Metadata{
		Name:        fmt.Sprintf("Invoice Receipt #%d", receipt.TokenID),
		Description: fmt.Sprintf("Payment receipt for invoice #%d: %s", receipt.InvoiceID, receipt.Description),
		Attributes: []receiptdomain.Attribute{
			{TraitType: "Receipt Number", Value: format.ReceiptNumber(receipt.PaidAt, receipt.TokenID)},
			{TraitType: "Invoice ID", Value: receipt.InvoiceID},
			{TraitType: "Amount", Value: receipt.Amount},
			{TraitType: "Token", Value: receipt.Token.String()},
			{TraitType: "Issuer", Value: receipt.Issuer.String()},
			{TraitType: "Client", Value: receipt.Owner.String()},
			{TraitType: "Paid At", Value: receipt.PaidAt.Unix()},
		},
	}, nil
}

func (s *Service) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	metadata, err := s.Metadata(ctx, tokenID)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return tokenURIPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

func (s *Service) Document(ctx context.Context, tokenID uint64) (string, error) {
	input, err := s.renderInput(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return s.renderer.RenderHTML(input)
}

func (s *Service) DocumentPDF(ctx context.Context, tokenID uint64) ([]byte, error) {
	input, err := s.renderInput(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return s.pdf.RenderPDF(input)
}

func (s *Service) renderInput(ctx context.Context, tokenID uint64) (render.RenderInput, error) {
	receipt, err := s.GetReceiptData(ctx, tokenID)
	if err != nil {
		return render.RenderInput{}, err
	}

	invoiceNumber := fmt.Sprintf("#%d", receipt.InvoiceID)
	if invoice, err := s.store.GetInvoice(ctx, receipt.InvoiceID); err == nil && invoice != nil {
		invoiceNumber = format.InvoiceNumber(invoice.CreatedAt, invoice.ID)
	}

	return render.RenderInput{
		TokenID:       receipt.TokenID,
		Number:        format.ReceiptNumber(receipt.PaidAt, receipt.TokenID),
		InvoiceNumber: invoiceNumber,
		Issuer:        receipt.Issuer.String(),
		Owner:         receipt.Owner.String(),
		Token:         receipt.Token.String(),
		Amount:        receipt.Amount,
		PaidAt:        receipt.PaidAt,
		Description:   receipt.Description,
	}, nil
}
