package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	"github.com/smallbiznis/freya/pkg/address"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Post(ctx context.Context, w ledgerdomain.EntryWriter, req ledgerdomain.PostRequest) (*ledgerdomain.LedgerEntry, error) {
	if req.InvoiceID == 0 {
		return nil, ledgerdomain.ErrInvalidInvoice
	}

	sourceType := ledgerdomain.LedgerSourceType(strings.TrimSpace(string(req.SourceType)))
	if sourceType == "" {
		return nil, ledgerdomain.ErrInvalidSourceType
	}
	if req.Token == "" {
		return nil, ledgerdomain.ErrInvalidToken
	}
	if req.OccurredAt.IsZero() {
		return nil, ledgerdomain.ErrInvalidOccurredAt
	}
	if len(req.Lines) < 2 {
		return nil, ledgerdomain.ErrInvalidEntryLines
	}

	entryID := s.genID.Generate()
	now := req.OccurredAt.UTC()

	normalized := make([]ledgerdomain.LedgerEntryLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		if strings.TrimSpace(string(line.Account)) == "" {
			return nil, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return nil, err
		}
		if line.Amount < 0 {
			return nil, ledgerdomain.ErrInvalidLineAmount
		}
		// Zero-amount lines (a fee of 0) carry no balance effect.
		if line.Amount == 0 {
			continue
		}
		normalized = append(normalized, ledgerdomain.LedgerEntryLine{
			ID:            s.genID.Generate(),
			LedgerEntryID: entryID,
			Account:       line.Account,
			Token:         req.Token,
			Direction:     direction,
			Amount:        line.Amount,
			CreatedAt:     now,
		})
	}

	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return nil, err
	}

	entry := &ledgerdomain.LedgerEntry{
		ID:         entryID,
		InvoiceID:  req.InvoiceID,
		SourceType: sourceType,
		Token:      req.Token,
		OccurredAt: now,
		CreatedAt:  now,
		Lines:      normalized,
	}
	if err := w.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	}
	s.log.Debug("ledger entry posted",
		zap.Uint64("invoice_id", req.InvoiceID),
		zap.String("source_type", string(sourceType)),
		zap.String("ledger_entry_id", entryID.String()),
		zap.Int("lines", len(normalized)),
	)
	return entry, nil
}

func (s *Service) Balance(ctx context.Context, r ledgerdomain.BalanceReader, account ledgerdomain.LedgerAccount, token address.Address) (int64, error) {
	if strings.TrimSpace(string(account)) == "" {
		return 0, ledgerdomain.ErrInvalidAccount
	}
	return r.AccountBalance(ctx, account, token)
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}

