package render

import (
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFRenderer interface {
	RenderPDF(input RenderInput) ([]byte, error)
}

type MarotoRenderer struct{}

func NewPDFRenderer() PDFRenderer {
	return &MarotoRenderer{}
}

func (r *MarotoRenderer) RenderPDF(input RenderInput) ([]byte, error) {
	description := input.Description
	if description == "" {
		description = "-"
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, input.Number, props.Text{
			Size:  10,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+input.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date paid: "+formatDate(input.PaidAt), props.Text{Top: 4}),
			text.New("Token id: "+strconv.FormatUint(input.TokenID, 10), props.Text{Top: 8}),
		),
		col.New(6),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Issued by", props.Text{Style: fontstyle.Bold}),
			text.New(input.Issuer, props.Text{Top: 5, Size: 8}),
		),
		col.New(6).Add(
			text.New("Paid by", props.Text{Style: fontstyle.Bold}),
			text.New(input.Owner, props.Text{Top: 5, Size: 8}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, formatAmount(input.Amount, input.Token)+" paid on "+formatDate(input.PaidAt), props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(9, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(15,
		text.NewCol(9, description, props.Text{Size: 9}),
		text.NewCol(3, strconv.FormatInt(input.Amount, 10), props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(10,
		text.NewCol(12, "This receipt is bound to the paying account and cannot be transferred.", props.Text{
			Size: 8,
			Top:  4,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
