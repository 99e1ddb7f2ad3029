package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

const receiptHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Receipt {{.Number}}</title>
  <style>
    :root {
      --font: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 40px;
      font-family: var(--font);
      color: #1a1f36;
      background: #f7f9fc;
      -webkit-font-smoothing: antialiased;
    }
    .receipt-card {
      background: #ffffff;
      max-width: 760px;
      margin: 0 auto;
      padding: 60px;
      box-shadow: 0 2px 5px rgba(0,0,0,0.04);
      border-radius: 4px;
    }
    .header {
      display: flex;
      justify-content: space-between;
      margin-bottom: 40px;
    }
    .header h1 {
      margin: 0;
      font-size: 24px;
      font-weight: 700;
    }
    .badge {
      font-weight: 600;
      color: #0e9f6e;
      font-size: 14px;
    }
    .meta-grid {
      display: flex;
      justify-content: space-between;
      margin-bottom: 40px;
    }
    .col { flex: 1; }
    .label {
      font-size: 11px;
      text-transform: uppercase;
      color: #8792a2;
      margin-bottom: 6px;
      font-weight: 600;
      letter-spacing: 0.3px;
    }
    .value {
      font-size: 14px;
      line-height: 1.5;
      word-break: break-all;
    }
    .amount-large {
      font-size: 32px;
      font-weight: 700;
      margin-bottom: 40px;
    }
    .footer {
      margin-top: 60px;
      font-size: 12px;
      color: #8792a2;
      border-top: 1px solid #e3e8ee;
      padding-top: 20px;
    }
  </style>
</head>
<body>
  <div class="receipt-card">
    <div class="header">
      <div>
        <h1>Payment receipt</h1>
        <div class="label" style="margin-top: 12px;">Receipt number</div>
        <div class="value">{{.Number}}</div>
      </div>
      <div class="badge">PAID</div>
    </div>

    <div class="meta-grid">
      <div class="col">
        <div class="label">Issued by</div>
        <div class="value">{{.Issuer}}</div>
        <div class="label" style="margin-top: 16px;">Paid by</div>
        <div class="value">{{.Owner}}</div>
      </div>
      <div class="col" style="flex: 0 0 220px;">
        <div class="label">Invoice</div>
        <div class="value">{{.InvoiceNumber}}</div>
        <div class="label" style="margin-top: 16px;">Date paid</div>
        <div class="value">{{formatDate .PaidAt}}</div>
      </div>
    </div>

    <div class="amount-large">{{formatAmount .Amount .Token}}</div>

    <div class="label">Description</div>
    <div class="value">{{.Description}}</div>

    <div class="footer">
      Receipt token #{{.TokenID}}. This receipt is bound to the paying account and cannot be transferred.
    </div>
  </div>
</body>
</html>
`

// RenderInput is the view of one receipt.
type RenderInput struct {
	TokenID       uint64
	Number        string
	InvoiceNumber string
	Issuer        string
	Owner         string
	Token         string
	Amount        int64
	PaidAt        time.Time
	Description   string
}

type Renderer interface {
	RenderHTML(input RenderInput) (string, error)
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	funcs := template.FuncMap{
		"formatAmount": formatAmount,
		"formatDate":   formatDate,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("receipt").Funcs(funcs).Parse(receiptHTMLTemplate)),
	}
}

func (r *HTMLRenderer) RenderHTML(input RenderInput) (string, error) {
	if strings.TrimSpace(input.Description) == "" {
		input.Description = "-"
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatAmount prints smallest units; the token decides decimals, which the ledger does not track.
func formatAmount(amount int64, token string) string {
	return fmt.Sprintf("%d units of %s", amount, token)
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02 15:04 UTC")
}
