package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const (
	DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}{DD}-{SEQ6}"
	DefaultReceiptNumberTemplate = "RCT-{YYYY}{MM}{DD}-{SEQ6}"
)

// FormatNumber renders a display number from a template, a timestamp and a
// sequence. It is pure: the same inputs always give the same output.
//
// Tokens: {YYYY} {YY} {MM} {DD} {SEQ} {SEQn} (zero padded to n digits).
func FormatNumber(template string, at time.Time, seq uint64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("number template is empty")
	}
	if seq == 0 {
		return "", fmt.Errorf("invalid sequence: %d", seq)
	}

	at = at.UTC()
	out := template
	out = strings.ReplaceAll(out, "{YYYY}", at.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", at.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", at.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", at.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatUint(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in number format: %s", out)
	}
	return out, nil
}

// InvoiceNumber is the display number of an invoice created at createdAt.
func InvoiceNumber(createdAt time.Time, id uint64) string {
	out, err := FormatNumber(DefaultInvoiceNumberTemplate, createdAt, id)
	if err != nil {
		return strconv.FormatUint(id, 10)
	}
	return out
}

// ReceiptNumber is the display number of a receipt paid at paidAt.
func ReceiptNumber(paidAt time.Time, tokenID uint64) string {
	out, err := FormatNumber(DefaultReceiptNumberTemplate, paidAt, tokenID)
	if err != nil {
		return strconv.FormatUint(tokenID, 10)
	}
	return out
}
