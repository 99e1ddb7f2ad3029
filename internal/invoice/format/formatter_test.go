package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	at := time.Date(2025, 7, 4, 23, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		template string
		seq      uint64
		want     string
	}{
		{name: "invoice default", template: DefaultInvoiceNumberTemplate, seq: 42, want: "INV-20250704-000042"},
		{name: "short year", template: "{YY}-{SEQ}", seq: 7, want: "25-7"},
		{name: "padding narrower than sequence", template: "{SEQ2}", seq: 1234, want: "1234"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatNumber(tc.template, at, tc.seq)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatNumberErrors(t *testing.T) {
	at := time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)

	_, err := FormatNumber("", at, 1)
	assert.Error(t, err)
	_, err = FormatNumber("{SEQ}", at, 0)
	assert.Error(t, err)
	_, err = FormatNumber("{UNKNOWN}", at, 1)
	assert.Error(t, err)
}

func TestDisplayNumbersFallBackToID(t *testing.T) {
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "INV-20250102-000001", InvoiceNumber(at, 1))
	assert.Equal(t, "RCT-20250102-000003", ReceiptNumber(at, 3))
	assert.Equal(t, "0", InvoiceNumber(at, 0))
}
