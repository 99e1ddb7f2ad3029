package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPDF(t *testing.T) {
	out, err := NewPDFRenderer().RenderPDF(RenderInput{
		TokenID:       3,
		Number:        "RCT-20250501-000003",
		InvoiceNumber: "INV-20250501-000007",
		Issuer:        "0xa1",
		Owner:         "0xc1",
		Token:         "0xe1",
		Amount:        1500,
		PaidAt:        time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
