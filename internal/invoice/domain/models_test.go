package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveStatusDerivesOverdue(t *testing.T) {
	due := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	inv := Invoice{Status: InvoiceStatusCreated, Amount: 100, DueDate: due}

	assert.Equal(t, InvoiceStatusCreated, inv.EffectiveStatus(due))
	assert.Equal(t, InvoiceStatusOverdue, inv.EffectiveStatus(due.Add(time.Second)))

	inv.Status = InvoiceStatusPaid
	inv.AmountPaid = 100
	assert.Equal(t, InvoiceStatusPaid, inv.EffectiveStatus(due.Add(time.Hour)))

	inv.Status = InvoiceStatusDisputed
	inv.AmountPaid = 0
	assert.Equal(t, InvoiceStatusDisputed, inv.EffectiveStatus(due.Add(time.Hour)))
}

func TestViewDoesNotAliasReleaseTime(t *testing.T) {
	release := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	inv := Invoice{Status: InvoiceStatusPaid, EscrowReleaseTime: &release}

	view := inv.View(release)
	*view.EscrowReleaseTime = release.Add(time.Hour)

	assert.Equal(t, release, *inv.EscrowReleaseTime)
}

func TestTerminal(t *testing.T) {
	assert.True(t, InvoiceStatusCompleted.Terminal())
	assert.True(t, InvoiceStatusCancelled.Terminal())
	assert.False(t, InvoiceStatusPaid.Terminal())
}
