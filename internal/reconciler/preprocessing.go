package reconciler

import (
	"strings"

	"golang-bookkeeping-service/internal/models"
)

// PrepareIDs trims ids, drops empty ones and removes repeats while keeping
// the first occurrence's position. A transaction claimed twice in one batch
// would otherwise race itself into the poster.
func PrepareIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	prepared := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		prepared = append(prepared, id)
	}
	return prepared
}

// skipReason returns why a loaded transaction is not run through the
// pipeline, or "" when it should be.
func skipReason(tx *models.Transaction) string {
	switch {
	case tx.Status.IsPosted():
		return "already " + string(tx.Status)
	case tx.Amount.IsZero():
		return "zero amount"
	}
	return ""
}

// resolveMode picks the booking mode for a manual booking: naming a contact
// routes the booking through the relation.
func resolveMode(contactID string) models.BookingMode {
	if contactID != "" {
		return models.ModeRelation
	}
	return models.ModeDirect
}
