package reconcile

import (
	"strings"

	"cajadiaria/backend/internal/domain"
)

// Cancelled is any status mentioning "cancel" ("cancelado", "cancelled").
func Cancelled(fields map[string]any) bool {
	return strings.Contains(strings.ToLower(text(fields["status"])), "cancel")
}

func tallyStatus(t *domain.StatusTally, fields map[string]any) {
	status := strings.ToLower(text(fields["status"]))
	switch {
	case strings.Contains(status, "cancel"):
		t.Cancelled++
	case strings.Contains(status, "pend"):
		t.Pending++
	case strings.Contains(status, "entreg"), strings.Contains(status, "deliver"):
		t.Delivered++
	default:
		t.Other++
	}
}

// Settled reports whether a delivery order's money has been collected, either
// as a whole or through any per-method flag.
func Settled(fields map[string]any) bool {
	if isTrue(fields["settled"]) {
		return true
	}
	flags, _ := fields["paymentSettled"].(map[string]any)
	for _, v := range flags {
		if isTrue(v) {
			return true
		}
	}
	return false
}

func settledFor(fields map[string]any, method string) bool {
	if isTrue(fields["settled"]) {
		return true
	}
	flags, _ := fields["paymentSettled"].(map[string]any)
	return isTrue(flags[method])
}
