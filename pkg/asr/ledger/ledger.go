// Package ledger implements the PromotionLedger (spec section 4.4): a pure
// state machine that merges successive provisional token lists into a
// growing confirmed prefix, using prefix-match agreement across decode
// passes plus a time-delay requirement.
//
// Open question (b) from spec section 9: the streaming-mode window-freeze
// path (Session.freezeCompletedWindowsLocked) detokenizes
// confirmed++provisional directly, without running Merge and so without
// applying the promotion delay. This auto-promotes provisional tokens at
// window boundaries. The spec calls this a deliberate trade-off (boundary
// freezes are irreversible regardless), and this package preserves it by
// design: Merge is simply never called on the freeze path.
package ledger

import "time"

// DelayPreset names a promotion-delay tier (spec section 6).
type DelayPreset int

const (
	DelayLow DelayPreset = iota
	DelayMedium
	DelayHigh
)

// Milliseconds returns the wall-clock delay a preset maps to.
func (p DelayPreset) Milliseconds() int {
	switch p {
	case DelayLow:
		return 200
	case DelayHigh:
		return 1200
	default:
		return 600
	}
}

// State is the ledger's full mutable state (spec section 3): a frozen
// completedText prefix plus the current window's confirmed/provisional
// split.
type State struct {
	CompletedText        string
	ConfirmedTokenIDs    []int
	ProvisionalTokenIDs  []int
	ProvisionalFirstSeen []time.Time
}

// Merge implements PromotionLedger.merge (spec section 4.4). It is a pure
// function: given the previous ledger fields and a new full token list
// (confirmed prefix ++ newly decoded emission), it returns the updated
// confirmed/provisional/firstSeen triples plus how many tokens were
// promoted this call.
func Merge(prevConfirmed, prevProvisional []int, prevFirstSeen []time.Time, newAllTokens []int, now time.Time, delay time.Duration) (newConfirmed, newProvisional []int, newFirstSeen []time.Time, promoted int) {
	newProvisionalRaw := newAllTokens[min(len(prevConfirmed), len(newAllTokens)):]

	matchLen := commonPrefixLen(prevProvisional, newProvisionalRaw)

	promoteCount := 0
	for i := 0; i < matchLen; i++ {
		if i >= len(prevFirstSeen) {
			break
		}
		if now.Sub(prevFirstSeen[i]) < delay {
			break
		}
		promoteCount = i + 1
	}

	newConfirmed = append(append([]int(nil), prevConfirmed...), prevProvisional[:promoteCount]...)
	newProvisional = append([]int(nil), newProvisionalRaw[promoteCount:]...)

	newFirstSeen = make([]time.Time, len(newProvisional))
	for i := range newFirstSeen {
		oldIdx := promoteCount + i
		if oldIdx < matchLen && oldIdx < len(prevFirstSeen) {
			newFirstSeen[i] = prevFirstSeen[oldIdx]
		} else {
			newFirstSeen[i] = now
		}
	}

	return newConfirmed, newProvisional, newFirstSeen, promoteCount
}

func commonPrefixLen(a, b []int) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
