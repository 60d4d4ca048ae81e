package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Fixed top-level keys (§6).
const (
	NetworkKey   = "network"
	InfoKey      = "info"
	StatsKey     = "stats"
	ActiveEraKey = "era:active"
)

// GlobalEra is the era index used for boards that hold cross-era statistics
// (own:stake:val, total:stake:val, judgements:val, sub:accounts:val,
// total/max/min/avg:points:era) rather than a single era's membership.
const GlobalEra = uint32(0)

// EraKey returns the key of an era's summary record.
func EraKey(era uint32) string {
	return fmt.Sprintf("%d:era", era)
}

// EraValidatorKey returns the key of a per-era validator snapshot.
func EraValidatorKey(era uint32, stash string) string {
	return fmt.Sprintf("%d:era:%s:val", era, stash)
}

// EraValidatorScanPattern returns the SCAN pattern matching every era in
// which stash has a snapshot, used by the validator-eras query.
func EraValidatorScanPattern(stash string) string {
	return fmt.Sprintf("*:era:%s:val", stash)
}

// EraOfValidatorKey extracts the era index from a key produced by
// EraValidatorKey/matched by EraValidatorScanPattern. It returns false if key
// is not of that shape.
func EraOfValidatorKey(key string) (uint32, bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	era, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(era), true
}

// EraBoardKey returns the key of a board of the given name within era.
func EraBoardKey(era uint32, name string) string {
	return fmt.Sprintf("%d:era:%s:board", era, name)
}

// LimitsKey returns the sibling key holding a board's normalisation limits.
func LimitsKey(era uint32, name string) string {
	return EraBoardKey(era, name+":limits")
}

// ScoresKey returns the sibling key holding a board's per-stash sub-scores.
func ScoresKey(era uint32, name string) string {
	return EraBoardKey(era, name+":scores")
}

// ValidatorKey returns the key of a validator's current snapshot.
func ValidatorKey(stash string) string {
	return fmt.Sprintf("%s:val", stash)
}

// ValidatorActiveErasKey returns the key of the sorted set of eras, scored by
// era index, in which stash was active (member "{era}:{points}").
func ValidatorActiveErasKey(stash string) string {
	return fmt.Sprintf("%s:val:eras:active", stash)
}

// Well-known board names (§4.4, §4.5, §6).
const (
	BoardAll             = "all"
	BoardActive          = "active"
	BoardPoints          = "points:val"
	BoardOwnStake        = "own:stake:val"
	BoardTotalStake      = "total:stake:val"
	BoardJudgements      = "judgements:val"
	BoardSubAccounts     = "sub:accounts:val"
	BoardTotalPointsEra  = "total:points:era"
	BoardMaxPointsEra    = "max:points:era"
	BoardMinPointsEra    = "min:points:era"
	BoardAvgPointsEra    = "avg:points:era"
)

// FormatActiveEraMember formats the "{era}:{points}" member stored in
// ValidatorActiveErasKey sorted sets.
func FormatActiveEraMember(era uint32, points uint32) string {
	return fmt.Sprintf("%d:%d", era, points)
}

// ParseActiveEraMember recovers the reward-points portion of a member
// produced by FormatActiveEraMember.
func ParseActiveEraMember(member string) (points uint32, ok bool) {
	idx := strings.IndexByte(member, ':')
	if idx < 0 {
		return 0, false
	}
	p, err := strconv.ParseUint(member[idx+1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(p), true
}
