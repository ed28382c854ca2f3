package model

import "github.com/sakif/ledgerbot/internal/apperror"

// RewardKind is one counter from the fixed reward set. The set is a closed
// enumeration: adding a kind means adding a constant here, a column mapping in
// repository.RewardColumn, and a deploy.
type RewardKind int

const (
	RewardTierList RewardKind = iota + 1
	RewardVODReview
	RewardShoutout
)

var rewardKinds = []RewardKind{RewardTierList, RewardVODReview, RewardShoutout}

// RewardKinds returns every configured kind in display order.
func RewardKinds() []RewardKind {
	out := make([]RewardKind, len(rewardKinds))
	copy(out, rewardKinds)
	return out
}

// Valid reports whether k is a member of the configured set.
func (k RewardKind) Valid() bool {
	switch k {
	case RewardTierList, RewardVODReview, RewardShoutout:
		return true
	}
	return false
}

// Name is the stable identifier used in commands and storage, e.g. "tier_list_count".
func (k RewardKind) Name() string {
	switch k {
	case RewardTierList:
		return "tier_list_count"
	case RewardVODReview:
		return "vod_review_count"
	case RewardShoutout:
		return "shoutout_count"
	}
	return ""
}

// DisplayName is the user-facing label.
func (k RewardKind) DisplayName() string {
	switch k {
	case RewardTierList:
		return "Tier List"
	case RewardVODReview:
		return "VOD Review"
	case RewardShoutout:
		return "Shoutout"
	}
	return "Unknown"
}

func (k RewardKind) String() string {
	if name := k.Name(); name != "" {
		return name
	}
	return "unknown"
}

// ParseRewardKind maps a name coming from the chat surface to a kind.
func ParseRewardKind(name string) (RewardKind, error) {
	for _, k := range rewardKinds {
		if k.Name() == name {
			return k, nil
		}
	}
	return 0, apperror.InvalidRewardKind(name)
}

// RewardSnapshot is a read-only view of one user's counters and recent activity.
type RewardSnapshot struct {
	ChatUserID int64              `json:"chatUserId"`
	Handle     string             `json:"handle"`
	Counts     map[RewardKind]int `json:"counts"`
	Activity   []string           `json:"activity"` // most recent first, at most ActivityDepth
}

// Count returns the counter for k, zero when absent.
func (s *RewardSnapshot) Count(k RewardKind) int {
	if s == nil || s.Counts == nil {
		return 0
	}
	return s.Counts[k]
}

// RewardChange describes a committed increment or decrement.
type RewardChange struct {
	ChatUserID int64      `json:"chatUserId"`
	Handle     string     `json:"handle"`
	Kind       RewardKind `json:"kind"`
	Delta      int        `json:"delta"`
	Count      int        `json:"count"` // value after the change
	Entry      string     `json:"entry"` // activity log line written with the change
}
