package orchestrator

import (
	"github.com/kairoshq/kairos/internal/model"
)

// candidate is one platform considered for a session, with its suitability
// score retained for the audit trail.
type candidate struct {
	Platform string
	Score    float64
}

// selectPlatform ranks the platforms common to both users' preferences and
// available as session adapters. Suitability is the recipient's presence
// priority on the platform times a preference-rank bonus; ties break by the
// recipient's preference order, their comfort taking precedence over the
// requester's.
func selectPlatform(requester, recipient *model.User, presences map[string]model.PresenceRecord, available map[string]bool) (candidate, bool) {
	if recipient.AvailabilityScope == model.ScopePrivate {
		return candidate{}, false
	}

	best := candidate{Score: -1}
	found := false

	// Iterating in recipient preference order makes strict > the tie-break.
	for _, platform := range recipient.PlatformPreferences {
		if !available[platform] {
			continue
		}
		reqRank := requester.PreferenceRank(platform)
		if reqRank < 0 {
			continue
		}

		priority := 0
		if rec, ok := presences[platform]; ok {
			priority = rec.Status.Priority()
		}

		score := float64(priority) * rankBonus(requester, recipient, platform)
		if score > best.Score {
			best = candidate{Platform: platform, Score: score}
			found = true
		}
	}

	return best, found
}

// rankBonus rewards platforms both parties rank highly: 1.0 for a platform
// at the bottom of both lists, approaching 2.0 for one both rank first.
func rankBonus(requester, recipient *model.User, platform string) float64 {
	return 1 + (rankShare(requester, platform)+rankShare(recipient, platform))/2
}

func rankShare(u *model.User, platform string) float64 {
	n := len(u.PlatformPreferences)
	if n == 0 {
		return 0
	}
	rank := u.PreferenceRank(platform)
	if rank < 0 {
		return 0
	}
	return float64(n-rank-1) / float64(n)
}
