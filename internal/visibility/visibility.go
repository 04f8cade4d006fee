// Package visibility decides which subscriptions are shown to users.
package visibility

import "github.com/nkkko/simsub/pkg/proto"

// ShouldHide reports whether info is an opportunistic member of a group.
// Such subscriptions are represented by their primary and stay out of
// user-facing lists.
func ShouldHide(info *proto.SubscriptionInfo) bool {
	if info == nil {
		return false
	}
	return info.GroupUuid != "" && info.IsOpportunistic
}

// FilterVisible returns the entries of list that are not hidden, in order.
// A nil list stays nil so callers can tell "nothing returned" from "nothing
// visible".
func FilterVisible(list []*proto.SubscriptionInfo) []*proto.SubscriptionInfo {
	if list == nil {
		return nil
	}

	visible := make([]*proto.SubscriptionInfo, 0, len(list))
	for _, info := range list {
		if info == nil || ShouldHide(info) {
			continue
		}
		visible = append(visible, info)
	}
	return visible
}
