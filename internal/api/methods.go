package api

import (
	"context"
	"time"

	"github.com/nkkko/simsub/internal/api/validation"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
)

// method serves one remote service method from its call envelope
type method func(ctx context.Context, call *proto.Call) (*proto.Reply, error)

func caller(call *proto.Call) domain.CallerIdentity {
	return domain.CallerIdentity(call.Caller)
}

func infoReply(info *proto.SubscriptionInfo, err error) (*proto.Reply, error) {
	if err != nil {
		return nil, err
	}
	return &proto.Reply{Info: info}, nil
}

func infosReply(infos []*proto.SubscriptionInfo, err error) (*proto.Reply, error) {
	if err != nil {
		return nil, err
	}
	return &proto.Reply{Infos: infos}, nil
}

func intReply(n int32, err error) (*proto.Reply, error) {
	if err != nil {
		return nil, err
	}
	return &proto.Reply{IntValue: n}, nil
}

func countReply(n int, err error) (*proto.Reply, error) {
	if err != nil {
		return nil, err
	}
	return &proto.Reply{Count: n}, nil
}

func idsReply(ids []int32, err error) (*proto.Reply, error) {
	if err != nil {
		return nil, err
	}
	return &proto.Reply{Ids: ids}, nil
}

func flagReply(flag bool, err error) (*proto.Reply, error) {
	if err != nil {
		return nil, err
	}
	return &proto.Reply{Flag: flag}, nil
}

func emptyReply(err error) (*proto.Reply, error) {
	if err != nil {
		return nil, err
	}
	return &proto.Reply{}, nil
}

// subscriptionMethods maps every SubscriptionService method onto the wire
func subscriptionMethods(s domain.SubscriptionService) map[string]method {
	return map[string]method{
		"ActiveSubscription": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return infoReply(s.ActiveSubscription(ctx, caller(c), c.SubId))
		},
		"ActiveSubscriptionForIccID": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			if err := validation.Required("icc_id", c.IccId); err != nil {
				return nil, err
			}
			return infoReply(s.ActiveSubscriptionForIccID(ctx, caller(c), c.IccId))
		},
		"ActiveSubscriptionForSlot": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return infoReply(s.ActiveSubscriptionForSlot(ctx, caller(c), c.SlotIndex))
		},
		"AllSubscriptions": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return infosReply(s.AllSubscriptions(ctx, caller(c)))
		},
		"ActiveSubscriptions": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return infosReply(s.ActiveSubscriptions(ctx, caller(c)))
		},
		"AvailableSubscriptions": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return infosReply(s.AvailableSubscriptions(ctx, caller(c)))
		},
		"AccessibleSubscriptions": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return infosReply(s.AccessibleSubscriptions(ctx, caller(c)))
		},
		"OpportunisticSubscriptions": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return infosReply(s.OpportunisticSubscriptions(ctx, caller(c)))
		},
		"RequestEmbeddedRefresh": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return emptyReply(s.RequestEmbeddedRefresh(ctx, c.CardId))
		},
		"AllCount": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return countReply(s.AllCount(ctx, caller(c)))
		},
		"ActiveCount": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return countReply(s.ActiveCount(ctx, caller(c)))
		},
		"ActiveCountMax": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return countReply(s.ActiveCountMax(ctx))
		},
		"AddSubscription": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			if err := validation.Required("unique_id", c.UniqueId); err != nil {
				return nil, err
			}
			return intReply(s.AddSubscription(ctx, c.UniqueId, c.DisplayName, c.SlotIndex, c.SubscriptionType))
		},
		"RemoveSubscription": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			if err := validation.Required("unique_id", c.UniqueId); err != nil {
				return nil, err
			}
			return intReply(s.RemoveSubscription(ctx, c.UniqueId, c.SubscriptionType))
		},
		"ClearSubscriptions": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return emptyReply(s.ClearSubscriptions(ctx))
		},
		"SetIconTint": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.SetIconTint(ctx, c.SubId, c.IntValue))
		},
		"SetDisplayName": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.SetDisplayName(ctx, c.SubId, c.DisplayName, c.NameSource))
		},
		"SetDisplayNumber": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.SetDisplayNumber(ctx, c.SubId, c.Number))
		},
		"SetDataRoaming": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.SetDataRoaming(ctx, c.SubId, c.IntValue))
		},
		"SlotIndex": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.SlotIndex(ctx, c.SubId))
		},
		"SubscriptionIDs": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return idsReply(s.SubscriptionIDs(ctx, c.SlotIndex))
		},
		"PhoneID": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.PhoneID(ctx, c.SubId))
		},
		"ActiveSubscriptionIDs": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return idsReply(s.ActiveSubscriptionIDs(ctx))
		},
		"IsActiveSubscriptionID": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return flagReply(s.IsActiveSubscriptionID(ctx, caller(c), c.SubId))
		},
		"SimStateForSlot": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			state, err := s.SimStateForSlot(ctx, c.SlotIndex)
			if err != nil {
				return nil, err
			}
			return &proto.Reply{State: state}, nil
		},
		"DefaultSubscriptionID": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.DefaultSubscriptionID(ctx, domain.DefaultKind(c.Kind)))
		},
		"SetDefaultSubscriptionID": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return emptyReply(s.SetDefaultSubscriptionID(ctx, domain.DefaultKind(c.Kind), c.SubId))
		},
		"ClearDefaultsForInactive": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return emptyReply(s.ClearDefaultsForInactive(ctx))
		},
		"PreferredDataSubscriptionID": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.PreferredDataSubscriptionID(ctx))
		},
		"SetPreferredDataSubscriptionID": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.SetPreferredDataSubscriptionID(ctx, c.SubId))
		},
		"SetProperty": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return emptyReply(s.SetProperty(ctx, c.SubId, c.Key, c.Value))
		},
		"Property": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			value, found, err := s.Property(ctx, caller(c), c.SubId, c.Key)
			if err != nil {
				return nil, err
			}
			return &proto.Reply{Value: value, Found: found}, nil
		},
		"SetOpportunistic": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.SetOpportunistic(ctx, caller(c), c.SubId, c.Flag))
		},
		"SetMetered": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.SetMetered(ctx, caller(c), c.SubId, c.Flag))
		},
		"SetGroup": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			if err := validation.NonEmpty("sub_ids", c.SubIds); err != nil {
				return nil, err
			}
			groupID, err := s.SetGroup(ctx, caller(c), c.SubIds)
			if err != nil {
				return nil, err
			}
			return &proto.Reply{Value: groupID}, nil
		},
		"AddToGroup": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			if err := validation.NonEmpty("sub_ids", c.SubIds); err != nil {
				return nil, err
			}
			if err := s.AddToGroup(ctx, caller(c), c.SubIds, c.Value); err != nil {
				return nil, err
			}
			return &proto.Reply{}, nil
		},
		"RemoveFromGroup": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			if err := validation.NonEmpty("sub_ids", c.SubIds); err != nil {
				return nil, err
			}
			return flagReply(s.RemoveFromGroup(ctx, caller(c), c.SubIds))
		},
		"GroupMembers": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return infosReply(s.GroupMembers(ctx, caller(c), c.SubId))
		},
		"SetEnabled": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return flagReply(s.SetEnabled(ctx, c.SubId, c.Flag))
		},
		"IsEnabled": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return flagReply(s.IsEnabled(ctx, c.SubId))
		},
		"EnabledSubscriptionID": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return intReply(s.EnabledSubscriptionID(ctx, c.SlotIndex))
		},
	}
}

// policyMethods maps every PolicyService method onto the wire
func policyMethods(p domain.PolicyService) map[string]method {
	return map[string]method{
		"SubscriptionPlans": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			plans, err := p.SubscriptionPlans(ctx, caller(c), c.SubId)
			if err != nil {
				return nil, err
			}
			return &proto.Reply{Plans: plans}, nil
		},
		"SetSubscriptionPlans": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			return emptyReply(p.SetSubscriptionPlans(ctx, caller(c), c.SubId, c.Plans))
		},
		"SubscriptionPlansOwner": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			owner, err := p.SubscriptionPlansOwner(ctx, c.SubId)
			if err != nil {
				return nil, err
			}
			return &proto.Reply{Value: owner}, nil
		},
		"SetSubscriptionOverride": func(ctx context.Context, c *proto.Call) (*proto.Reply, error) {
			if err := validation.Min("timeout_ms", c.TimeoutMs, 0); err != nil {
				return nil, err
			}
			timeout := time.Duration(c.TimeoutMs) * time.Millisecond
			return emptyReply(p.SetSubscriptionOverride(ctx, caller(c), c.SubId,
				proto.OverrideKind(c.Kind), proto.OverrideKind(c.IntValue), timeout))
		},
	}
}
