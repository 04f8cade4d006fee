package client

import (
	"context"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
)

var _ domain.SubscriptionService = (*Subscriptions)(nil)

// Subscriptions is the remote subscription service of a daemon
type Subscriptions struct {
	client *Client
}

func (s *Subscriptions) call(ctx context.Context, method string, call *proto.Call) (*proto.Reply, error) {
	return s.client.invoke(ctx, proto.PathSubscriptionService, method, call)
}

func (s *Subscriptions) info(ctx context.Context, method string, call *proto.Call) (*proto.SubscriptionInfo, error) {
	reply, err := s.call(ctx, method, call)
	if err != nil {
		return nil, err
	}
	return reply.Info, nil
}

func (s *Subscriptions) infos(ctx context.Context, method string, call *proto.Call) ([]*proto.SubscriptionInfo, error) {
	reply, err := s.call(ctx, method, call)
	if err != nil {
		return nil, err
	}
	return reply.Infos, nil
}

func (s *Subscriptions) count(ctx context.Context, method string, call *proto.Call) (int, error) {
	reply, err := s.call(ctx, method, call)
	if err != nil {
		return 0, err
	}
	return reply.Count, nil
}

func (s *Subscriptions) intValue(ctx context.Context, method string, call *proto.Call) (int32, error) {
	reply, err := s.call(ctx, method, call)
	if err != nil {
		return 0, err
	}
	return reply.IntValue, nil
}

func (s *Subscriptions) ids(ctx context.Context, method string, call *proto.Call) ([]int32, error) {
	reply, err := s.call(ctx, method, call)
	if err != nil {
		return nil, err
	}
	return reply.Ids, nil
}

func (s *Subscriptions) flag(ctx context.Context, method string, call *proto.Call) (bool, error) {
	reply, err := s.call(ctx, method, call)
	if err != nil {
		return false, err
	}
	return reply.Flag, nil
}

func (s *Subscriptions) ActiveSubscription(ctx context.Context, caller domain.CallerIdentity, id int32) (*proto.SubscriptionInfo, error) {
	return s.info(ctx, "ActiveSubscription", &proto.Call{Caller: string(caller), SubId: id})
}

func (s *Subscriptions) ActiveSubscriptionForIccID(ctx context.Context, caller domain.CallerIdentity, iccID string) (*proto.SubscriptionInfo, error) {
	return s.info(ctx, "ActiveSubscriptionForIccID", &proto.Call{Caller: string(caller), IccId: iccID})
}

func (s *Subscriptions) ActiveSubscriptionForSlot(ctx context.Context, caller domain.CallerIdentity, slot int32) (*proto.SubscriptionInfo, error) {
	return s.info(ctx, "ActiveSubscriptionForSlot", &proto.Call{Caller: string(caller), SlotIndex: slot})
}

func (s *Subscriptions) AllSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	return s.infos(ctx, "AllSubscriptions", &proto.Call{Caller: string(caller)})
}

func (s *Subscriptions) ActiveSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	return s.infos(ctx, "ActiveSubscriptions", &proto.Call{Caller: string(caller)})
}

func (s *Subscriptions) AvailableSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	return s.infos(ctx, "AvailableSubscriptions", &proto.Call{Caller: string(caller)})
}

func (s *Subscriptions) AccessibleSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	return s.infos(ctx, "AccessibleSubscriptions", &proto.Call{Caller: string(caller)})
}

func (s *Subscriptions) OpportunisticSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	return s.infos(ctx, "OpportunisticSubscriptions", &proto.Call{Caller: string(caller)})
}

func (s *Subscriptions) RequestEmbeddedRefresh(ctx context.Context, cardID int32) error {
	_, err := s.call(ctx, "RequestEmbeddedRefresh", &proto.Call{CardId: cardID})
	return err
}

func (s *Subscriptions) AllCount(ctx context.Context, caller domain.CallerIdentity) (int, error) {
	return s.count(ctx, "AllCount", &proto.Call{Caller: string(caller)})
}

func (s *Subscriptions) ActiveCount(ctx context.Context, caller domain.CallerIdentity) (int, error) {
	return s.count(ctx, "ActiveCount", &proto.Call{Caller: string(caller)})
}

func (s *Subscriptions) ActiveCountMax(ctx context.Context) (int, error) {
	return s.count(ctx, "ActiveCountMax", &proto.Call{})
}

func (s *Subscriptions) AddSubscription(ctx context.Context, uniqueID, displayName string, slot int32, subType proto.SubscriptionType) (int32, error) {
	return s.intValue(ctx, "AddSubscription", &proto.Call{
		UniqueId:         uniqueID,
		DisplayName:      displayName,
		SlotIndex:        slot,
		SubscriptionType: subType,
	})
}

func (s *Subscriptions) RemoveSubscription(ctx context.Context, uniqueID string, subType proto.SubscriptionType) (int32, error) {
	return s.intValue(ctx, "RemoveSubscription", &proto.Call{UniqueId: uniqueID, SubscriptionType: subType})
}

func (s *Subscriptions) ClearSubscriptions(ctx context.Context) error {
	_, err := s.call(ctx, "ClearSubscriptions", &proto.Call{})
	return err
}

func (s *Subscriptions) SetIconTint(ctx context.Context, id, tint int32) (int32, error) {
	return s.intValue(ctx, "SetIconTint", &proto.Call{SubId: id, IntValue: tint})
}

func (s *Subscriptions) SetDisplayName(ctx context.Context, id int32, name string, source proto.NameSource) (int32, error) {
	return s.intValue(ctx, "SetDisplayName", &proto.Call{SubId: id, DisplayName: name, NameSource: source})
}

func (s *Subscriptions) SetDisplayNumber(ctx context.Context, id int32, number string) (int32, error) {
	return s.intValue(ctx, "SetDisplayNumber", &proto.Call{SubId: id, Number: number})
}

func (s *Subscriptions) SetDataRoaming(ctx context.Context, id, roaming int32) (int32, error) {
	return s.intValue(ctx, "SetDataRoaming", &proto.Call{SubId: id, IntValue: roaming})
}

func (s *Subscriptions) SlotIndex(ctx context.Context, id int32) (int32, error) {
	return s.intValue(ctx, "SlotIndex", &proto.Call{SubId: id})
}

func (s *Subscriptions) SubscriptionIDs(ctx context.Context, slot int32) ([]int32, error) {
	return s.ids(ctx, "SubscriptionIDs", &proto.Call{SlotIndex: slot})
}

func (s *Subscriptions) PhoneID(ctx context.Context, id int32) (int32, error) {
	return s.intValue(ctx, "PhoneID", &proto.Call{SubId: id})
}

func (s *Subscriptions) ActiveSubscriptionIDs(ctx context.Context) ([]int32, error) {
	return s.ids(ctx, "ActiveSubscriptionIDs", &proto.Call{})
}

func (s *Subscriptions) IsActiveSubscriptionID(ctx context.Context, caller domain.CallerIdentity, id int32) (bool, error) {
	return s.flag(ctx, "IsActiveSubscriptionID", &proto.Call{Caller: string(caller), SubId: id})
}

func (s *Subscriptions) SimStateForSlot(ctx context.Context, slot int32) (proto.SimState, error) {
	reply, err := s.call(ctx, "SimStateForSlot", &proto.Call{SlotIndex: slot})
	if err != nil {
		return proto.SimState_UNKNOWN, err
	}
	return reply.State, nil
}

func (s *Subscriptions) DefaultSubscriptionID(ctx context.Context, kind domain.DefaultKind) (int32, error) {
	return s.intValue(ctx, "DefaultSubscriptionID", &proto.Call{Kind: int32(kind)})
}

func (s *Subscriptions) SetDefaultSubscriptionID(ctx context.Context, kind domain.DefaultKind, id int32) error {
	_, err := s.call(ctx, "SetDefaultSubscriptionID", &proto.Call{Kind: int32(kind), SubId: id})
	return err
}

func (s *Subscriptions) ClearDefaultsForInactive(ctx context.Context) error {
	_, err := s.call(ctx, "ClearDefaultsForInactive", &proto.Call{})
	return err
}

func (s *Subscriptions) PreferredDataSubscriptionID(ctx context.Context) (int32, error) {
	return s.intValue(ctx, "PreferredDataSubscriptionID", &proto.Call{})
}

func (s *Subscriptions) SetPreferredDataSubscriptionID(ctx context.Context, id int32) (int32, error) {
	return s.intValue(ctx, "SetPreferredDataSubscriptionID", &proto.Call{SubId: id})
}

func (s *Subscriptions) SetProperty(ctx context.Context, id int32, key, value string) error {
	_, err := s.call(ctx, "SetProperty", &proto.Call{SubId: id, Key: key, Value: value})
	return err
}

func (s *Subscriptions) Property(ctx context.Context, caller domain.CallerIdentity, id int32, key string) (string, bool, error) {
	reply, err := s.call(ctx, "Property", &proto.Call{Caller: string(caller), SubId: id, Key: key})
	if err != nil {
		return "", false, err
	}
	return reply.Value, reply.Found, nil
}

func (s *Subscriptions) SetOpportunistic(ctx context.Context, caller domain.CallerIdentity, id int32, opportunistic bool) (int32, error) {
	return s.intValue(ctx, "SetOpportunistic", &proto.Call{Caller: string(caller), SubId: id, Flag: opportunistic})
}

func (s *Subscriptions) SetMetered(ctx context.Context, caller domain.CallerIdentity, id int32, metered bool) (int32, error) {
	return s.intValue(ctx, "SetMetered", &proto.Call{Caller: string(caller), SubId: id, Flag: metered})
}

func (s *Subscriptions) SetGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32) (string, error) {
	reply, err := s.call(ctx, "SetGroup", &proto.Call{Caller: string(caller), SubIds: ids})
	if err != nil {
		return "", err
	}
	return reply.Value, nil
}

func (s *Subscriptions) AddToGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32, groupID string) error {
	_, err := s.call(ctx, "AddToGroup", &proto.Call{Caller: string(caller), SubIds: ids, Value: groupID})
	return err
}

func (s *Subscriptions) RemoveFromGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32) (bool, error) {
	return s.flag(ctx, "RemoveFromGroup", &proto.Call{Caller: string(caller), SubIds: ids})
}

func (s *Subscriptions) GroupMembers(ctx context.Context, caller domain.CallerIdentity, id int32) ([]*proto.SubscriptionInfo, error) {
	return s.infos(ctx, "GroupMembers", &proto.Call{Caller: string(caller), SubId: id})
}

func (s *Subscriptions) SetEnabled(ctx context.Context, id int32, enable bool) (bool, error) {
	return s.flag(ctx, "SetEnabled", &proto.Call{SubId: id, Flag: enable})
}

func (s *Subscriptions) IsEnabled(ctx context.Context, id int32) (bool, error) {
	return s.flag(ctx, "IsEnabled", &proto.Call{SubId: id})
}

func (s *Subscriptions) EnabledSubscriptionID(ctx context.Context, slot int32) (int32, error) {
	return s.intValue(ctx, "EnabledSubscriptionID", &proto.Call{SlotIndex: slot})
}
