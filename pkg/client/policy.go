package client

import (
	"context"
	"time"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
)

var _ domain.PolicyService = (*Policy)(nil)

// Policy is the remote policy service of a daemon
type Policy struct {
	client *Client
}

func (p *Policy) call(ctx context.Context, method string, call *proto.Call) (*proto.Reply, error) {
	return p.client.invoke(ctx, proto.PathPolicyService, method, call)
}

func (p *Policy) SubscriptionPlans(ctx context.Context, caller domain.CallerIdentity, id int32) ([]*proto.SubscriptionPlan, error) {
	reply, err := p.call(ctx, "SubscriptionPlans", &proto.Call{Caller: string(caller), SubId: id})
	if err != nil {
		return nil, err
	}
	return reply.Plans, nil
}

func (p *Policy) SetSubscriptionPlans(ctx context.Context, caller domain.CallerIdentity, id int32, plans []*proto.SubscriptionPlan) error {
	_, err := p.call(ctx, "SetSubscriptionPlans", &proto.Call{Caller: string(caller), SubId: id, Plans: plans})
	return err
}

func (p *Policy) SubscriptionPlansOwner(ctx context.Context, id int32) (string, error) {
	reply, err := p.call(ctx, "SubscriptionPlansOwner", &proto.Call{SubId: id})
	if err != nil {
		return "", err
	}
	return reply.Value, nil
}

func (p *Policy) SetSubscriptionOverride(ctx context.Context, caller domain.CallerIdentity, id int32, mask, value proto.OverrideKind, timeout time.Duration) error {
	_, err := p.call(ctx, "SetSubscriptionOverride", &proto.Call{
		Caller:    string(caller),
		SubId:     id,
		Kind:      int32(mask),
		IntValue:  int32(value),
		TimeoutMs: timeout.Milliseconds(),
	})
	return err
}
