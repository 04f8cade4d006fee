package visibility

import (
	"testing"

	"github.com/nkkko/simsub/pkg/proto"
	"github.com/stretchr/testify/assert"
)

func TestShouldHide(t *testing.T) {
	assert.False(t, ShouldHide(nil))
	assert.False(t, ShouldHide(&proto.SubscriptionInfo{Id: 1}))

	// Opportunistic alone is not enough
	assert.False(t, ShouldHide(&proto.SubscriptionInfo{Id: 2, IsOpportunistic: true}))

	// Grouped alone is not enough
	assert.False(t, ShouldHide(&proto.SubscriptionInfo{Id: 3, GroupUuid: "g1"}))

	assert.True(t, ShouldHide(&proto.SubscriptionInfo{Id: 4, GroupUuid: "g1", IsOpportunistic: true}))
}

func TestFilterVisible(t *testing.T) {
	primary := &proto.SubscriptionInfo{Id: 1, GroupUuid: "g1"}
	hidden := &proto.SubscriptionInfo{Id: 2, GroupUuid: "g1", IsOpportunistic: true}
	standalone := &proto.SubscriptionInfo{Id: 3, IsOpportunistic: true}

	filtered := FilterVisible([]*proto.SubscriptionInfo{primary, hidden, nil, standalone})
	assert.Equal(t, []*proto.SubscriptionInfo{primary, standalone}, filtered)

	// No entry is hidden iff the filter is the identity
	all := []*proto.SubscriptionInfo{primary, standalone}
	assert.Equal(t, all, FilterVisible(all))
}

func TestFilterVisibleKeepsNilAndEmptyDistinct(t *testing.T) {
	assert.Nil(t, FilterVisible(nil))

	empty := FilterVisible([]*proto.SubscriptionInfo{})
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	allHidden := FilterVisible([]*proto.SubscriptionInfo{{Id: 2, GroupUuid: "g1", IsOpportunistic: true}})
	assert.NotNil(t, allHidden)
	assert.Empty(t, allHidden)
}
