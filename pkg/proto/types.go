package proto

import (
	"fmt"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// SubscriptionType distinguishes SIMs inserted in the device from SIMs
// reached through a paired remote device
type SubscriptionType int32

const (
	SubscriptionType_LOCAL_SIM  SubscriptionType = 0
	SubscriptionType_REMOTE_SIM SubscriptionType = 1
)

// NameSource records who last set a subscription's display name
type NameSource int32

const (
	NameSource_UNDEFINED  NameSource = -1
	NameSource_DEFAULT    NameSource = 0
	NameSource_SIM_SOURCE NameSource = 1
	NameSource_USER_INPUT NameSource = 2
	NameSource_CARRIER    NameSource = 3
)

// ProfileClass is the eUICC profile class of a subscription
type ProfileClass int32

const (
	ProfileClass_UNSET        ProfileClass = -1
	ProfileClass_TESTING      ProfileClass = 0
	ProfileClass_PROVISIONING ProfileClass = 1
	ProfileClass_OPERATIONAL  ProfileClass = 2
)

// SimState is the card state reported for a SIM slot
type SimState int32

const (
	SimState_UNKNOWN         SimState = 0
	SimState_ABSENT          SimState = 1
	SimState_PIN_REQUIRED    SimState = 2
	SimState_PUK_REQUIRED    SimState = 3
	SimState_NETWORK_LOCKED  SimState = 4
	SimState_READY           SimState = 5
	SimState_NOT_READY       SimState = 6
	SimState_PERM_DISABLED   SimState = 7
	SimState_CARD_IO_ERROR   SimState = 8
	SimState_CARD_RESTRICTED SimState = 9
	SimState_LOADED          SimState = 10
	SimState_PRESENT         SimState = 11
)

var simStateNames = map[SimState]string{
	SimState_UNKNOWN:         "UNKNOWN",
	SimState_ABSENT:          "ABSENT",
	SimState_PIN_REQUIRED:    "PIN_REQUIRED",
	SimState_PUK_REQUIRED:    "PUK_REQUIRED",
	SimState_NETWORK_LOCKED:  "NETWORK_LOCKED",
	SimState_READY:           "READY",
	SimState_NOT_READY:       "NOT_READY",
	SimState_PERM_DISABLED:   "PERM_DISABLED",
	SimState_CARD_IO_ERROR:   "CARD_IO_ERROR",
	SimState_CARD_RESTRICTED: "CARD_RESTRICTED",
	SimState_LOADED:          "LOADED",
	SimState_PRESENT:         "PRESENT",
}

func (s SimState) String() string {
	if name, ok := simStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SimState(%d)", int32(s))
}

// OverrideKind is a bit in the network policy override mask
type OverrideKind int32

const (
	OverrideKind_UNMETERED OverrideKind = 1 << 0
	OverrideKind_CONGESTED OverrideKind = 1 << 1
)

// DataRoaming values stored on a subscription record
const (
	DataRoamingDisable int32 = 0
	DataRoamingEnable  int32 = 1
)

// SubscriptionInfo is a read-only snapshot of one subscription record owned
// by the remote subscription service
type SubscriptionInfo struct {
	Id               int32                  `json:"id"`
	IccId            string                 `json:"icc_id"`
	SimSlotIndex     int32                  `json:"sim_slot_index"`
	DisplayName      string                 `json:"display_name,omitempty"`
	CarrierName      string                 `json:"carrier_name,omitempty"`
	NameSource       NameSource             `json:"name_source"`
	IconTint         int32                  `json:"icon_tint"`
	Number           string                 `json:"number,omitempty"`
	DataRoaming      int32                  `json:"data_roaming"`
	Mcc              string                 `json:"mcc,omitempty"`
	Mnc              string                 `json:"mnc,omitempty"`
	CountryIso       string                 `json:"country_iso,omitempty"`
	IsEmbedded       bool                   `json:"is_embedded"`
	IsRemovable      bool                   `json:"is_removable"`
	CardId           int32                  `json:"card_id"`
	SubscriptionType SubscriptionType       `json:"subscription_type"`
	GroupUuid        string                 `json:"group_uuid,omitempty"`
	IsOpportunistic  bool                   `json:"is_opportunistic"`
	IsMetered        bool                   `json:"is_metered"`
	IsEnabled        bool                   `json:"is_enabled"`
	ProfileClass     ProfileClass           `json:"profile_class"`
	CarrierId        int32                  `json:"carrier_id"`
	AccessRules      []string               `json:"access_rules,omitempty"`
	Extras           map[string]string      `json:"extras,omitempty"`
	UpdatedAt        *timestamppb.Timestamp `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the record
func (s *SubscriptionInfo) Clone() *SubscriptionInfo {
	if s == nil {
		return nil
	}
	out := *s
	if s.AccessRules != nil {
		out.AccessRules = append([]string(nil), s.AccessRules...)
	}
	if s.Extras != nil {
		out.Extras = make(map[string]string, len(s.Extras))
		for k, v := range s.Extras {
			out.Extras[k] = v
		}
	}
	if s.UpdatedAt != nil {
		out.UpdatedAt = timestamppb.New(s.UpdatedAt.AsTime())
	}
	return &out
}

func (s *SubscriptionInfo) String() string {
	if s == nil {
		return "SubscriptionInfo(nil)"
	}
	return fmt.Sprintf("SubscriptionInfo{id=%d slot=%d name=%q group=%q opportunistic=%t}",
		s.Id, s.SimSlotIndex, s.DisplayName, s.GroupUuid, s.IsOpportunistic)
}

// SubscriptionPlan describes one billing plan installed by a carrier app
type SubscriptionPlan struct {
	Title          string                 `json:"title,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
	CycleStart     *timestamppb.Timestamp `json:"cycle_start,omitempty"`
	CycleEnd       *timestamppb.Timestamp `json:"cycle_end,omitempty"`
	DataLimitBytes int64                  `json:"data_limit_bytes"`
	DataUsageBytes int64                  `json:"data_usage_bytes"`
}

// Call is the request envelope for one remote service method. Only the
// fields a method reads are set.
type Call struct {
	Caller           string              `json:"caller,omitempty"`
	SubId            int32               `json:"sub_id"`
	SubIds           []int32             `json:"sub_ids,omitempty"`
	SlotIndex        int32               `json:"slot_index"`
	CardId           int32               `json:"card_id"`
	Kind             int32               `json:"kind"`
	UniqueId         string              `json:"unique_id,omitempty"`
	IccId            string              `json:"icc_id,omitempty"`
	DisplayName      string              `json:"display_name,omitempty"`
	NameSource       NameSource          `json:"name_source"`
	Number           string              `json:"number,omitempty"`
	SubscriptionType SubscriptionType    `json:"subscription_type"`
	Key              string              `json:"key,omitempty"`
	Value            string              `json:"value,omitempty"`
	IntValue         int32               `json:"int_value"`
	Flag             bool                `json:"flag"`
	TimeoutMs        int64               `json:"timeout_ms"`
	Plans            []*SubscriptionPlan `json:"plans,omitempty"`
}

// Reply is the response envelope for one remote service method
type Reply struct {
	Info     *SubscriptionInfo   `json:"info,omitempty"`
	Infos    []*SubscriptionInfo `json:"infos"`
	Ids      []int32             `json:"ids"`
	Plans    []*SubscriptionPlan `json:"plans"`
	IntValue int32               `json:"int_value"`
	Count    int                 `json:"count"`
	Value    string              `json:"value,omitempty"`
	Found    bool                `json:"found"`
	Flag     bool                `json:"flag"`
	State    SimState            `json:"state"`
}

// HTTP routes of the remote services. Method names are appended to the
// service prefixes.
const (
	PathSubscriptionService = "/v1/isub/"
	PathPolicyService       = "/v1/policy/"
	PathNotifications       = "/v1/registry"
)

// ListenerOp is a control message sent upstream on the notification channel
type ListenerOp struct {
	Op     string `json:"op"`
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Kind   int32  `json:"kind"`
}

// Listener op names
const (
	ListenerOpAdd    = "add"
	ListenerOpRemove = "remove"
)

// Signal is a message pushed downstream on the notification channel. With
// Ack empty it is a payload-less change notification for Token; otherwise
// it answers the listener op named by Ack.
type Signal struct {
	Token     string `json:"token"`
	Ack       string `json:"ack,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}
