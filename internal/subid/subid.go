// Package subid classifies subscription, slot and phone identifiers.
//
// Two predicates exist for subscription ids and they are not
// interchangeable. IsValid is the loose check (anything above the invalid
// sentinel, including the "let the system choose" sentinel). IsUsable
// accepts only ids that can name a real record.
package subid

import "math"

// Subscription id sentinels and range
const (
	Invalid int32 = -1
	Default int32 = math.MaxInt32
	Min     int32 = 0
	Max     int32 = Default - 1

	// DummyBase is the first of the placeholder ids handed out for slots
	// that have no record yet. Dummy ids count downwards from here.
	DummyBase int32 = Invalid - 1
)

// Slot and phone index sentinels
const (
	InvalidSlot  int32 = -1
	DefaultSlot  int32 = math.MaxInt32
	InvalidPhone int32 = -1

	// SlotForRemoteSIM is the slot index reported for subscriptions that
	// live on a paired remote device
	SlotForRemoteSIM = InvalidSlot
)

// DeviceCounts reports how many SIM slots and radio phones the device has
type DeviceCounts interface {
	SimCount() int
	PhoneCount() int
}

// IsValid reports whether id is greater than the invalid sentinel
func IsValid(id int32) bool {
	return id > Invalid
}

// IsUsable reports whether id names a real record
func IsUsable(id int32) bool {
	return id >= Min && id <= Max
}

// IsValidSlot reports whether slot lies in [0, simCount)
func IsValidSlot(slot int32, simCount int) bool {
	return slot >= 0 && int64(slot) < int64(simCount)
}

// IsValidPhone reports whether phone lies in [0, phoneCount)
func IsValidPhone(phone int32, phoneCount int) bool {
	return phone >= 0 && int64(phone) < int64(phoneCount)
}

// Rules binds the slot and phone checks to a device
type Rules struct {
	device DeviceCounts
}

// NewRules creates rules backed by device counts
func NewRules(device DeviceCounts) Rules {
	return Rules{device: device}
}

// IsValidSlot checks slot against the device's SIM slot count. A missing
// device has no valid slots.
func (r Rules) IsValidSlot(slot int32) bool {
	if r.device == nil {
		return false
	}
	return IsValidSlot(slot, r.device.SimCount())
}

// IsValidPhone checks phone against the device's phone count
func (r Rules) IsValidPhone(phone int32) bool {
	if r.device == nil {
		return false
	}
	return IsValidPhone(phone, r.device.PhoneCount())
}

// StaticCounts is a fixed DeviceCounts
type StaticCounts struct {
	Sims   int
	Phones int
}

// SimCount returns the fixed SIM slot count
func (c StaticCounts) SimCount() int { return c.Sims }

// PhoneCount returns the fixed phone count
func (c StaticCounts) PhoneCount() int { return c.Phones }
