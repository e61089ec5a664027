// Package clock provides time-to-slot and time-to-epoch conversion.
//
// The epoch clock bridges wall-clock time to the discrete slot/epoch time
// model the finality engine reasons in. The node uses it to pace the sync
// cycle and to stamp log lines with consensus time.
package clock

import (
	"time"

	"github.com/finlabs/ffg/types"
)

// SecondsPerSlot is the wall-clock length of one slot.
const SecondsPerSlot uint64 = 4

// EpochClock converts wall-clock time to slots and epochs.
// All time values are in seconds (Unix timestamps).
type EpochClock struct {
	GenesisTime   uint64           // Unix timestamp when slot 0 began
	SlotsPerEpoch uint64           // matches the engine's epoch_length
	timeFunc      func() time.Time // Injectable for testing
}

// New creates an EpochClock with the given genesis time.
func New(genesisTime, slotsPerEpoch uint64) *EpochClock {
	return &EpochClock{
		GenesisTime:   genesisTime,
		SlotsPerEpoch: slotsPerEpoch,
		timeFunc:      time.Now,
	}
}

// NewWithTimeFunc creates an EpochClock with a custom time source (for testing).
func NewWithTimeFunc(genesisTime, slotsPerEpoch uint64, timeFunc func() time.Time) *EpochClock {
	return &EpochClock{
		GenesisTime:   genesisTime,
		SlotsPerEpoch: slotsPerEpoch,
		timeFunc:      timeFunc,
	}
}

// secondsSinceGenesis returns seconds elapsed since genesis (0 if before genesis).
func (c *EpochClock) secondsSinceGenesis() uint64 {
	now := uint64(c.timeFunc().Unix())
	if now < c.GenesisTime {
		return 0
	}
	return now - c.GenesisTime
}

// CurrentSlot returns the current slot number (0 if before genesis).
func (c *EpochClock) CurrentSlot() types.Slot {
	return types.Slot(c.secondsSinceGenesis() / SecondsPerSlot)
}

// CurrentEpoch returns the epoch the current slot belongs to.
func (c *EpochClock) CurrentEpoch() types.Epoch {
	return types.Epoch(uint64(c.CurrentSlot()) / c.SlotsPerEpoch)
}

// SlotStart returns the wall-clock start of a slot.
func (c *EpochClock) SlotStart(slot types.Slot) time.Time {
	return time.Unix(int64(c.GenesisTime+uint64(slot)*SecondsPerSlot), 0)
}

// UntilNextSlot returns the duration until the next slot boundary.
func (c *EpochClock) UntilNextSlot() time.Duration {
	next := c.SlotStart(c.CurrentSlot() + 1)
	return next.Sub(c.timeFunc())
}
