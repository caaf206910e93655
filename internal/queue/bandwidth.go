package queue

// BandwidthLedger tracks per-item reservations against a global cap.
// Reservations are declarative budgets: the engine adapter enforces the
// actual rate on its external tool. Not self-locking; the scheduler owns
// it.
type BandwidthLedger struct {
	cap          int64 // zero = unbounded
	reservations map[string]int64
	allocated    int64
}

func NewBandwidthLedger(cap int64) *BandwidthLedger {
	return &BandwidthLedger{
		cap:          cap,
		reservations: make(map[string]int64),
	}
}

// CanAllocate reports whether amount fits under the cap, ignoring any
// reservation the item already holds.
func (l *BandwidthLedger) CanAllocate(itemID string, amount int64) bool {
	if l.cap <= 0 {
		return true
	}
	current := l.allocated - l.reservations[itemID]
	return current+amount <= l.cap
}

// Allocate records the reservation, replacing any previous one for the
// same item. Returns false when it does not fit.
func (l *BandwidthLedger) Allocate(itemID string, amount int64) bool {
	if !l.CanAllocate(itemID, amount) {
		return false
	}
	l.allocated += amount - l.reservations[itemID]
	l.reservations[itemID] = amount
	return true
}

// Release drops the item's reservation.
func (l *BandwidthLedger) Release(itemID string) {
	amount, ok := l.reservations[itemID]
	if !ok {
		return
	}
	delete(l.reservations, itemID)
	l.allocated -= amount
}

// Allocated is the current reservation sum.
func (l *BandwidthLedger) Allocated() int64 { return l.allocated }

// Cap is the configured limit; zero means unbounded.
func (l *BandwidthLedger) Cap() int64 { return l.cap }

// Active is the number of held reservations.
func (l *BandwidthLedger) Active() int { return len(l.reservations) }
