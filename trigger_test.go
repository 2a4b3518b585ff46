package snapmink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// pendingAccount returns an account at playhead with n uncommitted deposits.
func pendingAccount(playhead int64, n int) *testAccount {
	acc := newTestAccount("1")
	acc.SetVersion(playhead)
	for i := 0; i < n; i++ {
		acc.Deposit(1)
	}
	return acc
}

func TestEventCountTrigger(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		playhead int64
		pending  int
		want     bool
	}{
		{"no pending events", 5, 4, 0, false},
		{"below first multiple", 5, 0, 4, false},
		{"reaches first multiple", 5, 0, 5, true},
		{"crosses multiple with single event", 5, 4, 1, true},
		{"lands past multiple", 5, 5, 1, false},
		{"crosses multiple in the middle of a batch", 5, 3, 4, true},
		{"crosses several multiples", 2, 0, 7, true},
		{"next multiple out of reach", 10, 11, 8, false},
		{"zero threshold never fires", 0, 0, 100, false},
		{"negative threshold never fires", -3, 0, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := NewEventCountTrigger(tt.n)
			assert.Equal(t, tt.want, trigger.ShouldSnapshot(pendingAccount(tt.playhead, tt.pending)))
			assert.Equal(t, tt.n, trigger.EventCount())
		})
	}

	t.Run("nil aggregate", func(t *testing.T) {
		assert.False(t, NewEventCountTrigger(1).ShouldSnapshot(nil))
	})

	t.Run("deterministic", func(t *testing.T) {
		trigger := NewEventCountTrigger(3)
		acc := pendingAccount(2, 1)
		for i := 0; i < 5; i++ {
			assert.True(t, trigger.ShouldSnapshot(acc))
		}
		assert.Len(t, acc.UncommittedEvents(), 1)
	})
}

func TestPendingEventsTrigger(t *testing.T) {
	trigger := PendingEventsTrigger{N: 3}

	assert.False(t, trigger.ShouldSnapshot(pendingAccount(0, 2)))
	assert.True(t, trigger.ShouldSnapshot(pendingAccount(0, 3)))
	assert.True(t, trigger.ShouldSnapshot(pendingAccount(40, 4)))
	assert.False(t, trigger.ShouldSnapshot(nil))
	assert.Equal(t, 3, trigger.EventCount())

	assert.False(t, PendingEventsTrigger{}.ShouldSnapshot(pendingAccount(0, 10)))
}
