package toll

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tollgrid/internal/topics"
)

func TestSessionStorePutGetRemove(t *testing.T) {
	store := NewSessionStore()

	_, ok := store.Get("TCK-AB12CD34")
	assert.False(t, ok)

	store.Put(Session{
		PassID:           "TCK-AB12CD34",
		Channel:          topics.ChannelManual,
		EntryTollboothID: "TB-NORTH-1",
		Plate:            "AB123CD",
		EntryAt:          time.Now(),
		Phase:            PhaseOpen,
	})

	session, ok := store.Get("TCK-AB12CD34")
	require.True(t, ok)
	assert.Equal(t, topics.ChannelManual, session.Channel)
	assert.Equal(t, "TB-NORTH-1", session.EntryTollboothID)
	assert.Equal(t, "AB123CD", session.Plate)
	assert.Equal(t, PhaseOpen, session.Phase)
	assert.Equal(t, 1, store.Len())

	store.Remove("TCK-AB12CD34")
	_, ok = store.Get("TCK-AB12CD34")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestSessionStorePutOverwrites(t *testing.T) {
	store := NewSessionStore()

	store.Put(Session{PassID: "OBU-001", Channel: topics.ChannelTelepass, Plate: "XX100YY"})
	store.Put(Session{PassID: "OBU-001", Channel: topics.ChannelTelepass, Plate: "ZZ999WW"})

	session, ok := store.Get("OBU-001")
	require.True(t, ok)
	assert.Equal(t, "ZZ999WW", session.Plate)
	assert.Equal(t, 1, store.Len())
}

func TestSessionStoreConcurrentAccess(t *testing.T) {
	store := NewSessionStore()
	store.Put(Session{PassID: "OBU-001", Channel: topics.ChannelTelepass, Phase: PhaseOpen})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Put(Session{
				PassID:  "OBU-001",
				Channel: topics.ChannelTelepass,
				Plate:   fmt.Sprintf("AB%03dCD", 100+n),
				Phase:   PhaseOpen,
			})
			store.SetPhase("OBU-001", PhaseAwaitingPayment)
			store.Get("OBU-001")
			store.Put(Session{PassID: fmt.Sprintf("TCK-%08d", n), Channel: topics.ChannelManual, Phase: PhaseOpen})
			store.Remove(fmt.Sprintf("TCK-%08d", n))
		}(i)
	}
	wg.Wait()

	// Last writer wins; whichever goroutine stored OBU-001 last, the record
	// is intact and the transient manual sessions are gone.
	session, ok := store.Get("OBU-001")
	require.True(t, ok)
	assert.Equal(t, topics.ChannelTelepass, session.Channel)
	assert.Regexp(t, `^AB[0-9]{3}CD$`, session.Plate)
	assert.Contains(t, []Phase{PhaseOpen, PhaseAwaitingPayment}, session.Phase)
	assert.Equal(t, 1, store.Len())
}

func TestSessionStoreSetPhase(t *testing.T) {
	store := NewSessionStore()

	assert.False(t, store.SetPhase("TCK-MISSING1", PhaseAwaitingPayment))

	store.Put(Session{PassID: "TCK-AB12CD34", Channel: topics.ChannelManual, Phase: PhaseOpen})
	require.True(t, store.SetPhase("TCK-AB12CD34", PhaseAwaitingPayment))

	session, ok := store.Get("TCK-AB12CD34")
	require.True(t, ok)
	assert.Equal(t, PhaseAwaitingPayment, session.Phase)
}
