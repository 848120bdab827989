package hub

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterCountsPerUser(t *testing.T) {
	r := require.New(t)
	reg := NewRegistry()

	r.Equal(1, reg.Register(Connection{ID: "c1", UserID: 1, Username: "alice"}))
	r.Equal(2, reg.Register(Connection{ID: "c2", UserID: 1, Username: "alice"}))
	r.Equal(1, reg.Register(Connection{ID: "c3", UserID: 2, Username: "bob"}))

	r.Equal(2, reg.ConnectionsForUser(1))
	r.Equal(1, reg.ConnectionsForUser(2))
	r.Equal(0, reg.ConnectionsForUser(3))
	r.Equal(3, reg.Len())
}

func TestRegistry_DuplicateIDIsLastWriteWins(t *testing.T) {
	r := require.New(t)
	reg := NewRegistry()

	reg.Register(Connection{ID: "c1", UserID: 1, Username: "alice"})
	// Given: 同一连接ID再次注册为同一用户
	r.Equal(1, reg.Register(Connection{ID: "c1", UserID: 1, Username: "alice"}))

	// When: 同一连接ID被另一用户覆盖
	r.Equal(1, reg.Register(Connection{ID: "c1", UserID: 2, Username: "bob"}))

	// Then: 旧用户计数被正确扣减
	r.Equal(0, reg.ConnectionsForUser(1))
	r.Equal(1, reg.ConnectionsForUser(2))
	r.Equal([]string{"bob"}, reg.DistinctOnlineUsernames())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := require.New(t)
	reg := NewRegistry()
	reg.Register(Connection{ID: "c1", UserID: 1, Username: "alice"})
	reg.Register(Connection{ID: "c2", UserID: 1, Username: "alice"})

	conn, remaining, ok := reg.Unregister("c1")
	r.True(ok)
	r.Equal(uint(1), conn.UserID)
	r.Equal("alice", conn.Username)
	r.Equal(1, remaining)

	_, _, ok = reg.Unregister("c1")
	r.False(ok)

	_, remaining, ok = reg.Unregister("c2")
	r.True(ok)
	r.Equal(0, remaining)
	r.Equal(0, reg.Len())
}

func TestRegistry_DistinctOnlineUsernames(t *testing.T) {
	r := require.New(t)
	reg := NewRegistry()
	r.Empty(reg.DistinctOnlineUsernames())

	reg.Register(Connection{ID: "c1", UserID: 2, Username: "bob"})
	reg.Register(Connection{ID: "c2", UserID: 1, Username: "alice"})
	reg.Register(Connection{ID: "c3", UserID: 1, Username: "alice"})

	r.Equal([]string{"alice", "bob"}, reg.DistinctOnlineUsernames())
}

func TestRegistry_ConcurrentMutation(t *testing.T) {
	r := require.New(t)
	reg := NewRegistry()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			reg.Register(Connection{ID: id, UserID: uint(i%5 + 1), Username: fmt.Sprintf("u%d", i%5)})
			_ = reg.DistinctOnlineUsernames()
			if i%2 == 0 {
				reg.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for u := uint(1); u <= 5; u++ {
		total += reg.ConnectionsForUser(u)
	}
	r.Equal(workers/2, reg.Len())
	r.Equal(reg.Len(), total)
}
