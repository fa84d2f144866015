package stakingd

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"stakeledger/core/types"
	"stakeledger/native/staking"
)

func TestEventHubBacklogAndLag(t *testing.T) {
	hub := NewEventHub(2)
	for _, name := range []string{"a", "b", "c"} {
		hub.Publish(types.NewEvent(name))
	}
	updates, backlog, cancel := hub.Subscribe()
	require.Len(t, backlog, 2)
	require.Equal(t, "b", backlog[0].Type)

	hub.Publish(types.NewEvent("d"))
	evt := <-updates
	require.Equal(t, "d", evt.Type)

	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish(types.NewEvent("flood"))
	}
	drained := 0
	for range updates {
		drained++
	}
	require.Equal(t, subscriberBuffer, drained, "lagging subscriber is closed once its buffer fills")
	cancel()
}

func TestServerStreamsCommittedEvents(t *testing.T) {
	s := newServerHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/v1/events?type=" + staking.EventTypeStake
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.mustExec(stakeToken, staking.ReceiveMsg{Sender: alice, Amount: big.NewInt(9)})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, staking.EventTypeStake, evt.Type)
	require.Equal(t, alice, evt.Attr("address"))
	require.Equal(t, "9", evt.Attr("amount"))
}

func TestServerSnapshotDigest(t *testing.T) {
	s := newServerHarness(t)
	s.stake(alice, 40)

	var first snapshotResponse
	require.Equal(t, http.StatusOK, s.get(t, "/v1/snapshot", &first))
	require.Equal(t, 1, first.Stakers)
	require.Len(t, first.Digest, 64)

	s.stake(bob, 1)
	var second snapshotResponse
	require.Equal(t, http.StatusOK, s.get(t, "/v1/snapshot", &second))
	require.Equal(t, 2, second.Stakers)
	require.NotEqual(t, first.Digest, second.Digest)
	require.Equal(t, "41", second.PoolStakeTotal.String())
}
