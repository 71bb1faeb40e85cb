package wsnet_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/blockengine/foundation/blockchain/network"
	"github.com/ardanlabs/blockengine/foundation/blockchain/network/wsnet"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func receive(t *testing.T, n network.Network) network.Envelope {
	select {
	case env, open := <-n.Inbound():
		if !open {
			t.Fatalf("\t%s\tShould have an open inbound channel on %s.", failed, n.ID())
		}
		return env
	case <-time.After(5 * time.Second):
		t.Fatalf("\t%s\tShould receive a message on %s.", failed, n.ID())
	}
	return network.Envelope{}
}

func Test_Exchange(t *testing.T) {
	a := wsnet.New(wsnet.Config{ID: "node-a"})
	b := wsnet.New(wsnet.Config{ID: "node-b"})

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	t.Log("Given the need to exchange messages over websockets.")
	{
		t.Logf("\tTest 0:\tWhen node b dials node a.")
		{
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := b.Dial(ctx, strings.TrimPrefix(srv.URL, "http://")); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to dial: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to dial.", success)

			if peers := b.Peers(); len(peers) != 1 || peers[0].ID != "node-a" {
				t.Fatalf("\t%s\tTest 0:\tShould learn the id of node a, got %v.", failed, peers)
			}
			t.Logf("\t%s\tTest 0:\tShould learn the id of node a.", success)

			msg, err := network.NewMessage(network.KindStatus, peer.Status{LatestBlockNumber: 9})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the message: %s", failed, err)
			}

			if err := b.SendTo(peer.New("node-a"), msg); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to send: %s", failed, err)
			}

			env := receive(t, a)
			var status peer.Status
			if err := env.Message.Decode(&status); err != nil || env.From.ID != "node-b" || status.LatestBlockNumber != 9 {
				t.Fatalf("\t%s\tTest 0:\tShould receive the status from b, got %+v: %v", failed, env, err)
			}
			t.Logf("\t%s\tTest 0:\tShould receive the status from b.", success)

			reply, _ := network.NewMessage(network.KindGetBlocks, network.GetBlocks{From: 3})
			if err := a.Broadcast(reply); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to broadcast: %s", failed, err)
			}

			env = receive(t, b)
			var req network.GetBlocks
			if err := env.Message.Decode(&req); err != nil || env.From.ID != "node-a" || req.From != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould receive the request from a, got %+v: %v", failed, env, err)
			}
			t.Logf("\t%s\tTest 0:\tShould receive the broadcast from a.", success)
		}

		t.Logf("\tTest 1:\tWhen the nodes are closed.")
		{
			if err := b.SendTo(peer.New("node-z"), network.Message{Kind: network.KindTx}); !errors.Is(err, network.ErrUnknownPeer) {
				t.Fatalf("\t%s\tTest 1:\tShould fail for an unknown peer: %v", failed, err)
			}

			if err := b.Close(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to close b: %s", failed, err)
			}
			if err := a.Close(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to close a: %s", failed, err)
			}

			if err := b.Broadcast(network.Message{Kind: network.KindTx}); !errors.Is(err, network.ErrClosed) {
				t.Fatalf("\t%s\tTest 1:\tShould not send after close: %v", failed, err)
			}

			for range b.Inbound() {
			}
			t.Logf("\t%s\tTest 1:\tShould close the inbound channel.", success)
		}
	}
}
