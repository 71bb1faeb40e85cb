package peer_test

import (
	"testing"

	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{ID: "node1"}, {ID: "node2"}, {ID: "node3"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewPeerSet()

			for _, peer := range tst.peers {
				ps.Add(peer)
			}

			if ps.Add(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould not add the same peer twice.", tst.name)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			peers = ps.Copy("node2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			ps.Remove(tst.peers[0])
			if len(ps.Copy("")) != len(tst.peers)-1 {
				t.Fatalf("Test %s:\tShould be able to remove a peer.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_Ahead(t *testing.T) {
	ps := peer.NewPeerSet()

	ps.Update(peer.New("node1"), peer.Status{LatestBlockNumber: 3})
	ps.Update(peer.New("node2"), peer.Status{LatestBlockNumber: 7})
	ps.Update(peer.New("node3"), peer.Status{LatestBlockNumber: 7})
	ps.Add(peer.New("node4"))

	ahead := ps.Ahead(3)
	if len(ahead) != 2 || ahead[0].ID != "node2" || ahead[1].ID != "node3" {
		t.Fatalf("Should get the peers ahead ordered by number, got %v.", ahead)
	}

	status, exists := ps.Status(peer.New("node2"))
	if !exists || status.LatestBlockNumber != 7 {
		t.Fatalf("Should get the reported status, got %+v.", status)
	}

	if len(ps.Ahead(7)) != 0 {
		t.Fatalf("Should not find peers ahead of the highest number.")
	}
}
