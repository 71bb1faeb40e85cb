// Package private maintains the group of handlers for node operator access.
package private

import (
	"context"
	"net/http"

	"github.com/ardanlabs/blockengine/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/blockengine/business/web/errs"
	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
	"github.com/ardanlabs/blockengine/foundation/blockchain/worker"
	"github.com/ardanlabs/blockengine/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node operator endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Chain  *chain.Chain
	Worker *worker.Worker
}

// Status returns the current status of the node and what its peers
// last reported.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status := struct {
		chain.Status
		KnownPeers map[string]peer.Status `json:"known_peers"`
	}{
		Status:     h.Chain.Status(),
		KnownPeers: h.Worker.Peers(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Peers returns the known peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Worker.Peers(), http.StatusOK)
}

// Snapshots returns the retained snapshots, oldest first.
func (h Handlers) Snapshots(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Chain.Snapshots(), http.StatusOK)
}

// BlocksByNumber returns the blocks between the from and to numbers in
// the form they are stored and sent to peers.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, to, err := public.ParseRange(web.Param(r, "from"), web.Param(r, "to"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blocks, err := h.Chain.BlocksRange(from, to)
	if err != nil {
		return err
	}

	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// SignalProduce asks the node to attempt a block now.
func (h Handlers) SignalProduce(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Worker.SignalProduce()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "production signaled",
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}
