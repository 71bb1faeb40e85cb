// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/blockengine/business/web/errs"
	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/worker"
	"github.com/ardanlabs/blockengine/foundation/events"
	"github.com/ardanlabs/blockengine/foundation/nameservice"
	"github.com/ardanlabs/blockengine/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Chain  *chain.Chain
	Worker *worker.Worker
	NS     *nameservice.NameService
	WS     websocket.Upgrader
	Evts   *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Chain.Genesis(), http.StatusOK)
}

// Status returns a summary of the chain.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Chain.Status(), http.StatusOK)
}

// Account returns the balance and nonce for the account as of the tip.
func (h Handlers) Account(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	tip := h.Chain.Tip()

	info, err := h.Chain.Account(accountID)
	if err != nil {
		return err
	}

	act := account{
		Account:     accountID,
		Name:        h.NS.Lookup(accountID),
		Balance:     info.Balance,
		Nonce:       info.Nonce,
		LatestBlock: tip.Hash(),
	}

	return web.Respond(ctx, w, act, http.StatusOK)
}

// Value returns the value an account stored under a key.
func (h Handlers) Value(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	key := web.Param(r, "key")

	value, exists := h.Chain.Value(accountID, key)
	if !exists {
		return errs.NewTrusted(fmt.Errorf("no value for key %q", key), http.StatusNotFound)
	}

	resp := struct {
		Account database.AccountID `json:"account"`
		Key     string             `json:"key"`
		Value   string             `json:"value"`
	}{
		Account: accountID,
		Key:     key,
		Value:   value,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByNumber returns the blocks between the from and to numbers.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, to, err := ParseRange(web.Param(r, "from"), web.Param(r, "to"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbBlocks, err := h.Chain.BlocksRange(from, to)
	if err != nil {
		return err
	}

	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, dbBlock := range dbBlocks {
		blocks[i] = toBlock(dbBlock, h.NS)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// BlockByHash returns the block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbBlock, err := h.Chain.BlockByHash(web.Param(r, "hash"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, toBlock(dbBlock, h.NS), http.StatusOK)
}

// ReceiptProof returns the proof that a transaction's receipt is committed
// to by the block that included it.
func (h Handlers) ReceiptProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	header, proof, err := h.Chain.ReceiptProof(web.Param(r, "hash"))
	if err != nil {
		if errors.Is(err, chain.ErrTxNotIncluded) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	resp := struct {
		BlockHash   string                `json:"block_hash"`
		BlockNumber uint64                `json:"block_number"`
		ReceiptRoot string                `json:"receipt_root"`
		Proof       database.ReceiptProof `json:"proof"`
	}{
		BlockHash:   header.Hash(),
		BlockNumber: header.Number,
		ReceiptRoot: header.ReceiptRoot,
		Proof:       proof,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of pending transactions in arrival order.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending := h.Chain.Mempool()

	txs := make([]tx, len(pending))
	for i, dbTx := range pending {
		txs[i] = toTx(dbTx, h.NS)
	}

	return web.Respond(ctx, w, txs, http.StatusOK)
}

// SubmitTransaction adds a signed transaction to the mempool and shares it
// with the network.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var stx submitTx
	if err := web.Decode(r, &stx); err != nil {
		if web.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	dbTx := stx.toTx()

	h.Log.Infow("submit tx", "traceid", v.TraceID, "tx", dbTx)

	added, err := h.Worker.SubmitTransaction(dbTx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Hash   string `json:"hash"`
		Status string `json:"status"`
	}{
		Hash:   dbTx.Hash(),
		Status: "transaction added to mempool",
	}

	if !added {
		resp.Status = "transaction already in mempool"
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// ParseRange converts the from and to parameters into block numbers. The
// value latest, or no value, selects the tip.
func ParseRange(fromStr string, toStr string) (uint64, uint64, error) {
	parse := func(s string) (uint64, error) {
		if s == "latest" || s == "" {
			return chain.QueryLatest, nil
		}
		return strconv.ParseUint(s, 10, 64)
	}

	from, err := parse(fromStr)
	if err != nil {
		return 0, 0, err
	}

	to, err := parse(toStr)
	if err != nil {
		return 0, 0, err
	}

	if from > to {
		return 0, 0, errors.New("from greater than to")
	}

	return from, to, nil
}
