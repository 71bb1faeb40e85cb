// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/blockengine/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/blockengine/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/ardanlabs/blockengine/foundation/blockchain/worker"
	"github.com/ardanlabs/blockengine/foundation/events"
	"github.com/ardanlabs/blockengine/foundation/nameservice"
	"github.com/ardanlabs/blockengine/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	Chain  *chain.Chain
	Worker *worker.Worker
	NS     *nameservice.NameService
	Evts   *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:    cfg.Log,
		Chain:  cfg.Chain,
		Worker: cfg.Worker,
		NS:     cfg.NS,
		WS:     websocket.Upgrader{},
		Evts:   cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/accounts/list/:account", pbl.Account)
	app.Handle(http.MethodGet, version, "/accounts/value/:account/:key", pbl.Value)
	app.Handle(http.MethodGet, version, "/blocks/list/:from/:to", pbl.BlocksByNumber)
	app.Handle(http.MethodGet, version, "/blocks/hash/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/tx/proof/:hash", pbl.ReceiptProof)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:    cfg.Log,
		Chain:  cfg.Chain,
		Worker: cfg.Worker,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/peers", prv.Peers)
	app.Handle(http.MethodGet, version, "/node/snapshots", prv.Snapshots)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByNumber)
	app.Handle(http.MethodPost, version, "/node/produce/signal", prv.SignalProduce)
}
