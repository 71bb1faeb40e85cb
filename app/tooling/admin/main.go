// This program performs administrative tasks for a node: managing producer
// keys, signing and sending transactions and inspecting block stores.
package main

import "github.com/ardanlabs/blockengine/app/tooling/admin/cmd"

func main() {
	cmd.Execute()
}
