// Command btreestore is an interactive REPL over a single on-disk
// btreestore.BTree[Int64Value], for manual poking and demos. The
// builder/CLI wiring here is explicitly out of the core engine's scope;
// it exists only as a thin external collaborator.
package main

func main() {
	Run()
}
