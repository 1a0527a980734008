package main

import "github.com/terraconstructs/svcgate/cmd/svcgate/cmd"

func main() {
	cmd.Execute()
}
