package main

import "github.com/dockhand/dockhand/cmd/dockhand-ctl/cmd"

func main() {
	cmd.Execute()
}
