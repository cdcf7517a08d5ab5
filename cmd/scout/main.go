// Command scout runs the startup discovery pipeline.
package main

import "github.com/scoutlabs/scout/cmd"

func main() {
	cmd.Execute()
}
