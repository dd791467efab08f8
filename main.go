package main

import "github.com/frahmantamala/teamboard/cmd"

func main() {
	cmd.Execute()
}
