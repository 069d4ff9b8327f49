package main

import "github.com/jfmyers9/tgplay/cmd"

func main() {
	cmd.Execute()
}
