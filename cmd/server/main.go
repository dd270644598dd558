package main

import "go.pilab.hu/authserver/cmd/server/cmd"

func main() {
	cmd.Execute()
}
