package main

import "github.com/studiolegale/sld_backend/cmd"

func main() {
	cmd.Execute()
}
