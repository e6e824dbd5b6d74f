package main

import "ocm.software/open-component-model/streaming/cmd/wearablectl/cmd"

func main() {
	cmd.Execute()
}
