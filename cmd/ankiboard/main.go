package main

import (
	"ankiboard/cmd/ankiboard/commands"
	"ankiboard/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
