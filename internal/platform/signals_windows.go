package platform

import "os"

// Windows does not reliably deliver SIGTERM to console apps
var shutdownSignals = []os.Signal{os.Interrupt}
