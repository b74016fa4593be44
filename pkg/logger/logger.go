package logger

import (
	"fmt"
	"log"
	"os"
)

// New returns a stdlib-backed logger with a component prefix, for the
// standalone utilities that do not run inside the pipeline.
func New(component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
