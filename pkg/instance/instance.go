package instance

import (
	"fmt"
	"os"

	"github.com/sergeJAVA/contractor-service/pkg/env"
)

// GetID returns the worker instance identifier recorded as claimed_by on
// outbox rows. WORKER_ID wins; otherwise hostname and pid keep replicas apart.
func GetID() string {
	if id := env.Get("WORKER_ID", ""); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
