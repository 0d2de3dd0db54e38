package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// The server, worker and CLI use different node IDs.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// Used for event logs, watchers and eval rows.
func New() int64 {
	return node.Generate().Int64()
}

// NewTaskID returns a time-ordered UUIDv7. Task ids and context ids leave the
// service (they are handed to agents and UIs), so they use UUIDs rather than snowflakes.
func NewTaskID() (uuid.UUID, error) {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generating uuid v7: %w", err)
	}
	return v, nil
}
