package store

import (
	"basegraph.app/hookrelay/core/db"
)

type Stores struct {
	q db.DBTX
}

// NewStores binds every store to q, which may be the pool or a transaction.
func NewStores(q db.DBTX) *Stores {
	return &Stores{q: q}
}

func (s *Stores) EventLogs() EventLogStore {
	return newEventLogStore(s.q)
}

func (s *Stores) Tasks() TaskStore {
	return newTaskStore(s.q)
}

func (s *Stores) Watchers() WatcherStore {
	return newWatcherStore(s.q)
}

func (s *Stores) Connections() ConnectionStore {
	return newConnectionStore(s.q)
}

func (s *Stores) LLMEvals() LLMEvalStore {
	return newLLMEvalStore(s.q)
}
