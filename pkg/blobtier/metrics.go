package blobtier

import "time"

// The helpers below make a nil Metrics free to pass around.

func ObserveCache(m Metrics, hit bool) {
	if m != nil {
		m.ObserveCache(hit)
	}
}

func ObserveRemote(m Metrics, op string, start time.Time, err error) {
	if m != nil {
		m.ObserveRemote(op, time.Since(start), err)
	}
}

func ObserveAlreadyStored(m Metrics) {
	if m != nil {
		m.ObserveAlreadyStored()
	}
}

func ObserveCommit(m Metrics, entries int, err error) {
	if m != nil {
		m.ObserveCommit(entries, err)
	}
}

func ObserveReadDegraded(m Metrics, store string) {
	if m != nil {
		m.ObserveReadDegraded(store)
	}
}

func ObserveColdTransition(m Metrics, state string) {
	if m != nil {
		m.ObserveColdTransition(state)
	}
}
