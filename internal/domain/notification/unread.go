package notification

import "context"

// UnreadDelta is the count change carried by every live notification event.
const UnreadDelta = 1

type unreadCounter interface {
	UnreadCount(ctx context.Context, userID int64) (int64, error)
}

// Aggregator derives unread counts from the store on every call.
type Aggregator struct {
	store unreadCounter
}

func NewAggregator(store unreadCounter) *Aggregator {
	return &Aggregator{store: store}
}

func (a *Aggregator) Count(ctx context.Context, userID int64) (int64, error) {
	return a.store.UnreadCount(ctx, userID)
}

// ReadState builds the state pushed after a mark operation.
func (a *Aggregator) ReadState(ctx context.Context, userID int64, ids []int64, all bool) (ReadState, error) {
	n, err := a.Count(ctx, userID)
	if err != nil {
		return ReadState{}, err
	}
	st := ReadState{All: all, UnreadCount: n}
	if !all {
		st.IDs = ids
	}
	return st, nil
}
