package directory

import (
	"context"
	"fmt"
	"slices"
)

// Target describes who a notification is for. Exactly one of Group or UserIDs is set.
type Target struct {
	Group   GroupTag `json:"group,omitempty"`
	UserIDs []int64  `json:"user_ids,omitempty"`
}

func GroupTarget(tag GroupTag) Target { return Target{Group: tag} }

func UsersTarget(ids ...int64) Target { return Target{UserIDs: ids} }

func (t Target) String() string {
	if t.Group != "" {
		return "group:" + string(t.Group)
	}
	return fmt.Sprintf("users:%v", t.UserIDs)
}

// Resolver expands a Target into concrete user ids. Membership is read at call time and
// never cached, so the result is a snapshot of the directory at send time.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns sorted, de-duplicated user ids.
func (r *Resolver) Resolve(ctx context.Context, t Target) ([]int64, error) {
	hasGroup := t.Group != ""
	hasIDs := t.UserIDs != nil

	switch {
	case hasGroup && hasIDs:
		return nil, fmt.Errorf("%w: group and user_ids are mutually exclusive", ErrInvalidTarget)
	case hasGroup:
		return r.resolveGroup(ctx, t.Group)
	case hasIDs:
		return r.resolveIDs(ctx, t.UserIDs)
	default:
		return nil, fmt.Errorf("%w: group or user_ids is required", ErrInvalidTarget)
	}
}

func (r *Resolver) resolveGroup(ctx context.Context, tag GroupTag) ([]int64, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, tag)
	}
	ids, err := r.dir.MembersOf(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("resolve group %s: %w", tag, err)
	}
	return normalize(ids), nil
}

func (r *Resolver) resolveIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: user_ids is empty", ErrInvalidTarget)
	}
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("%w: user id %d", ErrInvalidTarget, id)
		}
	}

	want := normalize(ids)
	known, err := r.dir.Known(ctx, want)
	if err != nil {
		return nil, fmt.Errorf("resolve user ids: %w", err)
	}
	known = normalize(known)

	if len(known) != len(want) {
		for _, id := range want {
			if _, found := slices.BinarySearch(known, id); !found {
				return nil, fmt.Errorf("%w: unknown user id %d", ErrInvalidTarget, id)
			}
		}
	}
	return want, nil
}

func normalize(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
