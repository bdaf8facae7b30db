package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) MembersOf(ctx context.Context, tag GroupTag) ([]int64, error) {
	args := m.Called(ctx, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockDirectory) Known(ctx context.Context, ids []int64) ([]int64, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func TestResolveGroupSortsAndDedupes(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("MembersOf", mock.Anything, GroupAllStaff).Return([]int64{5, 2, 5, 9}, nil)

	ids, err := NewResolver(dir).Resolve(context.Background(), GroupTarget(GroupAllStaff))
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 9}, ids)
	dir.AssertExpectations(t)
}

func TestResolveUnknownGroup(t *testing.T) {
	dir := new(MockDirectory)
	_, err := NewResolver(dir).Resolve(context.Background(), GroupTarget("everyone_everywhere"))
	assert.ErrorIs(t, err, ErrUnknownGroup)
	dir.AssertNotCalled(t, "MembersOf", mock.Anything, mock.Anything)
}

func TestResolveExplicitIDs(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("Known", mock.Anything, []int64{3, 4}).Return([]int64{3, 4}, nil)

	ids, err := NewResolver(dir).Resolve(context.Background(), UsersTarget(4, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids)
}

func TestResolveInvalidTargets(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("Known", mock.Anything, []int64{3, 77}).Return([]int64{3}, nil)
	r := NewResolver(dir)

	cases := map[string]Target{
		"empty descriptor": {},
		"empty ids":        {UserIDs: []int64{}},
		"non-positive id":  UsersTarget(0),
		"both forms":       {Group: GroupAllAdmins, UserIDs: []int64{1}},
		"unknown id":       UsersTarget(3, 77),
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), target)
			assert.ErrorIs(t, err, ErrInvalidTarget)
		})
	}
}

func TestResolvePropagatesDirectoryFailure(t *testing.T) {
	boom := errors.New("directory down")
	dir := new(MockDirectory)
	dir.On("MembersOf", mock.Anything, GroupAllReporters).Return(nil, boom)

	_, err := NewResolver(dir).Resolve(context.Background(), GroupTarget(GroupAllReporters))
	assert.ErrorIs(t, err, boom)
}

func TestResolveIsPointInTime(t *testing.T) {
	db := setupTestDB(t)
	fo := seedUser(t, db, "fo", RoleFieldOfficer, true)
	r := NewResolver(NewUserRepository(db))
	ctx := context.Background()

	first, err := r.Resolve(ctx, GroupTarget(GroupAllFieldOfficers))
	require.NoError(t, err)
	assert.Equal(t, []int64{fo.ID}, first)

	late := seedUser(t, db, "late", RoleFieldOfficer, true)

	second, err := r.Resolve(ctx, GroupTarget(GroupAllFieldOfficers))
	require.NoError(t, err)
	assert.Equal(t, []int64{fo.ID, late.ID}, second)
	assert.Equal(t, []int64{fo.ID}, first)
}
