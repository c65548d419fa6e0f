package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
)

type mockTxManager struct {
	mock.Mock
}

func (m *mockTxManager) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	args := m.Called(ctx, f)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return f(ctx)
}

type mockSlotRepository struct {
	mock.Mock
}

func (m *mockSlotRepository) LockForUpdate(ctx context.Context, roomID int64, date string, startTimes []string) ([]*dom.Slot, error) {
	args := m.Called(ctx, roomID, date, startTimes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dom.Slot), args.Error(1)
}

func (m *mockSlotRepository) LockByReservation(ctx context.Context, reservationID string, statuses []dom.Status) ([]*dom.Slot, error) {
	args := m.Called(ctx, reservationID, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dom.Slot), args.Error(1)
}

func (m *mockSlotRepository) LockExpiredPending(ctx context.Context, cutoff time.Time) ([]*dom.Slot, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dom.Slot), args.Error(1)
}

func (m *mockSlotRepository) UpdateStatusBatch(ctx context.Context, ids []int64, status dom.Status, reservationID *string) error {
	args := m.Called(ctx, ids, status, reservationID)
	return args.Error(0)
}

func (m *mockSlotRepository) CreateBatch(ctx context.Context, slots []*dom.Slot) error {
	args := m.Called(ctx, slots)
	return args.Error(0)
}

func (m *mockSlotRepository) LockByRoomDate(ctx context.Context, roomID int64, date string) ([]*dom.Slot, error) {
	args := m.Called(ctx, roomID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dom.Slot), args.Error(1)
}

func (m *mockSlotRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *mockSlotRepository) ListDatesBefore(ctx context.Context, roomID int64, cutoff string) ([]string, error) {
	args := m.Called(ctx, roomID, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockSlotRepository) CountActiveForDate(ctx context.Context, roomID int64, date string) (int64, error) {
	args := m.Called(ctx, roomID, date)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSlotRepository) DeleteForDate(ctx context.Context, roomID int64, date string) (int64, error) {
	args := m.Called(ctx, roomID, date)
	return args.Get(0).(int64), args.Error(1)
}

type mockPolicyRepository struct {
	mock.Mock
}

func (m *mockPolicyRepository) GetPolicy(ctx context.Context, roomID int64) (*dom.OperatingPolicy, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dom.OperatingPolicy), args.Error(1)
}

func (m *mockPolicyRepository) ListRoomIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockPolicyRepository) ListClosedDateRules(ctx context.Context, roomID int64) ([]dom.ClosedDateRule, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dom.ClosedDateRule), args.Error(1)
}

func (m *mockPolicyRepository) ReplaceClosedDateRules(ctx context.Context, roomID int64, rules []dom.ClosedDateRule) error {
	args := m.Called(ctx, roomID, rules)
	return args.Error(0)
}

type mockUnitResolver struct {
	mock.Mock
}

func (m *mockUnitResolver) Resolve(ctx context.Context, roomID int64) dom.SlotUnit {
	args := m.Called(ctx, roomID)
	return args.Get(0).(dom.SlotUnit)
}

func newTestService(horizonDays, retentionDays int) (*Service, *mockTxManager, *mockSlotRepository, *mockPolicyRepository, *mockUnitResolver) {
	tx := new(mockTxManager)
	slots := new(mockSlotRepository)
	policies := new(mockPolicyRepository)
	units := new(mockUnitResolver)
	return NewService(tx, slots, policies, units, horizonDays, retentionDays), tx, slots, policies, units
}

func startTimesOf(slots []*dom.Slot) []string {
	times := make([]string, len(slots))
	for i, sl := range slots {
		times[i] = sl.StartTime
	}
	return times
}

// 2024-06-03 is a Monday in ISO week 23 (odd).
const oddMonday = "2024-06-03"

// 2024-06-10 is a Monday in ISO week 24 (even).
const evenMonday = "2024-06-10"

func TestService_GenerateForDate_CreatesFromPolicy(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, policies, _ := newTestService(60, 1)

	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{
		RoomID:   7,
		SlotUnit: dom.UnitHour,
		Entries: []dom.PolicyEntry{
			{Weekday: time.Monday, Recurrence: dom.EveryWeek, StartTimes: []string{"10:00", "11:00"}},
			{Weekday: time.Tuesday, Recurrence: dom.EveryWeek, StartTimes: []string{"14:00"}},
		},
	}, nil)
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return([]dom.ClosedDateRule{}, nil)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("LockByRoomDate", mock.Anything, int64(7), oddMonday).Return([]*dom.Slot{}, nil)

	slots.
		On("CreateBatch", mock.Anything, mock.MatchedBy(func(created []*dom.Slot) bool {
			return len(created) == 2
		})).
		Return(nil).
		Run(func(args mock.Arguments) {
			created := args.Get(1).([]*dom.Slot)
			assert.ElementsMatch(t, []string{"10:00", "11:00"}, startTimesOf(created))
			for _, sl := range created {
				assert.Equal(t, dom.StatusAvailable, sl.Status)
				assert.Equal(t, oddMonday, sl.Date)
			}
		})
	slots.On("DeleteByIDs", mock.Anything, []int64(nil)).Return(nil)

	err := svc.GenerateForDate(ctx, 7, oddMonday)

	require.NoError(t, err)
	slots.AssertExpectations(t)
}

func TestService_GenerateForDate_RecurrenceSkipsOffWeek(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, policies, _ := newTestService(60, 1)

	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{
		RoomID:   7,
		SlotUnit: dom.UnitHour,
		Entries: []dom.PolicyEntry{
			{Weekday: time.Monday, Recurrence: dom.OddWeek, StartTimes: []string{"10:00"}},
		},
	}, nil)
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return([]dom.ClosedDateRule{}, nil)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("LockByRoomDate", mock.Anything, int64(7), evenMonday).Return([]*dom.Slot{}, nil)
	slots.On("CreateBatch", mock.Anything, []*dom.Slot(nil)).Return(nil)
	slots.On("DeleteByIDs", mock.Anything, []int64(nil)).Return(nil)

	err := svc.GenerateForDate(ctx, 7, evenMonday)

	require.NoError(t, err)
	slots.AssertExpectations(t)
}

func TestService_GenerateForDate_ClosedRuleWins(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, policies, _ := newTestService(60, 1)

	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{
		RoomID:   7,
		SlotUnit: dom.UnitHour,
		Entries: []dom.PolicyEntry{
			{Weekday: time.Monday, Recurrence: dom.EveryWeek, StartTimes: []string{"10:00", "11:00"}},
		},
	}, nil)
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return([]dom.ClosedDateRule{
		{RoomID: 7, DateFrom: oddMonday, DateTo: oddMonday, TimeFrom: "10:00", TimeUntil: "11:00"},
	}, nil)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("LockByRoomDate", mock.Anything, int64(7), oddMonday).Return([]*dom.Slot{}, nil)

	slots.
		On("CreateBatch", mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			byTime := make(map[string]dom.Status)
			for _, sl := range args.Get(1).([]*dom.Slot) {
				byTime[sl.StartTime] = sl.Status
			}
			// 10:00 falls inside the closed window, 11:00 is past its
			// exclusive end.
			assert.Equal(t, dom.StatusClosed, byTime["10:00"])
			assert.Equal(t, dom.StatusAvailable, byTime["11:00"])
		})
	slots.On("DeleteByIDs", mock.Anything, []int64(nil)).Return(nil)

	err := svc.GenerateForDate(ctx, 7, oddMonday)

	require.NoError(t, err)
	slots.AssertExpectations(t)
}

func TestService_GenerateForDate_IdempotentRegeneration(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, policies, _ := newTestService(60, 1)

	reservationID := "42"
	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{
		RoomID:   7,
		SlotUnit: dom.UnitHour,
		Entries: []dom.PolicyEntry{
			{Weekday: time.Monday, Recurrence: dom.EveryWeek, StartTimes: []string{"10:00", "11:00"}},
		},
	}, nil)
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return([]dom.ClosedDateRule{}, nil)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("LockByRoomDate", mock.Anything, int64(7), oddMonday).Return([]*dom.Slot{
		// Booked row for a time the policy no longer offers. Must survive.
		{ID: 1, StartTime: "09:00", Status: dom.StatusPending, ReservationID: &reservationID},
		// Stale CLOSED row the policy now opens up.
		{ID: 2, StartTime: "10:00", Status: dom.StatusClosed},
		// Already in the right shape.
		{ID: 3, StartTime: "11:00", Status: dom.StatusAvailable},
		// Orphaned row for a dropped time.
		{ID: 4, StartTime: "12:00", Status: dom.StatusAvailable},
	}, nil)

	slots.On("CreateBatch", mock.Anything, []*dom.Slot(nil)).Return(nil)
	slots.On("UpdateStatusBatch", mock.Anything, []int64{2}, dom.StatusAvailable, (*string)(nil)).Return(nil)
	slots.On("DeleteByIDs", mock.Anything, []int64{4}).Return(nil)

	err := svc.GenerateForDate(ctx, 7, oddMonday)

	require.NoError(t, err)
	slots.AssertExpectations(t)
}

func TestService_GenerateForDate_BookedRowsSurviveClosedRule(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, policies, _ := newTestService(60, 1)

	reservationID := "42"
	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{
		RoomID:   7,
		SlotUnit: dom.UnitHour,
		Entries: []dom.PolicyEntry{
			{Weekday: time.Monday, Recurrence: dom.EveryWeek, StartTimes: []string{"10:00", "11:00"}},
		},
	}, nil)
	// The whole day is closed by a new rule, so desired state says
	// CLOSED for both times.
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return([]dom.ClosedDateRule{
		{RoomID: 7, DateFrom: oddMonday, DateTo: oddMonday},
	}, nil)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	// The locked read reports 10:00 as freshly reserved, the race the
	// row locks exist to expose. Only the free 11:00 row may move.
	slots.On("LockByRoomDate", mock.Anything, int64(7), oddMonday).Return([]*dom.Slot{
		{ID: 1, StartTime: "10:00", Status: dom.StatusPending, ReservationID: &reservationID},
		{ID: 2, StartTime: "11:00", Status: dom.StatusAvailable},
	}, nil)

	slots.On("CreateBatch", mock.Anything, []*dom.Slot(nil)).Return(nil)
	slots.On("UpdateStatusBatch", mock.Anything, []int64{2}, dom.StatusClosed, (*string)(nil)).Return(nil)
	slots.On("DeleteByIDs", mock.Anything, []int64(nil)).Return(nil)

	err := svc.GenerateForDate(ctx, 7, oddMonday)

	require.NoError(t, err)
	slots.AssertExpectations(t)
	slots.AssertNotCalled(t, "UpdateStatusBatch", mock.Anything, []int64{1}, mock.Anything, mock.Anything)
	slots.AssertNotCalled(t, "DeleteByIDs", mock.Anything, []int64{1})
}

func TestService_GenerateForDate_RangeExpansionUsesResolvedUnit(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, policies, units := newTestService(60, 1)

	// No unit on the policy, so the resolver answers for the room.
	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{
		RoomID: 7,
		Entries: []dom.PolicyEntry{
			{Weekday: time.Monday, Recurrence: dom.EveryWeek, OpenFrom: "10:00", OpenUntil: "12:00"},
		},
	}, nil)
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return([]dom.ClosedDateRule{}, nil)
	units.On("Resolve", mock.Anything, int64(7)).Return(dom.UnitHalfHour)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("LockByRoomDate", mock.Anything, int64(7), oddMonday).Return([]*dom.Slot{}, nil)

	slots.
		On("CreateBatch", mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			created := args.Get(1).([]*dom.Slot)
			assert.ElementsMatch(t,
				[]string{"10:00", "10:30", "11:00", "11:30"},
				startTimesOf(created))
		})
	slots.On("DeleteByIDs", mock.Anything, []int64(nil)).Return(nil)

	err := svc.GenerateForDate(ctx, 7, oddMonday)

	require.NoError(t, err)
	units.AssertExpectations(t)
	slots.AssertExpectations(t)
}

func TestService_GenerateForDate_BadDate(t *testing.T) {
	svc, _, _, policies, _ := newTestService(60, 1)

	err := svc.GenerateForDate(context.Background(), 7, "03-06-2024")

	require.Error(t, err)
	policies.AssertNotCalled(t, "GetPolicy", mock.Anything, mock.Anything)
}

func TestService_GenerateRange_WalksEveryDate(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, policies, _ := newTestService(60, 1)

	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{RoomID: 7, SlotUnit: dom.UnitHour}, nil)
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return([]dom.ClosedDateRule{}, nil)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("CreateBatch", mock.Anything, []*dom.Slot(nil)).Return(nil)
	slots.On("DeleteByIDs", mock.Anything, []int64(nil)).Return(nil)

	var visited []string
	slots.
		On("LockByRoomDate", mock.Anything, int64(7), mock.AnythingOfType("string")).
		Return([]*dom.Slot{}, nil).
		Run(func(args mock.Arguments) {
			visited = append(visited, args.Get(2).(string))
		})

	err := svc.GenerateRange(ctx, 7, "2024-06-01", "2024-06-03")

	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-01", "2024-06-02", "2024-06-03"}, visited)
}

func TestService_DeleteSlotsForDate_RetentionViolation(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, _, _ := newTestService(60, 1)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("DeleteForDate", mock.Anything, int64(7), "2024-01-01").Return(int64(5), nil)
	slots.On("CountActiveForDate", mock.Anything, int64(7), "2024-01-01").Return(int64(2), nil)

	// Active rows surviving the guarded delete abort the transaction,
	// rolling the partial delete back.
	err := svc.DeleteSlotsForDate(ctx, 7, "2024-01-01")

	require.Error(t, err)
	assert.ErrorIs(t, err, dom.ErrRetentionViolation)
}

func TestService_DeleteSlotsForDate_Success(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, _, _ := newTestService(60, 1)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("DeleteForDate", mock.Anything, int64(7), "2024-01-01").Return(int64(12), nil)
	slots.On("CountActiveForDate", mock.Anything, int64(7), "2024-01-01").Return(int64(0), nil)

	err := svc.DeleteSlotsForDate(ctx, 7, "2024-01-01")

	require.NoError(t, err)
	slots.AssertExpectations(t)
}

func TestService_MaintainWindow(t *testing.T) {
	ctx := context.Background()
	// Horizon of zero keeps the generated range at just today.
	svc, tx, slots, policies, _ := newTestService(0, 1)

	today := time.Now().Format(dom.DateLayout)
	cutoff := time.Now().AddDate(0, 0, -1).Format(dom.DateLayout)
	oldDate := time.Now().AddDate(0, 0, -3).Format(dom.DateLayout)

	policies.On("ListRoomIDs", mock.Anything).Return([]int64{7}, nil)
	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{RoomID: 7, SlotUnit: dom.UnitHour}, nil)
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return([]dom.ClosedDateRule{}, nil)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("LockByRoomDate", mock.Anything, int64(7), today).Return([]*dom.Slot{}, nil)
	slots.On("CreateBatch", mock.Anything, []*dom.Slot(nil)).Return(nil)
	slots.On("DeleteByIDs", mock.Anything, []int64(nil)).Return(nil)

	slots.On("ListDatesBefore", mock.Anything, int64(7), cutoff).Return([]string{oldDate}, nil)
	slots.On("CountActiveForDate", mock.Anything, int64(7), oldDate).Return(int64(0), nil)
	slots.On("DeleteForDate", mock.Anything, int64(7), oldDate).Return(int64(8), nil)

	err := svc.MaintainWindow(ctx)

	require.NoError(t, err)
	slots.AssertExpectations(t)
	policies.AssertExpectations(t)
}

func TestService_ReplaceClosedDates(t *testing.T) {
	ctx := context.Background()
	svc, tx, slots, policies, _ := newTestService(0, 1)

	rules := []dom.ClosedDateRule{{RoomID: 7, DateFrom: "2024-07-01", DateTo: "2024-07-01"}}
	today := time.Now().Format(dom.DateLayout)

	policies.On("ReplaceClosedDateRules", mock.Anything, int64(7), rules).Return(nil)
	policies.On("GetPolicy", mock.Anything, int64(7)).Return(&dom.OperatingPolicy{RoomID: 7, SlotUnit: dom.UnitHour}, nil)
	policies.On("ListClosedDateRules", mock.Anything, int64(7)).Return(rules, nil)

	tx.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	slots.On("LockByRoomDate", mock.Anything, int64(7), today).Return([]*dom.Slot{}, nil)
	slots.On("CreateBatch", mock.Anything, []*dom.Slot(nil)).Return(nil)
	slots.On("DeleteByIDs", mock.Anything, []int64(nil)).Return(nil)

	err := svc.ReplaceClosedDates(ctx, 7, rules)

	require.NoError(t, err)
	policies.AssertExpectations(t)
}
