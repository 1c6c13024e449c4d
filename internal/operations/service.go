// Package operations implements code allocation, shipment approval, the
// cycle state machine and pickup batching on top of the store.
//
// Operations return *Error values and never log; callers decide how to
// surface them.
package operations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/config"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/locks"
)

type Policy struct {
	AllocationRetries int
	TestExtension     time.Duration
	LongTestWarnDays  int
	LongTestAlertDays int
}

func DefaultPolicy() Policy {
	return Policy{
		AllocationRetries: 3,
		TestExtension:     7 * 24 * time.Hour,
		LongTestWarnDays:  20,
		LongTestAlertDays: 25,
	}
}

func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		AllocationRetries: cfg.AllocationRetries,
		TestExtension:     cfg.TestExtension,
		LongTestWarnDays:  cfg.LongTestWarnDays,
		LongTestAlertDays: cfg.LongTestAlertDays,
	}
}

// MatTypes restricts the mat type codes accepted in requests and scans.
type MatTypes interface {
	Has(code string) bool
}

type Service struct {
	store    *db.Store
	locker   locks.Locker
	matTypes MatTypes
	policy   Policy
	now      func() time.Time
}

type Option func(*Service)

func WithLocker(locker locks.Locker) Option {
	return func(s *Service) { s.locker = locker }
}

func WithMatTypes(matTypes MatTypes) Option {
	return func(s *Service) { s.matTypes = matTypes }
}

func WithPolicy(policy Policy) Option {
	return func(s *Service) { s.policy = policy }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store *db.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: locks.NewKeyedMutex(),
		policy: DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.AllocationRetries < 1 {
		s.policy.AllocationRetries = 1
	}
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) knownMatType(code string) bool {
	if s.matTypes == nil {
		return true
	}
	return s.matTypes.Has(code)
}

// lockSeller enters the single-writer section for allocations of a seller.
func (s *Service) lockSeller(ctx context.Context, sellerID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "alloc:"+sellerID)
	if err != nil {
		return nil, serverError(err)
	}
	return unlock, nil
}

// retryAllocation reruns fn while it reports an allocation conflict, up to
// the policy's attempt budget.
func (s *Service) retryAllocation(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.policy.AllocationRetries; attempt++ {
		err = fn()
		if !IsKind(err, KindAllocationConflict) {
			return err
		}
		allocationConflicts.Inc()
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func parseID(id, code string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", validation(code)
	}
	return parsed.String(), nil
}
