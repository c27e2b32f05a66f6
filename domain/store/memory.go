// Package store provides an in-memory domain.Store.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/enrollment-engine/domain"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	memoryState
}

type memoryState struct {
	persons     map[string]domain.Person
	profiles    map[string]domain.ProgramProfile
	batches     map[string]domain.Batch
	enrollments map[string]domain.Enrollment
	teachers    map[string]domain.Teacher
	assignments map[string]domain.TeacherAssignment
	guardians   map[string]domain.GuardianRelationship
	siblings    map[siblingKey]domain.SiblingRelationship
	subs        map[string]domain.Subscription
	billing     map[string]domain.BillingAssignment
	students    map[string]domain.Student
}

type siblingKey struct{ a, b string }

var _ domain.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{memoryState: memoryState{
		persons:     make(map[string]domain.Person),
		profiles:    make(map[string]domain.ProgramProfile),
		batches:     make(map[string]domain.Batch),
		enrollments: make(map[string]domain.Enrollment),
		teachers:    make(map[string]domain.Teacher),
		assignments: make(map[string]domain.TeacherAssignment),
		guardians:   make(map[string]domain.GuardianRelationship),
		siblings:    make(map[siblingKey]domain.SiblingRelationship),
		subs:        make(map[string]domain.Subscription),
		billing:     make(map[string]domain.BillingAssignment),
		students:    make(map[string]domain.Student),
	}}
}

// =============================================================================
// READERS
// =============================================================================

func (m *Memory) GetPerson(_ context.Context, id string) (*domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.persons, id), nil
}

func (m *Memory) FindPersonByEmail(_ context.Context, email string) (*domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range sortedKeys(m.persons) {
		p := m.persons[id]
		for _, cp := range p.ContactPoints {
			if cp.Type == domain.ContactEmail && strings.EqualFold(cp.Value, email) {
				return &p, nil
			}
		}
	}
	return nil, nil
}

func (m *Memory) GetProgramProfile(_ context.Context, id string) (*domain.ProgramProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.profiles, id), nil
}

func (m *Memory) GetBatch(_ context.Context, id string) (*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.batches, id), nil
}

func (m *Memory) GetTeacher(_ context.Context, id string) (*domain.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.teachers, id), nil
}

func (m *Memory) GetTeacherByPerson(_ context.Context, personID string) (*domain.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range sortedKeys(m.teachers) {
		if t := m.teachers[id]; t.PersonID == personID {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindActiveTeacherAssignment(_ context.Context, profileID string, shift domain.Shift) (*domain.TeacherAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range sortedKeys(m.assignments) {
		a := m.assignments[id]
		if a.IsActive && a.ProgramProfileID == profileID && a.Shift == shift {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindActiveGuardianRelationship(_ context.Context, guardianID, dependentID string, role domain.GuardianRole) (*domain.GuardianRelationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range sortedKeys(m.guardians) {
		r := m.guardians[id]
		if r.IsActive && r.GuardianID == guardianID && r.DependentID == dependentID && r.Role == role {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindSiblingRelationship(_ context.Context, person1ID, person2ID string) (*domain.SiblingRelationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.siblings[siblingKey{person1ID, person2ID}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.subs, id), nil
}

func (m *Memory) ListBillingAssignments(_ context.Context, subscriptionID string) ([]domain.BillingAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.BillingAssignment
	for _, id := range sortedKeys(m.billing) {
		if a := m.billing[id]; a.SubscriptionID == subscriptionID {
			result = append(result, a)
		}
	}
	return result, nil
}

// =============================================================================
// WRITER
// =============================================================================

func (m *Memory) SavePerson(_ context.Context, p domain.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ContactPoints = append([]domain.ContactPoint(nil), p.ContactPoints...)
	m.persons[p.ID] = p
	return nil
}

func (m *Memory) SaveProgramProfile(_ context.Context, p domain.ProgramProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

func (m *Memory) SaveBatch(_ context.Context, b domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = b
	return nil
}

func (m *Memory) SaveEnrollment(_ context.Context, e domain.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.ID] = e
	return nil
}

func (m *Memory) SaveTeacher(_ context.Context, t domain.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teachers[t.ID] = t
	return nil
}

func (m *Memory) SaveTeacherAssignment(_ context.Context, a domain.TeacherAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) SaveGuardianRelationship(_ context.Context, r domain.GuardianRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guardians[r.ID] = r
	return nil
}

func (m *Memory) SaveSiblingRelationship(_ context.Context, r domain.SiblingRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.Person1ID, r.Person2ID = domain.NormalizePair(r.Person1ID, r.Person2ID)
	k := siblingKey{r.Person1ID, r.Person2ID}
	if existing, ok := m.siblings[k]; ok {
		r.ID = existing.ID
	}
	m.siblings[k] = r
	return nil
}

func (m *Memory) SaveSubscription(_ context.Context, s domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.ID] = s
	return nil
}

func (m *Memory) SaveBillingAssignment(_ context.Context, a domain.BillingAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.billing {
		if existing.SubscriptionID == a.SubscriptionID && existing.ProgramProfileID == a.ProgramProfileID {
			delete(m.billing, id)
			a.ID = existing.ID
		}
	}
	m.billing[a.ID] = a
	return nil
}

// =============================================================================
// STUDENT STORE
// =============================================================================

func (m *Memory) ListStudents(_ context.Context) ([]domain.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listStudents(func(domain.Student) bool { return true }), nil
}

func (m *Memory) ListStudentsByBatch(_ context.Context, batchID string) ([]domain.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listStudents(func(s domain.Student) bool {
		return s.BatchID != nil && *s.BatchID == batchID
	}), nil
}

func (m *Memory) GetStudent(_ context.Context, id string) (*domain.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.students, id), nil
}

func (m *Memory) SaveStudent(_ context.Context, s domain.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return nil
}

func (m *Memory) UpdateStudent(_ context.Context, s domain.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStudentLocked(s)
}

func (m *Memory) DeleteStudents(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteStudentsLocked(ids)
	return nil
}

func (m *Memory) updateStudentLocked(s domain.Student) error {
	if _, ok := m.students[s.ID]; !ok {
		return domain.NotFound(domain.EntityStudent, "student not found", s.ID)
	}
	m.students[s.ID] = s
	return nil
}

func (m *Memory) deleteStudentsLocked(ids []string) {
	for _, id := range ids {
		delete(m.students, id)
	}
}

// listStudents returns matching students ordered by CreatedAt, then ID.
func (m *Memory) listStudents(match func(domain.Student) bool) []domain.Student {
	var result []domain.Student
	for _, s := range m.students {
		if match(s) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// =============================================================================
// TRANSACTIONAL STUDENT STORE
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(domain.StudentStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := cloneMap(m.students)

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.students = snapshot
		return err
	}
	return nil
}

// txMemoryView runs with the parent's write lock already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) ListStudents(_ context.Context) ([]domain.Student, error) {
	return tv.parent.listStudents(func(domain.Student) bool { return true }), nil
}

func (tv *txMemoryView) ListStudentsByBatch(_ context.Context, batchID string) ([]domain.Student, error) {
	return tv.parent.listStudents(func(s domain.Student) bool {
		return s.BatchID != nil && *s.BatchID == batchID
	}), nil
}

func (tv *txMemoryView) GetStudent(_ context.Context, id string) (*domain.Student, error) {
	return lookup(tv.parent.students, id), nil
}

func (tv *txMemoryView) SaveStudent(_ context.Context, s domain.Student) error {
	tv.parent.students[s.ID] = s
	return nil
}

func (tv *txMemoryView) UpdateStudent(_ context.Context, s domain.Student) error {
	return tv.parent.updateStudentLocked(s)
}

func (tv *txMemoryView) DeleteStudents(_ context.Context, ids []string) error {
	tv.parent.deleteStudentsLocked(ids)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func lookup[T any](m map[string]T, id string) *T {
	v, ok := m[id]
	if !ok {
		return nil
	}
	return &v
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneMap[T any](m map[string]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
