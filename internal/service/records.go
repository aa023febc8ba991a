package service

import (
	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/vaultkeeper/internal/vault"
)

// read runs fn against the live record set and counts as activity.
func (s *Session) read(fn func(p *vault.Payload) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked {
		return ErrLocked
	}
	s.armLocked()
	return fn(s.data)
}

// mutate applies fn to a copy of the record set, saves it, and only then
// swaps it in. The activity deadline is reset before the save starts, so an
// expiry that fires mid-save waits for the save and then locks.
func (s *Session) mutate(fn func(p *vault.Payload) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked {
		return ErrLocked
	}
	s.armLocked()

	next := s.data.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.sealAndSaveLocked(s.key.Bytes(), next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// ListRecords returns a copy of every record.
func (s *Session) ListRecords() ([]vault.Record, error) {
	var out []vault.Record
	err := s.read(func(p *vault.Payload) error {
		out = p.ListRecords()
		return nil
	})
	return out, err
}

// GetRecord returns one record by id.
func (s *Session) GetRecord(id string) (vault.Record, error) {
	var out vault.Record
	err := s.read(func(p *vault.Payload) (err error) {
		out, err = p.Record(id)
		return err
	})
	return out, err
}

func (s *Session) ListCategories() ([]vault.Category, error) {
	var out []vault.Category
	err := s.read(func(p *vault.Payload) error {
		out = p.ListCategories()
		return nil
	})
	return out, err
}

// CategoryByName resolves a category name, ignoring case.
func (s *Session) CategoryByName(name string) (vault.Category, error) {
	var out vault.Category
	err := s.read(func(p *vault.Payload) (err error) {
		out, err = p.CategoryByName(name)
		return err
	})
	return out, err
}

// CountByCategory returns the record count per category id.
func (s *Session) CountByCategory() (map[string]int, error) {
	var out map[string]int
	err := s.read(func(p *vault.Payload) error {
		out = p.CountByCategory()
		return nil
	})
	return out, err
}

// AddRecord stores a new record and returns it with its generated id.
func (s *Session) AddRecord(in vault.RecordInput) (vault.Record, error) {
	var out vault.Record
	err := s.mutate(func(p *vault.Payload) (err error) {
		out, err = p.AddRecord(in, s.sched.Now())
		return err
	})
	if err == nil {
		s.log.Debug("record added", zap.String("id", out.ID))
	}
	return out, err
}

// EditRecord replaces the editable fields of a record.
func (s *Session) EditRecord(id string, in vault.RecordInput) (vault.Record, error) {
	var out vault.Record
	err := s.mutate(func(p *vault.Payload) (err error) {
		out, err = p.EditRecord(id, in, s.sched.Now())
		return err
	})
	return out, err
}

func (s *Session) DeleteRecord(id string) error {
	return s.mutate(func(p *vault.Payload) error {
		return p.DeleteRecord(id)
	})
}

// MoveRecord reassigns a record to another category.
func (s *Session) MoveRecord(id, categoryID string) (vault.Record, error) {
	var out vault.Record
	err := s.mutate(func(p *vault.Payload) (err error) {
		out, err = p.MoveRecord(id, categoryID, s.sched.Now())
		return err
	})
	return out, err
}

func (s *Session) AddCategory(in vault.CategoryInput) (vault.Category, error) {
	var out vault.Category
	err := s.mutate(func(p *vault.Payload) (err error) {
		out, err = p.AddCategory(in)
		return err
	})
	return out, err
}

func (s *Session) UpdateCategory(id string, in vault.CategoryInput) (vault.Category, error) {
	var out vault.Category
	err := s.mutate(func(p *vault.Payload) (err error) {
		out, err = p.UpdateCategory(id, in)
		return err
	})
	return out, err
}

// DeleteCategory removes a category; its records move to Uncategorized.
// It returns the number of records moved.
func (s *Session) DeleteCategory(id string) (int, error) {
	var moved int
	err := s.mutate(func(p *vault.Payload) (err error) {
		moved, err = p.DeleteCategory(id, s.sched.Now())
		return err
	})
	return moved, err
}

// CopySecretToClipboard places a record's secret on the clipboard through the
// configured guard, which clears it after its timeout.
func (s *Session) CopySecretToClipboard(id string) error {
	if s.clip == nil {
		return ErrNoClipboard
	}
	rec, err := s.GetRecord(id)
	if err != nil {
		return err
	}
	if err := s.clip.Copy(rec.Secret); err != nil {
		return err
	}
	s.log.Info("secret copied to clipboard", zap.String("id", id), zap.Duration("clears_in", s.clip.Timeout()))
	return nil
}
