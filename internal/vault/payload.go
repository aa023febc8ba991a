package vault

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrMalformedPayload = errors.New("malformed vault payload")
)

// Payload is the plaintext sealed inside a vault file.
type Payload struct {
	Records    []Record   `json:"records"`
	Categories []Category `json:"categories"`
}

// NewPayload returns an empty record set with the default categories.
func NewPayload() *Payload {
	return &Payload{Records: []Record{}, Categories: DefaultCategories()}
}

// DecodePayload parses decrypted vault contents and repairs dangling references.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode payload"), ErrMalformedPayload)
	}
	p.normalize()
	return &p, nil
}

// Encode serializes p. The caller owns the returned buffer and should wipe it.
func (p *Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	return data, nil
}

// Clone returns a deep copy so mutations can be staged before a save.
func (p *Payload) Clone() *Payload {
	c := &Payload{
		Records:    make([]Record, len(p.Records)),
		Categories: make([]Category, len(p.Categories)),
	}
	copy(c.Records, p.Records)
	copy(c.Categories, p.Categories)
	return c
}

func (p *Payload) normalize() {
	if p.Records == nil {
		p.Records = []Record{}
	}
	if p.categoryIndex(UncategorizedID) < 0 {
		p.Categories = append([]Category{uncategorized()}, p.Categories...)
	}
	for i := range p.Records {
		r := &p.Records[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if p.categoryIndex(r.CategoryID) < 0 {
			r.CategoryID = UncategorizedID
		}
	}
}

func (p *Payload) recordIndex(id string) int {
	for i := range p.Records {
		if p.Records[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Payload) categoryIndex(id string) int {
	for i := range p.Categories {
		if p.Categories[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Payload) nameTaken(name, exceptID string) bool {
	for _, c := range p.Categories {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Record returns the record with the given id.
func (p *Payload) Record(id string) (Record, error) {
	i := p.recordIndex(id)
	if i < 0 {
		return Record{}, errors.Wrapf(ErrRecordNotFound, "%q", id)
	}
	return p.Records[i], nil
}

// ListRecords returns a copy of all records in storage order.
func (p *Payload) ListRecords() []Record {
	out := make([]Record, len(p.Records))
	copy(out, p.Records)
	return out
}

// AddRecord appends a new record built from in.
func (p *Payload) AddRecord(in RecordInput, now time.Time) (Record, error) {
	if in.CategoryID != "" && p.categoryIndex(in.CategoryID) < 0 {
		return Record{}, errors.Wrapf(ErrCategoryNotFound, "%q", in.CategoryID)
	}
	r, err := NewRecord(in, now)
	if err != nil {
		return Record{}, err
	}
	p.Records = append(p.Records, r)
	return r, nil
}

// EditRecord replaces the editable fields of an existing record.
func (p *Payload) EditRecord(id string, in RecordInput, now time.Time) (Record, error) {
	i := p.recordIndex(id)
	if i < 0 {
		return Record{}, errors.Wrapf(ErrRecordNotFound, "%q", id)
	}
	if in.CategoryID != "" && p.categoryIndex(in.CategoryID) < 0 {
		return Record{}, errors.Wrapf(ErrCategoryNotFound, "%q", in.CategoryID)
	}
	if err := p.Records[i].apply(in, now); err != nil {
		return Record{}, err
	}
	return p.Records[i], nil
}

// DeleteRecord removes a record.
func (p *Payload) DeleteRecord(id string) error {
	i := p.recordIndex(id)
	if i < 0 {
		return errors.Wrapf(ErrRecordNotFound, "%q", id)
	}
	p.Records = append(p.Records[:i], p.Records[i+1:]...)
	return nil
}

// MoveRecord reassigns a record to another category.
func (p *Payload) MoveRecord(id, categoryID string, now time.Time) (Record, error) {
	i := p.recordIndex(id)
	if i < 0 {
		return Record{}, errors.Wrapf(ErrRecordNotFound, "%q", id)
	}
	if p.categoryIndex(categoryID) < 0 {
		return Record{}, errors.Wrapf(ErrCategoryNotFound, "%q", categoryID)
	}
	p.Records[i].CategoryID = categoryID
	p.Records[i].Modified = now.UTC()
	return p.Records[i], nil
}

// CategoryByName looks a category up case-insensitively.
func (p *Payload) CategoryByName(name string) (Category, error) {
	name = strings.TrimSpace(name)
	for _, c := range p.Categories {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return Category{}, errors.Wrapf(ErrCategoryNotFound, "%q", name)
}

// ListCategories returns categories with Uncategorized first, then by name.
func (p *Payload) ListCategories() []Category {
	out := make([]Category, len(p.Categories))
	copy(out, p.Categories)
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].ID == UncategorizedID) != (out[j].ID == UncategorizedID) {
			return out[i].ID == UncategorizedID
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// AddCategory creates a category. Names are unique ignoring case.
func (p *Payload) AddCategory(in CategoryInput) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, errors.Wrap(ErrInvalidCategory, "name cannot be empty")
	}
	if p.nameTaken(name, "") {
		return Category{}, errors.Wrapf(ErrDuplicateCategory, "%q", name)
	}
	color := in.Color
	if color == "" {
		color = DefaultColor
	}
	if !ValidColor(color) {
		return Category{}, errors.Wrapf(ErrInvalidCategory, "invalid color %q", color)
	}
	icon := in.Icon
	if icon == "" {
		icon = DefaultIcon
	}
	c := Category{ID: uuid.NewString(), Name: name, Color: color, Icon: icon}
	p.Categories = append(p.Categories, c)
	return c, nil
}

// UpdateCategory changes the non-empty fields of in. Uncategorized may be recolored but not renamed.
func (p *Payload) UpdateCategory(id string, in CategoryInput) (Category, error) {
	i := p.categoryIndex(id)
	if i < 0 {
		return Category{}, errors.Wrapf(ErrCategoryNotFound, "%q", id)
	}
	c := p.Categories[i]
	if name := strings.TrimSpace(in.Name); name != "" && name != c.Name {
		if id == UncategorizedID {
			return Category{}, ErrFixedCategory
		}
		if p.nameTaken(name, id) {
			return Category{}, errors.Wrapf(ErrDuplicateCategory, "%q", name)
		}
		c.Name = name
	}
	if in.Color != "" {
		if !ValidColor(in.Color) {
			return Category{}, errors.Wrapf(ErrInvalidCategory, "invalid color %q", in.Color)
		}
		c.Color = in.Color
	}
	if in.Icon != "" {
		c.Icon = in.Icon
	}
	p.Categories[i] = c
	return c, nil
}

// DeleteCategory removes a category, moving its records to Uncategorized.
// It returns how many records were moved.
func (p *Payload) DeleteCategory(id string, now time.Time) (int, error) {
	if id == UncategorizedID {
		return 0, ErrFixedCategory
	}
	i := p.categoryIndex(id)
	if i < 0 {
		return 0, errors.Wrapf(ErrCategoryNotFound, "%q", id)
	}
	p.Categories = append(p.Categories[:i], p.Categories[i+1:]...)
	moved := 0
	for j := range p.Records {
		if p.Records[j].CategoryID == id {
			p.Records[j].CategoryID = UncategorizedID
			p.Records[j].Modified = now.UTC()
			moved++
		}
	}
	return moved, nil
}

// CountByCategory returns the number of records per category id, including empty ones.
func (p *Payload) CountByCategory() map[string]int {
	counts := make(map[string]int, len(p.Categories))
	for _, c := range p.Categories {
		counts[c.ID] = 0
	}
	for _, r := range p.Records {
		if _, ok := counts[r.CategoryID]; ok {
			counts[r.CategoryID]++
		} else {
			counts[UncategorizedID]++
		}
	}
	return counts
}
