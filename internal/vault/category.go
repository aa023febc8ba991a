package vault

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	// UncategorizedID names the category that always exists.
	UncategorizedID = "uncategorized"
	// DefaultColor is used when a category is created without one.
	DefaultColor = "#6c757d"
	DefaultIcon  = "📁"
)

var (
	ErrInvalidCategory   = errors.New("invalid category")
	ErrDuplicateCategory = errors.New("category already exists")
	ErrFixedCategory     = errors.New("the uncategorized category cannot be renamed or deleted")
)

// Category groups records for display.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// CategoryInput carries the editable fields of a category. Empty fields are left unchanged on update.
type CategoryInput struct {
	Name  string
	Color string
	Icon  string
}

func uncategorized() Category {
	return Category{ID: UncategorizedID, Name: "Uncategorized", Color: DefaultColor, Icon: "📂"}
}

// DefaultCategories returns the set a new vault starts with.
func DefaultCategories() []Category {
	cats := []Category{uncategorized()}
	for _, d := range []struct{ name, color, icon string }{
		{"Social Media", "#e91e63", "📱"},
		{"Banking", "#4caf50", "🏦"},
		{"Work", "#2196f3", "💼"},
		{"Entertainment", "#ff9800", "🎬"},
		{"Shopping", "#9c27b0", "🛒"},
		{"Email", "#f44336", "📧"},
	} {
		cats = append(cats, Category{ID: uuid.NewString(), Name: d.name, Color: d.color, Icon: d.icon})
	}
	return cats
}

// ValidColor reports whether c is a #RGB or #RRGGBB hex color.
func ValidColor(c string) bool {
	if !strings.HasPrefix(c, "#") {
		return false
	}
	hex := c[1:]
	if len(hex) != 3 && len(hex) != 6 {
		return false
	}
	for _, ch := range hex {
		switch {
		case ch >= '0' && ch <= '9', ch >= 'a' && ch <= 'f', ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}
