package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/cloudwego/eino/schema"
)

// HistoryType tells whether a conversation started from text or a photo.
type HistoryType string

const (
	HistoryText  HistoryType = "text"
	HistoryImage HistoryType = "image"
)

// ExtraChartCode is the schema.Message Extra key holding chart code on
// assistant turns.
const ExtraChartCode = "chart_code"

// HistoryItem is one saved conversation.
type HistoryItem struct {
	ID           string            `json:"id"`
	Type         HistoryType       `json:"type"`
	Question     string            `json:"question"`
	Answer       string            `json:"answer"`
	ChartCode    string            `json:"chart_code,omitempty"`
	PreviewImage string            `json:"preview_image,omitempty"`
	Timestamp    int64             `json:"timestamp"`
	Messages     []*schema.Message `json:"messages"`
}

// OwnerKey derives the history namespace of the caller holding apiKey. The
// key itself never reaches storage.
func OwnerKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:16])
}

// HistoryRepository stores conversations per owner; see OwnerKey. Items of
// one owner are invisible to every other owner.
type HistoryRepository interface {
	// AddItem stores item as the owner's newest entry, replacing any item
	// with the same ID and evicting the oldest entries beyond the cap.
	AddItem(ctx context.Context, owner string, item *HistoryItem) error

	// UpdateItem replaces the messages and chart code of an existing item
	// and moves it to the top.
	UpdateItem(ctx context.Context, owner string, item *HistoryItem) error

	// GetItem returns the item or an errx.ErrNotFound error.
	GetItem(ctx context.Context, owner, id string) (*HistoryItem, error)

	// ListItems returns the owner's items, newest first.
	ListItems(ctx context.Context, owner string) ([]*HistoryItem, error)

	// DeleteItem removes an item. Deleting a missing item is not an error.
	DeleteItem(ctx context.Context, owner, id string) error
}
